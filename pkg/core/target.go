package core

import "fmt"

// Target is a named database attached for the duration of a run.
type Target struct {
	// Name is the logical database name used in ATTACH/USE/DETACH.
	Name string `koanf:"name" json:"name"`

	// Path is the backing file. Empty means the target is volatile (in-memory).
	Path string `koanf:"path" json:"path,omitempty"`
}

// Volatile reports whether the target lives only in memory.
func (t Target) Volatile() bool {
	return t.Path == ""
}

// String returns "name" for volatile targets and "name (path)" otherwise.
func (t Target) String() string {
	if t.Volatile() {
		return t.Name
	}
	return fmt.Sprintf("%s (%s)", t.Name, t.Path)
}

// ValidateTargets checks that names are unique plain identifiers, and that no
// two file targets share a backing path. Names appear unquoted in ATTACH, USE
// and DETACH statements, so they are restricted to letters, digits and '_',
// not starting with a digit.
func ValidateTargets(targets []Target) error {
	names := make(map[string]struct{}, len(targets))
	paths := make(map[string]string, len(targets))
	for i, t := range targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
		if !isIdentifier(t.Name) {
			return fmt.Errorf("target %d: name %q is not a plain identifier (use letters, digits and _)", i, t.Name)
		}
		if _, dup := names[t.Name]; dup {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		names[t.Name] = struct{}{}
		if t.Volatile() {
			continue
		}
		if other, dup := paths[t.Path]; dup {
			return fmt.Errorf("targets %q and %q share backing path %s", other, t.Name, t.Path)
		}
		paths[t.Path] = t.Name
	}
	return nil
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
