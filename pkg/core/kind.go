package core

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Kind
// =============================================================================

// Kind is the closed set of error kinds a statement attempt can produce.
// Engine errors are mapped onto it once, where they leave the driver.
type Kind int

// Engine error kinds.
const (
	KindNone Kind = iota
	KindIO
	KindBinder
	KindCatalog
	KindParser
	KindSyntax
	KindTransaction
	KindConstraint
	KindConversion
	KindInvalidInput
	KindDependency
	KindSerialization
	KindInterrupt
	KindConnection
	KindInternal
	KindFatal
	KindOutOfMemory
	KindPermission
	KindOther

	// Harness kinds. These never come from the engine.

	// KindAcquisition marks a worker that could not obtain a connection.
	KindAcquisition
	// KindTimeout marks a statement that ran past its deadline.
	KindTimeout
	// KindHang marks a worker that did not finish within the run timeout.
	KindHang
	// KindCrash marks a worker process that exited abnormally.
	KindCrash
	// KindUnknown marks an error that did not come from the engine.
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNone:          "none",
	KindIO:            "io",
	KindBinder:        "binder",
	KindCatalog:       "catalog",
	KindParser:        "parser",
	KindSyntax:        "syntax",
	KindTransaction:   "transaction",
	KindConstraint:    "constraint",
	KindConversion:    "conversion",
	KindInvalidInput:  "invalid_input",
	KindDependency:    "dependency",
	KindSerialization: "serialization",
	KindInterrupt:     "interrupt",
	KindConnection:    "connection",
	KindInternal:      "internal",
	KindFatal:         "fatal",
	KindOutOfMemory:   "out_of_memory",
	KindPermission:    "permission",
	KindOther:         "other",
	KindAcquisition:   "acquisition",
	KindTimeout:       "timeout",
	KindHang:          "hang",
	KindCrash:         "crash",
	KindUnknown:       "unknown",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind converts a kind name (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindsByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return KindNone, fmt.Errorf("unknown error kind %q (known: %s)", s, strings.Join(KindNames(), ", "))
	}
	return k, nil
}

// KindNames returns every kind name except "none", sorted.
func KindNames() []string {
	names := make([]string, 0, len(kindNames))
	for k, name := range kindNames {
		if k == KindNone {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// ClassificationSet
// =============================================================================

// ClassificationSet is the set of kinds treated as expected during a run.
// The zero value expects nothing. A set is not modified after construction,
// so one value may be shared by every worker of a run.
type ClassificationSet struct {
	kinds map[Kind]struct{}
}

// DefaultExpectedKinds are the kinds produced by intentional contention:
// file lock conflicts, detach races and catalog races.
var DefaultExpectedKinds = []Kind{KindIO, KindBinder, KindCatalog}

// NewClassificationSet returns a set expecting the given kinds.
func NewClassificationSet(kinds ...Kind) ClassificationSet {
	m := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		if k == KindNone {
			continue
		}
		m[k] = struct{}{}
	}
	return ClassificationSet{kinds: m}
}

// DefaultClassificationSet returns a set expecting DefaultExpectedKinds.
func DefaultClassificationSet() ClassificationSet {
	return NewClassificationSet(DefaultExpectedKinds...)
}

// ParseClassificationSet builds a set from kind names.
func ParseClassificationSet(names []string) (ClassificationSet, error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return ClassificationSet{}, err
		}
		kinds = append(kinds, k)
	}
	return NewClassificationSet(kinds...), nil
}

// Expected reports whether errors of kind k are expected.
func (c ClassificationSet) Expected(k Kind) bool {
	_, ok := c.kinds[k]
	return ok
}

// Classify returns the Result for an error of kind k.
func (c ClassificationSet) Classify(k Kind) Result {
	if c.Expected(k) {
		return ResultExpectedError
	}
	return ResultUnexpectedError
}

// Kinds returns the expected kinds ordered by value.
func (c ClassificationSet) Kinds() []Kind {
	out := make([]Kind, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names returns the expected kind names ordered by kind value.
func (c ClassificationSet) Names() []string {
	kinds := c.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
