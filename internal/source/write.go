package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// WriteFiles writes each stream to dir/<label>, one statement per line, and
// returns the written paths. Statements missing a trailing ';' get one so the
// files split back into the same statements.
func WriteFiles(dir string, streams []core.Stream) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create statement directory: %w", err)
	}

	paths := make([]string, 0, len(streams))
	for _, s := range streams {
		var b strings.Builder
		for i, stmt := range s.Statements {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(stmt)
			if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
				b.WriteByte(';')
			}
		}

		path := filepath.Join(dir, s.Label)
		if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
