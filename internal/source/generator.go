package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Category is a statement category of the generator grammar.
type Category string

// Statement categories.
const (
	CategoryAttach      Category = "attach"
	CategoryDetach      Category = "detach"
	CategoryUse         Category = "use"
	CategoryCreateTable Category = "create_table"
	CategoryDropTable   Category = "drop_table"
	CategoryInsert      Category = "insert"
	CategoryCreateView  Category = "create_view"
	CategoryDropView    Category = "drop_view"
)

// DefaultWeights favours inserts and keeps destructive statements rare.
var DefaultWeights = map[Category]int{
	CategoryAttach:      10,
	CategoryDetach:      1,
	CategoryUse:         10,
	CategoryCreateTable: 10,
	CategoryDropTable:   1,
	CategoryInsert:      50,
	CategoryCreateView:  10,
	CategoryDropView:    1,
}

// categoryOrder fixes the iteration order so a seed always yields the same
// statements.
var categoryOrder = []Category{
	CategoryAttach,
	CategoryDetach,
	CategoryUse,
	CategoryCreateTable,
	CategoryDropTable,
	CategoryInsert,
	CategoryCreateView,
	CategoryDropView,
}

// printable matches Python's string.printable without \x0b and \x0c.
const printable = "0123456789" +
	"abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~" +
	" \t\n\r"

// DefaultStringLength is the length of each generated VARCHAR value.
const DefaultStringLength = 5000

// Generator produces random statements from a small fixed grammar.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand

	targets      []core.Target
	tables       []string
	views        []string
	columns      []string
	weights      []int
	total        int
	stringLength int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes generation deterministic. A zero seed seeds from the clock.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) {
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithWeights overrides category weights. Categories not present keep their
// default weight; a weight of zero disables the category.
func WithWeights(weights map[Category]int) GeneratorOption {
	return func(g *Generator) {
		for i, c := range categoryOrder {
			if w, ok := weights[c]; ok {
				g.weights[i] = w
			}
		}
	}
}

// WithStringLength sets the length of generated string values.
func WithStringLength(n int) GeneratorOption {
	return func(g *Generator) {
		g.stringLength = n
	}
}

// NewGenerator returns a generator referencing the given targets.
func NewGenerator(targets []core.Target, opts ...GeneratorOption) (*Generator, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("generator needs at least one target")
	}
	g := &Generator{
		targets:      targets,
		tables:       []string{"t1"},
		views:        []string{"v1", "v2"},
		columns:      []string{"c1", "c2"},
		weights:      make([]int, len(categoryOrder)),
		stringLength: DefaultStringLength,
	}
	for i, c := range categoryOrder {
		g.weights[i] = DefaultWeights[c]
	}
	WithSeed(0)(g)
	for _, opt := range opts {
		opt(g)
	}

	for i, w := range g.weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %d for %s", w, categoryOrder[i])
		}
		g.total += w
	}
	if g.total == 0 {
		return nil, fmt.Errorf("all statement weights are zero")
	}
	if g.stringLength < 0 {
		return nil, fmt.Errorf("negative string length %d", g.stringLength)
	}
	return g, nil
}

// Generate returns n statements.
func (g *Generator) Generate(n int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, n)
	for i := range out {
		out[i] = g.statement(g.pick())
	}
	return out
}

// Statement returns one statement of the given category.
func (g *Generator) Statement(c Category) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statement(c)
}

func (g *Generator) pick() Category {
	r := g.rng.IntN(g.total)
	for i, w := range g.weights {
		if r < w {
			return categoryOrder[i]
		}
		r -= w
	}
	return categoryOrder[len(categoryOrder)-1]
}

func (g *Generator) statement(c Category) string {
	switch c {
	case CategoryAttach:
		t := g.target()
		if t.Volatile() {
			return fmt.Sprintf("ATTACH ':memory:' AS %s;", t.Name)
		}
		return fmt.Sprintf("ATTACH '%s';", t.Path)
	case CategoryDetach:
		return fmt.Sprintf("DETACH %s;", g.target().Name)
	case CategoryUse:
		return fmt.Sprintf("USE %s.main;", g.target().Name)
	case CategoryCreateTable:
		cols := make([]string, len(g.columns))
		for i, col := range g.columns {
			cols[i] = col + " VARCHAR"
		}
		return fmt.Sprintf("CREATE TABLE %s (%s);", g.choice(g.tables), strings.Join(cols, ", "))
	case CategoryDropTable:
		return fmt.Sprintf("DROP TABLE %s;", g.choice(g.tables))
	case CategoryInsert:
		values := make([]string, len(g.columns))
		for i := range values {
			values[i] = g.quotedString()
		}
		return fmt.Sprintf("INSERT INTO %s VALUES (%s);", g.choice(g.tables), strings.Join(values, ", "))
	case CategoryCreateView:
		return fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s;", g.choice(g.views), g.choice(g.tables))
	case CategoryDropView:
		return fmt.Sprintf("DROP VIEW %s;", g.choice(g.views))
	default:
		panic(fmt.Sprintf("unknown statement category %q", c))
	}
}

func (g *Generator) target() core.Target {
	return g.targets[g.rng.IntN(len(g.targets))]
}

func (g *Generator) choice(items []string) string {
	return items[g.rng.IntN(len(items))]
}

// quotedString returns a SQL string literal with embedded quotes doubled.
func (g *Generator) quotedString() string {
	var b strings.Builder
	b.Grow(g.stringLength + 8)
	b.WriteByte('\'')
	for range g.stringLength {
		ch := printable[g.rng.IntN(len(printable))]
		if ch == '\'' {
			b.WriteByte('\'')
		}
		b.WriteByte(ch)
	}
	b.WriteByte('\'')
	return b.String()
}

// GeneratorSource serves freshly generated streams. It is not restartable.
type GeneratorSource struct {
	gen          *Generator
	streams      int
	perStream    int
	labelPattern string
}

// NewGeneratorSource returns a source of streams streams with perStream
// statements each. Labels are "file1.sql" .. "fileN.sql", matching the names
// WriteFiles uses, so a replay from disk reports the same labels.
func NewGeneratorSource(gen *Generator, streams, perStream int) *GeneratorSource {
	return &GeneratorSource{gen: gen, streams: streams, perStream: perStream, labelPattern: "file%d.sql"}
}

// Next implements Source. Every call generates new statements.
func (s *GeneratorSource) Next(ctx context.Context, id int) (core.Stream, error) {
	if id < 0 || id >= s.streams {
		return core.Stream{}, &OutOfRangeError{ID: id, Len: s.streams}
	}
	if err := ctx.Err(); err != nil {
		return core.Stream{}, err
	}
	return core.Stream{
		Label:      fmt.Sprintf(s.labelPattern, id+1),
		Statements: s.gen.Generate(s.perStream),
	}, nil
}

// Len implements Source.
func (s *GeneratorSource) Len() int { return s.streams }

// Restartable implements Source.
func (s *GeneratorSource) Restartable() bool { return false }
