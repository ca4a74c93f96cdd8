// Package districts provides the static district risk table produced by the
// offline upload-volume analysis.
package districts

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Level is a district load classification.
type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelNormal Level = "NORMAL"
)

// Risk contributions returned by Lookup.
const (
	RiskNormal  = 0
	RiskUnknown = 15
	RiskHigh    = 25
)

//go:embed default.yaml
var defaultTable []byte

// Table maps exact district names to a load level. It is immutable after
// construction and safe for concurrent use.
type Table struct {
	levels map[string]Level
}

type document struct {
	Districts map[string]Level `yaml:"districts"`
}

// New copies levels into a Table, rejecting unknown level names.
func New(levels map[string]Level) (*Table, error) {
	t := &Table{levels: make(map[string]Level, len(levels))}
	for name, level := range levels {
		if level != LevelHigh && level != LevelNormal {
			return nil, fmt.Errorf("district %q: unknown level %q", name, level)
		}
		t.levels[name] = level
	}
	return t, nil
}

// Parse reads a YAML district table.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse district table: %w", err)
	}
	if len(doc.Districts) == 0 {
		return nil, fmt.Errorf("parse district table: no districts")
	}
	return New(doc.Districts)
}

// Load reads a YAML district table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read district table: %w", err)
	}
	return Parse(data)
}

// Default returns the table built into the binary.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the risk contribution for a district: 25 for HIGH, 0 for
// NORMAL and 15 when the district is not in the table. Names match exactly.
func (t *Table) Lookup(district string) int {
	level, ok := t.levels[district]
	if !ok {
		return RiskUnknown
	}
	if level == LevelHigh {
		return RiskHigh
	}
	return RiskNormal
}

// Len is the number of districts in the table.
func (t *Table) Len() int { return len(t.levels) }

// Write encodes levels in the format Parse reads, with districts sorted.
func Write(w io.Writer, levels map[string]Level) error {
	var buf bytes.Buffer
	buf.WriteString("districts:\n")
	for _, name := range slices.Sorted(maps.Keys(levels)) {
		entry, err := yaml.Marshal(map[string]Level{name: levels[name]})
		if err != nil {
			return fmt.Errorf("encode district %q: %w", name, err)
		}
		buf.WriteString("  ")
		buf.Write(entry)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
