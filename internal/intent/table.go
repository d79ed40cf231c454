package intent

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"autofill-service/internal/match"
)

//go:embed rules.yaml
var defaultRules []byte

// ErrEmptyTable is returned when a rule file defines no intents.
var ErrEmptyTable = errors.New("intent table is empty")

// Pattern is a compiled rule pattern with its precomputed keyword set.
type Pattern struct {
	Source   string
	Keywords []string
	re       *regexp.Regexp
}

// MatchString reports whether the pattern matches normalized text.
func (p Pattern) MatchString(text string) bool {
	return p.re.MatchString(text)
}

// Entry maps one canonical intent to its ordered patterns.
type Entry struct {
	Intent      string
	Patterns    []Pattern
	IsProtected bool
}

// Table is an ordered, read-only list of entries. Build it with ParseTable or
// LoadTable; it is never mutated afterwards.
type Table struct {
	entries []Entry
	byKey   map[string]int
}

type rawTable struct {
	Intents []struct {
		Intent    string   `yaml:"intent"`
		Patterns  []string `yaml:"patterns"`
		Protected bool     `yaml:"protected"`
	} `yaml:"intents"`
}

// DefaultTable parses the embedded rule set. It panics on a broken embed since
// that can only happen at build time.
func DefaultTable() *Table {
	table, err := ParseTable(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded intent rules: %v", err))
	}
	return table
}

// LoadTable reads a YAML rule file from disk.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read intent rules: %w", err)
	}
	return ParseTable(data)
}

// ParseTable compiles a YAML rule document.
func ParseTable(data []byte) (*Table, error) {
	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal intent rules: %w", err)
	}

	table := &Table{byKey: make(map[string]int)}
	for _, item := range raw.Intents {
		name := strings.TrimSpace(item.Intent)
		if name == "" {
			return nil, errors.New("intent rule without a name")
		}
		if _, dup := table.byKey[name]; dup {
			return nil, fmt.Errorf("intent %q defined twice", name)
		}

		entry := Entry{Intent: name, IsProtected: item.Protected}
		for _, source := range item.Patterns {
			if strings.TrimSpace(source) == "" {
				continue
			}
			re, err := regexp.Compile(source)
			if err != nil {
				return nil, fmt.Errorf("intent %q pattern %q: %w", name, source, err)
			}
			entry.Patterns = append(entry.Patterns, Pattern{
				Source:   source,
				Keywords: match.PatternKeywords(source),
				re:       re,
			})
		}
		if len(entry.Patterns) == 0 {
			return nil, fmt.Errorf("intent %q has no patterns", name)
		}

		table.byKey[name] = len(table.entries)
		table.entries = append(table.entries, entry)
	}

	if len(table.entries) == 0 {
		return nil, ErrEmptyTable
	}
	return table, nil
}

// Entries returns a copy of the table entries in table order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the entry registered for the canonical key.
func (t *Table) Lookup(key string) (Entry, bool) {
	if t == nil || key == "" {
		return Entry{}, false
	}
	idx, ok := t.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return t.entries[idx], true
}

// Intents lists the canonical keys in table order.
func (t *Table) Intents() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry.Intent)
	}
	return out
}

// Len reports the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
