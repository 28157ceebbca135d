package toolchain

import (
	"fmt"
	"strings"

	"github.com/vk/unibuild/internal/matrix"
	"github.com/vk/unibuild/internal/model"
)

// Table is a decision table of rules with exactly one rule per target.
type Table struct {
	rules map[model.Target]Rule
	order []model.Target
}

// NewTable builds a table, rejecting two rules for the same target.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{rules: make(map[model.Target]Rule, len(rules))}
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		key := r.Target()
		if _, dup := t.rules[key]; dup {
			return nil, fmt.Errorf("duplicate toolchain rule for %s", key.Label())
		}
		t.rules[key] = r
		t.order = append(t.order, key)
	}
	return t, nil
}

// MustDefaultTable returns the table of DefaultRules.
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

func validateRule(r Rule) error {
	var missing []string
	if r.Platform == "" {
		missing = append(missing, "platform")
	}
	if r.Arch == "" {
		missing = append(missing, "arch")
	}
	if r.SDKPlatform == "" {
		missing = append(missing, "sdk_platform")
	}
	if r.Host == "" {
		missing = append(missing, "host")
	}
	if len(missing) > 0 {
		return fmt.Errorf("toolchain rule %s-%s is missing %s", r.Platform, r.Arch, strings.Join(missing, ", "))
	}
	return nil
}

// Lookup returns the rule for target.
func (t *Table) Lookup(target model.Target) (Rule, bool) {
	r, ok := t.rules[target]
	return r, ok
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Override returns a new table where rules replace entries with the same key
// and add new ones. It reports which existing entries were replaced so the
// caller can log them. Two override rules for the same key are an error.
func (t *Table) Override(rules []Rule) (*Table, []model.Target, error) {
	incoming, err := NewTable(rules)
	if err != nil {
		return nil, nil, err
	}

	out := &Table{rules: make(map[model.Target]Rule, len(t.rules)+len(rules))}
	var replaced []model.Target
	for _, key := range t.order {
		if r, ok := incoming.rules[key]; ok {
			out.rules[key] = r
			replaced = append(replaced, key)
		} else {
			out.rules[key] = t.rules[key]
		}
		out.order = append(out.order, key)
	}
	for _, key := range incoming.order {
		if _, ok := out.rules[key]; ok {
			continue
		}
		out.rules[key] = incoming.rules[key]
		out.order = append(out.order, key)
	}
	return out, replaced, nil
}

// CheckExhaustive verifies every declared target has a rule.
func CheckExhaustive(archs matrix.ArchTable, table *Table) error {
	var missing []string
	for _, target := range archs.Targets() {
		if _, ok := table.Lookup(target); !ok {
			missing = append(missing, target.Label())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no toolchain rule for declared targets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Orphans returns rules whose target is not declared in archs.
func Orphans(archs matrix.ArchTable, table *Table) []model.Target {
	declared := make(map[model.Target]bool)
	for _, target := range archs.Targets() {
		declared[target] = true
	}
	var out []model.Target
	for _, key := range table.order {
		if !declared[key] {
			out = append(out, key)
		}
	}
	return out
}
