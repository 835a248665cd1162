package compiler

import (
	"fmt"

	"github.com/hollis-dev/basalt/internal/rules"
	"github.com/hollis-dev/basalt/internal/schema"
)

// ValidateRules parses every declared rule expression so a broken
// rule fails when the definition is compiled, not on the first
// request that hits it.
func ValidateRules(col *schema.Collection) error {
	for _, op := range []schema.Operation{
		schema.OpList, schema.OpView, schema.OpCreate, schema.OpUpdate, schema.OpDelete,
	} {
		rule := col.Rules.Rule(op)
		if rule == nil || *rule == "" {
			continue
		}
		if _, err := rules.Parse(*rule); err != nil {
			return fmt.Errorf("collection %q %s rule: %w", col.Name, op, err)
		}
	}
	return nil
}

// ValidateAll runs ValidateRules over a compiled definition set.
func ValidateAll(cols []*schema.Collection) error {
	for _, col := range cols {
		if err := ValidateRules(col); err != nil {
			return err
		}
	}
	return nil
}
