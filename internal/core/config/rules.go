package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openline-hq/caseguard/internal/access"
)

// RuleSource resolves the case-visibility rule for an account. Accounts
// without an explicit entry fall back to the default rule.
type RuleSource struct {
	defaults access.ConditionSets
	accounts map[string]access.ConditionSets
}

type rulesFile struct {
	Default  access.ConditionSets            `json:"default"`
	Accounts map[string]access.ConditionSets `json:"accounts"`
}

// PermissiveRules grants visibility to every authenticated worker. Used when
// no rules file is configured.
func PermissiveRules() *RuleSource {
	return &RuleSource{
		defaults: access.ConditionSets{{access.Cap("everyone")}},
	}
}

// LoadRules reads per-account visibility rules from a JSON file and checks
// every capability name against the registry. Unknown names fail here, at
// load time, rather than on the first request that hits them.
func LoadRules(path string, reg *access.Registry) (*RuleSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f rulesFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if f.Default == nil {
		f.Default = access.ConditionSets{{access.Cap("everyone")}}
	}
	if err := reg.Validate(f.Default); err != nil {
		return nil, fmt.Errorf("invalid default rule: %w", err)
	}
	for sid, sets := range f.Accounts {
		if err := reg.Validate(sets); err != nil {
			return nil, fmt.Errorf("invalid rule for account %s: %w", sid, err)
		}
	}

	return &RuleSource{defaults: f.Default, accounts: f.Accounts}, nil
}

// ViewCase returns the visibility rule for the given account.
func (rs *RuleSource) ViewCase(accountSID string) access.ConditionSets {
	if sets, ok := rs.accounts[accountSID]; ok {
		return sets
	}
	return rs.defaults
}
