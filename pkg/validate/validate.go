// Package validate holds small request-shape checks: owner identities,
// deployment amounts, and strategy kinds. No other package in this
// repository imports it.
package validate

import (
	"fmt"
	"strings"

	"factory/internal/domain"
)

// Owner checks that an identity string is non-empty and free of
// surrounding whitespace, the minimum shape the ledger and deployment
// machine both assume.
func Owner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner must not be empty")
	}
	if owner != strings.TrimSpace(owner) {
		return fmt.Errorf("owner must not have leading or trailing whitespace")
	}
	return nil
}

// Amount checks that amount is a positive number of platform-token units.
func Amount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// StrategyKind checks that kind names one of the five supported templates.
func StrategyKind(kind string) error {
	if !domain.ValidStrategyKind(domain.StrategyKind(kind)) {
		return fmt.Errorf("unsupported strategy kind: %s", kind)
	}
	return nil
}
