// Package classify turns free-text spending notes into transaction drafts.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chitieu/internal/core"

	"golang.org/x/text/unicode/norm"
)

// ErrUnavailable is returned when no classification backend is configured.
var ErrUnavailable = errors.New("classifier unavailable")

// MaxDescriptionRunes bounds the description of a draft.
const MaxDescriptionRunes = 200

// Classifier extracts a draft from one fragment of user input.
type Classifier interface {
	Classify(ctx context.Context, fragment string) (core.Draft, error)
}

// Response is the raw structured answer of a classification backend.
type Response struct {
	Amount      json.Number `json:"amount"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
}

// Keywords that always mean going out, whatever the backend answered.
var hangOutKeywords = []string{"cafe", "ăn phố"}

// SplitFragments splits a comma separated batch into trimmed, non-empty
// fragments, keeping their order.
func SplitFragments(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Normalize applies the house rules to a backend response so that the
// resulting draft always carries a known type and a category that type
// allows.
func Normalize(fragment string, r Response) (core.Draft, error) {
	amount := core.Money(0)
	if s := strings.TrimSpace(r.Amount.String()); s != "" {
		m, err := core.ParseMoney(s)
		if err != nil {
			return core.Draft{}, fmt.Errorf("amount %q: %w", s, err)
		}
		amount = m
	}

	rawType := core.Type(strings.ToLower(strings.TrimSpace(r.Type)))

	category := core.CategoryOther
	if c := core.Category(norm.NFC.String(strings.TrimSpace(r.Category))); c.Valid() {
		category = c
	}
	switch rawType {
	case core.Income:
		if category == core.CategoryOther {
			category = core.CategoryIncome
		}
	case core.Saving:
		category = core.CategorySaving
	case core.Investment:
		category = core.CategoryInvestment
	}

	if containsAny(fold(fragment), hangOutKeywords) {
		category = core.CategoryEntertainment
		rawType = core.Expense
	}

	typ := rawType
	if !typ.Valid() {
		typ = core.Expense
	}
	if !typ.Allows(category) {
		if typ == core.Income {
			category = core.CategoryIncome
		} else {
			category = core.CategoryOther
		}
	}

	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		desc = strings.TrimSpace(fragment)
	}
	if rs := []rune(desc); len(rs) > MaxDescriptionRunes {
		desc = string(rs[:MaxDescriptionRunes])
	}

	return core.Draft{
		Amount:      amount,
		Type:        typ,
		Category:    category,
		Description: desc,
	}, nil
}

func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, fragment string) (core.Draft, error)

func (f Func) Classify(ctx context.Context, fragment string) (core.Draft, error) {
	return f(ctx, fragment)
}
