package amqp

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// EventKind names a ledger mutation.
type EventKind string

const (
	TransactionsAdded    EventKind = "transactions.added"
	TransactionDeleted   EventKind = "transaction.deleted"
	TransactionsCleared  EventKind = "transactions.cleared"
	TransactionsReplaced EventKind = "transactions.replaced"
	BudgetUpdated        EventKind = "budget.updated"
)

// LedgerEvent is a lightweight notification of a ledger change. Consumers
// that need the records read them back from the ledger itself.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	IDs       []string  `json:"ids,omitempty"`
	Count     int       `json:"count"`
	Budget    *int64    `json:"budget,omitempty"`
	Months    []string  `json:"months,omitempty"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(kind EventKind, revision uint64, ids ...string) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		IDs:       ids,
		Count:     len(ids),
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// WithBudget attaches the new budget to a budget.updated event.
func (e *LedgerEvent) WithBudget(amount int64) *LedgerEvent {
	e.Budget = &amount
	return e
}

// WithMonths records the YYYY-MM months whose records changed, sorted and
// without duplicates.
func (e *LedgerEvent) WithMonths(months ...string) *LedgerEvent {
	set := make(map[string]struct{}, len(months))
	for _, m := range months {
		if m != "" {
			set[m] = struct{}{}
		}
	}
	e.Months = make([]string, 0, len(set))
	for m := range set {
		e.Months = append(e.Months, m)
	}
	sort.Strings(e.Months)
	return e
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown kinds.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Kind {
	case TransactionsAdded, TransactionDeleted, TransactionsCleared, TransactionsReplaced, BudgetUpdated:
		return &e, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}
