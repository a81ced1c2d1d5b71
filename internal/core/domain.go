package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income     Type = "income"
	Expense    Type = "expense"
	Saving     Type = "saving"
	Investment Type = "investment"
)

// Category values are the literals persisted by earlier versions of the app,
// so they double as the wire format.
const (
	CategoryFood          Category = "Ăn uống"
	CategoryEntertainment Category = "Đi chơi & Giải trí"
	CategoryShopping      Category = "Mua sắm"
	CategoryIncome        Category = "Thu nhập"
	CategorySaving        Category = "Tiết kiệm"
	CategoryInvestment    Category = "Đầu tư"
	CategoryLoanDebt      Category = "Nợ & Vay"
	CategoryOther         Category = "Khác"
)

// DateLayout is the only accepted textual form of a Date.
const DateLayout = "2006-01-02"

const maxDescriptionLen = 200

type (
	// Type is the coarse cash-flow classification of a transaction.
	Type string

	// Category refines a Type.
	Category string

	// Date is a calendar day at UTC midnight.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID           string   `json:"id"`
		Date         Date     `json:"date"`
		Amount       Money    `json:"amount"`
		Type         Type     `json:"type"`
		Category     Category `json:"category"`
		Description  string   `json:"description"`
		OriginalText string   `json:"originalText,omitempty"`
	}

	// Draft is what the classifier extracts from one text fragment.
	Draft struct {
		Amount      Money
		Type        Type
		Category    Category
		Description string
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrCategoryMismatch   = errors.New("category does not match transaction type")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
)

// Types returns every transaction type.
func Types() []Type {
	return []Type{Income, Expense, Saving, Investment}
}

func (t Type) Valid() bool {
	switch t {
	case Income, Expense, Saving, Investment:
		return true
	default:
		return false
	}
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryEntertainment,
		CategoryShopping,
		CategoryIncome,
		CategorySaving,
		CategoryInvestment,
		CategoryLoanDebt,
		CategoryOther,
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryFood, CategoryEntertainment, CategoryShopping, CategoryIncome,
		CategorySaving, CategoryInvestment, CategoryLoanDebt, CategoryOther:
		return true
	default:
		return false
	}
}

// IsExpenseCategory reports whether c can label spending. Income, saving and
// investment categories never appear in expense breakdowns.
func (c Category) IsExpenseCategory() bool {
	switch c {
	case CategoryIncome, CategorySaving, CategoryInvestment:
		return false
	default:
		return true
	}
}

// Allows reports whether a record of type t may carry category c.
func (t Type) Allows(c Category) bool {
	switch t {
	case Income:
		return c == CategoryIncome || c == CategoryLoanDebt || c == CategoryOther
	case Expense:
		return c.IsExpenseCategory()
	case Saving:
		return c == CategorySaving
	case Investment:
		return c == CategoryInvestment
	default:
		return false
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Today returns the current UTC calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Key returns the zero-padded YYYY-MM-DD form.
func (d Date) Key() string {
	return d.Format(DateLayout)
}

// MonthKey returns the zero-padded YYYY-MM form.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Key()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, t.Category)
	}
	if !t.Type.Allows(t.Category) {
		return fmt.Errorf("%w: %s/%s", ErrCategoryMismatch, t.Type, t.Category)
	}
	if len([]rune(t.Description)) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// MigrateLegacy fills in the type of records written before types existed.
// Such records were either income (tagged with the income category) or
// expenses.
func MigrateLegacy(t Transaction) (Transaction, bool) {
	if t.Type != "" {
		return t, false
	}
	if t.Category == CategoryIncome {
		t.Type = Income
	} else {
		t.Type = Expense
	}
	return t, true
}
