package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DailyGranularityMaxDays is the widest span, in days, that a timeline still
// renders one bucket per date for.
const DailyGranularityMaxDays = 35

const (
	Daily   Granularity = "daily"
	Monthly Granularity = "monthly"
)

type (
	Granularity string

	// CategoryAmount represents an amount aggregated by category.
	CategoryAmount struct {
		Category Category `json:"category"`
		Amount   Money    `json:"amount"`
	}

	// Totals partitions amounts by transaction type.
	Totals struct {
		Income     Money `json:"income"`
		Expense    Money `json:"expense"`
		Saving     Money `json:"saving"`
		Investment Money `json:"investment"`
	}

	// Summary is the dashboard view of a date range.
	Summary struct {
		DailyTotal        Money            `json:"dailyTotal"`
		MonthlyExpense    Money            `json:"monthlyExpense"`
		MonthlyIncome     Money            `json:"monthlyIncome"`
		MonthlySaving     Money            `json:"monthlySaving"`
		MonthlyInvestment Money            `json:"monthlyInvestment"`
		MonthlyBudget     Money            `json:"monthlyBudget"`
		RemainingBalance  int64            `json:"remainingBalance"`
		AverageDaily      decimal.Decimal  `json:"averageDaily"`
		NetCashFlow       int64            `json:"netCashFlow"`
		ExpenseRatio      int64            `json:"expenseRatio"`
		ByCategory        []CategoryAmount `json:"byCategory"`
	}

	// DayTotals is the cash in/out of one calendar day.
	DayTotals struct {
		Income  Money `json:"income"`
		Expense Money `json:"expense"`
	}

	CalendarDay struct {
		Date Date `json:"date"`
		DayTotals
	}

	// MonthTotals is one row of the monthly report.
	MonthTotals struct {
		Month string `json:"month"`
		Totals
	}

	Bucket struct {
		Key     string `json:"key"`
		Label   string `json:"label"`
		Income  Money  `json:"income"`
		Expense Money  `json:"expense"`
	}

	Timeline struct {
		Granularity Granularity `json:"granularity"`
		Buckets     []Bucket    `json:"buckets"`
	}
)

// Add accumulates amount under type t.
func (s *Totals) Add(t Type, amount Money) {
	switch t {
	case Income:
		s.Income = s.Income.Plus(amount)
	case Expense:
		s.Expense = s.Expense.Plus(amount)
	case Saving:
		s.Saving = s.Saving.Plus(amount)
	case Investment:
		s.Investment = s.Investment.Plus(amount)
	}
}

// Of returns the total for type t.
func (s Totals) Of(t Type) Money {
	switch t {
	case Income:
		return s.Income
	case Expense:
		return s.Expense
	case Saving:
		return s.Saving
	case Investment:
		return s.Investment
	default:
		return 0
	}
}

// Outflow is everything that leaves spendable funds.
func (s Totals) Outflow() Money {
	return s.Expense.Plus(s.Saving).Plus(s.Investment)
}

// Net is income minus every outflow.
func (s Totals) Net() int64 {
	return int64(s.Income) - int64(s.Outflow())
}

// Surplus reports whether income covered every outflow.
func (s Totals) Surplus() bool {
	return s.Income >= s.Outflow()
}

// SumByType partitions txs by type.
func SumByType(txs []Transaction) Totals {
	var totals Totals
	for _, t := range txs {
		totals.Add(t.Type, t.Amount)
	}
	return totals
}

// InRange reports whether d lies within [start, end], both inclusive.
func InRange(d, start, end Date) bool {
	return !d.Before(start.Time) && !d.After(end.Time)
}

// FilterRange returns the transactions dated within [start, end]. A reversed
// range matches nothing. The input is never modified.
func FilterRange(txs []Transaction, start, end Date) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if InRange(t.Date, start, end) {
			out = append(out, t)
		}
	}
	return out
}

// DaysInclusive counts the days from a to b including both ends; the order
// of the arguments does not matter.
func DaysInclusive(a, b Date) int {
	return daysBetween(a, b) + 1
}

func daysBetween(a, b Date) int {
	d := b.Sub(a.Time)
	if d < 0 {
		d = -d
	}
	return int((d + 12*time.Hour) / (24 * time.Hour))
}

// AverageDailyPlaces is the precision averageDaily is encoded with.
const AverageDailyPlaces = 2

// MarshalJSON encodes averageDaily as a JSON number like every other amount.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		AverageDaily json.Number `json:"averageDaily"`
	}{
		plain:        plain(s),
		AverageDaily: json.Number(s.AverageDaily.StringFixed(AverageDailyPlaces)),
	})
}

// ComputeSummary builds the dashboard figures for [start, end]. DailyTotal
// always refers to today, whatever the range.
func ComputeSummary(txs []Transaction, start, end Date, budget Money, today Date) Summary {
	filtered := FilterRange(txs, start, end)
	totals := SumByType(filtered)

	var dailyTotal Money
	for _, t := range txs {
		if t.Type == Expense && t.Date.Equal(today.Time) {
			dailyTotal = dailyTotal.Plus(t.Amount)
		}
	}

	days := DaysInclusive(start, end)
	return Summary{
		DailyTotal:        dailyTotal,
		MonthlyExpense:    totals.Expense,
		MonthlyIncome:     totals.Income,
		MonthlySaving:     totals.Saving,
		MonthlyInvestment: totals.Investment,
		MonthlyBudget:     budget,
		RemainingBalance:  int64(budget) + int64(totals.Income) - int64(totals.Outflow()),
		AverageDaily:      totals.Expense.Decimal().Div(decimal.NewFromInt(int64(max(1, days)))),
		NetCashFlow:       int64(totals.Income) - int64(totals.Expense),
		ExpenseRatio:      ExpenseRatio(totals.Income, totals.Expense),
		ByCategory:        expenseByCategory(filtered, false),
	}
}

// ExpenseRatio is the share of income spent, as a whole percentage rounded
// half-up. Spending with no income counts as 100.
func ExpenseRatio(income, expense Money) int64 {
	if income > 0 {
		return expense.Decimal().Mul(decimal.NewFromInt(100)).Div(income.Decimal()).Round(0).IntPart()
	}
	if expense > 0 {
		return 100
	}
	return 0
}

// DailyRollup sums income and expense dated exactly year-month-day. Saving
// and investment are allocations, not cash in/out, and are left out.
func DailyRollup(txs []Transaction, year, month, day int) DayTotals {
	key := NewDate(year, month, day)
	var out DayTotals
	for _, t := range txs {
		if !t.Date.Equal(key.Time) {
			continue
		}
		switch t.Type {
		case Income:
			out.Income = out.Income.Plus(t.Amount)
		case Expense:
			out.Expense = out.Expense.Plus(t.Amount)
		}
	}
	return out
}

// CalendarMonth returns the DailyRollup of every day of the month, in order.
func CalendarMonth(txs []Transaction, year, month int) []CalendarDay {
	first := NewDate(year, month, 1)
	byDay := make(map[string]DayTotals)
	monthKey := first.MonthKey()
	for _, t := range txs {
		if t.Date.MonthKey() != monthKey {
			continue
		}
		dt := byDay[t.Date.Key()]
		switch t.Type {
		case Income:
			dt.Income = dt.Income.Plus(t.Amount)
		case Expense:
			dt.Expense = dt.Expense.Plus(t.Amount)
		}
		byDay[t.Date.Key()] = dt
	}

	var days []CalendarDay
	for d := first; d.MonthKey() == monthKey; d = d.AddDays(1) {
		days = append(days, CalendarDay{Date: d, DayTotals: byDay[d.Key()]})
	}
	return days
}

// MonthlyReport groups the full history by YYYY-MM, newest month first.
func MonthlyReport(txs []Transaction) []MonthTotals {
	months := make(map[string]*Totals)
	for _, t := range txs {
		key := t.Date.MonthKey()
		if months[key] == nil {
			months[key] = &Totals{}
		}
		months[key].Add(t.Type, t.Amount)
	}

	out := make([]MonthTotals, 0, len(months))
	for key, totals := range months {
		out = append(out, MonthTotals{Month: key, Totals: *totals})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}

// BuildTimeline buckets an already filtered set for charting. Sets spanning
// up to DailyGranularityMaxDays get one bucket per date present, wider sets
// one bucket per month present. Only income and expense are charted.
func BuildTimeline(txs []Transaction) Timeline {
	if len(txs) == 0 {
		return Timeline{Granularity: Daily, Buckets: []Bucket{}}
	}

	earliest, latest := txs[0].Date, txs[0].Date
	for _, t := range txs[1:] {
		if t.Date.Before(earliest.Time) {
			earliest = t.Date
		}
		if t.Date.After(latest.Time) {
			latest = t.Date
		}
	}

	granularity := Daily
	keyOf := Date.Key
	if daysBetween(earliest, latest) > DailyGranularityMaxDays {
		granularity = Monthly
		keyOf = Date.MonthKey
	}

	index := make(map[string]int)
	var buckets []Bucket
	for _, t := range txs {
		key := keyOf(t.Date)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{Key: key, Label: bucketLabel(granularity, t.Date)})
		}
		switch t.Type {
		case Income:
			buckets[i].Income = buckets[i].Income.Plus(t.Amount)
		case Expense:
			buckets[i].Expense = buckets[i].Expense.Plus(t.Amount)
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
	return Timeline{Granularity: granularity, Buckets: buckets}
}

func bucketLabel(g Granularity, d Date) string {
	if g == Monthly {
		return fmt.Sprintf("T%02d", d.Month())
	}
	return fmt.Sprintf("%02d", d.Day())
}

// CategoryBreakdown totals expense-type records per expense category. Records
// tagged expense but carrying an income, saving or investment category are
// dropped.
func CategoryBreakdown(txs []Transaction) []CategoryAmount {
	return expenseByCategory(txs, true)
}

func expenseByCategory(txs []Transaction, expenseCategoriesOnly bool) []CategoryAmount {
	sums := make(map[Category]Money)
	for _, t := range txs {
		if t.Type == Expense {
			sums[t.Category] = sums[t.Category].Plus(t.Amount)
		}
	}

	out := make([]CategoryAmount, 0, len(sums))
	for _, c := range Categories() {
		if expenseCategoriesOnly && !c.IsExpenseCategory() {
			continue
		}
		if sums[c] > 0 {
			out = append(out, CategoryAmount{Category: c, Amount: sums[c]})
		}
		delete(sums, c)
	}
	if expenseCategoriesOnly {
		return out
	}

	// Restored backups may carry labels outside the enum; keep them visible
	// after the known ones.
	extra := make([]CategoryAmount, 0, len(sums))
	for c, amount := range sums {
		if amount > 0 {
			extra = append(extra, CategoryAmount{Category: c, Amount: amount})
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Category < extra[j].Category })
	return append(out, extra...)
}

// History lists one month's transactions newest first.
func History(txs []Transaction, year, month int) []Transaction {
	monthKey := NewDate(year, month, 1).MonthKey()
	out := make([]Transaction, 0)
	for _, t := range txs {
		if t.Date.MonthKey() == monthKey {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out
}

// SortChronological returns a copy of txs ordered oldest first; records on the
// same day keep their relative order.
func SortChronological(txs []Transaction) []Transaction {
	out := append([]Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}
