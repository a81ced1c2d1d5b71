package report

import (
	"fmt"
	"strconv"
	"strings"

	"chitieu/internal/core"
)

type (
	Kind   string
	Format string
)

const (
	KindMonth  Kind = "month"
	KindYear   Kind = "year"
	KindCustom Kind = "custom"

	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type of an encoded report.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ParseFormat defaults to CSV when s is empty.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", &core.ValidationError{Index: -1, Field: "format", Reason: fmt.Sprintf("unsupported value %q", s)}
}

// Period is the date range an export covers.
type Period struct {
	Kind  Kind
	Year  int
	Month int
	From  core.Date
	To    core.Date
}

func MonthPeriod(year, month int) Period {
	return Period{Kind: KindMonth, Year: year, Month: month}
}

func YearPeriod(year int) Period {
	return Period{Kind: KindYear, Year: year}
}

func CustomPeriod(from, to core.Date) Period {
	return Period{Kind: KindCustom, From: from, To: to}
}

// Range returns the inclusive first and last day of the period.
func (p Period) Range() (core.Date, core.Date) {
	switch p.Kind {
	case KindMonth:
		first := core.NewDate(p.Year, p.Month, 1)
		return first, core.NewDate(p.Year, p.Month+1, 0)
	case KindYear:
		return core.NewDate(p.Year, 1, 1), core.NewDate(p.Year, 12, 31)
	default:
		return p.From, p.To
	}
}

// FileName is the base name, without extension, of the exported file.
func (p Period) FileName() string {
	switch p.Kind {
	case KindMonth:
		return fmt.Sprintf("Report_month_%d_%d", p.Month, p.Year)
	case KindYear:
		return fmt.Sprintf("Report_year_%d", p.Year)
	default:
		return fmt.Sprintf("Report_custom_from_%s_to_%s", p.From.Key(), p.To.Key())
	}
}

// ParsePeriod builds a Period from query-style parameters. Custom periods
// need both from and to.
func ParsePeriod(kind, year, month, from, to string) (Period, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindMonth:
		y, err := parseYear(year)
		if err != nil {
			return Period{}, err
		}
		m, err := strconv.Atoi(strings.TrimSpace(month))
		if err != nil || m < 1 || m > 12 {
			return Period{}, &core.ValidationError{Index: -1, Field: "month", Reason: fmt.Sprintf("must be 1-12, got %q", month)}
		}
		return MonthPeriod(y, m), nil
	case KindYear:
		y, err := parseYear(year)
		if err != nil {
			return Period{}, err
		}
		return YearPeriod(y), nil
	case KindCustom:
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return Period{}, &core.ValidationError{Index: -1, Field: "from", Reason: "custom export needs both from and to"}
		}
		start, err := core.ParseDate(from)
		if err != nil {
			return Period{}, &core.ValidationError{Index: -1, Field: "from", Reason: err.Error()}
		}
		end, err := core.ParseDate(to)
		if err != nil {
			return Period{}, &core.ValidationError{Index: -1, Field: "to", Reason: err.Error()}
		}
		return CustomPeriod(start, end), nil
	}
	return Period{}, &core.ValidationError{Index: -1, Field: "kind", Reason: fmt.Sprintf("unknown export kind %q", kind)}
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1 || y > 9999 {
		return 0, &core.ValidationError{Index: -1, Field: "year", Reason: fmt.Sprintf("invalid year %q", s)}
	}
	return y, nil
}
