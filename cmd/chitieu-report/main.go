package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"chitieu/internal/amqp"
	"chitieu/internal/backend"
	"chitieu/internal/cli"
	"chitieu/internal/config"
	"chitieu/internal/core"
	"chitieu/internal/ledger"
	"chitieu/internal/report"
	"chitieu/internal/services"
	"chitieu/internal/sheets"
	"chitieu/internal/sheets/csvfile"
	"chitieu/internal/sheets/gcs"
	gsheet "chitieu/internal/sheets/google"
)

// amounts are printed with Vietnamese digit grouping (50.000).
var printer = message.NewPrinter(language.Vietnamese)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "summary":
		err = runSummary(cfg, logger, os.Args[2:])
	case "monthly":
		err = runMonthly(cfg, logger, os.Args[2:])
	case "export":
		err = runExport(cfg, logger, os.Args[2:])
	case "import":
		err = runImport(cfg, logger, os.Args[2:])
	case "tail":
		err = runTail(cfg, logger, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("chitieu-report")
	fmt.Println("\nUsage:")
	fmt.Println("  chitieu-report <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  summary   Print the dashboard summary of a date range")
	fmt.Println("  monthly   Print income and spending per month")
	fmt.Println("  export    Write a month, year or custom report (csv, xlsx or sheets)")
	fmt.Println("  import    Replace the ledger with a JSON backup file")
	fmt.Println("  tail      Print ledger events from the message broker")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'chitieu-report <command> -h' for more information on a command.")
}

// openLedger loads the configured backend into a service. The returned
// function releases the backend.
func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services.LedgerService, func(), error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	// The CLI never publishes events.
	bc.AMQPURL = ""
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, nil, err
	}
	store := ledger.NewStore(result.Persistence)
	if err := store.Load(ctx); err != nil {
		_ = result.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}
	return services.NewLedgerService(store, services.Options{}), closeFn, nil
}

func parseDateFlag(name, v string) (core.Date, error) {
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("-%s: %w", name, err)
	}
	return d, nil
}

func money(m core.Money) string {
	return printer.Sprintf("%d", int64(m))
}

func runSummary(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	fromFlag := fs.String("from", "", "first day, YYYY-MM-DD (default: first day of this month)")
	toFlag := fs.String("to", "", "last day, YYYY-MM-DD (default: last day of this month)")
	_ = fs.Parse(args)

	from, err := parseDateFlag("from", *fromFlag)
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", *toFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, closeFn, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	s := svc.Summary(from, to)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Chi hôm nay\t%s\n", money(s.DailyTotal))
	fmt.Fprintf(w, "Tổng thu\t%s\n", money(s.MonthlyIncome))
	fmt.Fprintf(w, "Tổng chi\t%s\n", money(s.MonthlyExpense))
	fmt.Fprintf(w, "Tiết kiệm\t%s\n", money(s.MonthlySaving))
	fmt.Fprintf(w, "Đầu tư\t%s\n", money(s.MonthlyInvestment))
	fmt.Fprintf(w, "Ngân sách\t%s\n", money(s.MonthlyBudget))
	fmt.Fprintf(w, "Còn lại\t%s\n", printer.Sprintf("%d", s.RemainingBalance))
	fmt.Fprintf(w, "Trung bình/ngày\t%s\n", s.AverageDaily.StringFixed(0))
	fmt.Fprintf(w, "Dòng tiền ròng\t%s\n", printer.Sprintf("%d", s.NetCashFlow))
	fmt.Fprintf(w, "Tỷ lệ chi/thu\t%d%%\n", s.ExpenseRatio)
	if len(s.ByCategory) > 0 {
		fmt.Fprintln(w, "\t")
		for _, c := range s.ByCategory {
			fmt.Fprintf(w, "%s\t%s\n", c.Category, money(c.Amount))
		}
	}
	return w.Flush()
}

func runMonthly(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("monthly", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	svc, closeFn, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	rows := svc.MonthlyReport()
	if len(rows) == 0 {
		fmt.Println("No transactions.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Tháng\tThu\tChi\tTiết kiệm\tĐầu tư\t")
	for _, m := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			m.Month, money(m.Income), money(m.Expense), money(m.Saving), money(m.Investment))
	}
	return w.Flush()
}

func runExport(cfg *config.Config, logger *slog.Logger, args []string) error {
	today := core.Today()
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	kind := fs.String("kind", "month", "month, year or custom")
	year := fs.String("year", strconv.Itoa(today.Year()), "report year")
	month := fs.String("month", strconv.Itoa(today.Month()), "report month, 1-12")
	from := fs.String("from", "", "custom range start, YYYY-MM-DD")
	to := fs.String("to", "", "custom range end, YYYY-MM-DD")
	format := fs.String("format", "csv", "csv, xlsx or sheets")
	out := fs.String("out", cfg.ExportDir, "output directory for csv and xlsx")
	upload := fs.Bool("upload", false, "upload csv or xlsx to EXPORT_GCS_BUCKET instead of -out")
	_ = fs.Parse(args)

	p, err := report.ParsePeriod(*kind, *year, *month, *from, *to)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var sink sheets.ReportWriter
	if *format == "sheets" {
		if !cfg.SheetsEnabled() {
			return fmt.Errorf("export to sheets: %w (set GOOGLE_SPREADSHEET_ID)", sheets.ErrNotConfigured)
		}
		sink, err = gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
	} else {
		var f report.Format
		if f, err = report.ParseFormat(*format); err == nil {
			if *upload {
				if !cfg.GCSEnabled() {
					return fmt.Errorf("upload: %w (set EXPORT_GCS_BUCKET)", sheets.ErrNotConfigured)
				}
				var uploader *gcs.Writer
				uploader, err = gcs.New(ctx, gcs.Config{Bucket: cfg.ExportGCSBucket, Prefix: cfg.ExportGCSPrefix, Format: f})
				if err == nil {
					defer uploader.Close()
					sink = uploader
				}
			} else {
				sink, err = csvfile.New(*out, f)
			}
		}
	}
	if err != nil {
		return err
	}

	svc, closeFn, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	ref, err := svc.ExportTo(ctx, p, sink)
	if errors.Is(err, core.ErrEmptyResult) {
		fmt.Println("Nothing to export for", p.FileName())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported", ref)
	return nil
}

func runImport(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "path to a JSON backup")
	_ = fs.Parse(args)

	if *file == "" {
		return errors.New("-file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	ctx := context.Background()
	svc, closeFn, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := svc.Import(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d transactions from %s\n", n, *file)
	return nil
}

// tailQueue is the queue tail reads from. It is never the worker's durable
// queue, so printed events still reach the worker.
func tailQueue() string {
	return amqp.TransientQueue
}

func runTail(cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	_ = fs.Parse(args)

	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is not set")
	}
	// A private queue sees every event without taking any from the worker.
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, tailQueue())
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Waiting for ledger events", "exchange", cfg.AMQPExchange)
	err = client.ConsumeEvents(ctx, func(e *amqp.LedgerEvent) error {
		fmt.Printf("%s rev=%d kind=%s count=%d ids=%v\n",
			e.Timestamp.Format(time.RFC3339), e.Revision, e.Kind, e.Count, e.IDs)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
