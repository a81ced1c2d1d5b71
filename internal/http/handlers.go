package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"chitieu/internal/core"
	"chitieu/internal/report"
)

type submitRequest struct {
	Text string    `json:"text"`
	Date core.Date `json:"date"`
}

type submitResponse struct {
	Transactions []core.Transaction `json:"transactions"`
	Count        int                `json:"count"`
}

type budgetBody struct {
	Budget core.Money `json:"budget"`
}

type exportToResponse struct {
	Target string `json:"target"`
	Ref    string `json:"ref"`
}

// exportTargets are the sinks a report can be pushed to.
var exportTargets = map[string]bool{"sheets": true, "gcs": true}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := s.ledger.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"transactions": store.Len(),
		"revision":     store.Revision(),
	})
}

// handleReady runs every registered check with a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	status := http.StatusOK
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": results})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Summary(from, to))
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r, s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Calendar(year, month))
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	today := s.ledger.Today()
	year, month, err := parseYearMonth(r, today)
	if err != nil {
		writeError(w, r, err)
		return
	}
	day, err := queryInt(r, "day", today.Day())
	if err != nil {
		writeError(w, r, err)
		return
	}
	last := core.NewDate(year, month+1, 0).Day()
	if day < 1 || day > last {
		writeError(w, r, badRequest("day", "must be between 1 and "+strconv.Itoa(last)))
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Day(year, month, day))
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.MonthlyReport())
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Timeline(from, to))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Categories(from, to))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r, s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.History(year, month))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text := sanitizeInput(req.Text)
	if text == "" {
		writeError(w, r, badRequest("text", "cannot be empty"))
		return
	}

	txs, err := s.ledger.Submit(r.Context(), text, req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Transactions: txs, Count: len(txs)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, badRequest("id", "cannot be empty"))
		return
	}
	if !s.ledger.Delete(r.Context(), id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "transaction not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.ledger.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, budgetBody{Budget: s.ledger.Budget()})
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.SetBudget(r.Context(), req.Budget); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.ledger.Backup()
	if err != nil {
		writeError(w, r, err)
		return
	}
	attachment(w, name, "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleRestore replaces the ledger with the raw JSON body.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, &core.MalformedPayloadError{Err: err})
		return
	}
	n, err := s.ledger.Import(r.Context(), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, err := s.parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.ledger.Export(r.Context(), p, format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attachment(w, out.FileName, out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

// handleExportTo pushes a report to a configured sink. A known target with
// no writer answers 503.
func (s *Server) handleExportTo(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("target")
	if !exportTargets[target] {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown export target " + strconv.Quote(target)})
		return
	}
	p, err := s.parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := s.ledger.ExportTo(r.Context(), p, s.sinks[target])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportToResponse{Target: target, Ref: ref})
}

// parsePeriod reads kind, year, month, from and to. An absent kind means the
// month export, and absent year or month fall back to today.
func (s *Server) parsePeriod(r *http.Request) (report.Period, error) {
	q := r.URL.Query()
	today := s.ledger.Today()

	kind := q.Get("kind")
	if strings.TrimSpace(kind) == "" {
		kind = string(report.KindMonth)
	}
	year := q.Get("year")
	if strings.TrimSpace(year) == "" {
		year = strconv.Itoa(today.Year())
	}
	month := q.Get("month")
	if strings.TrimSpace(month) == "" {
		month = strconv.Itoa(today.Month())
	}
	return report.ParsePeriod(kind, year, month, q.Get("from"), q.Get("to"))
}
