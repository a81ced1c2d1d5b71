package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chitieu/internal/classify"
	"chitieu/internal/core"
	applog "chitieu/internal/log"
	"chitieu/internal/sheets"
)

type errorBody struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors to status codes: validation and malformed
// input 400, classification 422, empty export 404, missing collaborator 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		verr *core.ValidationError
		cerr *core.ClassificationError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Field = verr.Field
		if verr.Index >= 0 {
			idx := verr.Index
			body.Index = &idx
		}
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrMalformedPayload):
		status = http.StatusBadRequest
	case errors.As(err, &cerr):
		status = http.StatusUnprocessableEntity
		body.Fragment = cerr.Fragment
	case errors.Is(err, core.ErrEmptyResult):
		status = http.StatusNotFound
	case errors.Is(err, classify.ErrUnavailable), errors.Is(err, sheets.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, r.Method+" "+r.URL.Path)
		if status == http.StatusInternalServerError {
			body = errorBody{Error: "internal error"}
		}
	}
	writeJSON(w, status, body)
}

func badRequest(field, reason string) error {
	return &core.ValidationError{Index: -1, Field: field, Reason: reason}
}

// queryInt reads an integer query parameter, def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest(name, "must be a number")
	}
	return n, nil
}

// parseYearMonth reads year and month, defaulting to the current month.
func parseYearMonth(r *http.Request, today core.Date) (year, month int, err error) {
	if year, err = queryInt(r, "year", today.Year()); err != nil {
		return 0, 0, err
	}
	if month, err = queryInt(r, "month", today.Month()); err != nil {
		return 0, 0, err
	}
	if month < 1 || month > 12 {
		return 0, 0, badRequest("month", "must be between 1 and 12")
	}
	if year < 1 || year > 9999 {
		return 0, 0, badRequest("year", "out of range")
	}
	return year, month, nil
}

// parseRange reads optional from/to dates. Absent bounds stay zero.
func parseRange(r *http.Request) (from, to core.Date, err error) {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, badRequest("from", "must be YYYY-MM-DD")
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, badRequest("to", "must be YYYY-MM-DD")
		}
	}
	return from, to, nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &core.MalformedPayloadError{Err: err}
	}
	return nil
}

// sanitizeInput drops control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
}
