package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"chitieu/internal/core"
)

// importRecord mirrors core.Transaction with every field optional so that
// missing fields can be told apart from zero values.
type importRecord struct {
	ID           string          `json:"id"`
	Date         *string         `json:"date"`
	Amount       json.RawMessage `json:"amount"`
	Type         *string         `json:"type"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	OriginalText string          `json:"originalText"`
}

// DecodeImport parses a backup or pasted JSON array. Text that is not JSON
// yields a MalformedPayloadError; JSON of the wrong shape or with a record
// missing date, amount or type yields a ValidationError.
func DecodeImport(data []byte) ([]core.Transaction, error) {
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &core.MalformedPayloadError{Err: fmt.Errorf("empty input")}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &core.MalformedPayloadError{Err: err}
	}
	if _, ok := raw.([]any); !ok {
		return nil, &core.ValidationError{Index: -1, Reason: "payload is not an array"}
	}

	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &core.ValidationError{Index: -1, Reason: err.Error()}
	}

	out := make([]core.Transaction, 0, len(records))
	for i, r := range records {
		if r.Date == nil || strings.TrimSpace(*r.Date) == "" {
			return nil, &core.ValidationError{Index: i, Field: "date", Reason: "is required"}
		}
		date, err := core.ParseDate(*r.Date)
		if err != nil {
			return nil, &core.ValidationError{Index: i, Field: "date", Reason: err.Error()}
		}

		if len(r.Amount) == 0 || string(r.Amount) == "null" {
			return nil, &core.ValidationError{Index: i, Field: "amount", Reason: "is required"}
		}
		var amount core.Money
		if err := json.Unmarshal(r.Amount, &amount); err != nil {
			return nil, &core.ValidationError{Index: i, Field: "amount", Reason: err.Error()}
		}

		if r.Type == nil || *r.Type == "" {
			return nil, &core.ValidationError{Index: i, Field: "type", Reason: "is required"}
		}

		out = append(out, core.Transaction{
			ID:           r.ID,
			Date:         date,
			Amount:       amount,
			Type:         core.Type(*r.Type),
			Category:     core.Category(r.Category),
			Description:  r.Description,
			OriginalText: r.OriginalText,
		})
	}
	return out, nil
}

// EncodeBackup renders txs in the interchange format accepted by
// DecodeImport.
func EncodeBackup(txs []core.Transaction) ([]byte, error) {
	if txs == nil {
		txs = []core.Transaction{}
	}
	b, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	return b, nil
}

// BackupFileName is the suggested name of a backup taken on day.
func BackupFileName(day core.Date) string {
	return "backup_chitieu_" + day.Key() + ".json"
}
