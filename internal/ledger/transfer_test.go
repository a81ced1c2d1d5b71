package ledger

import (
	"errors"
	"strings"
	"testing"

	"chitieu/internal/core"
)

func TestDecodeImport(t *testing.T) {
	data := `[
		{"id":"a","date":"2024-05-10","amount":50000,"type":"expense","category":"Ăn uống","description":"phở"},
		{"date":"2024-05-11","amount":"1500000","type":"income","category":"Thu nhập"}
	]`
	got, err := DecodeImport([]byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Amount != 50000 || got[0].Category != core.CategoryFood {
		t.Fatalf("unexpected first record %+v", got[0])
	}
	if got[1].Amount != 1500000 || got[1].Type != core.Income {
		t.Fatalf("unexpected second record %+v", got[1])
	}
}

func TestDecodeImportErrors(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		malformed bool
		index     int
		field     string
	}{
		{"not json", "hello", true, 0, ""},
		{"empty", "   ", true, 0, ""},
		{"object", `{"date":"2024-01-01"}`, false, -1, ""},
		{"missing date", `[{"amount":1,"type":"expense"}]`, false, 0, "date"},
		{"missing amount", `[{"date":"2024-01-01","amount":1,"type":"expense"},{"date":"2024-01-01","type":"expense"}]`, false, 1, "amount"},
		{"null amount", `[{"date":"2024-01-01","amount":null,"type":"expense"}]`, false, 0, "amount"},
		{"missing type", `[{"date":"2024-01-01","amount":1}]`, false, 0, "type"},
		{"bad date", `[{"date":"01/01/2024","amount":1,"type":"expense"}]`, false, 0, "date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeImport([]byte(tc.in))
			if tc.malformed {
				if !errors.Is(err, core.ErrMalformedPayload) {
					t.Fatalf("expected malformed payload, got %v", err)
				}
				return
			}
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Index != tc.index || ve.Field != tc.field {
				t.Fatalf("expected index=%d field=%q, got index=%d field=%q", tc.index, tc.field, ve.Index, ve.Field)
			}
		})
	}
}

func TestBackupRoundTripThroughStore(t *testing.T) {
	txs := []core.Transaction{
		{ID: "a", Date: core.NewDate(2024, 5, 10), Amount: 50000, Type: core.Expense, Category: core.CategoryFood, Description: "phở", OriginalText: "phở 50k"},
	}
	b, err := EncodeBackup(txs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(b), `"originalText": "phở 50k"`) {
		t.Fatalf("backup is missing originalText: %s", b)
	}
	back, err := DecodeImport(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(back) != 1 || back[0] != txs[0] {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestEncodeBackupEmpty(t *testing.T) {
	b, err := EncodeBackup(nil)
	if err != nil || string(b) != "[]" {
		t.Fatalf("expected empty array, got %s (%v)", b, err)
	}
}

func TestBackupFileName(t *testing.T) {
	if got := BackupFileName(core.NewDate(2024, 3, 7)); got != "backup_chitieu_2024-03-07.json" {
		t.Fatalf("unexpected name %q", got)
	}
}
