package imports_test

import (
	"strings"
	"testing"

	"github.com/mmdatafocus/cella_backend/imports"
	"github.com/shopspring/decimal"
)

func TestParseResourceRows(t *testing.T) {
	rows := [][]string{
		{"name", "external id", "cost", "amount", "provider"},
		{"Screw M4", "scr-4", "0.12", "1000", "Acme"},
		{"Plate", "plt-1", "3.40", "25", ""},
	}

	parsed, errs := imports.ParseResourceRows(rows)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed = %d rows, want 2", len(parsed))
	}
	if parsed[0].Name != "Screw M4" || parsed[0].ExternalId != "scr-4" || parsed[0].Provider != "Acme" {
		t.Errorf("row 1 parsed wrong: %+v", parsed[0])
	}
	if !parsed[0].Cost.Equal(decimal.RequireFromString("0.12")) {
		t.Errorf("row 1 cost = %s", parsed[0].Cost)
	}
	if !parsed[1].Amount.Equal(decimal.RequireFromString("25")) {
		t.Errorf("row 2 amount = %s", parsed[1].Amount)
	}
}

func TestParseResourceRowsSkipsBlankNames(t *testing.T) {
	rows := [][]string{
		{"name", "external id", "cost", "amount", "provider"},
		{"", "x-1", "1", "1", ""},
		{"   ", "x-2", "1", "1", ""},
	}
	parsed, errs := imports.ParseResourceRows(rows)
	if len(parsed) != 0 || len(errs) != 0 {
		t.Fatalf("blank-name rows must be skipped silently, got %d rows %d errors", len(parsed), len(errs))
	}
}

func TestParseResourceRowsGeneratesExternalId(t *testing.T) {
	rows := [][]string{
		{"name", "external id"},
		{"Widget", ""},
	}
	parsed, _ := imports.ParseResourceRows(rows)
	if len(parsed) != 1 {
		t.Fatalf("parsed = %d rows, want 1", len(parsed))
	}
	if !strings.HasPrefix(parsed[0].ExternalId, "gen-") || len(parsed[0].ExternalId) != len("gen-")+12 {
		t.Fatalf("synthetic external id looks wrong: %q", parsed[0].ExternalId)
	}
}

func TestParseResourceRowsReportsBadNumbers(t *testing.T) {
	rows := [][]string{
		{"name", "external id", "cost", "amount"},
		{"Widget", "w-1", "abc", "1"},
		{"Gadget", "g-1", "1", "1,5"},
		{"Good", "ok-1", "1", "2"},
	}
	parsed, errs := imports.ParseResourceRows(rows)
	if len(parsed) != 1 || parsed[0].ExternalId != "ok-1" {
		t.Fatalf("only the valid row should parse, got %+v", parsed)
	}
	if len(errs) != 2 {
		t.Fatalf("errors = %d, want 2: %v", len(errs), errs)
	}
	if errs[0].Row != 2 || errs[1].Row != 3 {
		t.Errorf("error rows = %d,%d, want 2,3", errs[0].Row, errs[1].Row)
	}
}

func TestParseResourceRowsDuplicateWithinFile(t *testing.T) {
	rows := [][]string{
		{"name", "external id"},
		{"A", "dup-1"},
		{"B", "dup-1"},
	}
	parsed, errs := imports.ParseResourceRows(rows)
	if len(parsed) != 1 {
		t.Fatalf("parsed = %d rows, want 1", len(parsed))
	}
	if len(errs) != 1 || errs[0].Row != 3 {
		t.Fatalf("duplicate must be reported for row 3, got %v", errs)
	}
}
