package imports

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ResourceRow is one parsed spreadsheet line. Expected columns:
// name | external id | cost | amount | provider.
type ResourceRow struct {
	Name       string
	ExternalId string
	Cost       decimal.Decimal
	Amount     decimal.Decimal
	Provider   string
}

// RowError ties a parse failure to its 1-based spreadsheet row.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// ParseResourceRows converts raw sheet rows into resource rows. The first
// row is treated as a header. Rows missing a name are skipped silently, rows
// with unparsable numbers are reported. Blank external ids get a synthetic
// one so the unique index never collides on "".
func ParseResourceRows(rows [][]string) ([]ResourceRow, []RowError) {
	var out []ResourceRow
	var errs []RowError
	seen := map[string]struct{}{}

	for i, row := range rows {
		if i == 0 {
			continue
		}
		cell := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}
		name := cell(0)
		if name == "" {
			continue
		}

		parsed := ResourceRow{
			Name:       name,
			ExternalId: cell(1),
			Provider:   cell(4),
		}
		if parsed.ExternalId == "" {
			parsed.ExternalId = "gen-" + utils.RandomString(12)
		}
		if _, dup := seen[parsed.ExternalId]; dup {
			errs = append(errs, RowError{Row: i + 1, Err: utils.ErrorDuplicateExternalId})
			continue
		}
		seen[parsed.ExternalId] = struct{}{}

		var err error
		if raw := cell(2); raw != "" {
			if parsed.Cost, err = decimal.NewFromString(raw); err != nil {
				errs = append(errs, RowError{Row: i + 1, Err: fmt.Errorf("bad cost %q", raw)})
				continue
			}
		}
		if raw := cell(3); raw != "" {
			if parsed.Amount, err = decimal.NewFromString(raw); err != nil {
				errs = append(errs, RowError{Row: i + 1, Err: fmt.Errorf("bad amount %q", raw)})
				continue
			}
		}
		out = append(out, parsed)
	}
	return out, errs
}

// ImportSummary reports a bulk import outcome.
type ImportSummary struct {
	Created int        `json:"created"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors,omitempty"`
}

// ImportResourcesFromExcel reads the first sheet of an xlsx file and creates
// a resource per row. Creation is best-effort: duplicate external ids are
// counted as skipped, other failures are reported per row, and valid rows
// are never rolled back by an invalid one.
func ImportResourcesFromExcel(ctx context.Context, r io.Reader, principal models.Principal) (*ImportSummary, error) {
	logger := config.GetLogger()

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, utils.OperationFailed("open spreadsheet", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, utils.OperationFailed("read spreadsheet", err)
	}

	parsed, rowErrs := ParseResourceRows(rows)
	summary := ImportSummary{Errors: rowErrs}

	for _, row := range parsed {
		input := models.NewResource{
			Name:         row.Name,
			ExternalId:   row.ExternalId,
			Cost:         row.Cost,
			Amount:       row.Amount,
			ProviderName: row.Provider,
		}
		_, err := models.CreateResource(ctx, &input, principal)
		switch err {
		case nil:
			summary.Created++
		case utils.ErrorDuplicateExternalId:
			summary.Skipped++
		default:
			summary.Errors = append(summary.Errors, RowError{Err: err})
			logger.WithFields(logrus.Fields{
				"module":      "imports",
				"external_id": row.ExternalId,
			}).Error("resource import row failed: " + err.Error())
		}
	}
	return &summary, nil
}
