package imports_test

import (
	"strings"
	"testing"

	"github.com/mmdatafocus/cella_backend/imports"
	"github.com/shopspring/decimal"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<offers>
  <offer>
    <shop-sku>Birdhouse kit</shop-sku>
    <market-sku>bh-100</market-sku>
    <price>1290.50</price>
  </offer>
  <offer>
    <shop-sku>No market sku</shop-sku>
    <market-sku></market-sku>
    <price>10</price>
  </offer>
  <offer>
    <shop-sku>Bad price</shop-sku>
    <market-sku>bp-1</market-sku>
    <price>n/a</price>
  </offer>
  <offer>
    <shop-sku>Free sample</shop-sku>
    <market-sku>fs-1</market-sku>
    <price></price>
  </offer>
</offers>`

func TestParseOfferFeed(t *testing.T) {
	rows, errs, err := imports.ParseOfferFeed(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("ParseOfferFeed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(rows), rows)
	}
	if rows[0].ProductId != "bh-100" || rows[0].Name != "Birdhouse kit" {
		t.Errorf("row 0 parsed wrong: %+v", rows[0])
	}
	if !rows[0].Price.Equal(decimal.RequireFromString("1290.50")) {
		t.Errorf("row 0 price = %s", rows[0].Price)
	}
	if rows[1].ProductId != "fs-1" || !rows[1].Price.IsZero() {
		t.Errorf("empty price should parse as zero: %+v", rows[1])
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly the bad-price offer", errs)
	}
}

func TestParseOfferFeedRejectsGarbage(t *testing.T) {
	_, _, err := imports.ParseOfferFeed(strings.NewReader("not xml at all"))
	if err == nil {
		t.Fatal("expected a decode error")
	}
}
