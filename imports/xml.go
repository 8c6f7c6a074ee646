package imports

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Marketplace feed format: a list of <offer> elements where shop-sku is the
// product name, market-sku the product id and price the selling price.
type offerFeed struct {
	XMLName xml.Name    `xml:"offers"`
	Offers  []offerItem `xml:"offer"`
}

type offerItem struct {
	ShopSku   string `xml:"shop-sku"`
	MarketSku string `xml:"market-sku"`
	Price     string `xml:"price"`
}

// ProductRow is one parsed feed entry.
type ProductRow struct {
	Name      string
	ProductId string
	Price     decimal.Decimal
}

// ParseOfferFeed decodes a marketplace offer feed. Offers without a market
// sku are skipped; bad prices are reported with a zero-based offer index.
func ParseOfferFeed(r io.Reader) ([]ProductRow, []RowError, error) {
	var feed offerFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, nil, utils.OperationFailed("decode offer feed", err)
	}

	var out []ProductRow
	var errs []RowError
	for i, offer := range feed.Offers {
		productId := strings.TrimSpace(offer.MarketSku)
		if productId == "" {
			continue
		}
		row := ProductRow{
			Name:      strings.TrimSpace(offer.ShopSku),
			ProductId: productId,
		}
		if raw := strings.TrimSpace(offer.Price); raw != "" {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				errs = append(errs, RowError{Row: i, Err: err})
				continue
			}
			row.Price = price
		}
		out = append(out, row)
	}
	return out, errs, nil
}

// ImportSpecificationsFromXML creates a product specification per feed offer.
// Each create is its own transaction, so one bad offer does not sink the
// feed; a repeated product id just supersedes the previous revision.
func ImportSpecificationsFromXML(ctx context.Context, r io.Reader, principal models.Principal) (*ImportSummary, error) {
	logger := config.GetLogger()

	rows, rowErrs, err := ParseOfferFeed(r)
	if err != nil {
		return nil, err
	}
	summary := ImportSummary{Errors: rowErrs}

	for _, row := range rows {
		input := models.NewSpecification{
			Name:      row.Name,
			ProductId: row.ProductId,
			Price:     utils.DecimalPtr(row.Price),
		}
		if _, err := models.CreateSpecification(ctx, &input, principal); err != nil {
			summary.Errors = append(summary.Errors, RowError{Err: err})
			logger.WithFields(logrus.Fields{
				"module":     "imports",
				"product_id": row.ProductId,
			}).Error("specification import offer failed: " + err.Error())
			continue
		}
		summary.Created++
	}
	return &summary, nil
}
