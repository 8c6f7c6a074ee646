package models

import (
	"github.com/shopspring/decimal"
)

// SpecificationResource is one bill-of-materials line: the quantity of a
// resource consumed per assembled unit of a product.
type SpecificationResource struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ResourceId      int             `gorm:"index;not null;uniqueIndex:idx_spec_resource" json:"resource_id"`
	Resource        *Resource       `gorm:"constraint:OnDelete:CASCADE" json:"resource,omitempty"`
	SpecificationId int             `gorm:"index;not null;uniqueIndex:idx_spec_resource" json:"specification_id"`
	Specification   *Specification  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
}

// LineCost is the line's contribution to the product's prime cost.
func (sr *SpecificationResource) LineCost() decimal.Decimal {
	if sr.Resource == nil {
		return decimal.Zero
	}
	return sr.Resource.Cost.Mul(sr.Amount)
}
