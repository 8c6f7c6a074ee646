package models_test

import (
	"testing"

	"github.com/mmdatafocus/cella_backend/models"
	"github.com/shopspring/decimal"
)

func bomLine(resourceId int, stock, cost, perSet string) *models.SpecificationResource {
	return &models.SpecificationResource{
		ResourceId: resourceId,
		Resource: &models.Resource{
			ID:     resourceId,
			Amount: decimal.RequireFromString(stock),
			Cost:   decimal.RequireFromString(cost),
		},
		Amount: decimal.RequireFromString(perSet),
	}
}

func TestPrimeCostSumsBillOfMaterials(t *testing.T) {
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "100", "2.50", "4"),  // 10.00
			bomLine(2, "100", "0.30", "12"), // 3.60
		},
	}
	if got, want := specification.PrimeCost(), decimal.RequireFromString("13.60"); !got.Equal(want) {
		t.Fatalf("PrimeCost = %s, want %s", got, want)
	}
}

func TestPrimeCostEmptyBillOfMaterials(t *testing.T) {
	specification := &models.Specification{}
	if got := specification.PrimeCost(); !got.IsZero() {
		t.Fatalf("PrimeCost of empty bill = %s, want 0", got)
	}
}

func TestAssembleInfoMinRatio(t *testing.T) {
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "100", "1", "4"), // 25 sets
			bomLine(2, "9", "1", "2"),   // 4 sets
		},
	}
	if got := specification.AssembleInfo(); got != 4 {
		t.Fatalf("AssembleInfo = %d, want 4", got)
	}
}

func TestAssembleInfoNoLines(t *testing.T) {
	specification := &models.Specification{}
	if got := specification.AssembleInfo(); got != 0 {
		t.Fatalf("AssembleInfo of lineless product = %d, want 0", got)
	}
}

func TestAssembleInfoSkipsZeroQuantityLine(t *testing.T) {
	// A malformed zero-quantity line must not zero the whole product.
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "100", "1", "4"),
			bomLine(2, "100", "1", "0"),
		},
	}
	if got := specification.AssembleInfo(); got != 25 {
		t.Fatalf("AssembleInfo with zero-quantity line = %d, want 25", got)
	}
}

func TestAssembleInfoOnlyZeroQuantityLines(t *testing.T) {
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "100", "1", "0"),
		},
	}
	if got := specification.AssembleInfo(); got != 0 {
		t.Fatalf("AssembleInfo = %d, want 0", got)
	}
}

func TestAssembleInfoFractionalStock(t *testing.T) {
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "10.5", "1", "3"), // floor(3.5) = 3
		},
	}
	if got := specification.AssembleInfo(); got != 3 {
		t.Fatalf("AssembleInfo = %d, want 3", got)
	}
}

func TestBuildPreviewProjectsResidue(t *testing.T) {
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "100", "1", "4"),
			bomLine(2, "10", "1", "3"),
		},
	}
	preview := specification.BuildPreview(3)
	if len(preview) != 2 {
		t.Fatalf("preview lines = %d, want 2", len(preview))
	}
	if want := decimal.RequireFromString("88"); !preview[0].Amount.Equal(want) {
		t.Errorf("residue[0] = %s, want %s", preview[0].Amount, want)
	}
	if want := decimal.RequireFromString("1"); !preview[1].Amount.Equal(want) {
		t.Errorf("residue[1] = %s, want %s", preview[1].Amount, want)
	}
}

func TestBuildPreviewCanGoNegative(t *testing.T) {
	// Preview is a projection, not a mutation: it shows the shortage.
	specification := &models.Specification{
		ResSpecs: []*models.SpecificationResource{
			bomLine(1, "5", "1", "4"),
		},
	}
	preview := specification.BuildPreview(2)
	if want := decimal.RequireFromString("-3"); !preview[0].Amount.Equal(want) {
		t.Fatalf("residue = %s, want %s", preview[0].Amount, want)
	}
}
