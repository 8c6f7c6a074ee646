package workflow_test

import (
	"sort"
	"testing"

	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/workflow"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func orderWith(lines ...*models.OrderSpecification) *models.Order {
	return &models.Order{OrderSpecifications: lines}
}

func TestAssemblingShortagesAllCovered(t *testing.T) {
	resource := &models.Resource{ID: 1, Amount: dec("100")}
	order := orderWith(&models.OrderSpecification{
		Amount: 5,
		Specification: &models.Specification{
			ID: 10,
			ResSpecs: []*models.SpecificationResource{
				{ResourceId: 1, Resource: resource, Amount: dec("4")},
			},
		},
	})

	specs, resources := workflow.AssemblingShortages(order)
	if len(specs) != 0 || len(resources) != 0 {
		t.Fatalf("expected no shortages, got specs=%v resources=%v", specs, resources)
	}
}

func TestAssemblingShortagesShelfOffsetsDemand(t *testing.T) {
	// 5 ordered, 3 on the shelf: only 2 sets hit raw stock of 8/4-per-set.
	resource := &models.Resource{ID: 1, Amount: dec("8")}
	order := orderWith(&models.OrderSpecification{
		Amount: 5,
		Specification: &models.Specification{
			ID:     10,
			Amount: 3,
			ResSpecs: []*models.SpecificationResource{
				{ResourceId: 1, Resource: resource, Amount: dec("4")},
			},
		},
	})

	specs, resources := workflow.AssemblingShortages(order)
	if len(specs) != 0 || len(resources) != 0 {
		t.Fatalf("shelf stock should cover the gap, got specs=%v resources=%v", specs, resources)
	}
}

func TestAssemblingShortagesSharedResource(t *testing.T) {
	// Two products share resource 1: each demand alone fits, together they don't.
	shared := &models.Resource{ID: 1, Amount: dec("10")}
	order := orderWith(
		&models.OrderSpecification{
			Amount: 2,
			Specification: &models.Specification{
				ID: 10,
				ResSpecs: []*models.SpecificationResource{
					{ResourceId: 1, Resource: shared, Amount: dec("3")},
				},
			},
		},
		&models.OrderSpecification{
			Amount: 2,
			Specification: &models.Specification{
				ID: 20,
				ResSpecs: []*models.SpecificationResource{
					{ResourceId: 1, Resource: shared, Amount: dec("3")},
				},
			},
		},
	)

	specs, resources := workflow.AssemblingShortages(order)
	if len(resources) != 1 || resources[0] != 1 {
		t.Fatalf("missing resources = %v, want [1]", resources)
	}
	sort.Ints(specs)
	// the first line fits (6 <= 10); the second pushes the tally to 12
	if len(specs) != 1 || specs[0] != 20 {
		t.Fatalf("missing specifications = %v, want [20]", specs)
	}
}

func TestAssemblingShortagesIgnoresAssembledLines(t *testing.T) {
	// The only line is already packed; raw stock no longer matters.
	resource := &models.Resource{ID: 1, Amount: dec("1")}
	order := orderWith(&models.OrderSpecification{
		Amount:    5,
		Assembled: true,
		Specification: &models.Specification{
			ID: 10,
			ResSpecs: []*models.SpecificationResource{
				{ResourceId: 1, Resource: resource, Amount: dec("4")},
			},
		},
	})

	specs, resources := workflow.AssemblingShortages(order)
	if len(specs) != 0 || len(resources) != 0 {
		t.Fatalf("assembled lines must not count, got specs=%v resources=%v", specs, resources)
	}
}

func TestAssemblingShortagesSurplusNeverOffsetsOtherLines(t *testing.T) {
	// Product 10 has 6 on the shelf for 1 ordered; product 20 genuinely
	// needs 24 of the shared resource against 10 in stock.
	shared := &models.Resource{ID: 1, Amount: dec("10")}
	order := orderWith(
		&models.OrderSpecification{
			Amount: 1,
			Specification: &models.Specification{
				ID:     10,
				Amount: 6,
				ResSpecs: []*models.SpecificationResource{
					{ResourceId: 1, Resource: shared, Amount: dec("3")},
				},
			},
		},
		&models.OrderSpecification{
			Amount: 8,
			Specification: &models.Specification{
				ID: 20,
				ResSpecs: []*models.SpecificationResource{
					{ResourceId: 1, Resource: shared, Amount: dec("3")},
				},
			},
		},
	)

	specs, resources := workflow.AssemblingShortages(order)
	if len(resources) != 1 || resources[0] != 1 {
		t.Fatalf("missing resources = %v, want [1]", resources)
	}
	if len(specs) != 1 || specs[0] != 20 {
		t.Fatalf("missing specifications = %v, want [20]", specs)
	}
}

func TestAssemblingShortagesSkipsBrokenPreloads(t *testing.T) {
	order := orderWith(
		&models.OrderSpecification{Amount: 2},
		&models.OrderSpecification{
			Amount: 1,
			Specification: &models.Specification{
				ID: 10,
				ResSpecs: []*models.SpecificationResource{
					{ResourceId: 1, Amount: dec("3")},
				},
			},
		},
	)

	specs, resources := workflow.AssemblingShortages(order)
	if len(specs) != 0 || len(resources) != 0 {
		t.Fatalf("lines without preloaded rows must be skipped, got specs=%v resources=%v", specs, resources)
	}
}
