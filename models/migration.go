package models

import (
	"github.com/mmdatafocus/cella_backend/config"
)

// MigrateDatabase creates or updates the schema. Parents migrate before the
// tables referencing them so the foreign keys resolve.
func MigrateDatabase() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Operator{},
		&ResourceProvider{},
		&Resource{},
		&ResourceCost{},
		&ResourceAction{},
		&ResourceDelivery{},
		&SpecificationCategory{},
		&Specification{},
		&SpecificationResource{},
		&SpecificationAction{},
		&OrderSource{},
		&Order{},
		&OrderSpecification{},
		&OrderAction{},
		&UnresolvedProduct{},
		&NotificationRecord{},
	)
}
