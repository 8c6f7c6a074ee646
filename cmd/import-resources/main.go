package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/imports"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/sirupsen/logrus"
)

// Bulk loader for warehouse data: resources from an xlsx sheet or product
// specifications from a marketplace offer feed.
//
//	import-resources -file items.xlsx
//	import-resources -file offers.xml -kind xml
func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "path to the import file")
	kind := flag.String("kind", "excel", "import kind: excel (resources) or xml (specifications)")
	flag.Parse()

	logger := config.GetLogger()
	if *file == "" {
		logger.Fatal("missing -file")
	}

	config.ConnectDatabaseWithRetry()
	if err := models.MigrateDatabase(); err != nil {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.WithFields(logrus.Fields{"file": *file}).Fatal(err.Error())
	}
	defer f.Close()

	ctx := context.Background()
	var summary *imports.ImportSummary
	switch strings.ToLower(*kind) {
	case "excel":
		summary, err = imports.ImportResourcesFromExcel(ctx, f, models.SystemPrincipal())
	case "xml":
		summary, err = imports.ImportSpecificationsFromXML(ctx, f, models.SystemPrincipal())
	default:
		logger.Fatal("unknown -kind: " + *kind)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{"file": *file}).Fatal(err.Error())
	}

	logger.WithFields(logrus.Fields{
		"file":    *file,
		"created": summary.Created,
		"skipped": summary.Skipped,
		"errors":  len(summary.Errors),
	}).Info("import finished")
	for _, rowErr := range summary.Errors {
		logger.Warn(rowErr.Error())
	}
}
