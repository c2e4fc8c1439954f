package main

import (
	"context"
	"flag"
	"os"

	"github.com/dvloznov/finance-assistant/internal/config"
	infraBQ "github.com/dvloznov/finance-assistant/internal/infra/bigquery"
	"github.com/dvloznov/finance-assistant/internal/logger"
)

func main() {
	cfg := config.Load()

	var (
		projectID = flag.String("project", cfg.BigQueryProject, "GCP project ID (or set BIGQUERY_PROJECT)")
		datasetID = flag.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID (or set BIGQUERY_DATASET)")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name recorded in schema_migrations")
		list      = flag.Bool("list", false, "List bundled migrations and exit")
	)
	flag.Parse()

	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithJSON(cfg.LogJSON))

	if *list {
		migrations, err := infraBQ.Migrations()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migrations")
		}
		for _, m := range migrations {
			log.Info().Int("version", m.Version).Str("name", m.Name).Str("checksum", m.Checksum[:12]).Msg("Migration")
		}
		return
	}

	if *projectID == "" {
		log.Error().Msg("-project flag or BIGQUERY_PROJECT is required")
		os.Exit(2)
	}

	ctx := context.Background()
	l, err := infraBQ.NewLedger(ctx, infraBQ.Config{ProjectID: *projectID, DatasetID: *datasetID}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer l.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	applied, err := l.Migrate(ctx, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
		return
	}
	log.Info().Int("applied", applied).Msg("Migrations applied")
}
