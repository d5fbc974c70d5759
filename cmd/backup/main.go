package main

import (
	"context"
	"log"
	"time"

	"citesearch/config"
	"citesearch/services"
	"citesearch/storage"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	logging.Info("Starte Export des Such-Protokolls...")

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}
	if !cfg.SearchLogEnabled() || !cfg.ExportEnabled() {
		logging.Fatal("DB_HOST, S3_URL und S3_BUCKET müssen gesetzt sein")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// 1. Datenbank verbinden
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Fehler beim Verbinden mit der Datenbank", zap.Error(err))
	}

	// 2. S3-Client erstellen
	s3Client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		logging.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}

	// 3. Export hochladen und alte Exporte rotieren
	res, err := services.NewExportService(cfg, db, s3Client, logging).Run(ctx)
	if err != nil {
		logging.Fatal("Export fehlgeschlagen", zap.Error(err))
	}

	logging.Info("Export erfolgreich abgeschlossen",
		zap.String("link", res.Link),
		zap.Int("rows", res.Rows),
		zap.Strings("deleted", res.Deleted),
	)
}
