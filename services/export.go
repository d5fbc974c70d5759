package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"citesearch/config"
	"citesearch/models"
	"citesearch/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExportPrefix ist der S3-Prefix für exportierte Such-Protokolle.
const ExportPrefix = "search-logs/"

const exportBatchSize = 500

// ExportService exportiert die Tabelle "searches" als gzip-komprimierte JSON-Lines nach S3.
type ExportService struct {
	Config *config.Config
	DB     *gorm.DB
	Store  storage.ObjectStore
	Logger *zap.Logger

	now func() time.Time
}

// NewExportService erstellt eine neue Instanz des ExportService.
func NewExportService(cfg *config.Config, db *gorm.DB, store storage.ObjectStore, logger *zap.Logger) *ExportService {
	return &ExportService{Config: cfg, DB: db, Store: store, Logger: logger, now: time.Now}
}

// ExportResult fasst einen Export-Lauf zusammen.
type ExportResult struct {
	Key     string
	Link    string
	Rows    int
	Deleted []string
}

// Run exportiert alle Zeilen, lädt sie hoch und rotiert alte Exporte.
func (e *ExportService) Run(ctx context.Context) (ExportResult, error) {
	var res ExportResult

	var buf bytes.Buffer
	rows, err := e.dump(ctx, &buf)
	if err != nil {
		return res, fmt.Errorf("dump searches: %w", err)
	}
	res.Rows = rows

	res.Key = fmt.Sprintf("%ssearches-%s.jsonl.gz", ExportPrefix, e.now().UTC().Format("2006-01-02T15-04-05Z"))
	res.Link, err = storage.UploadFile(ctx, e.Store, e.Config.S3URL, e.Config.S3Bucket, res.Key, buf.Bytes())
	if err != nil {
		return res, fmt.Errorf("upload %s: %w", res.Key, err)
	}
	e.Logger.Info("Such-Protokoll exportiert", zap.String("key", res.Key), zap.Int("rows", rows))

	res.Deleted, err = storage.RotateObjects(ctx, e.Store, e.Config.S3Bucket, ExportPrefix, e.Config.KeepBackups)
	if err != nil {
		return res, fmt.Errorf("rotate exports: %w", err)
	}
	for _, key := range res.Deleted {
		e.Logger.Info("Altes Export gelöscht", zap.String("key", key))
	}
	return res, nil
}

// dump schreibt alle Zeilen der Tabelle "searches" gzip-komprimiert nach w.
func (e *ExportService) dump(ctx context.Context, w io.Writer) (int, error) {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)

	total := 0
	var batch []models.SearchLog
	result := e.DB.WithContext(ctx).FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			if err := enc.Encode(&batch[i]); err != nil {
				return err
			}
		}
		total += len(batch)
		return nil
	})
	if result.Error != nil {
		return total, result.Error
	}
	if err := gz.Close(); err != nil {
		return total, err
	}
	return total, nil
}
