package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"citesearch/models"
	"citesearch/providers/citesearch"
	"citesearch/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SearchLogService schreibt abgeschlossene Suchen in die Tabelle "searches".
type SearchLogService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewSearchLogService erstellt einen SearchLogService. Ist db nil, ist das Protokoll deaktiviert.
func NewSearchLogService(db *gorm.DB, logger *zap.Logger) *SearchLogService {
	return &SearchLogService{DB: db, Logger: logger}
}

// Enabled meldet, ob eine Datenbank angebunden ist.
func (s *SearchLogService) Enabled() bool {
	return s != nil && s.DB != nil
}

// BuildSearchLog wandelt ein Outcome in eine Protokollzeile.
func BuildSearchLog(meta SessionMeta, outcome session.Outcome) (models.SearchLog, error) {
	row := models.SearchLog{
		RequestID:      outcome.RequestID,
		SessionID:      meta.ID,
		ClientIP:       meta.ClientIP,
		UserAgent:      meta.UserAgent,
		SearchText:     outcome.Query,
		Outcome:        outcome.Kind.Outcome(),
		ResponseTime:   outcome.Elapsed.Seconds(),
		ErrorMessage:   outcome.Message,
		CitationsFound: len(outcome.Citations),
		ResponseStatus: http.StatusOK,
	}

	var se *citesearch.ServerError
	switch {
	case errors.As(outcome.Err, &se):
		row.ResponseStatus = se.StatusCode
	case outcome.Err != nil:
		// keine Antwort erhalten
		row.ResponseStatus = 0
	}

	citations := outcome.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	data, err := json.Marshal(citations)
	if err != nil {
		return row, err
	}
	row.FinalCitations = data
	return row, nil
}

// Record speichert ein Outcome. Fehler werden nur geloggt, die Suche selbst bleibt unberührt.
func (s *SearchLogService) Record(ctx context.Context, meta SessionMeta, outcome session.Outcome) {
	if !s.Enabled() {
		return
	}
	log := s.Logger.With(zap.String("request_id", outcome.RequestID))

	row, err := BuildSearchLog(meta, outcome)
	if err != nil {
		log.Error("Such-Protokoll konnte nicht serialisiert werden", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		log.Error("Fehler beim Schreiben des Such-Protokolls", zap.Error(err))
		return
	}
	log.Debug("Such-Protokoll geschrieben", zap.Uint("id", row.ID))
}
