package models

import (
	"encoding/json"
	"time"
)

// Ergebnis-Klassen einer Suche im Such-Protokoll.
const (
	OutcomeSuccess      = "success"
	OutcomeServerError  = "server_error"
	OutcomeNoResponse   = "no_response"
	OutcomeRequestError = "request_error"
	OutcomeUnexpected   = "unexpected_error"
)

// SearchLog protokolliert eine abgeschlossene Suche einer Browser-Session.
type SearchLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	RequestID string `json:"request_id" gorm:"index;not null"`
	SessionID string `json:"session_id" gorm:"index"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`

	SearchText     string  `json:"search_text" gorm:"type:text"`
	Outcome        string  `json:"outcome" gorm:"index"`
	ResponseStatus int     `json:"response_status"`
	ResponseTime   float64 `json:"response_time"`
	ErrorMessage   string  `json:"error_message,omitempty" gorm:"type:text"`
	CitationsFound int     `json:"citations_found"`

	// Die angezeigten Zitationen als JSON
	FinalCitations json.RawMessage `json:"final_citations" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (SearchLog) TableName() string {
	return "searches"
}
