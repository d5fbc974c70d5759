package session

import (
	"context"
	"errors"
	"time"

	"citesearch/models"
	"citesearch/providers/citesearch"
)

// Phase ist der sich gegenseitig ausschließende Zustand einer Session:
// Idle, Loading, Succeeded oder Failed.
type Phase interface {
	Name() string
	isPhase()
}

// Idle: noch nie gesucht.
type Idle struct{}

// Loading: genau eine Anfrage ist unterwegs.
type Loading struct {
	StartedAt time.Time
	RequestID string
}

// Succeeded: das Backend hat geantwortet, Citations ist evtl. leer.
type Succeeded struct {
	Citations []models.Citation
	Elapsed   time.Duration
	RequestID string
}

// Failed: die letzte Suche ist fehlgeschlagen.
type Failed struct {
	Kind      ErrorKind
	Message   string
	RequestID string
}

func (Idle) Name() string      { return "idle" }
func (Loading) Name() string   { return "loading" }
func (Succeeded) Name() string { return "succeeded" }
func (Failed) Name() string    { return "failed" }

func (Idle) isPhase()      {}
func (Loading) isPhase()   {}
func (Succeeded) isPhase() {}
func (Failed) isPhase()    {}

// View ist die daraus abgeleitete Anzeige. Es ist immer genau eine aktiv.
type View int

const (
	ViewLanding View = iota
	ViewLoading
	ViewEmpty
	ViewResults
)

func (v View) String() string {
	switch v {
	case ViewLanding:
		return "landing"
	case ViewLoading:
		return "loading"
	case ViewEmpty:
		return "empty"
	case ViewResults:
		return "results"
	}
	return "unknown"
}

// ViewFor leitet die Anzeige aus der Phase ab.
func ViewFor(p Phase) View {
	switch p := p.(type) {
	case Loading:
		return ViewLoading
	case Succeeded:
		if len(p.Citations) > 0 {
			return ViewResults
		}
		return ViewEmpty
	case Failed:
		// Fehler erscheinen als Overlay über dem leeren Ergebnis
		return ViewEmpty
	}
	return ViewLanding
}

// ErrorKind klassifiziert fehlgeschlagene Suchen.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindServer
	KindNoResponse
	KindRequest
	KindUnexpected
)

// Outcome gibt die Ergebnis-Klasse für Metriken und Such-Protokoll zurück.
func (k ErrorKind) Outcome() string {
	switch k {
	case KindNone:
		return models.OutcomeSuccess
	case KindServer:
		return models.OutcomeServerError
	case KindNoResponse:
		return models.OutcomeNoResponse
	case KindRequest:
		return models.OutcomeRequestError
	}
	return models.OutcomeUnexpected
}

// Nutzer-Meldungen der drei Fehlerklassen.
const (
	MsgServerFallback = "An unexpected error occurred"
	MsgNoResponse     = "No response received from the server. Please try again."
	MsgRequestSetup   = "An error occurred while setting up the request. Please try again."
	MsgUnexpected     = "An unexpected error occurred. Please try again."
)

// Classify ordnet einen Fehler der Suche genau einer Meldung zu.
func Classify(err error) (ErrorKind, string) {
	var se *citesearch.ServerError
	var nr *citesearch.NoResponseError
	var re *citesearch.RequestError
	switch {
	case errors.As(err, &se):
		detail := se.Detail
		if detail == "" {
			detail = MsgServerFallback
		}
		return KindServer, "Error: " + detail
	case errors.As(err, &nr), errors.Is(err, context.DeadlineExceeded):
		return KindNoResponse, MsgNoResponse
	case errors.As(err, &re):
		return KindRequest, MsgRequestSetup
	}
	return KindUnexpected, MsgUnexpected
}
