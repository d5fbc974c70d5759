// Package session verwaltet den Lebenszyklus einer Zitationssuche: von der Eingabe über
// die laufende Anfrage bis zum Ergebnis oder Fehler.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"citesearch/models"
	"citesearch/providers/citesearch"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSearchInFlight: Policy RejectWhileLoading und es läuft bereits eine Suche.
	ErrSearchInFlight = errors.New("a search is already in flight")
	// ErrSessionClosed: die Session wurde abgebaut.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoSuchCitation: Copy auf einen Index/ein Feld, das nicht angezeigt wird.
	ErrNoSuchCitation = errors.New("no such citation field")
)

// OverlapPolicy legt fest, was bei einer neuen Suche während einer laufenden passiert.
type OverlapPolicy int

const (
	// CancelPrevious bricht die laufende Anfrage ab, die letzte Eingabe gewinnt.
	CancelPrevious OverlapPolicy = iota
	// RejectWhileLoading lehnt neue Suchen ab, solange eine läuft.
	RejectWhileLoading
)

// ParseOverlapPolicy liest die Policy aus der Konfiguration ("cancel" oder "reject").
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch s {
	case "", "cancel":
		return CancelPrevious, nil
	case "reject":
		return RejectWhileLoading, nil
	}
	return CancelPrevious, fmt.Errorf("unknown overlap policy %q", s)
}

// Copy-Felder einer Zitation.
const (
	FieldReference = "reference"
	FieldInText    = "in_text"
)

// CopyKey baut den Schlüssel für die Copy-Anzeige eines Feldes.
func CopyKey(index int, field string) string {
	return fmt.Sprintf("%d:%s", index, field)
}

// Searcher führt die eigentliche Suche aus.
type Searcher interface {
	FindCitations(ctx context.Context, text string) ([]models.Citation, error)
}

// HealthChecker prüft das Backend beim ersten Mount.
type HealthChecker interface {
	Health(ctx context.Context) (models.HealthStatus, error)
}

// Outcome beschreibt eine abgeschlossene (nicht überholte) Suche.
type Outcome struct {
	RequestID string
	Query     string
	StartedAt time.Time
	Elapsed   time.Duration
	Citations []models.Citation
	Err       error
	Kind      ErrorKind
	Message   string
}

// Options konfiguriert eine Session. Nullwerte werden durch Defaults ersetzt.
type Options struct {
	Clock          Clock
	Messages       MessageSource
	RotateInterval time.Duration
	CopyReset      time.Duration
	Policy         OverlapPolicy
	Logger         *zap.Logger
	Health         HealthChecker

	OnChange   func()
	OnComplete func(Outcome)
	OnHealth   func(models.HealthStatus, error)
}

// Snapshot ist ein unveränderlicher Blick auf den Anzeigezustand.
type Snapshot struct {
	Query          string
	Phase          string
	View           View
	Citations      []models.Citation
	Elapsed        time.Duration
	HasElapsed     bool
	LoadingMessage string
	Error          string
	Copied         map[string]bool
	RequestID      string
}

// IsCopied meldet, ob die Copy-Anzeige für das Feld gerade aktiv ist.
func (s Snapshot) IsCopied(index int, field string) bool {
	return s.Copied[CopyKey(index, field)]
}

type copyState struct {
	timer Timer
	gen   uint64
}

// Session besitzt genau eine Suche zur Zeit und den daraus abgeleiteten Anzeigezustand.
type Session struct {
	searcher Searcher
	opts     Options
	log      *zap.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	mountOnce  sync.Once
	wg         sync.WaitGroup

	mu             sync.Mutex
	query          string
	phase          Phase
	loadingMessage string
	gen            uint64
	cancel         context.CancelFunc
	stopRotation   func()
	copied         map[string]copyState
	copyGen        uint64
	closed         bool
}

// New erstellt eine neue Session im Zustand Idle.
func New(searcher Searcher, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Messages == nil {
		opts.Messages = NewRandomMessages(LoadingMessages, nil)
	}
	if opts.RotateInterval <= 0 {
		opts.RotateInterval = 3 * time.Second
	}
	if opts.CopyReset <= 0 {
		opts.CopyReset = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		searcher:   searcher,
		opts:       opts,
		log:        opts.Logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		phase:      Idle{},
		copied:     make(map[string]copyState),
	}
}

// Mount löst beim ersten Aufruf genau einen Health-Check aus (fire-and-forget).
func (s *Session) Mount() {
	if s.opts.Health == nil {
		return
	}
	s.mountOnce.Do(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			status, err := s.opts.Health.Health(s.baseCtx)
			if err != nil {
				s.log.Warn("Backend-Health-Check fehlgeschlagen", zap.Error(err))
			} else {
				s.log.Info("Backend-Health-Check", zap.Int("status_code", status.StatusCode), zap.String("status", status.Status))
			}
			if s.opts.OnHealth != nil {
				s.opts.OnHealth(status, err)
			}
		}()
	})
}

// SetQuery setzt den Eingabetext.
func (s *Session) SetQuery(text string) {
	s.mu.Lock()
	s.query = text
	s.mu.Unlock()
	s.notify()
}

// Clear leert nur das Eingabefeld. Laufende Anfragen und Ergebnisse bleiben unberührt.
func (s *Session) Clear() {
	s.SetQuery("")
}

// Submit startet eine neue Suche. Vorherige Ergebnisse und Fehler werden sofort verworfen.
// Der zurückgegebene Channel wird geschlossen, sobald diese Suche abgeschlossen oder überholt ist.
func (s *Session) Submit(text string) (<-chan struct{}, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, loading := s.phase.(Loading); loading {
		if s.opts.Policy == RejectWhileLoading {
			s.mu.Unlock()
			return nil, ErrSearchInFlight
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.log.Info("Laufende Suche durch neue Eingabe ersetzt.")
	}

	s.gen++
	gen := s.gen
	start := s.opts.Clock.Now()
	requestID := uuid.NewString()
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancel = cancel
	s.query = text
	s.phase = Loading{StartedAt: start, RequestID: requestID}
	s.clearCopiedLocked()
	s.stopRotationLocked()
	s.startRotationLocked(gen)

	done := make(chan struct{})
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("Suche gestartet", zap.String("request_id", requestID), zap.Int("text_length", len(text)))
	s.notify()

	go s.run(ctx, cancel, gen, requestID, text, start, done)
	return done, nil
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64, requestID, text string, start time.Time, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	defer cancel()

	citations, err := s.searcher.FindCitations(citesearch.WithRequestID(ctx, requestID), text)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("Überholtes Suchergebnis verworfen", zap.String("request_id", requestID))
		return
	}
	s.cancel = nil
	s.stopRotationLocked()
	elapsed := s.opts.Clock.Now().Sub(start)
	outcome := Outcome{
		RequestID: requestID,
		Query:     text,
		StartedAt: start,
		Elapsed:   elapsed,
	}
	if err != nil {
		kind, msg := Classify(err)
		s.phase = Failed{Kind: kind, Message: msg, RequestID: requestID}
		outcome.Err, outcome.Kind, outcome.Message = err, kind, msg
	} else {
		if citations == nil {
			citations = []models.Citation{}
		}
		s.phase = Succeeded{Citations: citations, Elapsed: elapsed, RequestID: requestID}
		outcome.Citations = citations
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("Suche fehlgeschlagen", zap.String("request_id", requestID), zap.String("outcome", outcome.Kind.Outcome()), zap.Error(err))
	} else {
		s.log.Info("Suche abgeschlossen", zap.String("request_id", requestID), zap.Int("citations", len(citations)), zap.Duration("elapsed", elapsed))
	}
	s.notify()
	if s.opts.OnComplete != nil {
		s.opts.OnComplete(outcome)
	}
}

// startRotationLocked wählt sofort eine Nachricht und startet den Rotations-Ticker.
// Der Ticker lebt nur, solange die Phase Loading mit derselben Generation aktiv ist.
func (s *Session) startRotationLocked(gen uint64) {
	s.loadingMessage = s.opts.Messages.Next()
	ticker := s.opts.Clock.NewTicker(s.opts.RotateInterval)
	stop := make(chan struct{})
	s.stopRotation = func() {
		ticker.Stop()
		close(stop)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				s.rotate(gen)
			}
		}
	}()
}

func (s *Session) stopRotationLocked() {
	if s.stopRotation != nil {
		s.stopRotation()
		s.stopRotation = nil
	}
	s.loadingMessage = ""
}

func (s *Session) rotate(gen uint64) {
	s.mu.Lock()
	if _, loading := s.phase.(Loading); !loading || gen != s.gen || s.stopRotation == nil {
		s.mu.Unlock()
		return
	}
	s.loadingMessage = s.opts.Messages.Next()
	s.mu.Unlock()
	s.notify()
}

// CopyCitationField gibt den Text des Feldes zurück und schaltet dessen Copy-Anzeige ein.
func (s *Session) CopyCitationField(index int, field string) (string, error) {
	s.mu.Lock()
	succeeded, ok := s.phase.(Succeeded)
	if !ok || index < 0 || index >= len(succeeded.Citations) {
		s.mu.Unlock()
		return "", ErrNoSuchCitation
	}
	var text string
	switch field {
	case FieldReference:
		text = succeeded.Citations[index].ReferenceListCitation
	case FieldInText:
		text = succeeded.Citations[index].InTextCitation
	default:
		s.mu.Unlock()
		return "", ErrNoSuchCitation
	}
	s.markCopiedLocked(CopyKey(index, field))
	s.mu.Unlock()
	s.notify()
	return text, nil
}

// Copy schaltet die Copy-Anzeige für key ein. Sie fällt nach CopyReset von selbst zurück.
func (s *Session) Copy(key string) {
	s.mu.Lock()
	s.markCopiedLocked(key)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) markCopiedLocked(key string) {
	if s.closed {
		return
	}
	if prev, ok := s.copied[key]; ok {
		prev.timer.Stop()
	}
	s.copyGen++
	gen := s.copyGen
	timer := s.opts.Clock.AfterFunc(s.opts.CopyReset, func() { s.resetCopy(key, gen) })
	s.copied[key] = copyState{timer: timer, gen: gen}
}

func (s *Session) resetCopy(key string, gen uint64) {
	s.mu.Lock()
	state, ok := s.copied[key]
	if !ok || state.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.copied, key)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) clearCopiedLocked() {
	for key, state := range s.copied {
		state.timer.Stop()
		delete(s.copied, key)
	}
}

// Snapshot liefert den aktuellen Anzeigezustand.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Query:  s.query,
		Phase:  s.phase.Name(),
		View:   ViewFor(s.phase),
		Copied: make(map[string]bool, len(s.copied)),
	}
	for key := range s.copied {
		snap.Copied[key] = true
	}
	switch p := s.phase.(type) {
	case Loading:
		snap.LoadingMessage = s.loadingMessage
		snap.RequestID = p.RequestID
	case Succeeded:
		snap.Citations = p.Citations
		snap.Elapsed = p.Elapsed
		snap.HasElapsed = true
		snap.RequestID = p.RequestID
	case Failed:
		snap.Error = p.Message
		snap.RequestID = p.RequestID
	}
	return snap
}

// Phase gibt die aktuelle Phase zurück.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Close baut die Session ab: laufende Anfrage abbrechen, alle Timer stoppen, auf Goroutinen warten.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopRotationLocked()
	s.clearCopiedLocked()
	s.mu.Unlock()

	s.baseCancel()
	s.wg.Wait()
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}
