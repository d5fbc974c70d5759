package citesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"citesearch/config"
	"citesearch/models"
	"citesearch/providers"

	"go.uber.org/zap"
)

const (
	healthPath    = "/health"
	citationsPath = "/find-citations-for-passage"

	// Obergrenze für Antwort-Bodies, damit ein fehlerhaftes Backend den Speicher nicht füllt.
	maxBodyBytes = 8 << 20
)

var _ providers.Provider = (*Fetcher)(nil)

// Fetcher implementiert das Provider-Interface für das CiteSearch-Backend.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger

	httpClient   *http.Client
	healthClient *http.Client
	maxBody      int64
}

// NewFetcher erstellt einen neuen Fetcher für das CiteSearch-Backend.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:       cfg,
		Logger:       logger.With(zap.String("provider", "citesearch")),
		httpClient:   &http.Client{Timeout: cfg.CitationTimeout},
		healthClient: &http.Client{Timeout: cfg.HealthTimeout},
		maxBody:      maxBodyBytes,
	}
}

// errBodyTooLarge: der Body überschreitet maxBody und wurde nicht vollständig gelesen.
var errBodyTooLarge = errors.New("response body too large")

// readBody liest höchstens maxBody Bytes. Ist der Body größer, kommt errBodyTooLarge zurück.
func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > f.maxBody {
		return body[:f.maxBody], errBodyTooLarge
	}
	return body, nil
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "citesearch"
}

// endpoint baut die absolute URL für einen Backend-Pfad.
func (f *Fetcher) endpoint(path string) (string, error) {
	base, err := url.Parse(strings.TrimRight(f.Config.APIBaseURL, "/"))
	if err != nil {
		return "", err
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in API base url", base.Scheme)
	}
	if base.Host == "" {
		return "", errors.New("API base url has no host")
	}
	return base.String() + path, nil
}

// Health ruft den Health-Endpunkt auf. Jeder 2xx-Status gilt als gesund, der Body wird
// nur zu Diagnosezwecken gelesen.
func (f *Fetcher) Health(ctx context.Context) (models.HealthStatus, error) {
	target, err := f.endpoint(healthPath)
	if err != nil {
		return models.HealthStatus{}, &RequestError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.HealthStatus{}, &RequestError{Err: err}
	}

	resp, err := f.healthClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.HealthStatus{}, ctx.Err()
		}
		return models.HealthStatus{}, &NoResponseError{Err: err}
	}
	defer resp.Body.Close()

	status := models.HealthStatus{StatusCode: resp.StatusCode}
	body, err := f.readBody(resp.Body)
	if errors.Is(err, errBodyTooLarge) {
		f.Logger.Warn("Antwort zu groß", zap.String("path", healthPath), zap.Int64("limit_bytes", f.maxBody))
		body = nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er models.ErrorResponse
		_ = json.Unmarshal(body, &er)
		return status, &ServerError{StatusCode: resp.StatusCode, Detail: er.Message()}
	}

	// Diagnose: Body ist optional und darf beliebig aussehen
	if err := json.Unmarshal(body, &status.Raw); err == nil {
		if s, ok := status.Raw["status"].(string); ok {
			status.Status = s
		}
	}
	return status, nil
}

// FindCitations sendet die Passage an das Backend und liefert die gefundenen Zitationen.
// Fehler werden als *ServerError, *NoResponseError oder *RequestError klassifiziert.
// Bricht der Aufrufer den Context ab, wird ctx.Err() unverändert zurückgegeben.
func (f *Fetcher) FindCitations(ctx context.Context, text string) ([]models.Citation, error) {
	log := f.Logger.With(zap.Int("text_length", len(text)))
	if id := RequestID(ctx); id != "" {
		log = log.With(zap.String("request_id", id))
	}

	target, err := f.endpoint(citationsPath)
	if err != nil {
		log.Error("Ungültige Backend-URL", zap.Error(err))
		return nil, &RequestError{Err: err}
	}
	payload, err := json.Marshal(models.CitationRequest{Text: text})
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	log.Info("Sende Zitationsanfrage an Backend.")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			log.Info("Zitationsanfrage abgebrochen.")
			return nil, ctx.Err()
		}
		log.Warn("Keine Antwort vom Backend", zap.Error(err))
		return nil, &NoResponseError{Err: err}
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp.Body)
	if errors.Is(err, errBodyTooLarge) {
		log.Warn("Antwort zu groß", zap.Int("status", resp.StatusCode), zap.Int64("limit_bytes", f.maxBody))
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		log.Warn("Antwort des Backends unvollständig", zap.Error(err))
		return nil, &NoResponseError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er models.ErrorResponse
		_ = json.Unmarshal(body, &er)
		log.Warn("Backend meldet Fehler", zap.Int("status", resp.StatusCode), zap.String("detail", er.Message()))
		return nil, &ServerError{StatusCode: resp.StatusCode, Detail: er.Message()}
	}

	var cr models.CitationResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		log.Error("Antwort des Backends nicht lesbar", zap.Error(err))
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	if cr.Citations == nil {
		cr.Citations = []models.Citation{}
	}

	log.Info("Zitationen empfangen", zap.Int("count", len(cr.Citations)))
	return cr.Citations, nil
}
