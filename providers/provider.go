package providers

import (
	"context"

	"citesearch/models"
)

// Provider ist das Interface, das ein Citation-Backend implementieren muss.
type Provider interface {
	// FindCitations sucht Zitationen, die die gegebene Textpassage stützen.
	FindCitations(ctx context.Context, text string) ([]models.Citation, error)

	// Health prüft, ob das Backend erreichbar ist.
	Health(ctx context.Context) (models.HealthStatus, error)

	// Name gibt den eindeutigen Namen des Providers zurück.
	Name() string
}
