package models

// HealthStatus ist die (nur diagnostisch genutzte) Antwort des Health-Endpunkts.
type HealthStatus struct {
	StatusCode int            `json:"-"`
	Status     string         `json:"status"`
	Raw        map[string]any `json:"-"`
}
