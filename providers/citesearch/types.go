package citesearch

import (
	"context"
	"fmt"
)

// ServerError: Das Backend hat mit einem Fehlerstatus geantwortet.
type ServerError struct {
	StatusCode int
	// Detail ist die vom Server gelieferte Meldung, leer wenn keine vorhanden war.
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("citation backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("citation backend responded with status %d: %s", e.StatusCode, e.Detail)
}

// NoResponseError: Der Request wurde gesendet, aber es kam keine Antwort (Timeout, Netzwerk).
type NoResponseError struct {
	Err error
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("no response from citation backend: %v", e.Err)
}

func (e *NoResponseError) Unwrap() error { return e.Err }

// RequestError: Der Request konnte gar nicht erst aufgebaut oder gesendet werden.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("could not set up citation request: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

type requestIDKey struct{}

// WithRequestID hängt eine Request-ID an den Context, die als X-Request-ID mitgesendet wird.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID liest die Request-ID aus dem Context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
