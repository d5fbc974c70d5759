package services

import (
	"sync"
	"time"

	"citesearch/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionMeta beschreibt den Browser, für den eine Session angelegt wurde.
type SessionMeta struct {
	ID        string
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
}

// SessionFactory erzeugt eine neue Such-Session für einen Browser.
type SessionFactory func(meta SessionMeta) *session.Session

type sessionEntry struct {
	sess     *session.Session
	meta     SessionMeta
	lastSeen time.Time
}

// SessionStore hält die Such-Sessions der Web-Oberfläche, eine pro Browser-Cookie.
type SessionStore struct {
	Logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
	factory SessionFactory
	now     func() time.Time
}

// NewSessionStore erstellt einen leeren SessionStore.
func NewSessionStore(factory SessionFactory, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		Logger:  logger,
		entries: make(map[string]*sessionEntry),
		factory: factory,
		now:     time.Now,
	}
}

// Create legt eine neue Session an und gibt deren ID zurück.
func (st *SessionStore) Create(clientIP, userAgent string) (string, *session.Session) {
	meta := SessionMeta{
		ID:        uuid.NewString(),
		ClientIP:  clientIP,
		UserAgent: userAgent,
		CreatedAt: st.now(),
	}
	sess := st.factory(meta)

	st.mu.Lock()
	st.entries[meta.ID] = &sessionEntry{sess: sess, meta: meta, lastSeen: meta.CreatedAt}
	st.mu.Unlock()

	st.Logger.Debug("Session angelegt", zap.String("session_id", meta.ID))
	return meta.ID, sess
}

// Get liefert die Session zu id und markiert sie als benutzt.
func (st *SessionStore) Get(id string) (*session.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	entry, ok := st.entries[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = st.now()
	return entry.sess, true
}

// Meta liefert die Metadaten einer Session.
func (st *SessionStore) Meta(id string) (SessionMeta, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	entry, ok := st.entries[id]
	if !ok {
		return SessionMeta{}, false
	}
	return entry.meta, true
}

// Remove entfernt die Session zu id und baut sie ab.
func (st *SessionStore) Remove(id string) {
	st.mu.Lock()
	entry, ok := st.entries[id]
	delete(st.entries, id)
	st.mu.Unlock()

	if ok {
		entry.sess.Close()
	}
}

// Len gibt die Anzahl aktiver Sessions zurück.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// EvictIdle entfernt Sessions, die länger als maxIdle nicht benutzt wurden, und baut sie ab.
// Sessions mit laufender Suche bleiben erhalten.
func (st *SessionStore) EvictIdle(maxIdle time.Duration) int {
	cutoff := st.now().Add(-maxIdle)

	st.mu.Lock()
	var evicted []*session.Session
	for id, entry := range st.entries {
		if entry.lastSeen.After(cutoff) {
			continue
		}
		if _, loading := entry.sess.Phase().(session.Loading); loading {
			continue
		}
		evicted = append(evicted, entry.sess)
		delete(st.entries, id)
	}
	st.mu.Unlock()

	// Close wartet auf Goroutinen und darf daher nicht unter dem Lock laufen
	for _, sess := range evicted {
		sess.Close()
	}
	if len(evicted) > 0 {
		st.Logger.Info("Inaktive Sessions entfernt", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// CloseAll baut alle Sessions ab, z.B. beim Herunterfahren.
func (st *SessionStore) CloseAll() {
	st.mu.Lock()
	all := make([]*session.Session, 0, len(st.entries))
	for id, entry := range st.entries {
		all = append(all, entry.sess)
		delete(st.entries, id)
	}
	st.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
}
