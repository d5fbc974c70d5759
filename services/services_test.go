package services

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"citesearch/config"
	"citesearch/models"
	"citesearch/providers/citesearch"
	"citesearch/session"
	"citesearch/storage"
	"citesearch/storage/storagetest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type blockingSearcher struct{}

func (blockingSearcher) FindCitations(ctx context.Context, _ string) ([]models.Citation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestSessionStore_CreateGetEvict(t *testing.T) {
	var mu sync.Mutex
	var metas []SessionMeta
	store := NewSessionStore(func(meta SessionMeta) *session.Session {
		mu.Lock()
		metas = append(metas, meta)
		mu.Unlock()
		return session.New(blockingSearcher{}, session.Options{})
	}, zap.NewNop())
	defer store.CloseAll()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	idA, a := store.Create("10.0.0.1", "test-agent")
	idB, _ := store.Create("10.0.0.2", "other")
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, store.Len())
	require.Len(t, metas, 2)
	assert.Equal(t, "10.0.0.1", metas[0].ClientIP)

	got, ok := store.Get(idA)
	require.True(t, ok)
	assert.Same(t, a, got)
	meta, ok := store.Meta(idA)
	require.True(t, ok)
	assert.Equal(t, "test-agent", meta.UserAgent)

	_, ok = store.Get("missing")
	assert.False(t, ok)

	now = now.Add(20 * time.Minute)
	store.Get(idA)
	now = now.Add(15 * time.Minute)

	assert.Equal(t, 1, store.EvictIdle(30*time.Minute))
	_, ok = store.Get(idB)
	assert.False(t, ok)
	_, ok = store.Get(idA)
	assert.True(t, ok)
}

func TestSessionStore_EvictKeepsLoadingAndClosesEvicted(t *testing.T) {
	store := NewSessionStore(func(SessionMeta) *session.Session {
		return session.New(blockingSearcher{}, session.Options{})
	}, zap.NewNop())
	defer store.CloseAll()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	idBusy, busy := store.Create("ip", "ua")
	_, idle := store.Create("ip", "ua")
	_, err := busy.Submit("long running")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, store.EvictIdle(30*time.Minute))
	_, ok := store.Get(idBusy)
	assert.True(t, ok)

	_, err = idle.Submit("x")
	assert.ErrorIs(t, err, session.ErrSessionClosed)
}

func TestSessionStore_RemoveClosesSession(t *testing.T) {
	store := NewSessionStore(func(SessionMeta) *session.Session {
		return session.New(blockingSearcher{}, session.Options{})
	}, zap.NewNop())
	defer store.CloseAll()

	id, sess := store.Create("ip", "ua")
	store.Remove(id)
	store.Remove(id)

	assert.Equal(t, 0, store.Len())
	_, err := sess.Submit("x")
	assert.ErrorIs(t, err, session.ErrSessionClosed)
}

func TestBuildSearchLog(t *testing.T) {
	meta := SessionMeta{ID: "sess", ClientIP: "1.2.3.4", UserAgent: "ua"}

	row, err := BuildSearchLog(meta, session.Outcome{
		RequestID: "req",
		Query:     "passage",
		Elapsed:   1500 * time.Millisecond,
		Citations: []models.Citation{{Title: "A"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, row.Outcome)
	assert.Equal(t, 200, row.ResponseStatus)
	assert.Equal(t, 1, row.CitationsFound)
	assert.InDelta(t, 1.5, row.ResponseTime, 1e-9)
	assert.Equal(t, "sess", row.SessionID)
	assert.Contains(t, string(row.FinalCitations), `"title":"A"`)

	kind, msg := session.Classify(&citesearch.ServerError{StatusCode: 503, Detail: "down"})
	row, err = BuildSearchLog(meta, session.Outcome{Err: &citesearch.ServerError{StatusCode: 503, Detail: "down"}, Kind: kind, Message: msg})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeServerError, row.Outcome)
	assert.Equal(t, 503, row.ResponseStatus)
	assert.Equal(t, "Error: down", row.ErrorMessage)
	assert.Equal(t, "[]", string(row.FinalCitations))

	row, err = BuildSearchLog(meta, session.Outcome{Err: &citesearch.NoResponseError{Err: errors.New("timeout")}, Kind: session.KindNoResponse})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoResponse, row.Outcome)
	assert.Equal(t, 0, row.ResponseStatus)
}

func TestSearchLogService_Record(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "searches"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	svc := NewSearchLogService(db, zap.NewNop())
	svc.Record(context.Background(), SessionMeta{ID: "s"}, session.Outcome{RequestID: "r", Query: "q"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchLogService_RecordErrorIsSwallowed(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "searches"`).WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	svc := NewSearchLogService(db, zap.NewNop())
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), SessionMeta{}, session.Outcome{RequestID: "r"})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchLogService_Disabled(t *testing.T) {
	svc := NewSearchLogService(nil, zap.NewNop())
	assert.False(t, svc.Enabled())
	svc.Record(context.Background(), SessionMeta{}, session.Outcome{})

	var nilSvc *SearchLogService
	assert.False(t, nilSvc.Enabled())
}

func TestExportService_Run(t *testing.T) {
	db, mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{"id", "request_id", "search_text", "outcome", "citations_found"}).
		AddRow(1, "r1", "first passage", models.OutcomeSuccess, 2).
		AddRow(2, "r2", "second passage", models.OutcomeServerError, 0)
	mock.ExpectQuery(`SELECT \* FROM "searches"`).WillReturnRows(rows)

	store := storagetest.NewMemoryStore()
	// zwei ältere Exporte, von denen nach dem Lauf nur einer übrig bleiben darf
	for _, key := range []string{ExportPrefix + "old-1.jsonl.gz", ExportPrefix + "old-2.jsonl.gz"} {
		_, err := storage.UploadFile(context.Background(), store, "u", "cite", key, []byte("old"))
		require.NoError(t, err)
	}

	cfg := &config.Config{S3URL: "https://s3.example.org", S3Bucket: "cite", KeepBackups: 2}
	svc := NewExportService(cfg, db, store, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 7, 2, 3, 4, 5, 0, time.UTC) }

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "search-logs/searches-2024-07-02T03-04-05Z.jsonl.gz", res.Key)
	assert.Equal(t, "https://s3.example.org/cite/search-logs/searches-2024-07-02T03-04-05Z.jsonl.gz", res.Link)
	assert.Equal(t, []string{ExportPrefix + "old-1.jsonl.gz"}, res.Deleted)

	data, ok := store.Object(res.Key)
	require.True(t, ok)
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var texts []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var row models.SearchLog
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		texts = append(texts, row.SearchText)
	}
	assert.Equal(t, []string{"first passage", "second passage"}, texts)
}

func TestExportService_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "searches"`).WillReturnError(errors.New("relation does not exist"))

	store := storagetest.NewMemoryStore()
	svc := NewExportService(&config.Config{S3Bucket: "cite", KeepBackups: 2}, db, store, zap.NewNop())

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "dump searches"))
	assert.Empty(t, store.Keys())
}
