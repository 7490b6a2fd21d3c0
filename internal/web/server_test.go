package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/growfluent/internal/deck"
	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/oracle"
	"github.com/conorfennell/growfluent/internal/session"
	"github.com/conorfennell/growfluent/internal/storage"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeOracle struct {
	oracle.Disabled
	gradeErr error

	// When hold is set Grade signals started and waits for hold to close.
	hold    chan struct{}
	started chan struct{}
}

func (f *fakeOracle) Enrich(_ context.Context, phrase string, _ domain.Language) (domain.Enrichment, error) {
	return domain.Enrichment{Translation: "translation of " + phrase}, nil
}

func (f *fakeOracle) Grade(_ context.Context, req oracle.GradeRequest) (domain.Grading, error) {
	if f.hold != nil {
		f.started <- struct{}{}
		<-f.hold
	}
	if f.gradeErr != nil {
		return domain.Grading{}, f.gradeErr
	}
	ok := strings.EqualFold(req.UserAnswer, req.CorrectAnswer)
	return domain.Grading{IsCorrect: ok, Feedback: "graded"}, nil
}

func (f *fakeOracle) SynthesizeAudio(context.Context, string, domain.Language) ([]byte, error) {
	return []byte("ID3fake"), nil
}

type testServer struct {
	*Server
	db     *storage.DB
	oracle *fakeOracle
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewFallback(db, nil, logger)
	orc := &fakeOracle{}
	orch := session.New(store, orc,
		session.WithClock(func() time.Time { return now }),
		session.WithLogger(logger))

	srv := NewServer(Deps{
		Store:          store,
		Orchestrator:   orch,
		Oracle:         orc,
		Sources:        db,
		Importer:       deck.NewImporter(db, store, filepath.Join(t.TempDir(), "repos"), logger),
		Logger:         logger,
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	return &testServer{Server: srv, db: db, oracle: orc}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, rec).Error.Code
}

func (ts *testServer) addCard(t *testing.T, phrase string) domain.Card {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/cards", map[string]string{"phrase": phrase, "language": "catalan"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Card](t, rec)
}

func TestCards(t *testing.T) {
	ts := newTestServer(t)

	card := ts.addCard(t, "bon dia")
	assert.Equal(t, domain.Catalan, card.Language)
	assert.Equal(t, "translation of bon dia", card.Translation)

	rec := ts.do(t, http.MethodGet, "/api/cards?language=CATALAN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Card](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/cards?language=FRENCH", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/due?language=catalan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"language":"CATALAN","due":1}`, rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/cards/"+card.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/cards/"+card.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown language", http.MethodGet, "/api/cards?language=LATIN", nil},
		{"missing language", http.MethodGet, "/api/due", nil},
		{"empty phrase", http.MethodPost, "/api/cards", map[string]string{"phrase": " ", "language": "FRENCH"}},
		{"unknown field", http.MethodPost, "/api/cards", `{"phrase":"merci","language":"FRENCH","extra":1}`},
		{"malformed json", http.MethodPost, "/api/cards", `{"phrase":`},
		{"unknown session kind", http.MethodPost, "/api/session/weekly?language=FRENCH", nil},
		{"empty audio text", http.MethodPost, "/api/audio", map[string]string{"text": "", "language": "FRENCH"}},
		{"bad source id", http.MethodDelete, "/api/sources/abc", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestDailySession(t *testing.T) {
	ts := newTestServer(t)
	ts.addCard(t, "bon dia")
	ts.addCard(t, "bona nit")

	rec := ts.do(t, http.MethodPost, "/api/session/daily?language=CATALAN", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[sessionView](t, rec)
	assert.Equal(t, session.InSession, view.State)
	assert.Equal(t, 2, view.Remaining)
	require.NotNil(t, view.Current)

	// A second session cannot start while one is active.
	rec = ts.do(t, http.MethodPost, "/api/session/free?language=CATALAN", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	type answerResponse struct {
		Session sessionView    `json:"session"`
		Grading domain.Grading `json:"grading"`
	}
	first := view.Current.Phrase
	rec = ts.do(t, http.MethodPost, "/api/session/answer", map[string]any{
		"text":           "translation of " + first,
		"responseTimeMs": 1200,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ans := decode[answerResponse](t, rec)
	assert.True(t, ans.Grading.IsCorrect)
	assert.Equal(t, 1, ans.Session.Remaining)

	// Finishing early is not allowed.
	rec = ts.do(t, http.MethodPost, "/api/session/finish", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/session/result", map[string]any{"isCorrect": false, "responseTimeMs": 3000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, session.Finished, decode[sessionView](t, rec).State)

	type finishResponse struct {
		Session sessionView     `json:"session"`
		Outcome session.Outcome `json:"outcome"`
	}
	rec = ts.do(t, http.MethodPost, "/api/session/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fin := decode[finishResponse](t, rec)
	assert.True(t, fin.Session.Committed)
	assert.Len(t, fin.Outcome.Cards, 2)

	cards, err := ts.db.LoadCards(context.Background(), nil)
	require.NoError(t, err)
	for _, c := range cards {
		assert.Equal(t, 1, c.TimesReviewed, c.Phrase)
		if c.Phrase == first {
			assert.Equal(t, 1, c.LastInterval)
			assert.Equal(t, 1, c.SuccessCount)
		} else {
			assert.Equal(t, 1, c.FailureCount)
		}
	}

	rec = ts.do(t, http.MethodPost, "/api/session/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.Idle, decode[sessionView](t, rec).State)

	rec = ts.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.Idle, decode[sessionView](t, rec).State)
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/session/daily?language=FRENCH", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "SELECTION_REFUSED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/session/answer", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/session/abandon", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.addCard(t, "adéu")
	rec = ts.do(t, http.MethodPost, "/api/session/daily?language=CATALAN", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	ts.oracle.gradeErr = fmt.Errorf("%w: upstream down", oracle.ErrFailed)
	rec = ts.do(t, http.MethodPost, "/api/session/answer", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "ORACLE_FAILED", errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, "/api/session", nil)
	view := decode[sessionView](t, rec)
	assert.Equal(t, session.InSession, view.State, "item stays ungraded")
	assert.Equal(t, 1, view.Remaining)

	rec = ts.do(t, http.MethodPost, "/api/session/result", map[string]any{"cardId": "someone-else", "isCorrect": true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/session/abandon", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.Idle, decode[sessionView](t, rec).State)

	cards, err := ts.db.LoadCards(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Zero(t, cards[0].TimesReviewed)
}

func TestAbandonWhileGrading(t *testing.T) {
	ts := newTestServer(t)
	ts.addCard(t, "bon dia")
	ts.addCard(t, "bona nit")

	rec := ts.do(t, http.MethodPost, "/api/session/daily?language=CATALAN", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ts.oracle.hold = make(chan struct{})
	ts.oracle.started = make(chan struct{})
	req := httptest.NewRequest(http.MethodPost, "/api/session/answer", strings.NewReader(`{"text":"x","responseTimeMs":900}`))
	req.Header.Set("Content-Type", "application/json")
	slow := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.ServeHTTP(slow, req)
	}()
	<-ts.oracle.started

	rec = ts.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.Grading, decode[sessionView](t, rec).State)

	rec = ts.do(t, http.MethodPost, "/api/session/answer", map[string]any{"text": "y"})
	assert.Equal(t, http.StatusConflict, rec.Code, "only one answer at a time")

	rec = ts.do(t, http.MethodPost, "/api/session/abandon", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, session.Idle, decode[sessionView](t, rec).State)

	close(ts.oracle.hold)
	<-done
	assert.Equal(t, http.StatusConflict, slow.Code, slow.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, session.Idle, decode[sessionView](t, rec).State)

	cards, err := ts.db.LoadCards(context.Background(), nil)
	require.NoError(t, err)
	for _, c := range cards {
		assert.Zero(t, c.TimesReviewed, c.Phrase)
	}
}

func TestOracleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/audio", map[string]string{"text": "bon dia", "language": "CATALAN"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3fake", rec.Body.String())

	// The fake leaves pronunciation unimplemented.
	rec = ts.do(t, http.MethodPost, "/api/pronunciation", map[string]any{
		"target": "bon dia", "language": "CATALAN", "audio": []byte("webm"),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ORACLE_DISABLED", errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/sentences", map[string]string{"cardId": "missing", "sentence": "Bon dia!"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/exams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/stats?language=CATALAN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSources(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.md"), []byte("Q: merci\nA: gracias\n"), 0o644))

	type postResponse struct {
		Source sourceView   `json:"source"`
		Result *syncSummary `json:"result"`
	}
	rec := ts.do(t, http.MethodPost, "/api/sources", map[string]string{"path": dir, "language": "FRENCH"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[postResponse](t, rec)
	assert.Equal(t, deck.SourceLocal, resp.Source.Type)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.Inserted)

	rec = ts.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]sourceView](t, rec), 1)

	rec = ts.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sums := decode[[]syncSummary](t, rec)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].Parsed)
	assert.Zero(t, sums[0].Inserted)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/sources/%d", resp.Source.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/cards?language=FRENCH", nil)
	assert.Len(t, decode[[]domain.Card](t, rec), 1, "cards outlive their source")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/cards", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/cards", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
