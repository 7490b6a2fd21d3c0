package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/growfluent/internal/domain"
)

// fakeAPI serves the subset of the OpenAI API the client uses. Chat
// completions answer with the queued contents in order; a status other than
// 200 is sent as an OpenAI error body.
type fakeAPI struct {
	t          *testing.T
	replies    []reply
	calls      atomic.Int32
	prompts    []string
	speech     []byte
	transcript string
}

type reply struct {
	status  int
	content string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/chat/completions":
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.prompts = append(f.prompts, req.Messages[len(req.Messages)-1].Content)

		n := int(f.calls.Add(1)) - 1
		if !assert.Less(f.t, n, len(f.replies), "unexpected chat call") {
			http.Error(w, "unexpected call", http.StatusInternalServerError)
			return
		}
		rep := f.replies[n]
		w.Header().Set("Content-Type", "application/json")
		if rep.status != http.StatusOK {
			w.WriteHeader(rep.status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": http.StatusText(rep.status), "type": "api_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": rep.content}}},
		})
	case "/v1/audio/speech":
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(f.speech)
	case "/v1/audio/transcriptions":
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"text": f.transcript})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test",
		BaseURL: srv.URL + "/v1",
		Retry:   Retry{MaxRetries: 2, Delay: time.Millisecond},
	}, nil)
}

func ok(content string) reply { return reply{status: http.StatusOK, content: content} }

func TestEnrich(t *testing.T) {
	api := &fakeAPI{replies: []reply{ok(`{"translation":"hola","explanation":"greeting","synonyms":[{"term":"hi","translation":"hola"}]}`)}}
	c := newTestClient(t, api)

	e, err := c.Enrich(context.Background(), "hello", domain.English)
	require.NoError(t, err)
	assert.Equal(t, "hola", e.Translation)
	require.Len(t, e.Synonyms, 1)
	assert.Contains(t, api.prompts[0], `"hello"`)
}

func TestEnrichMissingTranslation(t *testing.T) {
	api := &fakeAPI{replies: []reply{ok(`{"explanation":"greeting"}`)}}
	c := newTestClient(t, api)

	_, err := c.Enrich(context.Background(), "hello", domain.English)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Equal(t, int32(1), api.calls.Load(), "invalid responses are not retried")
}

func TestGrade(t *testing.T) {
	t.Run("wrong answer keeps error type", func(t *testing.T) {
		api := &fakeAPI{replies: []reply{ok("```json\n{\"isCorrect\":false,\"feedback\":\"Not quite\",\"errorType\":\"spelling\"}\n```")}}
		c := newTestClient(t, api)

		g, err := c.Grade(context.Background(), GradeRequest{Question: "q", UserAnswer: "helo", CorrectAnswer: "hello", Language: domain.English})
		require.NoError(t, err)
		assert.False(t, g.IsCorrect)
		assert.Equal(t, domain.ErrorSpelling, g.ErrorType)
	})

	t.Run("correct answer drops error type", func(t *testing.T) {
		api := &fakeAPI{replies: []reply{ok(`{"isCorrect":true,"feedback":"Great","errorType":"grammar"}`)}}
		c := newTestClient(t, api)

		g, err := c.Grade(context.Background(), GradeRequest{Question: "q", UserAnswer: "hello", CorrectAnswer: "hello", Language: domain.English})
		require.NoError(t, err)
		assert.True(t, g.IsCorrect)
		assert.Empty(t, g.ErrorType)
	})

	t.Run("missing verdict is invalid", func(t *testing.T) {
		api := &fakeAPI{replies: []reply{ok(`{"feedback":"Great"}`)}}
		c := newTestClient(t, api)

		_, err := c.Grade(context.Background(), GradeRequest{Question: "q", CorrectAnswer: "hello", Language: domain.English})
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("spoken answer is transcribed", func(t *testing.T) {
		api := &fakeAPI{
			transcript: "bonjour",
			replies:    []reply{ok(`{"isCorrect":true,"feedback":"Bien","pronunciation":{"score":88,"feedback":"clear","isSuccess":true}}`)},
		}
		c := newTestClient(t, api)

		g, err := c.Grade(context.Background(), GradeRequest{Question: "q", CorrectAnswer: "bonjour", Language: domain.French, Audio: []byte("webm")})
		require.NoError(t, err)
		require.NotNil(t, g.Pronunciation)
		assert.Equal(t, 88.0, g.Pronunciation.Score)
		assert.Contains(t, api.prompts[0], "Learner answer: bonjour")
	})
}

func TestRetryOnQuota(t *testing.T) {
	api := &fakeAPI{replies: []reply{
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		ok(`{"isCorrect":true,"containsTargetWord":true,"feedback":"Good"}`),
	}}
	c := newTestClient(t, api)

	ev, err := c.EvaluateSentence(context.Background(), "I say hello", "hello", domain.English)
	require.NoError(t, err)
	assert.True(t, ev.IsCorrect)
	assert.Equal(t, []string{}, ev.GrammarNotes)
	assert.Equal(t, int32(3), api.calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	api := &fakeAPI{replies: []reply{
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
	}}
	c := newTestClient(t, api)

	_, err := c.EvaluateSentence(context.Background(), "I say hello", "hello", domain.English)
	assert.ErrorIs(t, err, ErrFailed)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(3), api.calls.Load())
}

func TestPermanentErrorNotRetried(t *testing.T) {
	api := &fakeAPI{replies: []reply{{status: http.StatusBadRequest}}}
	c := newTestClient(t, api)

	_, err := c.EvaluateSentence(context.Background(), "x", "y", domain.English)
	assert.ErrorIs(t, err, ErrFailed)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestGenerateExam(t *testing.T) {
	cards := []domain.Card{
		domain.NewCard("a", "hello", domain.English, domain.Enrichment{Translation: "hola"}, time.Now()),
		domain.NewCard("b", "bye", domain.English, domain.Enrichment{Translation: "adiós"}, time.Now()),
	}
	api := &fakeAPI{replies: []reply{ok(`{"exercises":[
		{"cardId":"a","type":"context","question":"[____], how are you?","correctAnswer":"hello"},
		{"cardId":"zzz","type":"context","question":"?","correctAnswer":"?"},
		{"cardId":"b","type":"choice","question":"See you, [____]","correctAnswer":"bye","options":["bye"]},
		{"cardId":"b","type":"choice","question":"See you, [____]","correctAnswer":"bye","options":["bye","hi","no","yes"]},
		{"cardId":"a","type":"reverse","question":"Translate: hola, amigo","correctAnswer":"hello, friend"}
	]}`)}}
	c := newTestClient(t, api)

	exercises, err := c.GenerateExam(context.Background(), cards, domain.English)
	require.NoError(t, err)
	require.Len(t, exercises, 2, "one exercise per card")
	assert.Equal(t, "a", exercises[0].CardID)
	assert.Equal(t, domain.ExerciseContext, exercises[0].Type)
	assert.Len(t, exercises[1].Options, 4)
	assert.Contains(t, api.prompts[0], "ID:a | Phrase:hello | Meaning:hola")
}

func TestGenerateExamRejectsUnknownType(t *testing.T) {
	cards := []domain.Card{domain.NewCard("a", "hello", domain.English, domain.Enrichment{Translation: "hola"}, time.Now())}
	api := &fakeAPI{replies: []reply{ok(`{"exercises":[{"cardId":"a","type":"essay","question":"q","correctAnswer":"a"}]}`)}}
	c := newTestClient(t, api)

	_, err := c.GenerateExam(context.Background(), cards, domain.English)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAudio(t *testing.T) {
	api := &fakeAPI{
		speech:     []byte("ID3mp3"),
		transcript: "bon dia",
		replies:    []reply{ok(`{"score":72.5,"clarity":70,"intonation":75,"feedback":"ok","isSuccess":true}`)},
	}
	c := newTestClient(t, api)

	audio, err := c.SynthesizeAudio(context.Background(), "bon dia", domain.Catalan)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3"), audio)

	ev, err := c.EvaluatePronunciation(context.Background(), []byte("webm"), "bon dia", domain.Catalan)
	require.NoError(t, err)
	assert.Equal(t, 72.5, ev.Score)
	assert.True(t, ev.IsSuccess)

	_, err = c.EvaluatePronunciation(context.Background(), nil, "bon dia", domain.Catalan)
	assert.ErrorIs(t, err, ErrFailed)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry{MaxRetries: 3, Delay: time.Hour}
	calls := 0
	err := r.do(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), "op", func(context.Context) error {
		calls++
		return ErrTransient
	})
	assert.ErrorIs(t, err, ErrFailed)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Grade(context.Background(), GradeRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, ErrFailed)
}
