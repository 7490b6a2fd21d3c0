package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/conorfennell/growfluent/internal/domain"
)

// Config holds the settings of the OpenAI compatible oracle.
type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	TTSModel           string
	TranscriptionModel string
	NativeLanguage     string
	RequestsPerSecond  float64
	Retry              Retry
}

// ExamQuestions is the number of exercises requested for an exam.
const ExamQuestions = 15

// Client talks to an OpenAI compatible API.
type Client struct {
	client  *openai.Client
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Oracle = (*Client)(nil)

// NewClient creates a client. Empty settings fall back to OpenAI's public
// endpoint and models.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.TTSModel1)
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = openai.Whisper1
	}
	if cfg.Retry == (Retry{}) {
		cfg.Retry = DefaultRetry()
	}
	if cfg.NativeLanguage == "" {
		cfg.NativeLanguage = "Spanish (Latin American)"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "oracle"),
	}
}

// call paces and retries fn.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := c.cfg.Retry.do(ctx, c.logger, op, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
	if err != nil {
		c.logger.Error("Oracle call failed", "op", op, "error", err, "latency_ms", time.Since(start).Milliseconds())
		return err
	}
	c.logger.Debug("Oracle call completed", "op", op, "latency_ms", time.Since(start).Milliseconds())
	return nil
}

// complete asks for a JSON answer to prompt and decodes it into dst.
func (c *Client) complete(ctx context.Context, op, prompt string, dst any) error {
	return c.call(ctx, op, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices", ErrInvalidResponse)
		}
		return decode(resp.Choices[0].Message.Content, dst)
	})
}

func (c *Client) transcribe(ctx context.Context, audio []byte, lang domain.Language) (string, error) {
	var text string
	err := c.call(ctx, "transcribe", func(ctx context.Context) error {
		resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.cfg.TranscriptionModel,
			FilePath: "answer.webm",
			Reader:   bytes.NewReader(audio),
			Language: lang.ISOCode(),
		})
		if err != nil {
			return classify(err)
		}
		text = resp.Text
		return nil
	})
	return text, err
}

// Enrich translates phrase and gathers synonyms, variants and prompts.
func (c *Client) Enrich(ctx context.Context, phrase string, lang domain.Language) (domain.Enrichment, error) {
	var e domain.Enrichment
	if err := c.complete(ctx, "enrich", enrichPrompt(phrase, lang, c.cfg.NativeLanguage), &e); err != nil {
		return domain.Enrichment{}, err
	}
	return e, nil
}

// Grade judges a typed or spoken answer.
func (c *Client) Grade(ctx context.Context, req GradeRequest) (domain.Grading, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Grading{}, fmt.Errorf("%w: invalid grade request: %w", ErrFailed, err)
	}
	spoken := len(req.Audio) > 0
	if spoken {
		text, err := c.transcribe(ctx, req.Audio, req.Language)
		if err != nil {
			return domain.Grading{}, err
		}
		req.UserAnswer = text
	}

	var resp gradingResponse
	if err := c.complete(ctx, "grade", gradePrompt(req, c.cfg.NativeLanguage, spoken), &resp); err != nil {
		return domain.Grading{}, err
	}
	return resp.result(), nil
}

// GenerateExam writes exam exercises for cards. Exercises that refer to
// unknown cards are dropped.
func (c *Client) GenerateExam(ctx context.Context, cards []domain.Card, lang domain.Language) ([]domain.Exercise, error) {
	var resp examResponse
	if err := c.complete(ctx, "generate_exam", examPrompt(cards, lang, ExamQuestions), &resp); err != nil {
		return nil, err
	}
	exercises := resp.exercises(cards)
	if len(exercises) == 0 {
		return nil, fmt.Errorf("%w: no usable exercises", ErrInvalidResponse)
	}
	if len(exercises) > ExamQuestions {
		exercises = exercises[:ExamQuestions]
	}
	return exercises, nil
}

// EvaluateSentence checks a free sentence that should use target.
func (c *Client) EvaluateSentence(ctx context.Context, sentence, target string, lang domain.Language) (domain.SentenceEvaluation, error) {
	var resp sentenceResponse
	if err := c.complete(ctx, "evaluate_sentence", sentencePrompt(sentence, target, lang), &resp); err != nil {
		return domain.SentenceEvaluation{}, err
	}
	return resp.result(), nil
}

// EvaluatePronunciation transcribes audio and scores it against target.
func (c *Client) EvaluatePronunciation(ctx context.Context, audio []byte, target string, lang domain.Language) (domain.PronunciationEvaluation, error) {
	if len(audio) == 0 {
		return domain.PronunciationEvaluation{}, fmt.Errorf("%w: empty recording", ErrFailed)
	}
	text, err := c.transcribe(ctx, audio, lang)
	if err != nil {
		return domain.PronunciationEvaluation{}, err
	}
	var resp pronunciationResponse
	if err := c.complete(ctx, "evaluate_pronunciation", pronunciationPrompt(text, target, lang), &resp); err != nil {
		return domain.PronunciationEvaluation{}, err
	}
	return resp.result(), nil
}

// SynthesizeAudio reads text aloud and returns MP3 bytes.
func (c *Client) SynthesizeAudio(ctx context.Context, text string, lang domain.Language) ([]byte, error) {
	var audio []byte
	err := c.call(ctx, "synthesize_audio", func(ctx context.Context) error {
		resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(c.cfg.TTSModel),
			Input:          text,
			Voice:          voiceFor(lang),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return classify(err)
		}
		defer resp.Close()
		audio, err = io.ReadAll(resp)
		return err
	})
	return audio, err
}

func voiceFor(lang domain.Language) openai.SpeechVoice {
	switch lang {
	case domain.Catalan:
		return openai.VoiceNova
	case domain.French:
		return openai.VoiceFable
	default:
		return openai.VoiceAlloy
	}
}
