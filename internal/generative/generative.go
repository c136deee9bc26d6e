// Package generative answers questions and summarizes crawled material
// through a Gemini model. It is the highest-cost retrieval tier and the
// backbone of background learning, so every call carries a timeout and
// callers treat failures as a miss, never a crash.
package generative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"

	"github.com/protype-ai/protype/internal/config"
)

// ErrNoAnswer indicates the model produced nothing usable for the question.
var ErrNoAnswer = errors.New("model produced no usable answer")

// Response is a model answer with the model's own confidence estimate.
type Response struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Answerer is the slice of Client that retrieval and learning consume.
type Answerer interface {
	Answer(ctx context.Context, question string) (Response, error)
}

// Client wraps a configured genkit instance.
type Client struct {
	g         *genkit.Genkit
	model     string
	timeout   time.Duration
	sourceTag string
	logger    *slog.Logger
}

// New initializes genkit with the Google AI plugin. apiKey may be empty if
// the environment already carries GEMINI_API_KEY.
func New(ctx context.Context, cfg config.Generative, apiKey string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: apiKey}))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		g:         g,
		model:     "googleai/" + cfg.Model,
		timeout:   timeout,
		sourceTag: cfg.SourceTag,
		logger:    logger,
	}, nil
}

// SourceTag is the provenance label recorded on entries this client
// produced.
func (c *Client) SourceTag() string { return c.sourceTag }

const answerPrompt = `Answer the question below accurately and concisely.
Respond with a single JSON object of the form
{"answer": "<the answer text>", "confidence": <0.0 to 1.0>}
where confidence is your estimate of factual reliability.
If you cannot answer, use an empty answer and confidence 0.

Question: %s`

// Answer asks the model one question. A low-confidence or empty reply
// returns ErrNoAnswer so callers fall through to the next tier.
func (c *Client) Answer(ctx context.Context, question string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithConfig(&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}),
		ai.WithPrompt(answerPrompt, question),
	)
	if err != nil {
		return Response{}, fmt.Errorf("generating answer: %w", err)
	}

	parsed, err := parseResponse(resp.Text())
	if err != nil {
		c.logger.Debug("unparseable model reply", "question", question, "error", err)
		return Response{}, ErrNoAnswer
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return Response{}, ErrNoAnswer
	}

	c.logger.Debug("model answered", "question", question, "confidence", parsed.Confidence)
	return parsed, nil
}

const summaryPrompt = `Summarize the following material about %q in two to four
plain sentences a knowledge base could store as the answer to the question
"What is %s?". Return only the summary text.

%s`

// Summarize condenses crawled page text into a storable answer for a topic.
func (c *Client) Summarize(ctx context.Context, topic, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	const maxContent = 8000
	if len(content) > maxContent {
		content = content[:maxContent]
	}

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithConfig(&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.3)}),
		ai.WithPrompt(summaryPrompt, topic, topic, content),
	)
	if err != nil {
		return "", fmt.Errorf("summarizing %q: %w", topic, err)
	}

	text := strings.TrimSpace(stripCodeFences(resp.Text()))
	if text == "" {
		return "", ErrNoAnswer
	}
	return text, nil
}
