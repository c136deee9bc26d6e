// Package learn runs the background acquisition loops. A fast loop rotates
// through learning strategies (topic crawl, generated Q&A, graph
// gap-filling) on a short cadence; a slower loop replays unanswered
// questions and adapts the confidence threshold. Both loops survive any
// single step's failure.
package learn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/protype-ai/protype/internal/activity"
	"github.com/protype-ai/protype/internal/crawl"
	"github.com/protype-ai/protype/internal/graph"
	"github.com/protype-ai/protype/internal/reinforce"
	"github.com/protype-ai/protype/internal/store"
)

// crawledWeight is the trust assigned to crawled encyclopedia answers.
const crawledWeight = 0.6

// crawledSource tags entries learned from the topic crawl.
const crawledSource = "wikipedia"

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Researcher acquires and persists an answer for one question.
type Researcher interface {
	Research(ctx context.Context, question string) error
}

// Crawler fetches article material for a topic.
type Crawler interface {
	Topic(ctx context.Context, topic string) (crawl.Content, error)
}

// Summarizer condenses crawled material into a storable answer.
type Summarizer interface {
	Summarize(ctx context.Context, topic, content string) (string, error)
}

// Config wires a Scheduler.
type Config struct {
	Store      *store.Store
	Chain      Researcher
	Tracker    *reinforce.Tracker
	Graph      *graph.KnowledgeGraph
	Crawler    Crawler
	Summarizer Summarizer // optional; nil falls back to leading text
	Activity   *activity.Log
	Logger     *slog.Logger

	Interval        time.Duration // fast-loop cadence, default 5s
	ReinforceFactor int           // reinforcement cadence = Interval * factor, default 5
	MaxBatch        int           // unanswered questions per replay, default 3
	RebuildEvery    int           // graph rebuild every N fast steps, default 5
	Topics          []string      // rotating crawl topics
	Questions       []string      // rotating generated-Q&A pool
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	State           State     `json:"state"`
	FastCycles      int       `json:"fast_cycles"`
	ReinforceCycles int       `json:"reinforce_cycles"`
	LastError       string    `json:"last_error,omitempty"`
	LastRun         time.Time `json:"last_run,omitzero"`
}

// Scheduler is the Idle/Running state machine driving background learning.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	topicIdx    int
	questionIdx int
	fastSteps   int
	status      Status
}

// New creates an idle Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Chain == nil || cfg.Tracker == nil || cfg.Graph == nil {
		return nil, fmt.Errorf("store, chain, tracker and graph are required")
	}
	if cfg.Crawler == nil {
		return nil, fmt.Errorf("crawler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ReinforceFactor <= 0 {
		cfg.ReinforceFactor = 5
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 3
	}
	if cfg.RebuildEvery <= 0 {
		cfg.RebuildEvery = 5
	}
	return &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateIdle,
	}, nil
}

// Start launches both loops. Calling Start while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg = &sync.WaitGroup{}
	s.state = StateRunning
	s.status.State = StateRunning

	s.wg.Add(2)
	go s.fastLoop(ctx)
	go s.reinforceLoop(ctx)

	s.logger.Info("learning started", "interval", s.cfg.Interval)
	s.recordActivity(context.Background(), "learning_started", "")
}

// Stop signals both loops and joins them, waiting at most timeout.
// In-flight external calls finish or time out on their own. Stopping an
// idle scheduler is a no-op.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	cancel, wg := s.cancel, s.wg
	s.state = StateIdle
	s.status.State = StateIdle
	s.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
		s.logger.Info("learning stopped")
		s.recordActivity(context.Background(), "learning_stopped", "")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler workers did not stop within %s", timeout)
	}
}

// Status reports the current state and counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// fastLoop rotates the learning strategies with a doubled backoff after
// any failed step. The loop exits only on context cancellation.
func (s *Scheduler) fastLoop(ctx context.Context) {
	defer s.wg.Done()

	delay := s.cfg.Interval
	maxDelay := 8 * s.cfg.Interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := s.fastStep(ctx)
		s.noteStep(err)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("learning step failed", "error", err)
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}
		delay = s.cfg.Interval
	}
}

func (s *Scheduler) fastStep(ctx context.Context) error {
	s.mu.Lock()
	step := s.fastSteps
	s.fastSteps++
	s.mu.Unlock()

	var err error
	switch step % 3 {
	case 0:
		err = s.topicCrawl(ctx)
	case 1:
		err = s.generatedQA(ctx)
	case 2:
		err = s.gapFill(ctx)
	}

	if (step+1)%s.cfg.RebuildEvery == 0 {
		if rerr := s.cfg.Graph.Rebuild(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// topicCrawl learns the next rotating topic from the crawler.
func (s *Scheduler) topicCrawl(ctx context.Context) error {
	topic := s.nextTopic()
	if topic == "" {
		return nil
	}
	question := topicQuestion(topic)

	if _, err := s.cfg.Store.Get(ctx, question); err == nil {
		return nil
	}

	content, err := s.cfg.Crawler.Topic(ctx, topic)
	if err != nil {
		return fmt.Errorf("crawling %q: %w", topic, err)
	}

	answer := ""
	if s.cfg.Summarizer != nil {
		answer, err = s.cfg.Summarizer.Summarize(ctx, topic, content.Text)
		if err != nil {
			s.logger.Debug("summarize failed, storing leading text", "topic", topic, "error", err)
		}
	}
	if answer == "" {
		answer = leadingText(content.Text)
	}
	if answer == "" {
		return fmt.Errorf("crawling %q: %w", topic, crawl.ErrNoContent)
	}

	if err := s.cfg.Store.Upsert(ctx, question, answer, crawledWeight, crawledSource, "scheduler"); err != nil {
		return err
	}
	s.recordActivity(ctx, "learned", question)
	return nil
}

// generatedQA researches the next pool question that is not yet stored.
func (s *Scheduler) generatedQA(ctx context.Context) error {
	question := s.nextQuestion()
	if question == "" {
		return nil
	}
	if _, err := s.cfg.Store.Get(ctx, question); err == nil {
		return nil
	}
	return s.cfg.Chain.Research(ctx, question)
}

// gapFill turns the graph's thin entities into learning objectives.
func (s *Scheduler) gapFill(ctx context.Context) error {
	for _, n := range s.cfg.Graph.View().LowConnectivityEntities(3) {
		question := topicQuestion(n.Label)
		if _, err := s.cfg.Store.Get(ctx, question); err == nil {
			continue
		}
		return s.cfg.Chain.Research(ctx, question)
	}
	return nil
}

// reinforceLoop replays unanswered questions and adapts the threshold on
// a slower cadence.
func (s *Scheduler) reinforceLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.Interval * time.Duration(s.cfg.ReinforceFactor)
	delay := interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := s.reinforceStep(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("reinforcement step failed", "error", err)
			delay = 2 * interval
			continue
		}
		delay = interval
	}
}

func (s *Scheduler) reinforceStep(ctx context.Context) error {
	processed, resolved, err := s.cfg.Tracker.ProcessUnanswered(ctx, s.cfg.MaxBatch, s.cfg.Chain)
	if err != nil {
		return err
	}
	if processed > 0 {
		s.logger.Debug("unanswered replayed", "processed", processed, "resolved", resolved)
	}
	if err := s.cfg.Tracker.AdjustConfidenceThreshold(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.status.ReinforceCycles++
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) noteStep(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.FastCycles++
	s.status.LastRun = time.Now().UTC()
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
}

func (s *Scheduler) nextTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Topics) == 0 {
		return ""
	}
	topic := s.cfg.Topics[s.topicIdx%len(s.cfg.Topics)]
	s.topicIdx++
	return topic
}

func (s *Scheduler) nextQuestion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Questions) == 0 {
		return ""
	}
	q := s.cfg.Questions[s.questionIdx%len(s.cfg.Questions)]
	s.questionIdx++
	return q
}

func (s *Scheduler) recordActivity(ctx context.Context, action, description string) {
	if s.cfg.Activity == nil {
		return
	}
	if err := s.cfg.Activity.Record(ctx, "scheduler", action, description); err != nil {
		s.logger.Debug("activity record failed", "action", action, "error", err)
	}
}

// topicQuestion is the canonical question form for a learned topic.
func topicQuestion(topic string) string {
	return "What is " + strings.TrimSpace(topic) + "?"
}

// leadingText returns the first few sentences of a crawled body, bounded.
func leadingText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	const maxRunes = 600
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, '.'); i > maxRunes/2 {
		return cut[:i+1]
	}
	return cut
}
