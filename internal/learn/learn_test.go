package learn

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/protype-ai/protype/internal/activity"
	"github.com/protype-ai/protype/internal/crawl"
	"github.com/protype-ai/protype/internal/graph"
	"github.com/protype-ai/protype/internal/log"
	"github.com/protype-ai/protype/internal/reinforce"
	"github.com/protype-ai/protype/internal/store"
	"github.com/protype-ai/protype/internal/testutil"
)

type fakeCrawler struct {
	text string
	err  error
}

func (f *fakeCrawler) Topic(_ context.Context, topic string) (crawl.Content, error) {
	if f.err != nil {
		return crawl.Content{}, f.err
	}
	return crawl.Content{Topic: topic, Title: topic, Text: f.text}, nil
}

type fakeResearcher struct {
	store *store.Store
	fail  bool
	calls []string
}

func (f *fakeResearcher) Research(ctx context.Context, question string) error {
	f.calls = append(f.calls, store.Normalize(question))
	if f.fail {
		return errors.New("research failed")
	}
	return f.store.Upsert(ctx, question, "researched answer", 0.7, "gemini_flash_direct", "scheduler")
}

type fixture struct {
	sched   *Scheduler
	store   *store.Store
	tracker *reinforce.Tracker
	graph   *graph.KnowledgeGraph
	crawler *fakeCrawler
	chain   *fakeResearcher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, s := testutil.OpenStore(t)
	al, err := activity.NewLog(db, log.NewNop())
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	tr, err := reinforce.New(db, al, log.NewNop())
	if err != nil {
		t.Fatalf("reinforce.New: %v", err)
	}
	g, err := graph.New(s, nil, 30, log.NewNop())
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}

	crawler := &fakeCrawler{text: "Go is a programming language designed at Google for building simple, reliable software."}
	chain := &fakeResearcher{store: s}

	cfg.Store = s
	cfg.Chain = chain
	cfg.Tracker = tr
	cfg.Graph = g
	cfg.Crawler = crawler
	cfg.Activity = al
	cfg.Logger = log.NewNop()

	sched, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{sched: sched, store: s, tracker: tr, graph: g, crawler: crawler, chain: chain}
}

// goleakOptions ignores goroutines owned by the sql connection pool, which
// live until the test's cleanup closes the database.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	}
}

func TestStartStopLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	f := newFixture(t, Config{Interval: 10 * time.Millisecond, Topics: []string{"Go"}, Questions: []string{"What is Go?"}})

	if got := f.sched.Status().State; got != StateIdle {
		t.Fatalf("initial state = %s, want idle", got)
	}

	f.sched.Start()
	f.sched.Start() // idempotent

	deadline := time.After(2 * time.Second)
	for f.sched.Status().FastCycles == 0 {
		select {
		case <-deadline:
			t.Fatal("no fast cycle completed in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := f.sched.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := f.sched.Status().State; got != StateIdle {
		t.Fatalf("state after Stop = %s, want idle", got)
	}

	// Stopping again is a no-op; restarting works.
	if err := f.sched.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	f.sched.Start()
	if err := f.sched.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}

func TestTopicCrawlStoresEntry(t *testing.T) {
	f := newFixture(t, Config{Topics: []string{"Go"}})
	ctx := context.Background()

	if err := f.sched.topicCrawl(ctx); err != nil {
		t.Fatalf("topicCrawl: %v", err)
	}

	e, err := f.store.Get(ctx, "What is Go?")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Weight != crawledWeight || e.Source != crawledSource {
		t.Errorf("entry = %+v, want crawled weight and source", e)
	}
	if e.Answer == "" {
		t.Error("empty stored answer")
	}
}

func TestTopicCrawlSkipsKnown(t *testing.T) {
	f := newFixture(t, Config{Topics: []string{"Go"}})
	ctx := context.Background()

	if err := f.store.Upsert(ctx, "What is Go?", "Already known.", 0.9, "user", "t"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	f.crawler.err = errors.New("crawler must not be called")

	if err := f.sched.topicCrawl(ctx); err != nil {
		t.Fatalf("topicCrawl: %v", err)
	}
	e, _ := f.store.Get(ctx, "What is Go?")
	if e.Answer != "Already known." {
		t.Errorf("known entry overwritten: %q", e.Answer)
	}
}

func TestTopicRotation(t *testing.T) {
	f := newFixture(t, Config{Topics: []string{"Alpha", "Beta"}})
	ctx := context.Background()

	for range 3 {
		if err := f.sched.topicCrawl(ctx); err != nil {
			t.Fatalf("topicCrawl: %v", err)
		}
	}

	// Third step wraps back to the first topic.
	if _, err := f.store.Get(ctx, "What is Alpha?"); err != nil {
		t.Errorf("Alpha not learned: %v", err)
	}
	if _, err := f.store.Get(ctx, "What is Beta?"); err != nil {
		t.Errorf("Beta not learned: %v", err)
	}
}

func TestGeneratedQA(t *testing.T) {
	f := newFixture(t, Config{Questions: []string{"What is gravity?", "What is light?"}})
	ctx := context.Background()

	if err := f.store.Upsert(ctx, "What is gravity?", "Known.", 0.9, "user", "t"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// First pool question is known, so nothing is researched.
	if err := f.sched.generatedQA(ctx); err != nil {
		t.Fatalf("generatedQA: %v", err)
	}
	if len(f.chain.calls) != 0 {
		t.Fatalf("researched a known question: %v", f.chain.calls)
	}

	// Second is unknown.
	if err := f.sched.generatedQA(ctx); err != nil {
		t.Fatalf("generatedQA: %v", err)
	}
	if len(f.chain.calls) != 1 || f.chain.calls[0] != "what is light?" {
		t.Fatalf("calls = %v", f.chain.calls)
	}
}

func TestGapFill(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// "magnetism" appears in one answer only: a low-connectivity entity.
	if err := f.store.Upsert(ctx, "q one", "gravity magnetism", 0.5, "user", "t"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := f.store.Upsert(ctx, "q two", "gravity inertia", 0.5, "user", "t"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := f.graph.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if err := f.sched.gapFill(ctx); err != nil {
		t.Fatalf("gapFill: %v", err)
	}
	if len(f.chain.calls) != 1 {
		t.Fatalf("calls = %v, want one gap objective", f.chain.calls)
	}
}

func TestGapFillEmptyGraph(t *testing.T) {
	f := newFixture(t, Config{})

	if err := f.sched.gapFill(context.Background()); err != nil {
		t.Fatalf("gapFill on empty graph: %v", err)
	}
	if len(f.chain.calls) != 0 {
		t.Fatalf("calls = %v, want none", f.chain.calls)
	}
}

func TestReinforceStep(t *testing.T) {
	f := newFixture(t, Config{MaxBatch: 5})
	ctx := context.Background()

	if err := f.tracker.EnqueueUnanswered(ctx, "what is z?"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := f.sched.reinforceStep(ctx); err != nil {
		t.Fatalf("reinforceStep: %v", err)
	}
	if len(f.chain.calls) != 1 || f.chain.calls[0] != "what is z?" {
		t.Fatalf("calls = %v", f.chain.calls)
	}

	pending, err := f.tracker.PendingUnanswered(ctx, 10)
	if err != nil {
		t.Fatalf("PendingUnanswered: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %v, want resolved queue", pending)
	}
}

func TestFastStepRotationAndRebuild(t *testing.T) {
	f := newFixture(t, Config{
		Topics:       []string{"Go"},
		Questions:    []string{"What is light?"},
		RebuildEvery: 3,
	})
	ctx := context.Background()

	for range 3 {
		if err := f.sched.fastStep(ctx); err != nil {
			t.Fatalf("fastStep: %v", err)
		}
	}

	// Step 0 crawled, step 1 researched, step 2 gap-filled; rebuild fired
	// after the third step, so the graph sees both stored answers.
	if got := f.graph.View().Stats().Questions; got != 2 {
		t.Fatalf("graph questions = %d, want 2 after rebuild", got)
	}
}

func TestLeadingText(t *testing.T) {
	if got := leadingText("  short body.  "); got != "short body." {
		t.Errorf("leadingText short = %q", got)
	}
	long := ""
	for range 100 {
		long += "This sentence pads the body. "
	}
	got := leadingText(long)
	if len(got) == 0 || len(got) > 700 {
		t.Errorf("leadingText bound violated, len = %d", len(got))
	}
}
