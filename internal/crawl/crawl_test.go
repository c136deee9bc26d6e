package crawl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/protype-ai/protype/internal/log"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Gravity - Test Encyclopedia</title></head>
<body>
<div id="content">
<h1>Gravity</h1>
<div id="mw-content-text">
<p>Gravity is the attraction between masses. It shapes the structure of the
universe, from falling apples to orbiting planets, and was described
classically by Newton before Einstein reframed it as curved spacetime.</p>
<p>On Earth, gravity gives weight to physical objects and causes the tides.</p>
</div>
</div>
</body></html>`

func newTestCrawler(t *testing.T, handler http.Handler) *Crawler {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(5*time.Second, log.NewNop())
	c.baseURL = srv.URL + "/wiki/"
	return c
}

func TestTopic(t *testing.T) {
	var gotPath string
	c := newTestCrawler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(articleHTML))
	}))

	content, err := c.Topic(context.Background(), "Gravity on Earth")
	if err != nil {
		t.Fatalf("Topic: %v", err)
	}
	if gotPath != "/wiki/Gravity_on_Earth" {
		t.Errorf("path = %q, want underscored topic", gotPath)
	}
	if !strings.Contains(content.Text, "attraction between masses") {
		t.Errorf("body text missing article content: %q", content.Text)
	}
	if content.Topic != "Gravity on Earth" {
		t.Errorf("Topic = %q", content.Topic)
	}
	if content.Title == "" {
		t.Error("Title is empty")
	}
}

func TestTopicMissingArticle(t *testing.T) {
	c := newTestCrawler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	if _, err := c.Topic(context.Background(), "No Such Page"); err == nil {
		t.Fatal("Topic succeeded on 404")
	}
}

func TestTopicEmptyBody(t *testing.T) {
	c := newTestCrawler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="mw-content-text"></div></body></html>`))
	}))

	_, err := c.Topic(context.Background(), "Empty")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestTopicValidation(t *testing.T) {
	c := New(time.Second, log.NewNop())
	if _, err := c.Topic(context.Background(), "   "); err == nil {
		t.Fatal("Topic accepted blank input")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Topic(ctx, "Gravity"); err == nil {
		t.Fatal("Topic ignored canceled context")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Errorf("truncate long = %q", got)
	}
}
