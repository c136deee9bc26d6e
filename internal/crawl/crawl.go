// Package crawl fetches encyclopedia article text for background topic
// learning. One topic maps to one Wikipedia article; the extracted body is
// handed to the generative summarizer before it is stored.
package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

// ErrNoContent indicates the article exists but yielded no usable text.
var ErrNoContent = errors.New("no usable article content")

// maxBodyRunes bounds the text returned for one article.
const maxBodyRunes = 20000

// Content is the fetched material for one topic.
type Content struct {
	Topic string `json:"topic"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Crawler fetches article bodies. Safe for concurrent use; every fetch
// carries its own collector and timeout.
type Crawler struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Crawler against en.wikipedia.org with the given timeout.
// timeout <= 0 defaults to ten seconds.
func New(timeout time.Duration, logger *slog.Logger) *Crawler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		baseURL:   "https://en.wikipedia.org/wiki/",
		userAgent: "protype-learning-bot/1.0",
		timeout:   timeout,
		logger:    logger,
	}
}

// Topic fetches the article for a topic. The body comes from a readability
// pass over the page; when that yields nothing, the article paragraphs are
// collected directly as a fallback.
func (c *Crawler) Topic(ctx context.Context, topic string) (Content, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Content{}, fmt.Errorf("topic is required")
	}
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	pageURL := c.baseURL + url.PathEscape(strings.ReplaceAll(topic, " ", "_"))

	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(c.timeout)

	content := Content{Topic: topic, URL: pageURL}
	var paragraphs []string

	// Fallback body: the article's own paragraphs, in order.
	collector.OnHTML("div#mw-content-text", func(e *colly.HTMLElement) {
		e.DOM.Find("p").Each(func(_ int, sel *goquery.Selection) {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
	})

	collector.OnResponse(func(r *colly.Response) {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return
		}
		article, err := readability.FromReader(bytes.NewReader(r.Body), parsed)
		if err != nil {
			c.logger.Debug("readability pass failed", "topic", topic, "error", err)
			return
		}
		content.Title = article.Title
		content.Text = strings.TrimSpace(article.TextContent)
	})

	if err := collector.Visit(pageURL); err != nil {
		return Content{}, fmt.Errorf("fetching article for %q: %w", topic, err)
	}
	collector.Wait()

	if content.Text == "" {
		content.Text = strings.Join(paragraphs, "\n\n")
	}
	if content.Title == "" {
		content.Title = topic
	}
	content.Text = truncate(content.Text, maxBodyRunes)
	if strings.TrimSpace(content.Text) == "" {
		return Content{}, fmt.Errorf("%w: %s", ErrNoContent, topic)
	}

	c.logger.Debug("article fetched", "topic", topic, "bytes", len(content.Text))
	return content, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
