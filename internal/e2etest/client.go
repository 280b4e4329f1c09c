package e2etest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/justinas/nosurf"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/timeline"
)

// Client is a cookie-keeping HTTP client that plays the planning session like a browser would.
// Each Client is a separate visitor with its own session.
type Client struct {
	client    *http.Client
	jar       *visitorJar
	url       string
	csrfToken string
}

func NewClient(url string) (*Client, error) {
	jar, err := newVisitorJar()
	if err != nil {
		return nil, errors.Wrap(err, "create visitor cookie jar")
	}
	return &Client{
		client:    &http.Client{Jar: jar}, //nolint:exhaustruct // defaults are fine for tests
		jar:       jar,
		url:       url,
		csrfToken: "",
	}, nil
}

// HasSession reports whether the server has saved a session, and with it a visitor id, for this client.
func (c *Client) HasSession() (bool, error) {
	u, err := neturl.Parse(c.url)
	if err != nil {
		return false, errors.Wrap(err, "parse server url", slog.String("url", c.url))
	}
	return c.jar.hasSession(u), nil
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	var resp *http.Response
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// GetDoc fetches a URL and returns a goquery document. The CSRF token of the page is remembered for Post.
func (c *Client) GetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	var (
		err  error
		resp *http.Response
		doc  *goquery.Document
	)
	if resp, err = c.Get(ctx, urlPath); err != nil {
		return nil, errors.Wrap(err, "client get")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if http.StatusOK != resp.StatusCode {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}
	if doc, err = goquery.NewDocumentFromReader(resp.Body); err != nil {
		return nil, errors.Wrap(err, "create document from reader")
	}
	if token, ok := doc.Find("meta[name=csrf-token]").Attr("content"); ok {
		c.csrfToken = token
	}
	return doc, nil
}

// State fetches the JSON snapshot of the visitor's planning session.
func (c *Client) State(ctx context.Context) (timeline.Snapshot, error) {
	var snap timeline.Snapshot
	resp, err := c.Get(ctx, "/playground/state")
	if err != nil {
		return snap, errors.Wrap(err, "client get")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if http.StatusOK != resp.StatusCode {
		return snap, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}
	if err = json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, errors.Wrap(err, "decode snapshot")
	}
	return snap, nil
}

// Post submits a form to urlPath with the CSRF token picked up by the latest GetDoc. The response is returned
// unread so that callers can assert on redirects and partials.
func (c *Client) Post(ctx context.Context, urlPath string, form neturl.Values) (*http.Response, error) {
	return c.post(ctx, urlPath, form, nil)
}

// PostHx submits a form like htmx does so that the server responds with a partial instead of a redirect.
func (c *Client) PostHx(ctx context.Context, urlPath string, form neturl.Values) (*http.Response, error) {
	return c.post(ctx, urlPath, form, http.Header{"Hx-Request": {"true"}})
}

func (c *Client) post(
	ctx context.Context,
	urlPath string,
	form neturl.Values,
	header http.Header,
) (*http.Response, error) {
	if c.csrfToken == "" {
		return nil, errors.New("no csrf token, fetch a page first")
	}
	if form == nil {
		form = neturl.Values{}
	}
	form.Set("csrf_token", c.csrfToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+urlPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(nosurf.HeaderName, c.csrfToken)
	var resp *http.Response
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

func (c *Client) postAndCheck(ctx context.Context, urlPath string, form neturl.Values) error {
	resp, err := c.Post(ctx, urlPath, form)
	if err != nil {
		return errors.Wrap(err, "post", slog.String("path", urlPath))
	}
	if err = resp.Body.Close(); err != nil {
		return errors.Wrap(err, "close response body")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New("unexpected status code",
			slog.String("path", urlPath), slog.Int("status", resp.StatusCode))
	}
	return nil
}

// Start starts the visitor's run. The redirect back to the page is followed.
func (c *Client) Start(ctx context.Context) error {
	return c.postAndCheck(ctx, "/playground/start", nil)
}

// Answer picks option for the pending question.
func (c *Client) Answer(ctx context.Context, option int) error {
	return c.postAndCheck(ctx, "/playground/answer", neturl.Values{"option": {strconv.Itoa(option)}})
}

// Restart returns the visitor's run to the initial state.
func (c *Client) Restart(ctx context.Context) error {
	return c.postAndCheck(ctx, "/playground/restart", nil)
}

// WaitFor polls the state until done returns true or ctx is cancelled.
func (c *Client) WaitFor(
	ctx context.Context,
	done func(timeline.Snapshot) bool,
) (timeline.Snapshot, error) {
	for {
		snap, err := c.State(ctx)
		if err != nil {
			return snap, errors.Wrap(err, "fetch state")
		}
		if done(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, errors.Wrap(ctx.Err(), "wait for state", slog.String("phase", snap.Phase.String()))
		case <-time.After(10 * time.Millisecond): //nolint:mnd // 10ms
		}
	}
}

// PlayThrough starts a run and answers every question with the option picked by choose until the run finishes.
func (c *Client) PlayThrough(ctx context.Context, choose func(q timeline.QuestionView) int) (timeline.Snapshot, error) {
	if _, err := c.GetDoc(ctx, "/"); err != nil {
		return timeline.Snapshot{}, errors.Wrap(err, "get front page")
	}
	if err := c.Start(ctx); err != nil {
		return timeline.Snapshot{}, errors.Wrap(err, "start")
	}
	for {
		snap, err := c.WaitFor(ctx, func(s timeline.Snapshot) bool {
			return s.Phase == timeline.PhaseFinished || s.CanAnswer()
		})
		if err != nil {
			return snap, err
		}
		if snap.Phase == timeline.PhaseFinished {
			return snap, nil
		}
		if err = c.Answer(ctx, choose(*snap.Question)); err != nil {
			return snap, errors.Wrap(err, "answer", slog.Int("question", snap.Question.Index))
		}
	}
}
