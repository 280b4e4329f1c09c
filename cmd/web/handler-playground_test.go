package main

import (
	"bufio"
	"context"
	"net/http"
	neturl "net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/mavis/internal/timeline"
	"github.com/stretchr/testify/require"
)

func Test_application_playground(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	client := server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := client.State(ctx)
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseIdle, snap.Phase)

	// Always pick the first option.
	snap, err = client.PlayThrough(ctx, func(timeline.QuestionView) int { return 0 })
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseFinished, snap.Phase)
	require.NotEmpty(t, snap.RunID)
	require.Contains(t, snap.Summary, "5 agents collaborated across 5 stages")
	require.Equal(t, "Plan consolidated and exported! All preferences aligned.",
		snap.Transcript[len(snap.Transcript)-1].Text)

	doc, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)
	require.Equal(t, "finished", doc.Find("section.task").AttrOr("data-phase", ""))
	require.Equal(t, 5, doc.Find("g.agent").Length())
	require.Contains(t, doc.Find("p.summary").Text(), "preference-aligned plan")

	require.NoError(t, client.Restart(ctx))
	snap, err = client.State(ctx)
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseIdle, snap.Phase)
	require.Equal(t, 58, snap.PlanScore)
	require.Empty(t, snap.Transcript)
}

func Test_application_playgroundVisitorsAreIsolated(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := server.Client()
	_, err := first.GetDoc(ctx, "/")
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	_, err = first.WaitFor(ctx, func(s timeline.Snapshot) bool { return s.Phase != timeline.PhaseIdle })
	require.NoError(t, err)

	second, err := server.NewVisitor()
	require.NoError(t, err)
	hasSession, err := second.HasSession()
	require.NoError(t, err)
	require.False(t, hasSession)
	snap, err := second.State(ctx)
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseIdle, snap.Phase)
}

func Test_application_playgroundHtmxPartial(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	client := server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	resp, err := client.PostHx(ctx, "/playground/start", nil)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	// The partial has no page chrome.
	require.Equal(t, 0, doc.Find("header").Length())
	require.Equal(t, 1, doc.Find("section.task").Length())
	require.Equal(t, 1, doc.Find("form[action='/playground/restart']").Length())
}

func Test_application_playgroundRejects(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	client := server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		form   neturl.Values
		status int
	}{
		{name: "non-numeric option", path: "/playground/answer", form: neturl.Values{"option": {"first"}},
			status: http.StatusBadRequest},
		{name: "missing option", path: "/playground/answer", form: nil, status: http.StatusBadRequest},
		// Answers out of turn are ignored and the page is shown again.
		{name: "answer while idle", path: "/playground/answer", form: neturl.Values{"option": {"0"}},
			status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, postErr := client.Post(ctx, tt.path, tt.form)
			require.NoError(t, postErr)
			require.NoError(t, resp.Body.Close())
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}

	snap, err := client.State(ctx)
	require.NoError(t, err)
	require.Equal(t, timeline.PhaseIdle, snap.Phase)
}

func Test_application_playgroundCSRF(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL()+"/playground/start", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_application_playgroundRateLimit(t *testing.T) {
	server := startTestServer(t, func(key string) (string, bool) {
		switch key {
		case "MAVIS_RATE_LIMIT":
			return "1", true
		case "MAVIS_RATE_BURST":
			return "2", true
		default:
			return testLookupEnv(key)
		}
	})
	client := server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	// The burst passes, the request right after it is throttled.
	for i := range 3 {
		resp, postErr := client.PostHx(ctx, "/playground/restart", nil)
		require.NoError(t, postErr)
		require.NoError(t, resp.Body.Close())
		if i < 2 {
			require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		require.Equal(t, "1", resp.Header.Get("Retry-After"))
	}

	// Reads are not throttled.
	_, err = client.State(ctx)
	require.NoError(t, err)
}

func Test_application_playgroundStream(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	client := server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	resp, err := client.Get(ctx, "/playground/stream")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	// The current state arrives immediately.
	event := readEvent(t, reader)
	require.Equal(t, "snapshot", event.name)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(event.data))
	require.NoError(t, err)
	// The event carries the playground partial without page chrome.
	require.Equal(t, 0, doc.Find("header").Length())
	phase, ok := doc.Find("section.task").Attr("data-phase")
	require.True(t, ok)
	require.Equal(t, "idle", phase)
	require.Equal(t, 1, doc.Find("form[action='/playground/start']").Length())

	require.NoError(t, client.Start(ctx))
	for {
		event = readEvent(t, reader)
		if strings.Contains(event.data, `data-phase="finished"`) {
			break
		}
		if strings.Contains(event.data, `name="option"`) {
			require.NoError(t, client.Answer(ctx, 0))
		}
	}
	require.Contains(t, event.data, "preference-aligned plan")
}

func Test_application_playgroundStreamWithoutVisitor(t *testing.T) {
	server := startTestServer(t, testLookupEnv)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// No earlier page load, so there is no session cookie and no visitor id.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL()+"/playground/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	for _, cookie := range resp.Cookies() {
		require.NotEqual(t, "session", cookie.Name)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var (
		event sseEvent
		data  []string
	)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			event.data = strings.Join(data, "\n")
			return event
		case strings.HasPrefix(line, "event: "):
			event.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
}
