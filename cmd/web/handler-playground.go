package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/myrjola/mavis/internal/contexthelpers"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/timeline"
)

// snapshotEvent is the SSE event name htmx swaps into the playground.
const snapshotEvent = "snapshot"

// respondPlayground answers htmx requests with the refreshed partial and plain form posts with a redirect back to the
// page.
func (app *application) respondPlayground(w http.ResponseWriter, r *http.Request, snap timeline.Snapshot) {
	hx := app.htmx.NewHandler(w, r).Request()
	if hx.HxRequest && !hx.HxBoosted {
		app.renderPartial(w, r, http.StatusOK, "playground", newPlaygroundTemplateData(snap))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (app *application) playgroundStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, started, err := app.playground.Start(ctx, contexthelpers.VisitorID(ctx))
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	if !started {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "run already started", slog.String("phase", snap.Phase.String()))
	}
	app.respondPlayground(w, r, snap)
}

func (app *application) playgroundAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	option, err := strconv.Atoi(r.PostForm.Get("option"))
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	snap, accepted, err := app.playground.Answer(ctx, contexthelpers.VisitorID(ctx), option)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	if !accepted {
		// Stale buttons are expected when an answer races the timeline, so the current state is shown instead.
		app.logger.LogAttrs(ctx, slog.LevelDebug, "answer ignored",
			slog.Int("option", option), slog.String("phase", snap.Phase.String()))
	}
	app.respondPlayground(w, r, snap)
}

func (app *application) playgroundRestart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := app.playground.Restart(ctx, contexthelpers.VisitorID(ctx))
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.respondPlayground(w, r, snap)
}

// playgroundState responds with the visitor's snapshot as JSON.
func (app *application) playgroundState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := app.playground.Snapshot(ctx, contexthelpers.VisitorID(ctx))
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	var body []byte
	if body, err = json.Marshal(snap); err != nil {
		app.serverError(w, r, errors.Wrap(err, "marshal snapshot"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

// playgroundStream pushes the rendered playground partial as a server-sent event whenever the visitor's run changes.
func (app *application) playgroundStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitorID := contexthelpers.VisitorID(ctx)
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		app.serverError(w, r, errors.Wrap(err, "lift write deadline"))
		return
	}

	updates, unsubscribe := app.playground.Subscribe(visitorID)
	defer unsubscribe()

	snap, err := app.playground.Snapshot(ctx, visitorID)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		if err = app.writeSnapshotEvent(w, r, snap); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
			return
		}
		if err = rc.Flush(); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
			return
		}
		var ok bool
		select {
		case <-ctx.Done():
			return
		case <-app.shuttingDown:
			return
		case snap, ok = <-updates:
			if !ok {
				return
			}
		}
	}
}

// writeSnapshotEvent renders the playground partial as one SSE event. Every line of the partial becomes a data line.
func (app *application) writeSnapshotEvent(w http.ResponseWriter, r *http.Request, snap timeline.Snapshot) error {
	var partial bytes.Buffer
	if err := app.executePartial(&partial, r, "playground", newPlaygroundTemplateData(snap)); err != nil {
		return err
	}
	var event strings.Builder
	event.WriteString("event: " + snapshotEvent + "\n")
	for _, line := range strings.Split(strings.TrimRight(partial.String(), "\n"), "\n") {
		event.WriteString("data: ")
		event.WriteString(strings.TrimRight(line, "\r"))
		event.WriteByte('\n')
	}
	event.WriteByte('\n')
	if _, err := w.Write([]byte(event.String())); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}
