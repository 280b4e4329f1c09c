package main

import (
	"io/fs"
	"net/http"

	htmxmiddleware "github.com/donseba/go-htmx/middleware"
	"github.com/justinas/alice"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/ui"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	static, err := fs.Sub(ui.Files, "static")
	if err != nil {
		// The static directory is embedded at compile time.
		panic(errors.Wrap(err, "static files"))
	}
	mux.Handle("GET /static/", cacheForeverHeaders(http.StripPrefix("/static", http.FileServerFS(static))))
	mux.HandleFunc("GET /api/healthy", app.healthy)

	// Event streams only load the session, so they follow the visitor id an earlier page load saved.
	stream := alice.New(app.serverSentEventMiddleware, app.knownVisitor)
	mux.Handle("GET /playground/stream", stream.ThenFunc(app.playgroundStream))

	session := alice.New(app.sessionManager.LoadAndSave, app.visitor, app.timeout)
	mutating := session.Append(app.rateLimit)

	mux.Handle("GET /{$}", session.ThenFunc(app.home))
	mux.Handle("GET /playground/state", session.ThenFunc(app.playgroundState))
	mux.Handle("POST /playground/start", mutating.ThenFunc(app.playgroundStart))
	mux.Handle("POST /playground/answer", mutating.ThenFunc(app.playgroundAnswer))
	mux.Handle("POST /playground/restart", mutating.ThenFunc(app.playgroundRestart))
	mux.Handle("/", session.ThenFunc(app.notFound))

	common := alice.New(app.recoverPanic, app.logRequest, app.secureHeaders, noSurf, htmxmiddleware.MiddleWare,
		commonContext)
	return common.Then(mux)
}
