package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/mavis/internal/errors"
)

// requestAttrs locate a failed request in the logs. The visitor id comes along from the request context.
func requestAttrs(r *http.Request) []slog.Attr {
	return []slog.Attr{
		slog.String("method", r.Method),
		slog.String("uri", r.URL.RequestURI()),
	}
}

// serverError logs err and hides the details from the visitor.
func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	attrs := append(requestAttrs(r), errors.SlogError(err))
	app.logger.LogAttrs(r.Context(), slog.LevelError, "playground request failed", attrs...)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// clientError answers with status. Rejected playground forms log the submitted option to help spot stale pages.
func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int) {
	attrs := requestAttrs(r)
	if r.PostForm.Has("option") {
		attrs = append(attrs, slog.String("option", r.PostForm.Get("option")))
	}
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status), attrs...)
	http.Error(w, http.StatusText(status), status)
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound)
}
