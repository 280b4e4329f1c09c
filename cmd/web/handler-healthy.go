package main

import (
	"net/http"

	"github.com/myrjola/mavis/internal/errors"
)

// healthy responds with a JSON object indicating that the server is healthy. The session database has to answer.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	if _, err := app.db.CountSessions(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "health check"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
