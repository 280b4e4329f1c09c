package main

import (
	"net/http"

	"github.com/myrjola/mavis/internal/contexthelpers"
)

type homeTemplateData struct {
	BaseTemplateData

	Playground playgroundTemplateData
}

func (app *application) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := app.playground.Snapshot(ctx, contexthelpers.VisitorID(ctx))
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	data := homeTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Playground:       newPlaygroundTemplateData(snap),
	}

	app.render(w, r, http.StatusOK, "home", data)
}
