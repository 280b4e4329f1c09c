package main

import (
	"net/http"

	"github.com/myrjola/mavis/internal/contexthelpers"
	"github.com/myrjola/mavis/internal/radar"
	"github.com/myrjola/mavis/internal/timeline"
)

const (
	workspaceWidth  = 640
	workspaceHeight = 360
	chartSize       = 320
)

type BaseTemplateData struct {
	CSRFToken   string
	CurrentPath string
}

func newBaseTemplateData(r *http.Request) BaseTemplateData {
	ctx := r.Context()
	return BaseTemplateData{
		CSRFToken:   contexthelpers.CSRFToken(ctx),
		CurrentPath: contexthelpers.CurrentPath(ctx),
	}
}

// playgroundTemplateData is everything the playground partial draws.
type playgroundTemplateData struct {
	Snapshot  timeline.Snapshot
	Chart     radar.Chart
	Workspace radar.Workspace
}

func newPlaygroundTemplateData(snap timeline.Snapshot) playgroundTemplateData {
	var negotiation *radar.Negotiation
	if snap.Negotiation != nil {
		negotiation = &radar.Negotiation{From: snap.Negotiation.From, To: snap.Negotiation.To}
	}
	return playgroundTemplateData{
		Snapshot:  snap,
		Chart:     radar.NewChart(chartSize, chartSize, snap.Scores, snap.PreviousScores),
		Workspace: radar.NewWorkspace(workspaceWidth, workspaceHeight, snap.Agents, snap.CurrentAgentID, negotiation),
	}
}
