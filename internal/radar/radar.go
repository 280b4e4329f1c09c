// Package radar computes the geometry of the score radar chart and the agent workspace. Sinks only draw the
// points, e.g. as inline SVG.
package radar

import (
	"fmt"
	"math"
	"strings"

	"github.com/myrjola/mavis/internal/agents"
	"github.com/myrjola/mavis/internal/scores"
)

const (
	// Rings is the number of concentric grid polygons.
	Rings = 4
	// startAngle puts the first axis straight up.
	startAngle = -math.Pi / 2
	margin     = 24
	labelGap   = 16
)

type Point struct {
	X float64
	Y float64
}

// Axis is one dimension of the chart.
type Axis struct {
	Name  string
	Value int
	// Delta is Value minus the previous value.
	Delta int
	End   Point
	Label Point
	Dot   Point
}

// Chart is a radar chart for one set of scores, with the previous set as a ghost shape.
type Chart struct {
	Width    float64
	Height   float64
	Center   Point
	Radius   float64
	Axes     []Axis
	Grid     [][]Point
	Current  []Point
	Previous []Point
}

// NewChart lays out current on a width×height canvas. previous must list the same dimensions in the same order
// or be empty.
func NewChart(width, height float64, current, previous []scores.Score) Chart {
	c := Chart{
		Width:    width,
		Height:   height,
		Center:   Point{X: width / 2, Y: height / 2},
		Radius:   math.Max(math.Min(width, height)/2-margin, 0),
		Axes:     make([]Axis, len(current)),
		Grid:     make([][]Point, Rings),
		Current:  make([]Point, len(current)),
		Previous: nil,
	}
	n := len(current)
	if n == 0 {
		return c
	}
	for ring := 1; ring <= Rings; ring++ {
		points := make([]Point, n)
		for i := range n {
			points[i] = c.at(i, n, c.Radius*float64(ring)/Rings)
		}
		c.Grid[ring-1] = points
	}
	comparable := len(previous) == n
	if comparable {
		c.Previous = make([]Point, n)
	}
	for i, s := range current {
		dot := c.at(i, n, c.scaled(s.Value))
		c.Current[i] = dot
		axis := Axis{
			Name:  s.Name,
			Value: s.Value,
			Delta: 0,
			End:   c.at(i, n, c.Radius),
			Label: c.at(i, n, c.Radius+labelGap),
			Dot:   dot,
		}
		if comparable {
			c.Previous[i] = c.at(i, n, c.scaled(previous[i].Value))
			axis.Delta = s.Value - previous[i].Value
		}
		c.Axes[i] = axis
	}
	return c
}

// scaled maps a score onto the radius. Values are clamped to [0, 100] for drawing.
func (c Chart) scaled(v int) float64 {
	return float64(min(max(v, 0), scores.Max)) / scores.Max * c.Radius
}

func (c Chart) at(i, n int, r float64) Point {
	a := startAngle + float64(i)*2*math.Pi/float64(n)
	return Point{X: c.Center.X + math.Cos(a)*r, Y: c.Center.Y + math.Sin(a)*r}
}

// Points formats points for the SVG points attribute.
func Points(points []Point) string {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.1f,%.1f", p.X, p.Y)
	}
	return b.String()
}

// Node is an introduced agent placed in the workspace.
type Node struct {
	Agent  agents.Agent
	At     Point
	Active bool
}

// Link connects two workspace points. Active links belong to the negotiation that is playing.
type Link struct {
	From   Point
	To     Point
	Color  string
	Active bool
}

// Workspace is the virtual meeting room: a table in the middle, the user below it, and the introduced agents
// around it.
type Workspace struct {
	Width  float64
	Height float64
	Center Point
	User   Point
	// Table is the top-left corner of the table rectangle.
	Table       Point
	TableWidth  float64
	TableHeight float64
	Nodes       []Node
	Links       []Link
}

// Negotiation names the agents of the active negotiation.
type Negotiation struct {
	From string
	To   string
}

// NewWorkspace scales the normalized agent positions onto a width×height canvas. Agents that have not been
// introduced are left out. negotiation may be nil.
func NewWorkspace(width, height float64, roster []agents.Agent, currentID string, negotiation *Negotiation) Workspace {
	w := Workspace{
		Width:       width,
		Height:      height,
		Center:      Point{X: width / 2, Y: height / 2},
		User:        Point{X: width / 2, Y: height * 0.88},
		Table:       Point{X: width/2 - width*0.17, Y: height/2 - height*0.11},
		TableWidth:  width * 0.34,
		TableHeight: height * 0.22,
		Nodes:       nil,
		Links:       nil,
	}
	positions := map[string]Node{}
	for _, a := range roster {
		if !a.Introduced {
			continue
		}
		node := Node{Agent: a, At: Point{X: a.X * width, Y: a.Y * height}, Active: a.ID == currentID}
		positions[a.ID] = node
		w.Nodes = append(w.Nodes, node)
		w.Links = append(w.Links, Link{From: node.At, To: w.Center, Color: a.Color, Active: false})
	}
	if negotiation != nil {
		from, okFrom := positions[negotiation.From]
		to, okTo := positions[negotiation.To]
		if okFrom && okTo {
			w.Links = append(w.Links, Link{From: from.At, To: to.At, Color: from.Agent.Color, Active: true})
		}
	}
	return w
}
