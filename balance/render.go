package balance

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Frame is the state handed to a Renderer after every tick.
type Frame struct {
	Generation int
	Tick       int
	Alive      int
	TrackWidth float64
	Agents     []AgentView
}

// Renderer draws simulation frames. Implementations own their drawing context; the
// controller only passes frames to it.
type Renderer interface {
	Render(frame Frame) error
}

// TextRenderer writes a one-line ASCII view of the highlighted agent every Every ticks.
type TextRenderer struct {
	W       io.Writer
	Every   int // Ticks between lines, values below 1 render every tick
	Columns int // Track width in characters, defaults to 60
}

func (r *TextRenderer) Render(frame Frame) error {
	every := max(r.Every, 1)
	if frame.Tick%every != 0 {
		return nil
	}
	cols := r.Columns
	if cols <= 0 {
		cols = 60
	}

	var hl *AgentView
	for i := range frame.Agents {
		if frame.Agents[i].Highlighted {
			hl = &frame.Agents[i]
			break
		}
	}
	if hl == nil {
		_, err := fmt.Fprintf(r.W, "gen %d tick %d alive %d/%d\n", frame.Generation, frame.Tick, frame.Alive, len(frame.Agents))
		return err
	}

	track := []byte(strings.Repeat(".", cols))
	column := func(x float64) int {
		c := int(math.Round((x/frame.TrackWidth + 0.5) * float64(cols-1)))
		return max(0, min(cols-1, c))
	}
	base := hl.Points[0]
	tip := hl.Points[len(hl.Points)-1]
	track[column(tip.X)] = '^'
	track[column(base.X)] = '#'
	tilt := math.Atan2(tip.X-base.X, base.Y-tip.Y)

	_, err := fmt.Fprintf(r.W, "gen %d tick %d alive %d/%d |%s| tilt %+.3f score %.1f\n",
		frame.Generation, frame.Tick, frame.Alive, len(frame.Agents), track, tilt, hl.Score)
	return err
}
