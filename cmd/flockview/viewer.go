package main

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/model"
)

const (
	frameInterval = 33 * time.Millisecond
	statusLines   = 1
	// Markers shrink over this many ticks.
	markerFadeTicks = 48
)

var (
	styleIdle       = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleMoving     = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleSettling   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleArrived    = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	styleStationary = tcell.StyleDefault.Foreground(tcell.ColorPurple)
	styleMarker     = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleDrag       = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleStatus     = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
)

// viewer renders a backend's snapshots and turns mouse and key input into
// selections and move commands.
type viewer struct {
	screen  tcell.Screen
	backend backend
	view    viewport

	snap     state.Snapshot
	selected map[string]bool

	dragging   bool
	dragX      int
	dragY      int
	dragEndX   int
	dragEndY   int
	fitted     bool
	status     string
	statusTime time.Time
}

func newViewer(screen tcell.Screen, b backend) *viewer {
	v := &viewer{
		screen:   screen,
		backend:  b,
		selected: make(map[string]bool),
	}
	w, h := screen.Size()
	v.view.resize(w, h-statusLines)
	return v
}

// run polls input and redraws until the user quits or ctx ends.
func (v *viewer) run(ctx context.Context) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !v.handleEvent(ctx, ev) {
				return
			}
		case <-ticker.C:
			v.refresh(ctx)
			v.draw()
		}
	}
}

func (v *viewer) refresh(ctx context.Context) {
	snap, err := v.backend.Snapshot(ctx)
	if err != nil {
		v.setStatus("snapshot failed: %v", err)
		return
	}
	v.snap = snap
	if !v.fitted {
		v.fitWorld()
	}
}

func (v *viewer) fitWorld() {
	b, ok := v.backend.Bounds()
	if !ok {
		positions := make([]model.Vec2, 0, len(v.snap.Agents))
		for _, a := range v.snap.Agents {
			positions = append(positions, model.XZ(a.Position))
		}
		b = extentOf(positions)
	}
	v.view.fit(b)
	v.fitted = true
}

// handleEvent applies one input event and reports whether the viewer should
// keep running.
func (v *viewer) handleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return v.handleKey(ev)
	case *tcell.EventMouse:
		v.handleMouse(ctx, ev)
	case *tcell.EventResize:
		w, h := v.screen.Size()
		v.view.resize(w, h-statusLines)
		v.screen.Sync()
	}
	return true
}

func (v *viewer) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlC:
		return false
	case tcell.KeyEscape:
		v.clearSelection()
	case tcell.KeyLeft:
		v.view.pan(-4, 0)
	case tcell.KeyRight:
		v.view.pan(4, 0)
	case tcell.KeyUp:
		v.view.pan(0, -2)
	case tcell.KeyDown:
		v.view.pan(0, 2)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'a':
			v.selectAll()
		case '+', '=':
			v.view.zoom(0.8)
		case '-':
			v.view.zoom(1.25)
		case 'f':
			v.fitWorld()
		}
	}
	return true
}

func (v *viewer) handleMouse(ctx context.Context, ev *tcell.EventMouse) {
	x, y := ev.Position()
	buttons := ev.Buttons()

	switch {
	case buttons&tcell.Button1 != 0:
		if !v.dragging {
			v.dragging = true
			v.dragX, v.dragY = x, y
		}
		v.dragEndX, v.dragEndY = x, y
	case v.dragging:
		v.dragging = false
		v.selectRect(v.dragX, v.dragY, x, y)
	case buttons&tcell.Button2 != 0:
		v.commandMove(ctx, x, y)
	}
}

func (v *viewer) selectAll() {
	v.clearSelection()
	for _, a := range v.snap.Agents {
		if !a.Stationary {
			v.selected[a.ID] = true
		}
	}
	v.setStatus("selected %d agents", len(v.selected))
}

func (v *viewer) clearSelection() {
	for id := range v.selected {
		delete(v.selected, id)
	}
}

// selectRect replaces the selection with the agents drawn inside the
// rectangle spanned by two cells. A single-cell rectangle picks the agents
// whose selection radius covers the clicked point.
func (v *viewer) selectRect(x0, y0, x1, y1 int) {
	v.clearSelection()
	if x0 == x1 && y0 == y1 {
		p := v.view.toWorld(x0, y0)
		slack := v.view.scale
		for _, a := range v.snap.Agents {
			if model.Distance(model.XZ(a.Position), p) <= a.SelectionRadius+slack {
				v.selected[a.ID] = true
			}
		}
	} else {
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		if y1 < y0 {
			y0, y1 = y1, y0
		}
		for _, a := range v.snap.Agents {
			cx, cy := v.view.toCell(model.XZ(a.Position))
			if cx >= x0 && cx <= x1 && cy >= y0 && cy <= y1 {
				v.selected[a.ID] = true
			}
		}
	}
	v.setStatus("selected %d agents", len(v.selected))
}

func (v *viewer) selection() []string {
	ids := make([]string, 0, len(v.selected))
	for id := range v.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// commandMove sends the selection to the ground point under cell (x, y).
func (v *viewer) commandMove(ctx context.Context, x, y int) {
	ids := v.selection()
	if len(ids) == 0 {
		v.setStatus("nothing selected")
		return
	}
	ground := v.view.toWorld(x, y)
	target := model.OnGround(ground, v.backend.HeightAt(ground))

	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := v.backend.IssueMove(cmdCtx, ids, target)
	if err != nil {
		v.setStatus("move rejected: %v", err)
		return
	}
	v.setStatus("flock %d: %d moving to (%.1f, %.1f), %d skipped",
		res.FlockID, len(res.Admitted), target.X(), target.Z(), len(res.Skipped))
}

func (v *viewer) setStatus(format string, args ...any) {
	v.status = fmt.Sprintf(format, args...)
	v.statusTime = time.Now()
}

func (v *viewer) draw() {
	v.screen.Clear()

	for _, m := range v.snap.Markers {
		x, y := v.view.toCell(model.XZ(m.Position))
		if v.view.contains(x, y) {
			v.screen.SetContent(x, y, markerGlyph(v.snap.Tick-m.PlacedAt), nil, styleMarker)
		}
	}

	for _, a := range v.snap.Agents {
		x, y := v.view.toCell(model.XZ(a.Position))
		if !v.view.contains(x, y) {
			continue
		}
		style := agentStyle(a)
		if v.selected[a.ID] {
			style = style.Reverse(true)
		}
		v.screen.SetContent(x, y, agentGlyph(a), nil, style)
	}

	if v.dragging {
		v.drawRect(v.dragX, v.dragY, v.dragEndX, v.dragEndY)
	}
	v.drawStatus()
	v.screen.Show()
}

func (v *viewer) drawRect(x0, y0, x1, y1 int) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for x := x0; x <= x1; x++ {
		v.screen.SetContent(x, y0, '-', nil, styleDrag)
		v.screen.SetContent(x, y1, '-', nil, styleDrag)
	}
	for y := y0; y <= y1; y++ {
		v.screen.SetContent(x0, y, '|', nil, styleDrag)
		v.screen.SetContent(x1, y, '|', nil, styleDrag)
	}
}

func (v *viewer) drawStatus() {
	w, h := v.screen.Size()
	counts := v.snap.CountByState()
	line := fmt.Sprintf(" tick %d  flocks %d  moving %d  settling %d  arrived %d  selected %d ",
		v.snap.Tick, len(v.snap.Flocks),
		counts[core.StateMoving.String()], counts[core.StateSettling.String()], counts[core.StateArrived.String()],
		len(v.selected))
	if v.status != "" && time.Since(v.statusTime) < 4*time.Second {
		line += "| " + v.status + " "
	}
	runes := []rune(line)
	for x := 0; x < w; x++ {
		r := ' '
		if x < len(runes) {
			r = runes[x]
		}
		v.screen.SetContent(x, h-1, r, nil, styleStatus)
	}
}

func agentStyle(a state.AgentView) tcell.Style {
	switch {
	case a.Stationary:
		return styleStationary
	case a.State == core.StateMoving.String():
		return styleMoving
	case a.State == core.StateSettling.String():
		return styleSettling
	case a.State == core.StateArrived.String():
		return styleArrived
	default:
		return styleIdle
	}
}

// agentGlyph draws stationary agents as blocks, moving agents as an arrow
// along their velocity and everything else as a dot.
func agentGlyph(a state.AgentView) rune {
	if a.Stationary {
		return '#'
	}
	if a.Velocity.Len() < 1e-3 {
		return 'o'
	}
	// Screen rows grow with +Z.
	angle := math.Atan2(a.Velocity.Y(), a.Velocity.X())
	arrows := []rune{'→', '↘', '↓', '↙', '←', '↖', '↑', '↗'}
	idx := int(math.Round(angle/(math.Pi/4))) & 7
	return arrows[idx]
}

func markerGlyph(age uint64) rune {
	switch {
	case age < markerFadeTicks/3:
		return '@'
	case age < 2*markerFadeTicks/3:
		return '+'
	default:
		return '.'
	}
}
