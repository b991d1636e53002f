package main

import (
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/voxelstack/meshview/internal/camera"
	"github.com/voxelstack/meshview/internal/config"
	"github.com/voxelstack/meshview/internal/engine/input"
	"github.com/voxelstack/meshview/internal/engine/renderer"
	"github.com/voxelstack/meshview/internal/engine/window"
	"github.com/voxelstack/meshview/internal/interaction"
	"github.com/voxelstack/meshview/internal/logger"
	"github.com/voxelstack/meshview/internal/scene"
	"github.com/voxelstack/meshview/internal/statefeed"
	"github.com/voxelstack/meshview/internal/viewer"
)

// App wires the window, renderer, input and viewer into the frame loop.
type App struct {
	cfg      *config.Config
	window   *window.Window
	renderer *renderer.Renderer
	viewer   *viewer.Viewer
	input    *input.Handler
	feed     *statefeed.Feed

	running bool
}

// NewApp creates the window and GL resources and applies the configured
// viewer defaults.
func NewApp(cfg *config.Config) (*App, error) {
	win, err := window.New(window.Config{
		Title:      "meshview",
		Width:      cfg.Window.Width,
		Height:     cfg.Window.Height,
		Fullscreen: cfg.Window.Fullscreen,
		VSync:      cfg.Window.VSync,
	})
	if err != nil {
		return nil, err
	}

	rend, err := renderer.New()
	if err != nil {
		win.Destroy()
		return nil, err
	}

	v := viewer.New()
	v.SetHelperVisible(scene.HelperGrid, cfg.Viewer.ShowGrid)
	v.SetHelperVisible(scene.HelperAxes, cfg.Viewer.ShowAxes)

	w, h := win.Size()
	v.Resize(w, h)
	rend.Resize(w, h)

	app := &App{
		cfg:      cfg,
		window:   win,
		renderer: rend,
		viewer:   v,
		input:    input.NewHandler(),
	}

	if cfg.Feed.Enabled {
		app.feed = statefeed.New()
		v.OnChange(app.feed.Publish)
		go func() {
			if err := app.feed.ListenAndServe(cfg.Feed.Listen); err != nil {
				logger.Error("state feed stopped", zap.Error(err))
			}
		}()
	}

	return app, nil
}

// Run enters the frame loop. initialURL, when non-empty, is loaded before
// the first frame.
func (a *App) Run(initialURL string) error {
	if initialURL != "" {
		if err := a.viewer.Load(initialURL); err != nil {
			logger.Warn("initial load rejected", zap.String("url", initialURL), zap.Error(err))
		}
	}

	a.running = true
	for a.running {
		for _, ev := range a.input.Poll() {
			a.handleEvent(ev)
		}
		a.drainFeed()

		a.viewer.Update()
		a.renderer.Draw(a.viewer.Graph(), a.viewer.Camera(), a.viewer.Aspect())
		a.window.Swap()
	}

	return nil
}

func (a *App) handleEvent(ev input.Event) {
	switch ev.Type {
	case input.EventQuit:
		a.running = false

	case input.EventResize:
		a.viewer.Resize(ev.Width, ev.Height)
		a.renderer.Resize(ev.Width, ev.Height)

	case input.EventKeyDown:
		a.handleKey(ev.Key)

	case input.EventMouseDown:
		if ev.Button == input.ButtonLeft && a.viewer.Interaction().GizmoVisible() {
			a.viewer.Interaction().BeginDrag()
		}

	case input.EventMouseUp:
		if ev.Button == input.ButtonLeft {
			a.viewer.Interaction().EndDrag()
		}

	case input.EventMouseMotion:
		a.handleMotion(ev)

	case input.EventMouseWheel:
		// Camera input stays suspended for the whole gizmo drag.
		if !a.viewer.Interaction().Dragging() {
			a.viewer.Camera().Zoom(float32(ev.DY))
		}
	}
}

// handleMotion routes drags: a gizmo drag manipulates the model and
// suspends camera input; otherwise left drags orbit and right drags pan.
func (a *App) handleMotion(ev input.Event) {
	if a.viewer.Interaction().Dragging() {
		a.viewer.Interaction().Drag(float32(ev.DX), float32(ev.DY))
		return
	}
	switch {
	case a.input.ButtonHeld(input.ButtonLeft):
		a.viewer.Camera().Orbit(float32(ev.DX), float32(ev.DY))
	case a.input.ButtonHeld(input.ButtonRight):
		a.viewer.Camera().Pan(float32(ev.DX), float32(ev.DY))
	}
}

func (a *App) handleKey(key sdl.Keycode) {
	switch key {
	case sdl.K_1:
		a.viewer.SetView(camera.ViewTop)
	case sdl.K_2:
		a.viewer.SetView(camera.ViewBottom)
	case sdl.K_3:
		a.viewer.SetView(camera.ViewFront)
	case sdl.K_4:
		a.viewer.SetView(camera.ViewBack)
	case sdl.K_5:
		a.viewer.SetView(camera.ViewLeft)
	case sdl.K_6:
		a.viewer.SetView(camera.ViewRight)
	case sdl.K_h:
		a.viewer.ResetView()
	case sdl.K_p:
		a.viewer.ToggleProjection()
	case sdl.K_m:
		a.viewer.SetInteractionMode(interaction.ModeMove)
	case sdl.K_r:
		a.viewer.SetInteractionMode(interaction.ModeRotate)
	case sdl.K_ESCAPE:
		a.viewer.SetInteractionMode(interaction.ModeNone)
	case sdl.K_g:
		a.toggleHelper(scene.HelperGrid)
	case sdl.K_a:
		a.toggleHelper(scene.HelperAxes)
	case sdl.K_DELETE, sdl.K_BACKSPACE:
		a.viewer.Clear()
	case sdl.K_q:
		a.running = false
	}
}

func (a *App) toggleHelper(name string) {
	a.viewer.SetHelperVisible(name, !a.viewer.Graph().HelperVisible(name))
}

// drainFeed executes pending commands from connected UIs on the render
// thread.
func (a *App) drainFeed() {
	if a.feed == nil {
		return
	}
	for {
		select {
		case cmd := <-a.feed.Commands():
			a.execCommand(cmd)
		default:
			return
		}
	}
}

func (a *App) execCommand(cmd statefeed.Command) {
	switch cmd.Cmd {
	case "load":
		if err := a.viewer.Load(cmd.URL); err != nil {
			logger.Warn("feed load rejected", zap.String("url", cmd.URL), zap.Error(err))
		}
	case "clear":
		a.viewer.Clear()
	case "reset_view":
		a.viewer.ResetView()
	case "set_view":
		if view, ok := viewByName(cmd.View); ok {
			a.viewer.SetView(view)
		}
	case "toggle_projection":
		a.viewer.ToggleProjection()
	case "set_mode":
		a.viewer.SetInteractionMode(modeByName(cmd.Mode))
	case "set_helper":
		a.viewer.SetHelperVisible(cmd.Helper, cmd.Visible)
	default:
		logger.Debug("unknown feed command", zap.String("cmd", cmd.Cmd))
	}
}

func viewByName(name string) (camera.View, bool) {
	switch name {
	case "top":
		return camera.ViewTop, true
	case "bottom":
		return camera.ViewBottom, true
	case "front":
		return camera.ViewFront, true
	case "back":
		return camera.ViewBack, true
	case "left":
		return camera.ViewLeft, true
	case "right":
		return camera.ViewRight, true
	}
	return camera.ViewHome, false
}

func modeByName(name string) interaction.Mode {
	switch name {
	case "move":
		return interaction.ModeMove
	case "rotate":
		return interaction.ModeRotate
	}
	return interaction.ModeNone
}

// Close tears down GL resources, the window and SDL. The frame loop has
// already stopped, so no callback can fire after teardown.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Destroy()
		a.renderer = nil
	}
	if a.window != nil {
		a.window.Destroy()
		a.window = nil
	}
}
