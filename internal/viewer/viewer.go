// Package viewer wires the scene, camera, interaction and loader together
// and owns the per-instance load state machine. All scene mutation happens
// on the render thread: loads run in the background and deliver their
// results through a completion queue drained once per frame, and only the
// most recently issued request may touch the scene.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/voxelstack/meshview/internal/camera"
	"github.com/voxelstack/meshview/internal/interaction"
	"github.com/voxelstack/meshview/internal/loader"
	"github.com/voxelstack/meshview/internal/logger"
	"github.com/voxelstack/meshview/internal/scene"
)

// State is the load orchestrator state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

// String returns the state tag a host UI binds to.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "idle"
}

// Status is the observable viewer state a host UI binds to.
type Status struct {
	State      string          `json:"state"`
	Progress   int             `json:"progress"`
	Error      string          `json:"error,omitempty"`
	View       string          `json:"view"`
	Projection string          `json:"projection"`
	Mode       string          `json:"mode"`
	Helpers    map[string]bool `json:"helpers"`
}

// LoadFunc fetches and parses a model. Swappable in tests.
type LoadFunc func(ctx context.Context, url string, format loader.Format, onProgress loader.ProgressFunc) (*scene.Node, error)

// loadResult is a completed load waiting to be applied on the render thread.
type loadResult struct {
	token uint64
	node  *scene.Node
	err   error
}

// Viewer is one viewer instance.
type Viewer struct {
	graph *scene.Graph
	cam   *camera.Camera
	modes *interaction.Controller

	loadFn LoadFunc
	ctx    context.Context

	results chan loadResult

	// mu guards the load status fields; the fetch goroutine writes
	// progress while the render thread reads it.
	mu       sync.Mutex
	token    uint64
	state    State
	progress int
	errMsg   string

	onChange func(Status)
	lastSent Status

	width, height int
}

// New creates a viewer with an empty scene, the camera in its home pose
// and no interaction mode.
func New() *Viewer {
	v := &Viewer{
		graph:   scene.New(),
		cam:     camera.New(),
		modes:   interaction.New(),
		ctx:     context.Background(),
		results: make(chan loadResult, 4),
		width:   1280,
		height:  720,
	}
	v.loadFn = loader.New().Load

	// The gizmo must let go of a model before the graph drops it.
	v.graph.SetReleaseFunc(v.modes.Release)
	return v
}

// SetLoadFunc replaces the model loading function.
func (v *Viewer) SetLoadFunc(fn LoadFunc) { v.loadFn = fn }

// Graph returns the scene graph.
func (v *Viewer) Graph() *scene.Graph { return v.graph }

// Camera returns the camera.
func (v *Viewer) Camera() *camera.Camera { return v.cam }

// Interaction returns the interaction mode controller.
func (v *Viewer) Interaction() *interaction.Controller { return v.modes }

// OnChange registers a callback invoked from the render thread whenever
// the observable status changes.
func (v *Viewer) OnChange(fn func(Status)) {
	v.onChange = fn
	v.lastSent = v.Status()
	if fn != nil {
		fn(v.lastSent)
	}
}

// Load issues a new load request. Any in-flight request is superseded: its
// eventual result will be discarded without touching the scene.
func (v *Viewer) Load(url string) error {
	v.mu.Lock()
	v.token++
	tok := v.token
	v.progress = 0
	v.errMsg = ""
	v.mu.Unlock()

	format, err := loader.DetectFormat(url)
	if err != nil {
		// No fetch for unknown extensions; terminal for this request.
		v.finishError(tok, err)
		v.notify()
		return err
	}

	v.mu.Lock()
	v.state = StateLoading
	v.mu.Unlock()
	v.notify()

	logger.Info("loading model", zap.String("url", url), zap.String("format", string(format)))

	go func() {
		node, err := v.loadFn(v.ctx, url, format, func(pct int) {
			v.reportProgress(tok, pct)
		})
		v.results <- loadResult{token: tok, node: node, err: err}
	}()

	return nil
}

// Clear detaches the current model and returns to idle.
func (v *Viewer) Clear() {
	v.graph.DetachModel()

	v.mu.Lock()
	v.token++ // supersede any in-flight load
	v.state = StateIdle
	v.progress = 0
	v.errMsg = ""
	v.mu.Unlock()
	v.notify()
}

// Update drains completed loads and applies the latest request's result.
// Must be called once per frame from the render thread.
func (v *Viewer) Update() {
	for {
		select {
		case r := <-v.results:
			v.apply(r)
		default:
			v.notify()
			return
		}
	}
}

func (v *Viewer) apply(r loadResult) {
	v.mu.Lock()
	stale := r.token != v.token
	v.mu.Unlock()

	if stale {
		// Superseded: not an error, no message, no scene mutation.
		logger.Debug("discarding superseded load result", zap.Uint64("token", r.token))
		return
	}

	if r.err != nil {
		v.finishError(r.token, r.err)
		return
	}

	norm, err := scene.Normalize(r.node)
	if err != nil {
		v.finishError(r.token, err)
		return
	}

	verts, tris := countGeometry(r.node)
	v.graph.AttachModel(r.node)
	v.modes.Bind(r.node)

	v.mu.Lock()
	v.state = StateReady
	v.progress = 100
	v.mu.Unlock()

	logger.Info("model ready",
		zap.Int("vertices", verts),
		zap.Int("triangles", tris),
		zap.Float32("scale", norm.Scale),
	)
}

// finishError marks the given request as terminally failed. The previously
// displayed model, if any, stays in place.
func (v *Viewer) finishError(tok uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if tok != v.token {
		return
	}
	v.state = StateError
	v.progress = 100
	v.errMsg = humanize(err)
	logger.Warn("load failed", zap.Error(err))
}

// reportProgress records progress for a request if it is still the latest.
// Progress never decreases within a request.
func (v *Viewer) reportProgress(tok uint64, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	v.mu.Lock()
	if tok == v.token && pct > v.progress {
		v.progress = pct
	}
	v.mu.Unlock()
}

// humanize maps loader and normalizer errors to messages fit for a UI.
func humanize(err error) string {
	switch {
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return fmt.Sprintf("unsupported model format: %v", err)
	case errors.Is(err, scene.ErrDegenerateGeometry):
		return "model could not be displayed: geometry has no spatial extent"
	default:
		return fmt.Sprintf("model could not be loaded: %v", err)
	}
}

// countGeometry tallies vertices and triangles across a subtree.
func countGeometry(n *scene.Node) (verts, tris int) {
	var visit func(*scene.Node)
	visit = func(node *scene.Node) {
		if node.Mesh != nil {
			verts += len(node.Mesh.Vertices)
			tris += len(node.Mesh.Indices) / 3
		}
		for _, c := range node.Children {
			visit(c)
		}
	}
	visit(n)
	return verts, tris
}

// State returns the orchestrator state.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Progress returns the current load progress, 0..100.
func (v *Viewer) Progress() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.progress
}

// ErrorMessage returns the current error message, if any.
func (v *Viewer) ErrorMessage() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// Status snapshots the observable state.
func (v *Viewer) Status() Status {
	v.mu.Lock()
	state, progress, errMsg := v.state, v.progress, v.errMsg
	v.mu.Unlock()

	return Status{
		State:      state.String(),
		Progress:   progress,
		Error:      errMsg,
		View:       v.cam.View().String(),
		Projection: v.cam.Projection().String(),
		Mode:       v.modes.Mode().String(),
		Helpers:    v.graph.HelperVisibility(),
	}
}

// notify pushes the status to the change callback when it differs from the
// last pushed snapshot. Called on the render thread only.
func (v *Viewer) notify() {
	if v.onChange == nil {
		return
	}
	s := v.Status()
	if statusEqual(s, v.lastSent) {
		return
	}
	v.lastSent = s
	v.onChange(s)
}

func statusEqual(a, b Status) bool {
	if a.State != b.State || a.Progress != b.Progress || a.Error != b.Error ||
		a.View != b.View || a.Projection != b.Projection || a.Mode != b.Mode {
		return false
	}
	if len(a.Helpers) != len(b.Helpers) {
		return false
	}
	for k, v := range a.Helpers {
		if b.Helpers[k] != v {
			return false
		}
	}
	return true
}

// ResetView returns the camera to the home pose.
func (v *Viewer) ResetView() {
	v.cam.Reset()
	v.notify()
}

// SetView snaps the camera to a canonical view.
func (v *Viewer) SetView(view camera.View) {
	v.cam.SetView(view)
	v.notify()
}

// ToggleProjection switches between perspective and orthographic.
func (v *Viewer) ToggleProjection() {
	v.cam.ToggleProjection()
	v.notify()
}

// SetInteractionMode selects the active manipulation mode.
func (v *Viewer) SetInteractionMode(m interaction.Mode) {
	v.modes.SetMode(m)
	v.notify()
}

// SetHelperVisible toggles a named helper.
func (v *Viewer) SetHelperVisible(name string, visible bool) {
	v.graph.SetHelperVisible(name, visible)
	v.notify()
}

// Resize records the new surface size. Camera pose and view state are
// untouched; only the aspect ratio derived from the size changes.
func (v *Viewer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.width, v.height = width, height
}

// Size returns the current surface size.
func (v *Viewer) Size() (int, int) { return v.width, v.height }

// Aspect returns the current aspect ratio.
func (v *Viewer) Aspect() float32 {
	return float32(v.width) / float32(v.height)
}
