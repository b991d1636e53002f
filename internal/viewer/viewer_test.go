package viewer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxelstack/meshview/internal/camera"
	"github.com/voxelstack/meshview/internal/interaction"
	"github.com/voxelstack/meshview/internal/loader"
	"github.com/voxelstack/meshview/internal/scene"
)

func newTestModel(name string) *scene.Node {
	n := scene.NewNode(name)
	n.Mesh = &scene.Mesh{
		Material: scene.NeutralMaterial(),
		Vertices: []scene.Vertex{
			{Position: mgl32.Vec3{0, 0, 0}},
			{Position: mgl32.Vec3{2, 0, 0}},
			{Position: mgl32.Vec3{0, 2, 0}},
			{Position: mgl32.Vec3{0, 0, 2}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
	return n
}

// blockingLoader resolves loads on demand, keyed by URL.
type blockingLoader struct {
	gates map[string]chan struct{}
	nodes map[string]*scene.Node
	errs  map[string]error
}

func newBlockingLoader() *blockingLoader {
	return &blockingLoader{
		gates: make(map[string]chan struct{}),
		nodes: make(map[string]*scene.Node),
		errs:  make(map[string]error),
	}
}

func (b *blockingLoader) add(url string, node *scene.Node, err error) chan struct{} {
	gate := make(chan struct{})
	b.gates[url] = gate
	b.nodes[url] = node
	b.errs[url] = err
	return gate
}

func (b *blockingLoader) load(_ context.Context, url string, _ loader.Format, _ loader.ProgressFunc) (*scene.Node, error) {
	if gate, ok := b.gates[url]; ok {
		<-gate
	}
	return b.nodes[url], b.errs[url]
}

// drain pumps Update until the viewer leaves the loading state.
func drain(t *testing.T, v *Viewer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v.Update()
		if v.State() != StateLoading {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("viewer stuck in loading state")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoad_Success(t *testing.T) {
	v := New()
	bl := newBlockingLoader()
	model := newTestModel("a")
	gate := bl.add("http://host/a.stl", model, nil)
	v.SetLoadFunc(bl.load)

	v.SetInteractionMode(interaction.ModeMove)

	if err := v.Load("http://host/a.stl"); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if v.State() != StateLoading {
		t.Fatalf("expected loading state, got %v", v.State())
	}

	close(gate)
	drain(t, v)

	if v.State() != StateReady {
		t.Fatalf("expected ready, got %v (%s)", v.State(), v.ErrorMessage())
	}
	if v.Progress() != 100 {
		t.Errorf("expected progress 100, got %d", v.Progress())
	}
	if v.Graph().Model() != model {
		t.Error("expected model attached to scene")
	}

	// The recorded interaction mode binds the gizmo at attach time.
	if !v.Interaction().GizmoVisible() {
		t.Error("expected gizmo bound to freshly attached model")
	}

	// Normalization ran: the model rests on the ground at target size.
	box, ok := model.Bounds()
	if !ok {
		t.Fatal("attached model has no bounds")
	}
	if d := box.MaxDim(); d < scene.TargetSize-0.001 || d > scene.TargetSize+0.001 {
		t.Errorf("expected normalized max extent %v, got %v", scene.TargetSize, d)
	}
}

func TestLoad_Supersession(t *testing.T) {
	for _, firstResolves := range []string{"a-first", "b-first"} {
		t.Run(firstResolves, func(t *testing.T) {
			v := New()
			bl := newBlockingLoader()
			modelA := newTestModel("a")
			modelB := newTestModel("b")
			gateA := bl.add("http://host/a.stl", modelA, nil)
			gateB := bl.add("http://host/b.stl", modelB, nil)
			v.SetLoadFunc(bl.load)

			v.Load("http://host/a.stl")
			v.Load("http://host/b.stl")

			if firstResolves == "a-first" {
				close(gateA)
				close(gateB)
			} else {
				close(gateB)
				close(gateA)
			}

			// Give both goroutines time to deliver, then apply.
			time.Sleep(50 * time.Millisecond)
			drain(t, v)

			if v.Graph().Model() != modelB {
				t.Error("expected only the later request's model in the scene")
			}
			if v.State() != StateReady {
				t.Errorf("expected ready, got %v", v.State())
			}
			if v.ErrorMessage() != "" {
				t.Errorf("superseded request must not surface a message, got %q", v.ErrorMessage())
			}
		})
	}
}

func TestLoad_SupersededFailureIsSilent(t *testing.T) {
	v := New()
	bl := newBlockingLoader()
	modelB := newTestModel("b")
	gateA := bl.add("http://host/a.stl", nil, errors.New("connection reset"))
	gateB := bl.add("http://host/b.stl", modelB, nil)
	v.SetLoadFunc(bl.load)

	v.Load("http://host/a.stl")
	v.Load("http://host/b.stl")

	close(gateA)
	close(gateB)
	time.Sleep(50 * time.Millisecond)
	drain(t, v)

	if v.State() != StateReady {
		t.Errorf("expected ready, got %v", v.State())
	}
	if v.ErrorMessage() != "" {
		t.Errorf("stale failure surfaced: %q", v.ErrorMessage())
	}
	if v.Graph().Model() != modelB {
		t.Error("expected model b attached")
	}
}

func TestLoad_UnsupportedFormatKeepsModel(t *testing.T) {
	v := New()
	bl := newBlockingLoader()
	modelA := newTestModel("a")
	gate := bl.add("http://host/a.stl", modelA, nil)
	v.SetLoadFunc(bl.load)

	v.Load("http://host/a.stl")
	close(gate)
	drain(t, v)

	err := v.Load("http://host/mesh.obj")
	if !errors.Is(err, loader.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	if v.State() != StateError {
		t.Errorf("expected error state, got %v", v.State())
	}
	if v.Progress() != 100 {
		t.Errorf("expected progress forced to 100, got %d", v.Progress())
	}
	if !strings.Contains(v.ErrorMessage(), "unsupported") {
		t.Errorf("expected unsupported-format message, got %q", v.ErrorMessage())
	}
	if v.Graph().Model() != modelA {
		t.Error("failed load must leave the previous model in place")
	}
}

func TestLoad_FetchFailureKeepsModel(t *testing.T) {
	v := New()
	bl := newBlockingLoader()
	modelA := newTestModel("a")
	gateA := bl.add("http://host/a.stl", modelA, nil)
	gateB := bl.add("http://host/b.stl", nil, errors.New("dial tcp: connection refused"))
	v.SetLoadFunc(bl.load)

	v.Load("http://host/a.stl")
	close(gateA)
	drain(t, v)

	v.Load("http://host/b.stl")
	close(gateB)
	drain(t, v)

	if v.State() != StateError {
		t.Errorf("expected error state, got %v", v.State())
	}
	if v.Graph().Model() != modelA {
		t.Error("failed reload must not clear the visible model")
	}
	if v.ErrorMessage() == "" {
		t.Error("expected a human-readable error message")
	}
}

func TestLoad_DegenerateGeometry(t *testing.T) {
	v := New()
	bl := newBlockingLoader()
	gate := bl.add("http://host/flat.stl", scene.NewNode("empty"), nil)
	v.SetLoadFunc(bl.load)

	v.Load("http://host/flat.stl")
	close(gate)
	drain(t, v)

	if v.State() != StateError {
		t.Fatalf("expected error state, got %v", v.State())
	}
	if v.Graph().Model() != nil {
		t.Error("degenerate model must not be attached")
	}
	if !strings.Contains(v.ErrorMessage(), "spatial extent") {
		t.Errorf("expected degenerate-geometry message, got %q", v.ErrorMessage())
	}
}

func TestClear(t *testing.T) {
	v := New()
	bl := newBlockingLoader()
	gate := bl.add("http://host/a.stl", newTestModel("a"), nil)
	v.SetLoadFunc(bl.load)

	v.Load("http://host/a.stl")
	close(gate)
	drain(t, v)

	v.Clear()
	if v.Graph().Model() != nil {
		t.Error("expected no model after clear")
	}
	if v.State() != StateIdle {
		t.Errorf("expected idle, got %v", v.State())
	}
	if v.Interaction().Target() != nil {
		t.Error("gizmo binding must be released on clear")
	}
}

func TestStatus_ReflectsCommands(t *testing.T) {
	v := New()

	var got []Status
	v.OnChange(func(s Status) { got = append(got, s) })

	v.SetView(camera.ViewTop)
	v.SetInteractionMode(interaction.ModeRotate)
	v.SetHelperVisible(scene.HelperGrid, false)
	v.ToggleProjection()

	s := v.Status()
	if s.View != "top" {
		t.Errorf("expected view top, got %q", s.View)
	}
	if s.Mode != "rotate" {
		t.Errorf("expected mode rotate, got %q", s.Mode)
	}
	if s.Helpers[scene.HelperGrid] {
		t.Error("expected grid hidden")
	}
	if s.Projection != "orthographic" {
		t.Errorf("expected orthographic, got %q", s.Projection)
	}

	// Initial snapshot plus one per command.
	if len(got) != 5 {
		t.Errorf("expected 5 notifications, got %d", len(got))
	}
}

func TestResize_DoesNotTouchCamera(t *testing.T) {
	v := New()
	v.SetView(camera.ViewFront)
	pos := v.Camera().Position()

	v.Resize(1920, 1080)
	if v.Camera().Position() != pos {
		t.Error("resize moved the camera")
	}
	if v.Camera().View() != camera.ViewFront {
		t.Error("resize changed the view state")
	}
	if v.Aspect() != float32(1920)/float32(1080) {
		t.Errorf("unexpected aspect %v", v.Aspect())
	}

	// Degenerate sizes are ignored.
	v.Resize(0, -5)
	w, h := v.Size()
	if w != 1920 || h != 1080 {
		t.Errorf("degenerate resize applied: %dx%d", w, h)
	}
}
