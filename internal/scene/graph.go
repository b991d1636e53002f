package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Helper names accepted by SetHelperVisible.
const (
	HelperGrid = "grid"
	HelperAxes = "axes"
)

// Light is a directional light. Lights are part of the persistent scene
// and are never attached or detached with the model.
type Light struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

// Graph owns the scene contents. It holds at most one model node at a time;
// helpers and lights are created once and live for the graph's lifetime.
type Graph struct {
	root    *Node
	model   *Node
	helpers map[string]*Node
	lights  []Light

	// release is invoked with the outgoing model before it is dropped,
	// so controllers holding a reference (the gizmo) can let go first.
	release func(*Node)
}

// New creates a scene graph with grid and axes helpers and default lighting.
func New() *Graph {
	g := &Graph{
		root:    NewNode("root"),
		helpers: make(map[string]*Node),
		lights: []Light{
			{Direction: mgl32.Vec3{0.5, 1, 0.6}.Normalize(), Color: mgl32.Vec3{1, 1, 1}, Intensity: 0.9},
			{Direction: mgl32.Vec3{-0.4, 0.6, -0.8}.Normalize(), Color: mgl32.Vec3{1, 1, 1}, Intensity: 0.4},
		},
	}

	grid := newGridHelper(10, 1)
	axes := newAxesHelper(6)
	g.helpers[HelperGrid] = grid
	g.helpers[HelperAxes] = axes
	g.root.Add(grid)
	g.root.Add(axes)

	return g
}

// Root returns the root node for rendering.
func (g *Graph) Root() *Node {
	return g.root
}

// Lights returns the scene lights.
func (g *Graph) Lights() []Light {
	return g.lights
}

// Model returns the currently attached model node, or nil.
func (g *Graph) Model() *Node {
	return g.model
}

// SetReleaseFunc registers a hook called with the outgoing model node
// before it is removed from the graph.
func (g *Graph) SetReleaseFunc(fn func(*Node)) {
	g.release = fn
}

// AttachModel makes node the current model. Any prior model is fully
// detached and released before the new one is added.
func (g *Graph) AttachModel(node *Node) {
	g.DetachModel()
	g.model = node
	g.root.Add(node)
}

// DetachModel removes the current model from the graph, releasing it from
// any controller that still points at it. No-op when no model is attached.
func (g *Graph) DetachModel() {
	if g.model == nil {
		return
	}
	if g.release != nil {
		g.release(g.model)
	}
	for i, c := range g.root.Children {
		if c == g.model {
			g.root.Children = append(g.root.Children[:i], g.root.Children[i+1:]...)
			break
		}
	}
	g.model = nil
}

// SetHelperVisible toggles a helper by name. Unknown names are ignored.
func (g *Graph) SetHelperVisible(name string, visible bool) {
	if h, ok := g.helpers[name]; ok {
		h.Visible = visible
	}
}

// HelperVisible reports a helper's visibility flag.
func (g *Graph) HelperVisible(name string) bool {
	h, ok := g.helpers[name]
	return ok && h.Visible
}

// HelperVisibility returns a snapshot of all helper flags.
func (g *Graph) HelperVisibility() map[string]bool {
	out := make(map[string]bool, len(g.helpers))
	for name, h := range g.helpers {
		out[name] = h.Visible
	}
	return out
}

// newGridHelper builds a line grid on the y=0 plane, halfSize cells out
// from the origin in each direction.
func newGridHelper(halfSize int, step float32) *Node {
	mesh := &Mesh{
		Lines:    true,
		Material: Material{Name: "grid", Color: mgl32.Vec4{0.42, 0.42, 0.42, 1}},
	}

	ext := float32(halfSize) * step
	for i := -halfSize; i <= halfSize; i++ {
		p := float32(i) * step
		mesh.Vertices = append(mesh.Vertices,
			Vertex{Position: mgl32.Vec3{p, 0, -ext}},
			Vertex{Position: mgl32.Vec3{p, 0, ext}},
			Vertex{Position: mgl32.Vec3{-ext, 0, p}},
			Vertex{Position: mgl32.Vec3{ext, 0, p}},
		)
	}
	for i := range mesh.Vertices {
		mesh.Indices = append(mesh.Indices, uint32(i))
	}

	n := NewNode("grid")
	n.Mesh = mesh
	return n
}

// newAxesHelper builds the coordinate axes as three colored line segments:
// X red, Y green, Z blue.
func newAxesHelper(length float32) *Node {
	n := NewNode("axes")

	axes := []struct {
		dir   mgl32.Vec3
		color mgl32.Vec4
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec4{0.9, 0.2, 0.2, 1}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec4{0.2, 0.9, 0.2, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec4{0.2, 0.2, 0.9, 1}},
	}

	for _, a := range axes {
		mesh := &Mesh{
			Lines:    true,
			Material: Material{Name: "axis", Color: a.color},
			Vertices: []Vertex{
				{Position: mgl32.Vec3{}},
				{Position: a.dir.Mul(length)},
			},
			Indices: []uint32{0, 1},
		}
		child := NewNode("axis")
		child.Mesh = mesh
		n.Add(child)
	}

	return n
}
