// Package interaction implements the mutually-exclusive model manipulation
// modes and the gizmo bound to the loaded model.
package interaction

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxelstack/meshview/internal/scene"
)

// Mode selects which manipulator, if any, is bound to the model.
type Mode int

const (
	ModeNone Mode = iota
	ModeMove
	ModeRotate
)

// String returns the mode tag a host UI binds to.
func (m Mode) String() string {
	switch m {
	case ModeMove:
		return "move"
	case ModeRotate:
		return "rotate"
	}
	return "none"
}

// Controller owns the interaction mode and the gizmo. Exactly one mode is
// active at a time by construction: the mode is a single field, so
// selecting one deselects any other.
type Controller struct {
	mode     Mode
	target   *scene.Node
	dragging bool
}

// New creates a controller with no mode and no bound model.
func New() *Controller {
	return &Controller{}
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode { return c.mode }

// Target returns the model node the gizmo is bound to, or nil.
func (c *Controller) Target() *scene.Node { return c.target }

// SetMode switches the active mode. The mode is recorded even with no
// model bound; the gizmo appears when one attaches.
func (c *Controller) SetMode(m Mode) {
	c.mode = m
	if m == ModeNone {
		c.dragging = false
	}
}

// Bind attaches the controller to a freshly loaded model. The gizmo for
// the current mode becomes visible on it immediately.
func (c *Controller) Bind(node *scene.Node) {
	c.target = node
	c.dragging = false
}

// Release drops the binding if it points at node. Called by the scene
// graph before a model is detached, so the gizmo never points at a node
// that is no longer in the scene.
func (c *Controller) Release(node *scene.Node) {
	if c.target == node {
		c.target = nil
		c.dragging = false
	}
}

// GizmoVisible reports whether a manipulator should be drawn.
func (c *Controller) GizmoVisible() bool {
	return c.target != nil && c.mode != ModeNone
}

// BeginDrag starts a manipulator drag. Returns false when no gizmo is
// active. While a drag is in progress camera input must be suspended.
func (c *Controller) BeginDrag() bool {
	if !c.GizmoVisible() {
		return false
	}
	c.dragging = true
	return true
}

// EndDrag finishes a manipulator drag; camera input resumes immediately.
func (c *Controller) EndDrag() {
	c.dragging = false
}

// Dragging reports whether a manipulator drag is in progress.
func (c *Controller) Dragging() bool { return c.dragging }

// Drag applies a manipulator drag to the bound model. In move mode the
// deltas translate the model on the ground plane; in rotate mode they spin
// it around the vertical and horizontal axes.
func (c *Controller) Drag(dx, dy float32) {
	if !c.dragging || c.target == nil {
		return
	}

	switch c.mode {
	case ModeMove:
		const moveSpeed = 0.01
		c.target.Transform = mgl32.Translate3D(dx*moveSpeed, 0, dy*moveSpeed).
			Mul4(c.target.Transform)

	case ModeRotate:
		const rotSpeed = 0.01
		c.target.Transform = mgl32.HomogRotate3DY(dx * rotSpeed).
			Mul4(mgl32.HomogRotate3DX(dy * rotSpeed)).
			Mul4(c.target.Transform)
	}
}
