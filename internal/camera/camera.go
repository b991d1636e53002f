// Package camera implements the viewer camera: an orbit camera combined
// with a discrete view-state machine for the canonical axis-aligned views.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// View is the discrete view-state machine state.
type View int

const (
	ViewHome View = iota
	ViewFree
	ViewTop
	ViewBottom
	ViewFront
	ViewBack
	ViewLeft
	ViewRight
)

// String returns the view tag a host UI binds to.
func (v View) String() string {
	switch v {
	case ViewHome:
		return "home"
	case ViewFree:
		return "free"
	case ViewTop:
		return "top"
	case ViewBottom:
		return "bottom"
	case ViewFront:
		return "front"
	case ViewBack:
		return "back"
	case ViewLeft:
		return "left"
	case ViewRight:
		return "right"
	}
	return "unknown"
}

// Projection selects the camera projection mode.
type Projection int

const (
	Perspective Projection = iota
	Orthographic
)

// String returns the projection tag a host UI binds to.
func (p Projection) String() string {
	if p == Orthographic {
		return "orthographic"
	}
	return "perspective"
}

// Pose constants, shared by every view command so toggling twice returns
// to the same pose.
const (
	// CanonicalDistance is the camera distance from the origin for the
	// six axis-aligned views.
	CanonicalDistance = 10.0

	// DefaultFOV is the vertical field of view in radians.
	DefaultFOV = gomath.Pi / 4

	minDistance = 0.5
	maxDistance = 200.0

	dragSensitivity = 0.008
	zoomSensitivity = 0.1

	// Pitch limit just short of the poles to keep the look-at basis stable
	// during free orbit.
	maxOrbitPitch = gomath.Pi/2 - 0.01
)

// HomePosition is the default camera position, looking at the origin.
var HomePosition = mgl32.Vec3{5, 5, 5}

var worldUp = mgl32.Vec3{0, 1, 0}

// Camera holds the full camera state.
type Camera struct {
	view       View
	projection Projection

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3
	fov      float32

	near, far float32
}

// New creates a camera in the home pose.
func New() *Camera {
	c := &Camera{
		fov:  DefaultFOV,
		near: 0.1,
		far:  500,
	}
	c.Reset()
	return c
}

// View returns the current view-state machine state.
func (c *Camera) View() View { return c.view }

// Projection returns the current projection mode.
func (c *Camera) Projection() Projection { return c.projection }

// Position returns the camera position.
func (c *Camera) Position() mgl32.Vec3 { return c.position }

// Target returns the orbit target.
func (c *Camera) Target() mgl32.Vec3 { return c.target }

// Up returns the camera up vector.
func (c *Camera) Up() mgl32.Vec3 { return c.up }

// Distance returns the distance from the camera to its target.
func (c *Camera) Distance() float32 { return c.position.Sub(c.target).Len() }

// Reset moves the camera to the home pose: fixed diagonal position looking
// at the origin. The projection mode is left alone.
func (c *Camera) Reset() {
	c.view = ViewHome
	c.position = HomePosition
	c.target = mgl32.Vec3{}
	c.up = worldUp
}

// complement returns the paired view for the complementary toggles.
func complement(v View) View {
	switch v {
	case ViewTop:
		return ViewBottom
	case ViewBottom:
		return ViewTop
	case ViewFront:
		return ViewBack
	case ViewBack:
		return ViewFront
	case ViewLeft:
		return ViewRight
	case ViewRight:
		return ViewLeft
	}
	return v
}

// canonicalPose returns position and up vector for a canonical view.
func canonicalPose(v View) (pos, up mgl32.Vec3) {
	const d = CanonicalDistance
	switch v {
	case ViewTop:
		return mgl32.Vec3{0, d, 0}, mgl32.Vec3{0, 0, -1}
	case ViewBottom:
		return mgl32.Vec3{0, -d, 0}, mgl32.Vec3{0, 0, 1}
	case ViewFront:
		return mgl32.Vec3{0, 0, d}, worldUp
	case ViewBack:
		return mgl32.Vec3{0, 0, -d}, worldUp
	case ViewLeft:
		return mgl32.Vec3{-d, 0, 0}, worldUp
	case ViewRight:
		return mgl32.Vec3{d, 0, 0}, worldUp
	}
	return HomePosition, worldUp
}

// SetView snaps the camera to a canonical view. Requesting the view the
// camera is already in switches to its complement, so each command cycles
// between exactly two complementary views.
func (c *Camera) SetView(v View) {
	switch v {
	case ViewTop, ViewBottom, ViewFront, ViewBack, ViewLeft, ViewRight:
	default:
		return
	}

	if c.view == v {
		v = complement(v)
	}

	pos, up := canonicalPose(v)
	c.view = v
	c.position = pos
	c.up = up
	c.target = mgl32.Vec3{}
}

// ToggleProjection switches between perspective and orthographic while
// keeping the look-target and distance untouched.
func (c *Camera) ToggleProjection() {
	if c.projection == Perspective {
		c.projection = Orthographic
	} else {
		c.projection = Perspective
	}
}

// Orbit rotates the camera around its target. Any orbit gesture moves the
// state machine to free.
func (c *Camera) Orbit(dx, dy float32) {
	c.view = ViewFree

	offset := c.position.Sub(c.target)
	dist := offset.Len()
	if dist == 0 {
		return
	}

	yaw := float32(gomath.Atan2(float64(offset.X()), float64(offset.Z())))
	pitch := float32(gomath.Asin(float64(offset.Y() / dist)))

	yaw -= dx * dragSensitivity
	pitch += dy * dragSensitivity
	pitch = clamp(pitch, -maxOrbitPitch, maxOrbitPitch)

	cp := float32(gomath.Cos(float64(pitch)))
	c.position = c.target.Add(mgl32.Vec3{
		dist * cp * float32(gomath.Sin(float64(yaw))),
		dist * float32(gomath.Sin(float64(pitch))),
		dist * cp * float32(gomath.Cos(float64(yaw))),
	})
	c.up = worldUp
}

// Pan moves the target and camera together in the view plane. Speed scales
// with distance for a consistent feel.
func (c *Camera) Pan(dx, dy float32) {
	c.view = ViewFree

	forward := c.target.Sub(c.position).Normalize()
	right := forward.Cross(c.up).Normalize()
	upv := right.Cross(forward)

	speed := c.Distance() * 0.002
	delta := right.Mul(-dx * speed).Add(upv.Mul(dy * speed))

	c.position = c.position.Add(delta)
	c.target = c.target.Add(delta)
}

// Zoom moves the camera along the view direction. A zoom gesture enters
// the free state like any other camera interaction.
func (c *Camera) Zoom(delta float32) {
	c.view = ViewFree

	dist := c.Distance()
	dist -= delta * dist * zoomSensitivity
	dist = clamp(dist, minDistance, maxDistance)

	dir := c.position.Sub(c.target).Normalize()
	c.position = c.target.Add(dir.Mul(dist))
}

// ViewMatrix returns the view matrix for the current pose.
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.position, c.target, c.up)
}

// ProjectionMatrix returns the projection matrix for the given aspect
// ratio. In orthographic mode the frustum half-height is derived from the
// current distance and FOV so the framing matches the perspective view.
func (c *Camera) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	if c.projection == Orthographic {
		h := c.Distance() * float32(gomath.Tan(float64(c.fov)/2))
		w := h * aspect
		return mgl32.Ortho(-w, w, -h, h, -c.far, c.far)
	}
	return mgl32.Perspective(c.fov, aspect, c.near, c.far)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
