package scene

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

// TargetSize is the world-space size the largest model dimension is
// normalized to.
const TargetSize = 5.0

// ErrDegenerateGeometry is returned when a model has no spatial extent and
// cannot be normalized.
var ErrDegenerateGeometry = errors.New("model has no spatial extent")

// Normalization is the transform applied to a model at attach time.
type Normalization struct {
	Scale       float32
	Translation mgl32.Vec3
}

// Normalize scales and translates node so its bounding box is centered on
// the vertical axis, rests on the y=0 plane and has its largest dimension
// equal to TargetSize. The transform is composed on top of the node's
// existing transform; scale is applied before translation, and the
// horizontal centering is computed separately from the vertical grounding.
func Normalize(node *Node) (Normalization, error) {
	box, ok := node.Bounds()
	if !ok {
		return Normalization{}, ErrDegenerateGeometry
	}

	maxDim := box.MaxDim()
	if maxDim <= 0 {
		return Normalization{}, ErrDegenerateGeometry
	}

	scale := float32(TargetSize) / maxDim
	center := box.Center()

	// Scaling happens about the origin, so the scaled box center is
	// center*scale. Cancel it horizontally, then lift the box so its
	// bottom face sits on the ground plane.
	trans := mgl32.Vec3{
		-center.X() * scale,
		-box.Min.Y() * scale,
		-center.Z() * scale,
	}

	n := Normalization{Scale: scale, Translation: trans}
	node.Transform = mgl32.Translate3D(trans.X(), trans.Y(), trans.Z()).
		Mul4(mgl32.Scale3D(scale, scale, scale)).
		Mul4(node.Transform)

	return n, nil
}
