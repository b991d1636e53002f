// Package scene owns the viewer's scene graph: the persistent helpers
// (grid, axes, lights), the single attached model and the normalization
// applied to freshly loaded models.
package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// Material describes how a mesh surface is shaded.
type Material struct {
	Name    string
	Color   mgl32.Vec4
	Texture *image.RGBA // optional, decoded from embedded glTF textures
}

// NeutralMaterial is the fixed material used for formats that carry no
// color information of their own (STL).
func NeutralMaterial() Material {
	return Material{Name: "neutral", Color: mgl32.Vec4{0.7, 0.7, 0.7, 1}}
}

// Vertex is a single mesh vertex.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Mesh holds indexed triangle geometry with a single material.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
	Material Material

	// Lines marks the mesh as line geometry (helpers, gizmos) rather
	// than triangles.
	Lines bool
}

// Node is a scene graph node. A node may carry a mesh, children, or both.
type Node struct {
	Name      string
	Transform mgl32.Mat4
	Visible   bool
	Mesh      *Mesh
	Children  []*Node
}

// NewNode creates an empty, visible node with an identity transform.
func NewNode(name string) *Node {
	return &Node{Name: name, Transform: mgl32.Ident4(), Visible: true}
}

// Add appends a child node.
func (n *Node) Add(child *Node) {
	n.Children = append(n.Children, child)
}

// Walk visits n and every descendant in depth-first order, passing the
// accumulated world transform.
func (n *Node) Walk(parent mgl32.Mat4, fn func(node *Node, world mgl32.Mat4)) {
	world := parent.Mul4(n.Transform)
	fn(n, world)
	for _, c := range n.Children {
		c.Walk(world, fn)
	}
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max mgl32.Vec3
}

// Extend grows the box to include point p.
func (b *Box) Extend(p mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Center returns the box center.
func (b Box) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the box extents along each axis.
func (b Box) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// MaxDim returns the largest extent.
func (b Box) MaxDim() float32 {
	s := b.Size()
	m := s.X()
	if s.Y() > m {
		m = s.Y()
	}
	if s.Z() > m {
		m = s.Z()
	}
	return m
}

// Bounds computes the world-space bounding box of the node's full subtree.
// The second return value is false when the subtree holds no vertices.
func (n *Node) Bounds() (Box, bool) {
	const big = 3.4e38
	box := Box{
		Min: mgl32.Vec3{big, big, big},
		Max: mgl32.Vec3{-big, -big, -big},
	}
	any := false

	n.Walk(mgl32.Ident4(), func(node *Node, world mgl32.Mat4) {
		if node.Mesh == nil {
			return
		}
		for _, v := range node.Mesh.Vertices {
			p := mgl32.TransformCoordinate(v.Position, world)
			box.Extend(p)
			any = true
		}
	})

	return box, any
}
