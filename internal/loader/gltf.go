package loader

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/voxelstack/meshview/internal/scene"
)

// decodeGLTF parses GLB or glTF bytes into a scene node hierarchy,
// carrying materials and embedded base color textures. The decoder handles
// both containers; external buffer references are only supported as data
// URIs since the viewer works from a single fetched resource.
func decodeGLTF(data []byte) (*scene.Node, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, err
	}

	root := scene.NewNode("gltf")
	visited := make(map[uint32]bool)
	for _, idx := range rootNodes(doc) {
		child, err := convertNode(doc, idx, visited)
		if err != nil {
			return nil, err
		}
		root.Add(child)
	}
	return root, nil
}

// rootNodes returns the node indices of the default scene, falling back to
// all parentless nodes when the document declares no scene.
func rootNodes(doc *gltf.Document) []uint32 {
	if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	if len(doc.Scenes) > 0 {
		return doc.Scenes[0].Nodes
	}

	isChild := make(map[uint32]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}
	var roots []uint32
	for i := range doc.Nodes {
		if !isChild[uint32(i)] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

func convertNode(doc *gltf.Document, idx uint32, visited map[uint32]bool) (*scene.Node, error) {
	if int(idx) >= len(doc.Nodes) {
		return nil, fmt.Errorf("node index %d out of range", idx)
	}
	// glTF nodes form strict trees; a revisit means the hierarchy cycles.
	if visited[idx] {
		return nil, fmt.Errorf("node %d appears more than once in the hierarchy", idx)
	}
	visited[idx] = true
	src := doc.Nodes[idx]

	node := scene.NewNode(src.Name)
	node.Transform = nodeTransform(src)

	if src.Mesh != nil {
		if int(*src.Mesh) >= len(doc.Meshes) {
			return nil, fmt.Errorf("mesh index %d out of range", *src.Mesh)
		}
		for _, prim := range doc.Meshes[*src.Mesh].Primitives {
			mesh, err := convertPrimitive(doc, prim)
			if err != nil {
				return nil, err
			}
			if mesh == nil {
				continue
			}
			primNode := scene.NewNode(doc.Meshes[*src.Mesh].Name)
			primNode.Mesh = mesh
			node.Add(primNode)
		}
	}

	for _, c := range src.Children {
		child, err := convertNode(doc, c, visited)
		if err != nil {
			return nil, err
		}
		node.Add(child)
	}
	return node, nil
}

func convertPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*scene.Mesh, error) {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, nil // point/line primitives without positions are skipped
	}
	if int(posIdx) >= len(doc.Accessors) {
		return nil, fmt.Errorf("position accessor %d out of range", posIdx)
	}

	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}

	mesh := &scene.Mesh{Material: materialFor(doc, prim.Material)}
	mesh.Vertices = make([]scene.Vertex, len(positions))
	for i, p := range positions {
		mesh.Vertices[i].Position = mgl32.Vec3{p[0], p[1], p[2]}
	}

	if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok && int(normIdx) < len(doc.Accessors) {
		normals, err := modeler.ReadNormal(doc, doc.Accessors[normIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("reading normals: %w", err)
		}
		for i := 0; i < len(normals) && i < len(mesh.Vertices); i++ {
			mesh.Vertices[i].Normal = mgl32.Vec3{normals[i][0], normals[i][1], normals[i][2]}
		}
	}

	if tcIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok && int(tcIdx) < len(doc.Accessors) {
		coords, err := modeler.ReadTextureCoord(doc, doc.Accessors[tcIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("reading texture coords: %w", err)
		}
		for i := 0; i < len(coords) && i < len(mesh.Vertices); i++ {
			mesh.Vertices[i].TexCoord = mgl32.Vec2{coords[i][0], coords[i][1]}
		}
	}

	if prim.Indices != nil {
		if int(*prim.Indices) >= len(doc.Accessors) {
			return nil, fmt.Errorf("index accessor %d out of range", *prim.Indices)
		}
		indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("reading indices: %w", err)
		}
		for _, vi := range indices {
			if int(vi) >= len(mesh.Vertices) {
				return nil, fmt.Errorf("index %d out of range for %d vertices", vi, len(mesh.Vertices))
			}
		}
		mesh.Indices = indices
	} else {
		mesh.Indices = make([]uint32, len(mesh.Vertices))
		for i := range mesh.Indices {
			mesh.Indices[i] = uint32(i)
		}
	}

	if _, ok := prim.Attributes[gltf.NORMAL]; !ok {
		smoothNormals(mesh)
	}
	return mesh, nil
}

// materialFor resolves a primitive's material to a scene material: base
// color factor plus the base color texture when it is embedded.
func materialFor(doc *gltf.Document, matIdx *uint32) scene.Material {
	mat := scene.NeutralMaterial()
	if matIdx == nil || int(*matIdx) >= len(doc.Materials) {
		return mat
	}

	src := doc.Materials[*matIdx]
	mat.Name = src.Name
	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			f := *pbr.BaseColorFactor
			mat.Color = mgl32.Vec4{float32(f[0]), float32(f[1]), float32(f[2]), float32(f[3])}
		}
		if pbr.BaseColorTexture != nil {
			if img := decodeTexture(doc, pbr.BaseColorTexture.Index); img != nil {
				mat.Texture = img
			}
		}
	}
	return mat
}

// decodeTexture decodes an embedded texture image to RGBA. Returns nil for
// external or undecodable images; the base color factor still applies.
func decodeTexture(doc *gltf.Document, texIdx uint32) *image.RGBA {
	if int(texIdx) >= len(doc.Textures) {
		return nil
	}
	tex := doc.Textures[texIdx]
	if tex.Source == nil || int(*tex.Source) >= len(doc.Images) {
		return nil
	}
	img := doc.Images[*tex.Source]
	if img.BufferView == nil || int(*img.BufferView) >= len(doc.BufferViews) {
		return nil
	}

	bv := doc.BufferViews[*img.BufferView]
	if int(bv.Buffer) >= len(doc.Buffers) {
		return nil
	}
	buf := doc.Buffers[bv.Buffer].Data
	if int(bv.ByteOffset+bv.ByteLength) > len(buf) {
		return nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(buf[bv.ByteOffset : bv.ByteOffset+bv.ByteLength]))
	if err != nil {
		return nil
	}

	rgba := image.NewRGBA(decoded.Bounds())
	draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	return rgba
}

// nodeTransform builds the local transform from either the matrix or the
// TRS properties, tolerating zero-valued defaults in both encodings.
func nodeTransform(n *gltf.Node) mgl32.Mat4 {
	var zero [16]float32
	if n.Matrix != zero && !isIdentity(n.Matrix) {
		return mgl32.Mat4(n.Matrix)
	}

	t := mgl32.Translate3D(n.Translation[0], n.Translation[1], n.Translation[2])

	r := mgl32.Ident4()
	if n.Rotation != [4]float32{} && n.Rotation != [4]float32{0, 0, 0, 1} {
		q := mgl32.Quat{
			W: n.Rotation[3],
			V: mgl32.Vec3{n.Rotation[0], n.Rotation[1], n.Rotation[2]},
		}
		r = q.Normalize().Mat4()
	}

	s := mgl32.Ident4()
	if n.Scale != [3]float32{} && n.Scale != [3]float32{1, 1, 1} {
		s = mgl32.Scale3D(n.Scale[0], n.Scale[1], n.Scale[2])
	}

	return t.Mul4(r).Mul4(s)
}

func isIdentity(m [16]float32) bool {
	for i, v := range m {
		if i%5 == 0 {
			if v != 1 {
				return false
			}
		} else if v != 0 {
			return false
		}
	}
	return true
}
