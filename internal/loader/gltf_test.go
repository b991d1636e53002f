package loader

import (
	"strings"
	"testing"
)

// triangleGLTF is a minimal embedded-buffer document: one node carrying a
// translated single-triangle mesh. Buffer layout: 3 vec3 float positions
// followed by 3 uint16 indices.
const triangleGLTF = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"nodes": [0]}],
	"nodes": [{"mesh": 0, "translation": [1, 2, 3]}],
	"meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
	"accessors": [
		{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
		{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
	],
	"bufferViews": [
		{"buffer": 0, "byteOffset": 0, "byteLength": 36},
		{"buffer": 0, "byteOffset": 36, "byteLength": 6}
	],
	"buffers": [{"byteLength": 44, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAAAAABAAIAAAA="}]
}`

// badIndexGLTF has a single vertex but an index accessor referencing
// vertex 5, with no NORMAL attribute. Buffer layout: 1 vec3 float position
// followed by 3 uint16 indices {0, 1, 5}.
const badIndexGLTF = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"nodes": [0]}],
	"nodes": [{"mesh": 0}],
	"meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
	"accessors": [
		{"bufferView": 0, "componentType": 5126, "count": 1, "type": "VEC3"},
		{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
	],
	"bufferViews": [
		{"buffer": 0, "byteOffset": 0, "byteLength": 12},
		{"buffer": 0, "byteOffset": 12, "byteLength": 6}
	],
	"buffers": [{"byteLength": 18, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAAABAAUA"}]
}`

// selfChildGLTF declares a node that lists itself as a child.
const selfChildGLTF = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"nodes": [0]}],
	"nodes": [{"children": [0]}]
}`

func TestDecodeGLTF_Triangle(t *testing.T) {
	root, err := decodeGLTF([]byte(triangleGLTF))
	if err != nil {
		t.Fatalf("decodeGLTF failed: %v", err)
	}

	if len(root.Children) != 1 {
		t.Fatalf("expected 1 root child, got %d", len(root.Children))
	}
	node := root.Children[0]

	tx, ty, tz := node.Transform.At(0, 3), node.Transform.At(1, 3), node.Transform.At(2, 3)
	if tx != 1 || ty != 2 || tz != 3 {
		t.Errorf("expected translation (1,2,3), got (%v,%v,%v)", tx, ty, tz)
	}

	if len(node.Children) != 1 || node.Children[0].Mesh == nil {
		t.Fatal("expected one mesh-bearing primitive child")
	}
	mesh := node.Children[0].Mesh
	if len(mesh.Vertices) != 3 {
		t.Errorf("expected 3 vertices, got %d", len(mesh.Vertices))
	}
	if len(mesh.Indices) != 3 {
		t.Errorf("expected 3 indices, got %d", len(mesh.Indices))
	}
	// No NORMAL attribute in the document, so normals are computed.
	for i, v := range mesh.Vertices {
		if v.Normal.Len() == 0 {
			t.Errorf("vertex %d has a zero normal", i)
		}
	}
}

func TestDecodeGLTF_IndexOutOfRange(t *testing.T) {
	_, err := decodeGLTF([]byte(badIndexGLTF))
	if err == nil {
		t.Fatal("expected error for index referencing a missing vertex")
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeGLTF_SelfReferencingNode(t *testing.T) {
	_, err := decodeGLTF([]byte(selfChildGLTF))
	if err == nil {
		t.Fatal("expected error for a node listed as its own child")
	}
}
