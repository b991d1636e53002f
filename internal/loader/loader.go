// Package loader turns a model URL plus a format tag into a detached scene
// node. It never touches shared scene state; the orchestrator decides what
// happens with the result.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxelstack/meshview/internal/scene"
	"github.com/voxelstack/meshview/pkg/formats"
)

// Format is the tag derived from a model URL's file extension.
type Format string

const (
	FormatSTL  Format = "stl"
	Format3MF  Format = "3mf"
	FormatGLB  Format = "glb"
	FormatGLTF Format = "gltf"
)

// ErrUnsupportedFormat is returned for extensions outside the known set,
// before any network fetch is attempted.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// DetectFormat derives the format tag from the URL's file extension,
// case-insensitively.
func DetectFormat(rawURL string) (Format, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid model URL: %w", err)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))

	switch f := Format(ext); f {
	case FormatSTL, Format3MF, FormatGLB, FormatGLTF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ProgressFunc receives load progress in percent, 0..100.
type ProgressFunc func(pct int)

// Loader fetches and parses models.
type Loader struct {
	client *http.Client
}

// New creates a loader with a default HTTP client. Timeout semantics are
// the caller's business; the loader imposes none beyond the context.
func New() *Loader {
	return &Loader{client: &http.Client{Timeout: 0}}
}

// NewWithClient creates a loader using the given HTTP client.
func NewWithClient(c *http.Client) *Loader {
	return &Loader{client: c}
}

// Load fetches the model bytes and parses them according to format. The
// returned node is detached. onProgress may be nil.
func (l *Loader) Load(ctx context.Context, rawURL string, format Format, onProgress ProgressFunc) (*scene.Node, error) {
	switch format {
	case FormatSTL, Format3MF, FormatGLB, FormatGLTF:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	data, err := l.fetch(ctx, rawURL, onProgress)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatSTL:
		stl, err := formats.ParseSTL(data)
		if err != nil {
			return nil, fmt.Errorf("parsing STL: %w", err)
		}
		return buildSTLNode(stl), nil

	case Format3MF:
		m, err := formats.Parse3MF(data)
		if err != nil {
			return nil, fmt.Errorf("parsing 3MF: %w", err)
		}
		return build3MFNode(m), nil

	default: // glb, gltf
		node, err := decodeGLTF(data)
		if err != nil {
			return nil, fmt.Errorf("parsing glTF: %w", err)
		}
		return node, nil
	}
}

// fetch retrieves the model bytes, reporting progress as they arrive.
// Progress is loaded/total when the server announces a length; otherwise it
// stays at 0 until completion.
func (l *Loader) fetch(ctx context.Context, rawURL string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching model: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching model: unexpected status %s", resp.Status)
	}

	pr := &progressReader{
		r:          resp.Body,
		total:      resp.ContentLength,
		onProgress: onProgress,
	}
	data, err := io.ReadAll(pr)
	if err != nil {
		return nil, fmt.Errorf("fetching model: %w", err)
	}
	return data, nil
}

// progressReader reports percentage progress while reading.
type progressReader struct {
	r          io.Reader
	total      int64 // -1 when unknown
	loaded     int64
	last       int
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.loaded += int64(n)

	if p.onProgress != nil && p.total > 0 {
		pct := int(float64(p.loaded)/float64(p.total)*100 + 0.5)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.onProgress(pct)
		}
	}
	return n, err
}

// buildSTLNode converts an STL triangle soup into a single mesh node with
// the fixed neutral material.
func buildSTLNode(stl *formats.STL) *scene.Node {
	mesh := &scene.Mesh{Material: scene.NeutralMaterial()}

	for _, tri := range stl.Triangles {
		normal := mgl32.Vec3{tri.Normal[0], tri.Normal[1], tri.Normal[2]}
		if normal.Len() == 0 {
			normal = faceNormal(tri.Vertices)
		}
		base := uint32(len(mesh.Vertices))
		for _, v := range tri.Vertices {
			mesh.Vertices = append(mesh.Vertices, scene.Vertex{
				Position: mgl32.Vec3{v[0], v[1], v[2]},
				Normal:   normal,
			})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2)
	}

	name := stl.Name
	if name == "" {
		name = "stl"
	}
	node := scene.NewNode(name)
	node.Mesh = mesh
	return node
}

// build3MFNode converts a 3MF model into a group node with one child per
// build item, each carrying its own material color.
func build3MFNode(m *formats.ThreeMF) *scene.Node {
	group := scene.NewNode("3mf")

	items := m.Items
	if len(items) == 0 {
		// No build section: place every object once.
		for _, obj := range m.Objects {
			items = append(items, formats.ThreeMFItem{ObjectID: obj.ID})
		}
	}

	for _, item := range items {
		obj, ok := m.ObjectByID(item.ObjectID)
		if !ok {
			continue
		}

		material := scene.NeutralMaterial()
		if mat, ok := m.MaterialFor(obj); ok {
			material = scene.Material{
				Name:  mat.Name,
				Color: mgl32.Vec4{mat.Color[0], mat.Color[1], mat.Color[2], mat.Color[3]},
			}
		}

		mesh := &scene.Mesh{Material: material}
		for _, v := range obj.Vertices {
			mesh.Vertices = append(mesh.Vertices, scene.Vertex{
				Position: mgl32.Vec3{v[0], v[1], v[2]},
			})
		}
		for _, t := range obj.Triangles {
			mesh.Indices = append(mesh.Indices, t[0], t[1], t[2])
		}
		smoothNormals(mesh)

		child := scene.NewNode(obj.Name)
		child.Mesh = mesh
		if item.HasTransform {
			child.Transform = mgl32.Mat4(item.Transform)
		}
		group.Add(child)
	}

	return group
}

// faceNormal computes the normal of a triangle from its winding.
func faceNormal(v [3][3]float32) mgl32.Vec3 {
	a := mgl32.Vec3{v[0][0], v[0][1], v[0][2]}
	b := mgl32.Vec3{v[1][0], v[1][1], v[1][2]}
	c := mgl32.Vec3{v[2][0], v[2][1], v[2][2]}
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return n.Normalize()
}

// smoothNormals fills in vertex normals by averaging adjacent face normals.
func smoothNormals(mesh *scene.Mesh) {
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		i0, i1, i2 := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		a := mesh.Vertices[i0].Position
		b := mesh.Vertices[i1].Position
		c := mesh.Vertices[i2].Position
		n := b.Sub(a).Cross(c.Sub(a))
		mesh.Vertices[i0].Normal = mesh.Vertices[i0].Normal.Add(n)
		mesh.Vertices[i1].Normal = mesh.Vertices[i1].Normal.Add(n)
		mesh.Vertices[i2].Normal = mesh.Vertices[i2].Normal.Add(n)
	}
	for i := range mesh.Vertices {
		if mesh.Vertices[i].Normal.Len() > 0 {
			mesh.Vertices[i].Normal = mesh.Vertices[i].Normal.Normalize()
		}
	}
}
