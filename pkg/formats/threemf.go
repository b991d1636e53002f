package formats

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ThreeMFMaterial is one entry of a basematerials group.
type ThreeMFMaterial struct {
	Name  string
	Color [4]float32 // RGBA, 0..1
}

// ThreeMFObject is a mesh object from the resources section.
type ThreeMFObject struct {
	ID     uint32
	Name   string
	PID    uint32 // basematerials group this object draws its color from
	PIndex uint32
	HasPID bool

	Vertices  [][3]float32
	Triangles [][3]uint32
}

// ThreeMFItem is one entry of the build section: which object to place,
// optionally with a 3x4 row-major transform.
type ThreeMFItem struct {
	ObjectID     uint32
	Transform    [16]float32 // column-major 4x4
	HasTransform bool
}

// ThreeMF holds the model content of a parsed 3MF package.
type ThreeMF struct {
	Unit      string
	Materials map[uint32][]ThreeMFMaterial // keyed by basematerials group id
	Objects   []ThreeMFObject
	Items     []ThreeMFItem
}

// ObjectByID returns the object with the given resource id.
func (m *ThreeMF) ObjectByID(id uint32) (*ThreeMFObject, bool) {
	for i := range m.Objects {
		if m.Objects[i].ID == id {
			return &m.Objects[i], true
		}
	}
	return nil, false
}

// MaterialFor resolves the material an object should be rendered with.
func (m *ThreeMF) MaterialFor(obj *ThreeMFObject) (ThreeMFMaterial, bool) {
	if !obj.HasPID {
		return ThreeMFMaterial{}, false
	}
	group, ok := m.Materials[obj.PID]
	if !ok || int(obj.PIndex) >= len(group) {
		return ThreeMFMaterial{}, false
	}
	return group[obj.PIndex], true
}

// XML document shape of 3D/3dmodel.model. Only the core spec subset the
// viewer needs: basematerials, mesh objects and build items.
type xmlModel struct {
	XMLName   xml.Name `xml:"model"`
	Unit      string   `xml:"unit,attr"`
	Resources struct {
		BaseMaterials []struct {
			ID    uint32 `xml:"id,attr"`
			Bases []struct {
				Name         string `xml:"name,attr"`
				DisplayColor string `xml:"displaycolor,attr"`
			} `xml:"base"`
		} `xml:"basematerials"`
		Objects []struct {
			ID     uint32  `xml:"id,attr"`
			Name   string  `xml:"name,attr"`
			PID    *uint32 `xml:"pid,attr"`
			PIndex *uint32 `xml:"pindex,attr"`
			Mesh   *struct {
				Vertices struct {
					Vertex []struct {
						X float32 `xml:"x,attr"`
						Y float32 `xml:"y,attr"`
						Z float32 `xml:"z,attr"`
					} `xml:"vertex"`
				} `xml:"vertices"`
				Triangles struct {
					Triangle []struct {
						V1 uint32 `xml:"v1,attr"`
						V2 uint32 `xml:"v2,attr"`
						V3 uint32 `xml:"v3,attr"`
					} `xml:"triangle"`
				} `xml:"triangles"`
			} `xml:"mesh"`
		} `xml:"object"`
	} `xml:"resources"`
	Build struct {
		Items []struct {
			ObjectID  uint32 `xml:"objectid,attr"`
			Transform string `xml:"transform,attr"`
		} `xml:"item"`
	} `xml:"build"`
}

// Parse3MF parses a 3MF package (a zip archive containing an OPC model part).
func Parse3MF(data []byte) (*ThreeMF, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening 3MF package: %w", err)
	}

	modelFile := findModelPart(zr)
	if modelFile == nil {
		return nil, fmt.Errorf("3MF package has no .model part")
	}

	rc, err := modelFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening model part %s: %w", modelFile.Name, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading model part: %w", err)
	}

	var doc xmlModel
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing model XML: %w", err)
	}

	out := &ThreeMF{
		Unit:      doc.Unit,
		Materials: make(map[uint32][]ThreeMFMaterial),
	}

	for _, group := range doc.Resources.BaseMaterials {
		mats := make([]ThreeMFMaterial, 0, len(group.Bases))
		for _, base := range group.Bases {
			color, err := parseDisplayColor(base.DisplayColor)
			if err != nil {
				return nil, fmt.Errorf("basematerials %d: %w", group.ID, err)
			}
			mats = append(mats, ThreeMFMaterial{Name: base.Name, Color: color})
		}
		out.Materials[group.ID] = mats
	}

	for _, obj := range doc.Resources.Objects {
		if obj.Mesh == nil {
			continue // component-only objects are not supported
		}

		o := ThreeMFObject{ID: obj.ID, Name: obj.Name}
		if obj.PID != nil {
			o.PID = *obj.PID
			o.HasPID = true
			if obj.PIndex != nil {
				o.PIndex = *obj.PIndex
			}
		}

		for _, v := range obj.Mesh.Vertices.Vertex {
			o.Vertices = append(o.Vertices, [3]float32{v.X, v.Y, v.Z})
		}
		for i, t := range obj.Mesh.Triangles.Triangle {
			n := uint32(len(o.Vertices))
			if t.V1 >= n || t.V2 >= n || t.V3 >= n {
				return nil, fmt.Errorf("object %d triangle %d references vertex out of range", obj.ID, i)
			}
			o.Triangles = append(o.Triangles, [3]uint32{t.V1, t.V2, t.V3})
		}

		out.Objects = append(out.Objects, o)
	}

	for _, item := range doc.Build.Items {
		if _, ok := out.ObjectByID(item.ObjectID); !ok {
			return nil, fmt.Errorf("build item references unknown object %d", item.ObjectID)
		}
		bi := ThreeMFItem{ObjectID: item.ObjectID}
		if item.Transform != "" {
			m, err := parseTransform(item.Transform)
			if err != nil {
				return nil, fmt.Errorf("build item %d: %w", item.ObjectID, err)
			}
			bi.Transform = m
			bi.HasTransform = true
		}
		out.Items = append(out.Items, bi)
	}

	return out, nil
}

// findModelPart locates the 3D model part inside the package. The canonical
// path is 3D/3dmodel.model but the spec only fixes the extension.
func findModelPart(zr *zip.Reader) *zip.File {
	var fallback *zip.File
	for _, f := range zr.File {
		if f.Name == "3D/3dmodel.model" {
			return f
		}
		if fallback == nil && strings.HasSuffix(f.Name, ".model") {
			fallback = f
		}
	}
	return fallback
}

// parseDisplayColor parses an sRGB hex color: #RRGGBB or #RRGGBBAA.
func parseDisplayColor(s string) ([4]float32, error) {
	var out [4]float32
	if !strings.HasPrefix(s, "#") || (len(s) != 7 && len(s) != 9) {
		return out, fmt.Errorf("invalid displaycolor %q", s)
	}
	out[3] = 1
	for i := 0; (i+1)*2 < len(s); i++ {
		v, err := strconv.ParseUint(s[1+i*2:3+i*2], 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid displaycolor %q", s)
		}
		out[i] = float32(v) / 255.0
	}
	return out, nil
}

// parseTransform parses the 12-value row-major 3x4 transform attribute into
// a column-major 4x4 matrix.
func parseTransform(s string) ([16]float32, error) {
	var out [16]float32
	fields := strings.Fields(s)
	if len(fields) != 12 {
		return out, fmt.Errorf("transform has %d values, want 12", len(fields))
	}

	var vals [12]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return out, fmt.Errorf("invalid transform value %q", f)
		}
		vals[i] = float32(v)
	}

	// 3MF rows become matrix columns: rows 0-2 are the linear part,
	// row 3 is the translation.
	for row := 0; row < 4; row++ {
		for c := 0; c < 3; c++ {
			out[row*4+c] = vals[row*3+c]
		}
	}
	out[15] = 1
	return out, nil
}
