package formats

import (
	"archive/zip"
	"bytes"
	"testing"
)

// createTest3MF wraps the given model XML in a minimal 3MF package.
func createTest3MF(t *testing.T, modelXML string) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	w, err := zw.Create("3D/3dmodel.model")
	if err != nil {
		t.Fatalf("creating model part: %v", err)
	}
	if _, err := w.Write([]byte(modelXML)); err != nil {
		t.Fatalf("writing model part: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing package: %v", err)
	}
	return buf.Bytes()
}

const assemblyXML = `<?xml version="1.0" encoding="UTF-8"?>
<model unit="millimeter" xmlns="http://schemas.microsoft.com/3dmanufacturing/core/2015/02">
  <resources>
    <basematerials id="1">
      <base name="Red" displaycolor="#FF0000" />
      <base name="Green" displaycolor="#00FF00" />
      <base name="Blue" displaycolor="#0000FFFF" />
    </basematerials>
    <object id="2" name="a" pid="1" pindex="0">
      <mesh>
        <vertices>
          <vertex x="0" y="0" z="0" />
          <vertex x="1" y="0" z="0" />
          <vertex x="0" y="1" z="0" />
        </vertices>
        <triangles>
          <triangle v1="0" v2="1" v3="2" />
        </triangles>
      </mesh>
    </object>
    <object id="3" name="b" pid="1" pindex="1">
      <mesh>
        <vertices>
          <vertex x="0" y="0" z="0" />
          <vertex x="0" y="0" z="1" />
          <vertex x="0" y="1" z="0" />
        </vertices>
        <triangles>
          <triangle v1="0" v2="1" v3="2" />
        </triangles>
      </mesh>
    </object>
    <object id="4" name="c" pid="1" pindex="2">
      <mesh>
        <vertices>
          <vertex x="0" y="0" z="0" />
          <vertex x="1" y="0" z="0" />
          <vertex x="0" y="0" z="1" />
        </vertices>
        <triangles>
          <triangle v1="0" v2="1" v3="2" />
        </triangles>
      </mesh>
    </object>
  </resources>
  <build>
    <item objectid="2" />
    <item objectid="3" transform="1 0 0 0 1 0 0 0 1 10 0 0" />
    <item objectid="4" />
  </build>
</model>`

func TestParse3MF_Assembly(t *testing.T) {
	data := createTest3MF(t, assemblyXML)

	m, err := Parse3MF(data)
	if err != nil {
		t.Fatalf("Parse3MF failed: %v", err)
	}

	if m.Unit != "millimeter" {
		t.Errorf("expected unit millimeter, got %q", m.Unit)
	}
	if len(m.Objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(m.Objects))
	}
	if len(m.Items) != 3 {
		t.Fatalf("expected 3 build items, got %d", len(m.Items))
	}

	mats := m.Materials[1]
	if len(mats) != 3 {
		t.Fatalf("expected 3 materials, got %d", len(mats))
	}
	if mats[0].Color != [4]float32{1, 0, 0, 1} {
		t.Errorf("unexpected red material: %v", mats[0].Color)
	}
	if mats[2].Color != [4]float32{0, 0, 1, 1} {
		t.Errorf("unexpected blue material: %v", mats[2].Color)
	}

	// Each object resolves to its own color.
	for i, want := range [][4]float32{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}} {
		mat, ok := m.MaterialFor(&m.Objects[i])
		if !ok {
			t.Fatalf("object %d has no material", i)
		}
		if mat.Color != want {
			t.Errorf("object %d: expected color %v, got %v", i, want, mat.Color)
		}
	}

	if m.Items[0].HasTransform {
		t.Error("item 0 should have no transform")
	}
	if !m.Items[1].HasTransform {
		t.Fatal("item 1 should have a transform")
	}
	// Translation lands in the last matrix column.
	if m.Items[1].Transform[12] != 10 {
		t.Errorf("expected x translation 10, got %v", m.Items[1].Transform[12])
	}
}

func TestParse3MF_Errors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("garbage")},
		{"no model part", func() []byte {
			buf := new(bytes.Buffer)
			zw := zip.NewWriter(buf)
			w, _ := zw.Create("readme.txt")
			w.Write([]byte("hi"))
			zw.Close()
			return buf.Bytes()
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse3MF(tc.data); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestParse3MF_OutOfRangeIndex(t *testing.T) {
	xml := `<model unit="millimeter">
  <resources>
    <object id="1">
      <mesh>
        <vertices><vertex x="0" y="0" z="0" /></vertices>
        <triangles><triangle v1="0" v2="1" v3="2" /></triangles>
      </mesh>
    </object>
  </resources>
  <build><item objectid="1" /></build>
</model>`

	if _, err := Parse3MF(createTest3MF(t, xml)); err == nil {
		t.Error("expected out-of-range error, got nil")
	}
}

func TestParse3MF_UnknownBuildObject(t *testing.T) {
	xml := `<model><resources /><build><item objectid="9" /></build></model>`
	if _, err := Parse3MF(createTest3MF(t, xml)); err == nil {
		t.Error("expected unknown object error, got nil")
	}
}

func TestParseDisplayColor(t *testing.T) {
	cases := []struct {
		in      string
		want    [4]float32
		wantErr bool
	}{
		{"#FF8000", [4]float32{1, 128.0 / 255.0, 0, 1}, false},
		{"#00000080", [4]float32{0, 0, 0, 128.0 / 255.0}, false},
		{"FF8000", [4]float32{}, true},
		{"#GG0000", [4]float32{}, true},
		{"#FFF", [4]float32{}, true},
	}

	for _, tc := range cases {
		got, err := parseDisplayColor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}
