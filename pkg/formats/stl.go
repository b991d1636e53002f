// Package formats implements parsers for the model file formats the viewer
// loads directly (STL and 3MF). Parsers operate on in-memory byte slices and
// return plain data structures; they never touch scene or GPU state.
package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// STLTriangle is a single facet with its normal and three vertices.
type STLTriangle struct {
	Normal   [3]float32
	Vertices [3][3]float32
}

// STL holds a parsed STL model. STL carries a single unstructured triangle
// soup with no color or hierarchy information.
type STL struct {
	Name      string
	Triangles []STLTriangle
}

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50 // 12 floats + uint16 attribute count
)

// ParseSTL parses STL data in either binary or ASCII encoding.
// Binary is detected by size consistency first, since binary files are
// allowed to begin with the bytes "solid" in their header.
func ParseSTL(data []byte) (*STL, error) {
	if isBinarySTL(data) {
		return parseBinarySTL(data)
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return parseASCIISTL(data)
	}
	return nil, fmt.Errorf("not an STL file: no solid header and binary size mismatch")
}

// isBinarySTL checks whether the declared triangle count matches the file size.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return len(data) == stlHeaderSize+4+int(count)*stlTriangleSize
}

func parseBinarySTL(data []byte) (*STL, error) {
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])

	stl := &STL{
		Name:      strings.TrimRight(string(bytes.TrimRight(data[:stlHeaderSize], "\x00")), " "),
		Triangles: make([]STLTriangle, 0, count),
	}

	r := bytes.NewReader(data[stlHeaderSize+4:])
	for i := uint32(0); i < count; i++ {
		var tri STLTriangle
		if err := binary.Read(r, binary.LittleEndian, &tri.Normal); err != nil {
			return nil, fmt.Errorf("reading triangle %d normal: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &tri.Vertices); err != nil {
			return nil, fmt.Errorf("reading triangle %d vertices: %w", i, err)
		}
		// Attribute byte count, unused
		var attr uint16
		if err := binary.Read(r, binary.LittleEndian, &attr); err != nil {
			return nil, fmt.Errorf("reading triangle %d attributes: %w", i, err)
		}
		stl.Triangles = append(stl.Triangles, tri)
	}

	return stl, nil
}

func parseASCIISTL(data []byte) (*STL, error) {
	stl := &STL{}

	var (
		tri     STLTriangle
		vertIdx int
		inFacet bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				stl.Name = strings.Join(fields[1:], " ")
			}

		case "facet":
			// "facet normal nx ny nz"
			if len(fields) != 5 || fields[1] != "normal" {
				return nil, fmt.Errorf("line %d: malformed facet", lineNo)
			}
			n, err := parseFloats3(fields[2:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			tri = STLTriangle{Normal: n}
			vertIdx = 0
			inFacet = true

		case "vertex":
			if !inFacet || vertIdx > 2 {
				return nil, fmt.Errorf("line %d: vertex outside facet", lineNo)
			}
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: malformed vertex", lineNo)
			}
			v, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			tri.Vertices[vertIdx] = v
			vertIdx++

		case "endfacet":
			if vertIdx != 3 {
				return nil, fmt.Errorf("line %d: facet has %d vertices", lineNo, vertIdx)
			}
			stl.Triangles = append(stl.Triangles, tri)
			inFacet = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ASCII STL: %w", err)
	}
	if inFacet {
		return nil, fmt.Errorf("unterminated facet at end of file")
	}

	return stl, nil
}

func parseFloats3(fields []string) ([3]float32, error) {
	var out [3]float32
	for i, f := range fields[:3] {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return out, fmt.Errorf("invalid float %q", f)
		}
		out[i] = float32(v)
	}
	return out, nil
}
