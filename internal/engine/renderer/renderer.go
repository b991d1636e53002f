// Package renderer draws the scene graph with OpenGL 4.1 core.
package renderer

import (
	"fmt"
	"image"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxelstack/meshview/internal/camera"
	"github.com/voxelstack/meshview/internal/scene"
)

const vertexShaderSource = `#version 410 core
layout (location = 0) in vec3 aPosition;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec2 aTexCoord;

uniform mat4 uModel;
uniform mat4 uView;
uniform mat4 uProjection;

out vec3 vNormal;
out vec2 vTexCoord;

void main() {
    vNormal = mat3(uModel) * aNormal;
    vTexCoord = aTexCoord;
    gl_Position = uProjection * uView * uModel * vec4(aPosition, 1.0);
}
` + "\x00"

const fragmentShaderSource = `#version 410 core
in vec3 vNormal;
in vec2 vTexCoord;

uniform sampler2D uTexture;
uniform vec4 uColor;
uniform vec3 uLightDir;
uniform vec3 uAmbient;
uniform vec3 uDiffuse;
uniform int uUseTexture;
uniform int uShaded;

out vec4 FragColor;

void main() {
    vec4 base = uColor;
    if (uUseTexture == 1) {
        base *= texture(uTexture, vTexCoord);
    }
    if (uShaded == 0) {
        FragColor = base;
        return;
    }
    vec3 normal = normalize(vNormal);
    vec3 lightDir = normalize(uLightDir);
    float diff = max(dot(normal, lightDir), 0.0);
    vec3 result = (uAmbient + diff * uDiffuse) * base.rgb;
    FragColor = vec4(result, base.a);
}
` + "\x00"

// meshBuffers holds the GPU resources for one mesh.
type meshBuffers struct {
	vao        uint32
	vbo        uint32
	ebo        uint32
	texture    uint32
	indexCount int32
	lastUsed   uint64
}

// Renderer uploads meshes lazily and draws the node tree each frame.
// Meshes not drawn for a frame have their GPU buffers released, so a
// detached model frees its resources without explicit bookkeeping.
type Renderer struct {
	program       uint32
	locModel      int32
	locView       int32
	locProjection int32
	locLightDir   int32
	locAmbient    int32
	locDiffuse    int32
	locColor      int32
	locTexture    int32
	locUseTexture int32
	locShaded     int32

	buffers map[*scene.Mesh]*meshBuffers
	frame   uint64
}

// New compiles the shader program and prepares GL state. Must be called
// with a current GL context.
func New() (*Renderer, error) {
	r := &Renderer{buffers: make(map[*scene.Mesh]*meshBuffers)}

	if err := r.createProgram(); err != nil {
		return nil, err
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0.13, 0.13, 0.16, 1.0)

	return r, nil
}

func (r *Renderer) createProgram() error {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return fmt.Errorf("vertex shader: %w", err)
	}
	defer gl.DeleteShader(vertexShader)

	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return fmt.Errorf("fragment shader: %w", err)
	}
	defer gl.DeleteShader(fragmentShader)

	r.program = gl.CreateProgram()
	gl.AttachShader(r.program, vertexShader)
	gl.AttachShader(r.program, fragmentShader)
	gl.LinkProgram(r.program)

	var status int32
	gl.GetProgramiv(r.program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(r.program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(r.program, logLength, nil, gl.Str(log))
		return fmt.Errorf("link failed: %s", log)
	}

	r.locModel = gl.GetUniformLocation(r.program, gl.Str("uModel\x00"))
	r.locView = gl.GetUniformLocation(r.program, gl.Str("uView\x00"))
	r.locProjection = gl.GetUniformLocation(r.program, gl.Str("uProjection\x00"))
	r.locLightDir = gl.GetUniformLocation(r.program, gl.Str("uLightDir\x00"))
	r.locAmbient = gl.GetUniformLocation(r.program, gl.Str("uAmbient\x00"))
	r.locDiffuse = gl.GetUniformLocation(r.program, gl.Str("uDiffuse\x00"))
	r.locColor = gl.GetUniformLocation(r.program, gl.Str("uColor\x00"))
	r.locTexture = gl.GetUniformLocation(r.program, gl.Str("uTexture\x00"))
	r.locUseTexture = gl.GetUniformLocation(r.program, gl.Str("uUseTexture\x00"))
	r.locShaded = gl.GetUniformLocation(r.program, gl.Str("uShaded\x00"))

	return nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		return 0, fmt.Errorf("compile failed: %s", log)
	}

	return shader, nil
}

// Resize updates the GL viewport.
func (r *Renderer) Resize(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

// Draw renders one frame of the scene graph.
func (r *Renderer) Draw(g *scene.Graph, cam *camera.Camera, aspect float32) {
	r.frame++

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.UseProgram(r.program)

	view := cam.ViewMatrix()
	projection := cam.ProjectionMatrix(aspect)
	gl.UniformMatrix4fv(r.locView, 1, false, &view[0])
	gl.UniformMatrix4fv(r.locProjection, 1, false, &projection[0])

	lights := g.Lights()
	if len(lights) > 0 {
		l := lights[0]
		gl.Uniform3f(r.locLightDir, l.Direction.X(), l.Direction.Y(), l.Direction.Z())
		diffuse := l.Color.Mul(l.Intensity)
		gl.Uniform3f(r.locDiffuse, diffuse.X(), diffuse.Y(), diffuse.Z())
	} else {
		gl.Uniform3f(r.locLightDir, 0.5, 1.0, 0.5)
		gl.Uniform3f(r.locDiffuse, 0.6, 0.6, 0.6)
	}
	gl.Uniform3f(r.locAmbient, 0.35, 0.35, 0.35)

	gl.ActiveTexture(gl.TEXTURE0)
	gl.Uniform1i(r.locTexture, 0)

	r.drawNode(g.Root(), mgl32.Ident4())

	gl.BindVertexArray(0)
	r.evictStale()
}

// drawNode draws a node subtree. Invisible nodes prune the whole subtree.
func (r *Renderer) drawNode(n *scene.Node, parent mgl32.Mat4) {
	if !n.Visible {
		return
	}
	world := parent.Mul4(n.Transform)

	if n.Mesh != nil && len(n.Mesh.Indices) > 0 {
		r.drawMesh(n.Mesh, world)
	}
	for _, c := range n.Children {
		r.drawNode(c, world)
	}
}

func (r *Renderer) drawMesh(mesh *scene.Mesh, world mgl32.Mat4) {
	buf := r.buffers[mesh]
	if buf == nil {
		buf = r.upload(mesh)
		r.buffers[mesh] = buf
	}
	buf.lastUsed = r.frame

	gl.UniformMatrix4fv(r.locModel, 1, false, &world[0])

	c := mesh.Material.Color
	gl.Uniform4f(r.locColor, c.X(), c.Y(), c.Z(), c.W())

	if buf.texture != 0 {
		gl.BindTexture(gl.TEXTURE_2D, buf.texture)
		gl.Uniform1i(r.locUseTexture, 1)
	} else {
		gl.Uniform1i(r.locUseTexture, 0)
	}

	gl.BindVertexArray(buf.vao)
	if mesh.Lines {
		gl.Uniform1i(r.locShaded, 0)
		gl.DrawElements(gl.LINES, buf.indexCount, gl.UNSIGNED_INT, nil)
	} else {
		gl.Uniform1i(r.locShaded, 1)
		gl.DrawElements(gl.TRIANGLES, buf.indexCount, gl.UNSIGNED_INT, nil)
	}
}

func (r *Renderer) upload(mesh *scene.Mesh) *meshBuffers {
	buf := &meshBuffers{indexCount: int32(len(mesh.Indices))}
	stride := int32(unsafe.Sizeof(scene.Vertex{}))

	gl.GenVertexArrays(1, &buf.vao)
	gl.BindVertexArray(buf.vao)

	gl.GenBuffers(1, &buf.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, buf.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(mesh.Vertices)*int(stride), unsafe.Pointer(&mesh.Vertices[0]), gl.STATIC_DRAW)

	gl.GenBuffers(1, &buf.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, buf.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(mesh.Indices)*4, unsafe.Pointer(&mesh.Indices[0]), gl.STATIC_DRAW)

	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 12)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, stride, 24)
	gl.EnableVertexAttribArray(2)

	gl.BindVertexArray(0)

	if mesh.Material.Texture != nil {
		buf.texture = uploadTexture(mesh.Material.Texture)
	}

	return buf
}

func uploadTexture(img *image.RGBA) uint32 {
	var texID uint32
	gl.GenTextures(1, &texID)
	gl.BindTexture(gl.TEXTURE_2D, texID)

	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA,
		int32(img.Bounds().Dx()), int32(img.Bounds().Dy()),
		0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&img.Pix[0]))

	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.GenerateMipmap(gl.TEXTURE_2D)

	return texID
}

// evictStale frees GPU buffers for meshes that were not drawn this frame.
func (r *Renderer) evictStale() {
	for mesh, buf := range r.buffers {
		if buf.lastUsed == r.frame {
			continue
		}
		r.release(buf)
		delete(r.buffers, mesh)
	}
}

func (r *Renderer) release(buf *meshBuffers) {
	if buf.vao != 0 {
		gl.DeleteVertexArrays(1, &buf.vao)
	}
	if buf.vbo != 0 {
		gl.DeleteBuffers(1, &buf.vbo)
	}
	if buf.ebo != 0 {
		gl.DeleteBuffers(1, &buf.ebo)
	}
	if buf.texture != 0 {
		gl.DeleteTextures(1, &buf.texture)
	}
}

// Destroy releases all GPU resources.
func (r *Renderer) Destroy() {
	for mesh, buf := range r.buffers {
		r.release(buf)
		delete(r.buffers, mesh)
	}
	if r.program != 0 {
		gl.DeleteProgram(r.program)
		r.program = 0
	}
}
