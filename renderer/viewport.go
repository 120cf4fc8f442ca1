// Package renderer draws tower environments on the GPU with raylib.
package renderer

import (
	"errors"
	"image"
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/capture"
)

// Viewport renders capture views into an offscreen render texture. raylib is
// single-threaded: a Viewport must only be used from the goroutine that
// created it.
type Viewport struct {
	Layers     []capture.Layer
	Background color.RGBA
	FOV        float64 // vertical field of view in degrees

	target     rl.RenderTexture2D
	width      int32
	height     int32
	ownsWindow bool
}

// NewViewport opens a hidden window if none is open and prepares a viewport
// over layers.
func NewViewport(fov float64, layers ...capture.Layer) *Viewport {
	v := &Viewport{Layers: layers, Background: capture.SkyColor, FOV: fov}
	if v.FOV <= 0 {
		v.FOV = 60
	}
	if !rl.IsWindowReady() {
		rl.SetTraceLogLevel(rl.LogWarning)
		rl.SetConfigFlags(rl.FlagWindowHidden)
		rl.InitWindow(1, 1, "towergen")
		v.ownsWindow = true
	}
	return v
}

// Render implements capture.Renderer.
func (v *Viewport) Render(origin, target r3.Vec, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("renderer: empty viewport")
	}
	if !rl.IsWindowReady() {
		return nil, errors.New("renderer: window closed")
	}
	v.resize(int32(width), int32(height))

	camera := rl.Camera3D{
		Position:   vec3(origin),
		Target:     vec3(target),
		Up:         rl.NewVector3(0, 0, 1),
		Fovy:       float32(v.FOV),
		Projection: rl.CameraPerspective,
	}

	rl.BeginTextureMode(v.target)
	rl.ClearBackground(v.Background)
	rl.BeginMode3D(camera)
	for _, layer := range v.Layers {
		if layer.Mesh == nil {
			continue
		}
		for _, tri := range layer.Mesh.Triangles {
			rl.DrawTriangle3D(vec3(tri[0]), vec3(tri[1]), vec3(tri[2]), layer.Color)
		}
	}
	rl.EndMode3D()
	rl.EndTextureMode()

	return v.readback(), nil
}

// readback copies the render texture to an RGBA image.
func (v *Viewport) readback() *image.RGBA {
	img := rl.LoadImageFromTexture(v.target.Texture)
	defer rl.UnloadImage(img)

	// The texture is upside down (OpenGL convention).
	rl.ImageFlipVertical(img)

	colors := rl.LoadImageColors(img)
	defer rl.UnloadImageColors(colors)

	out := image.NewRGBA(image.Rect(0, 0, int(v.width), int(v.height)))
	for i, c := range colors {
		out.SetRGBA(i%int(v.width), i/int(v.width), c)
	}
	return out
}

// resize recreates the render target when the requested size changes.
func (v *Viewport) resize(width, height int32) {
	if width == v.width && height == v.height {
		return
	}
	if v.width > 0 {
		rl.UnloadRenderTexture(v.target)
	}
	v.target = rl.LoadRenderTexture(width, height)
	v.width, v.height = width, height
}

// Unload releases GPU resources and closes the window if the viewport
// opened it.
func (v *Viewport) Unload() {
	if v.width > 0 {
		rl.UnloadRenderTexture(v.target)
		v.width, v.height = 0, 0
	}
	if v.ownsWindow {
		rl.CloseWindow()
		v.ownsWindow = false
	}
}

func vec3(p r3.Vec) rl.Vector3 {
	return rl.NewVector3(float32(p.X), float32(p.Y), float32(p.Z))
}
