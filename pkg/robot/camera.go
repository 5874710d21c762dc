package robot

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Pixel is one RGB sample.
type Pixel struct {
	R, G, B uint8
}

// CameraFrame is a decoded camera image, row 0 at the top. A frame handed
// out by the robot is never modified afterwards; treat it as read-only.
type CameraFrame struct {
	Width  int
	Height int
	Pix    []uint8 // RGB triplets, row-major
}

// NewCameraFrame allocates a black frame.
func NewCameraFrame(width, height int) *CameraFrame {
	return &CameraFrame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// At returns the pixel at (x, y).
func (f *CameraFrame) At(x, y int) Pixel {
	i := (y*f.Width + x) * 3
	return Pixel{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2]}
}

// Set writes the pixel at (x, y).
func (f *CameraFrame) Set(x, y int, p Pixel) {
	i := (y*f.Width + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = p.R, p.G, p.B
}

// Image converts the frame to an image.RGBA for encoding.
func (f *CameraFrame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			p := f.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: p.R, G: p.G, B: p.B, A: 0xff})
		}
	}
	return img
}

// toByte scales a [0,1] channel to [0,255]. NaN decodes as black.
func toByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(clamp(v*255, 0, 255))
}

// decodeFrame builds a frame from the simulator's float RGB buffer. The
// simulator stores rows bottom-up, so rows are flipped.
func decodeFrame(values []float64, width, height int) (*CameraFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid image size %dx%d", ErrConfiguration, width, height)
	}
	if len(values) < width*height*3 {
		return nil, fmt.Errorf("%w: camera buffer has %d values, want %d", ErrShortReply, len(values), width*height*3)
	}

	f := NewCameraFrame(width, height)
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * width * 3
		dst := y * width * 3
		for i := 0; i < width*3; i++ {
			f.Pix[dst+i] = toByte(values[src+i])
		}
	}
	return f, nil
}

// refreshCamera reads the camera signal and notifies camera observers.
func (e *EPuck) refreshCamera(ctx context.Context) (*CameraFrame, error) {
	if !e.camera.enabled.Load() {
		return nil, ErrCameraNotEnabled
	}

	op := "refresh camera"
	vals, seq, err := e.signal(ctx, op, e.opts.SignalName+SuffixCamera)
	if err != nil {
		return nil, err
	}
	frame, err := decodeFrame(vals, e.opts.ImageWidth, e.opts.ImageHeight)
	if err != nil {
		return nil, &RemoteCallError{Op: op, Err: err}
	}

	if e.camera.update(seq, func(*CameraFrame) *CameraFrame { return frame }) {
		e.notifyCamera(frame)
	}
	return frame, nil
}

// CameraImage returns the latest camera frame. Without a running camera
// timer the frame is fetched first. Nil means no frame was received yet.
func (e *EPuck) CameraImage(ctx context.Context) (*CameraFrame, error) {
	if !e.camera.enabled.Load() {
		return nil, ErrCameraNotEnabled
	}
	if !e.imagingActive() {
		return e.refreshCamera(ctx)
	}
	return e.camera.load(), nil
}
