package sim

import "math"

// Camera geometry.
const (
	cameraFOV   = 0.98 // radians, horizontal
	cameraRange = 2.0  // meters
	wallHeight  = 0.05 // meters, rendered against the camera focal length
)

var (
	skyColor  = [3]float64{0.55, 0.6, 0.7}
	wallColor = [3]float64{0.8, 0.45, 0.2}
)

// render draws a column-cast view of the arena. The buffer is RGB floats in
// [0,1] with the bottom row first, matching the vision sensor layout.
func (s *Simulator) render() []float32 {
	w, h := s.cfg.ImageWidth, s.cfg.ImageHeight
	out := make([]float32, w*h*3)

	p := s.position()
	focal := float64(w) / 2 / math.Tan(cameraFOV/2)
	horizon := float64(h) / 2

	for x := 0; x < w; x++ {
		// x = 0 is the left edge of the image.
		frac := 0.5
		if w > 1 {
			frac = float64(x) / float64(w-1)
		}
		angle := s.pose.Theta + cameraFOV/2 - frac*cameraFOV
		dir := heading(angle)
		dist := s.world.raycast(p.Add(dir.Scale(BodyRadius)), dir, cameraRange)

		half := 0.0
		if dist < cameraRange {
			// perpendicular distance avoids fish-eye bending of walls
			perp := dist * math.Cos(angle-s.pose.Theta)
			half = focal * wallHeight / math.Max(perp, 1e-3) / 2
		}
		shade := 1 / (1 + 2*dist)

		for y := 0; y < h; y++ {
			// y counts rows from the top here.
			dy := horizon - (float64(y) + 0.5)
			var c [3]float64
			switch {
			case math.Abs(dy) <= half:
				c = [3]float64{wallColor[0] * shade, wallColor[1] * shade, wallColor[2] * shade}
			case dy > 0:
				c = skyColor
			default:
				// floor: project the pixel back onto the ground
				ground := focal * wallHeight / 2 / math.Max(-dy, 1e-3)
				r := s.world.reflectance(p.Add(dir.Scale(ground)))
				c = [3]float64{r * 0.9, r * 0.9, r * 0.9}
			}

			row := h - 1 - y
			i := (row*w + x) * 3
			out[i], out[i+1], out[i+2] = float32(c[0]), float32(c[1]), float32(c[2])
		}
	}
	return out
}
