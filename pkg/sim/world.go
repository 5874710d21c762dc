package sim

import "math"

// Vec is a point or direction on the arena floor.
type Vec struct {
	X, Y float64
}

func (a Vec) Add(b Vec) Vec { return Vec{a.X + b.X, a.Y + b.Y} }

func (a Vec) Sub(b Vec) Vec { return Vec{a.X - b.X, a.Y - b.Y} }

func (a Vec) Scale(k float64) Vec { return Vec{a.X * k, a.Y * k} }

func (a Vec) Cross(b Vec) float64 { return a.X*b.Y - a.Y*b.X }

func (a Vec) Len() float64 { return math.Hypot(a.X, a.Y) }

func (a Vec) Dist(b Vec) float64 { return a.Sub(b).Len() }

// heading is the unit vector for angle theta.
func heading(theta float64) Vec { return Vec{math.Cos(theta), math.Sin(theta)} }

// wrapAngle maps a to (-pi, pi].
func wrapAngle(a float64) float64 { return math.Atan2(math.Sin(a), math.Cos(a)) }

// Segment is a wall.
type Segment struct {
	A, B Vec
}

// Box is an axis-aligned obstacle.
type Box struct {
	Min, Max Vec
}

func (b Box) segments() []Segment {
	p1, p2 := b.Min, Vec{b.Max.X, b.Min.Y}
	p3, p4 := b.Max, Vec{b.Min.X, b.Max.Y}
	return []Segment{{p1, p2}, {p2, p3}, {p3, p4}, {p4, p1}}
}

// Light is a point light source.
type Light struct {
	Pos       Vec
	Intensity float64
}

// Spot is a floor patch with its own reflectance (0 black, 1 white).
type Spot struct {
	Center      Vec
	Radius      float64
	Reflectance float64
}

// World is the static arena.
type World struct {
	Walls  []Segment
	Lights []Light
	Spots  []Spot

	// FloorReflectance is reported by ground sensors outside any spot.
	FloorReflectance float64
}

// NewArena returns a square arena of the given half size centred on the
// origin, with optional boxes inside.
func NewArena(half float64, boxes ...Box) *World {
	w := &World{FloorReflectance: 1}
	w.Walls = Box{Min: Vec{-half, -half}, Max: Vec{half, half}}.segments()
	for _, b := range boxes {
		w.Walls = append(w.Walls, b.segments()...)
	}
	return w
}

// raycast returns the distance from origin along dir to the nearest wall,
// or maxRange if nothing is hit within it.
func (w *World) raycast(origin, dir Vec, maxRange float64) float64 {
	best := maxRange
	for _, s := range w.Walls {
		if d, ok := intersect(origin, dir, s); ok && d < best {
			best = d
		}
	}
	return best
}

// intersect solves origin + t*dir = A + u*(B-A) for t >= 0, u in [0,1].
func intersect(origin, dir Vec, s Segment) (float64, bool) {
	edge := s.B.Sub(s.A)
	denom := dir.Cross(edge)
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}
	diff := s.A.Sub(origin)
	t := diff.Cross(edge) / denom
	u := diff.Cross(dir) / denom
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

// clearance returns the distance from p to the nearest wall.
func (w *World) clearance(p Vec) float64 {
	best := math.Inf(1)
	for _, s := range w.Walls {
		if d := pointSegmentDist(p, s); d < best {
			best = d
		}
	}
	return best
}

func pointSegmentDist(p Vec, s Segment) float64 {
	edge := s.B.Sub(s.A)
	l2 := edge.X*edge.X + edge.Y*edge.Y
	if l2 == 0 {
		return p.Dist(s.A)
	}
	t := ((p.X-s.A.X)*edge.X + (p.Y-s.A.Y)*edge.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(s.A.Add(edge.Scale(t)))
}

// reflectance returns the floor value under p.
func (w *World) reflectance(p Vec) float64 {
	for _, s := range w.Spots {
		if p.Dist(s.Center) <= s.Radius {
			return s.Reflectance
		}
	}
	return w.FloorReflectance
}

// illumination returns the light reaching a sensor at p facing dir.
func (w *World) illumination(p, dir Vec) float64 {
	total := 0.0
	for _, l := range w.Lights {
		to := l.Pos.Sub(p)
		d := to.Len()
		if d < 1e-6 {
			total += l.Intensity
			continue
		}
		cos := (to.X*dir.X + to.Y*dir.Y) / d
		if cos <= 0 {
			continue
		}
		// occluded lights do not count
		if w.raycast(p, to.Scale(1/d), d) < d {
			continue
		}
		total += l.Intensity * cos / (1 + d*d)
	}
	return total
}
