package behavior

import (
	"math"

	"github.com/teslashibe/go-epuck/pkg/robot"
)

// Proximity sensor positions.
const (
	Left       = 0
	LeftFront  = 1
	FrontLeft  = 2
	FrontRight = 3
	RightFront = 4
	Right      = 5
	BackRight  = 6
	BackLeft   = 7
)

// Wall-follow thresholds in meters of free distance.
const (
	FrontBlocked = 0.05
	TooClose     = 0.012
	SideTooClose = 0.015
	TooFar       = 0.04
)

// commands shared by the bang-bang controllers
func forward(max float64) robot.Speed { return robot.Speed{Left: max, Right: max} }

func turnRight(max float64) robot.Speed { return robot.Speed{Left: max, Right: 0} }

func turnLeft(max float64) robot.Speed { return robot.Speed{Left: 0, Right: max} }

func halt() robot.Speed { return robot.Speed{} }

// wallState tracks approach and alignment shared by both wall followers.
type wallState struct {
	wallFound  bool
	positioned bool
}

// approach drives towards the first wall and turns until the wall is on the
// left. It returns the command and whether following may start.
func (w *wallState) approach(d []float64, max float64) (cmd robot.Speed, ok, follow bool) {
	if !w.wallFound {
		cmd, ok = forward(max), true
		if d[FrontLeft] < FrontBlocked || d[FrontRight] < FrontBlocked {
			w.wallFound = true
		}
	}
	if w.wallFound && !w.positioned {
		if d[FrontLeft] < FrontBlocked || d[LeftFront] < TooClose {
			cmd, ok = turnRight(max), true
		} else {
			w.positioned = true
		}
	}
	return cmd, ok, w.positioned
}

// BangBangWallFollow keeps a wall on the robot's left with full-speed turns.
type BangBangWallFollow struct {
	MaxSpeed float64
	wallState
}

// NewBangBangWallFollow creates the controller with the e-Puck speed limit.
func NewBangBangWallFollow() *BangBangWallFollow {
	return &BangBangWallFollow{MaxSpeed: robot.DefaultMaxVelocity}
}

func (b *BangBangWallFollow) Name() string { return "bangbang-wallfollow" }

// Decide implements Behavior.
func (b *BangBangWallFollow) Decide(p Perception) (robot.Speed, bool) {
	d := p.Proximity
	if len(d) < robot.NumProximity {
		return robot.Speed{}, false
	}
	cmd, ok, follow := b.approach(d, b.MaxSpeed)
	if !follow {
		return cmd, ok
	}

	// corner ahead
	if d[FrontLeft] < FrontBlocked || d[FrontRight] < FrontBlocked {
		return turnRight(b.MaxSpeed), true
	}

	switch {
	case d[LeftFront] < TooClose || d[Left] < SideTooClose:
		cmd, ok = turnRight(b.MaxSpeed), true
	case d[LeftFront] > TooFar:
		cmd, ok = turnLeft(b.MaxSpeed), true
	}
	if d[LeftFront] > TooClose && d[LeftFront] < TooFar {
		cmd, ok = forward(b.MaxSpeed), true
	}
	return cmd, ok
}

// ProportionalWallFollow steers by the squared sum of the left-side
// readings.
type ProportionalWallFollow struct {
	MaxSpeed float64
	Gain     float64
	wallState
}

// NewProportionalWallFollow creates the controller with the tuned gain.
func NewProportionalWallFollow() *ProportionalWallFollow {
	return &ProportionalWallFollow{MaxSpeed: robot.DefaultMaxVelocity, Gain: 52}
}

func (c *ProportionalWallFollow) Name() string { return "proportional-wallfollow" }

// Decide implements Behavior.
func (c *ProportionalWallFollow) Decide(p Perception) (robot.Speed, bool) {
	d := p.Proximity
	if len(d) < robot.NumProximity {
		return robot.Speed{}, false
	}
	cmd, ok, follow := c.approach(d, c.MaxSpeed)
	if !follow {
		return cmd, ok
	}

	if d[FrontLeft] < FrontBlocked || d[FrontRight] < FrontBlocked {
		return turnRight(c.MaxSpeed), true
	}

	left := d[FrontLeft] + d[LeftFront] + d[Left] + d[BackLeft]
	k := c.Gain * math.Pow(left, 2)
	return robot.Speed{Left: c.MaxSpeed - k, Right: k}, true
}

// BangBangPush turns until a blue object is in the centre of the camera
// image, then balances it between the front sensors.
type BangBangPush struct {
	MaxSpeed float64
	found    bool
}

// NewBangBangPush creates the controller with the e-Puck speed limit.
func NewBangBangPush() *BangBangPush {
	return &BangBangPush{MaxSpeed: robot.DefaultMaxVelocity}
}

func (b *BangBangPush) Name() string { return "bangbang-push" }

// UsesCamera implements CameraUser.
func (b *BangBangPush) UsesCamera() {}

// Decide implements Behavior.
func (b *BangBangPush) Decide(p Perception) (robot.Speed, bool) {
	if !b.found {
		if p.Frame == nil {
			return turnRight(b.MaxSpeed), true
		}
		c := p.Frame.At(p.Frame.Width/2, p.Frame.Height/2)
		if c.B > 100 && c.R < 100 {
			b.found = true
			return halt(), true
		}
		return turnRight(b.MaxSpeed), true
	}

	d := p.Proximity
	if len(d) < robot.NumProximity {
		return robot.Speed{}, false
	}
	switch {
	case d[FrontLeft] > d[FrontRight]:
		return turnRight(b.MaxSpeed), true
	case d[FrontLeft] < d[FrontRight]:
		return turnLeft(b.MaxSpeed), true
	default:
		return forward(b.MaxSpeed), true
	}
}
