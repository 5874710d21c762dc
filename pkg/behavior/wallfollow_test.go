package behavior

import (
	"testing"

	"github.com/teslashibe/go-epuck/pkg/robot"
)

func farReadings() []float64 {
	return []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
}

func with(d []float64, idx int, v float64) []float64 {
	d[idx] = v
	return d
}

func TestBangBangWallFollow_States(t *testing.T) {
	b := NewBangBangWallFollow()
	max := b.MaxSpeed

	tests := []struct {
		name string
		prox []float64
		want robot.Speed
	}{
		{"drive to wall", farReadings(), forward(max)},
		{"wall ahead, turn away", with(farReadings(), FrontLeft, 0.02), turnRight(max)},
		{"wall on the left, in band", with(farReadings(), LeftFront, 0.02), forward(max)},
		{"too close", with(farReadings(), LeftFront, 0.005), turnRight(max)},
		{"side too close", with(with(farReadings(), LeftFront, 0.02), Left, 0.01), forward(max)},
		{"too far", farReadings(), turnLeft(max)},
		{"corner", with(farReadings(), FrontRight, 0.03), turnRight(max)},
	}

	for _, tt := range tests {
		got, ok := b.Decide(Perception{Proximity: tt.prox})
		if !ok {
			t.Fatalf("%s: no command", tt.name)
		}
		if got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestBangBangWallFollow_ShortReading(t *testing.T) {
	b := NewBangBangWallFollow()
	if _, ok := b.Decide(Perception{Proximity: []float64{0.1}}); ok {
		t.Error("expected no command for a short reading")
	}
}

func TestProportionalWallFollow(t *testing.T) {
	c := NewProportionalWallFollow()

	// approach, then find and align with the wall
	c.Decide(Perception{Proximity: with(farReadings(), FrontLeft, 0.02)})
	d := []float64{0.02, 0.03, 0.1, 0.1, 0.1, 0.1, 0.1, 0.05}
	got, ok := c.Decide(Perception{Proximity: d})
	if !ok {
		t.Fatal("no command while following")
	}

	sum := d[FrontLeft] + d[LeftFront] + d[Left] + d[BackLeft]
	k := 52 * sum * sum
	if !floatEquals(got.Left, c.MaxSpeed-k) || !floatEquals(got.Right, k) {
		t.Errorf("got %+v, want {%v %v}", got, c.MaxSpeed-k, k)
	}
}

func TestBangBangPush(t *testing.T) {
	b := NewBangBangPush()
	max := b.MaxSpeed

	frame := robot.NewCameraFrame(4, 4)
	got, _ := b.Decide(Perception{Proximity: farReadings(), Frame: frame})
	if got != turnRight(max) {
		t.Errorf("searching: got %+v, want turn right", got)
	}

	frame.Set(2, 2, robot.Pixel{R: 10, G: 10, B: 200})
	got, _ = b.Decide(Perception{Proximity: farReadings(), Frame: frame})
	if got != halt() {
		t.Errorf("found: got %+v, want stop", got)
	}

	got, _ = b.Decide(Perception{Proximity: with(farReadings(), FrontRight, 0.05)})
	if got != turnRight(max) {
		t.Errorf("puck drifting right: got %+v", got)
	}
	got, _ = b.Decide(Perception{Proximity: farReadings()})
	if got != forward(max) {
		t.Errorf("balanced: got %+v", got)
	}
}
