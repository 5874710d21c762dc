package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/protocol"
	"github.com/teslashibe/go-epuck/pkg/robot"
)

// Topic suffixes below the configured prefix.
const (
	TopicSensors = "sensors"
	TopicCamera  = "camera"
)

const (
	// queueSize bounds the messages waiting for the broker.
	queueSize = 64

	// publishTimeout bounds a single broker write.
	publishTimeout = 5 * time.Second
)

// Snapshotter provides the cached robot state.
type Snapshotter interface {
	Snapshot() robot.Snapshot
}

// Stats are the publisher counters.
type Stats struct {
	Published uint64
	Dropped   uint64 // queue full
	Errors    uint64
}

type outbound struct {
	topic   string
	payload []byte
}

// Publisher observes a robot and forwards each refresh to a Backend.
// Observer callbacks only encode and enqueue; a worker goroutine does the
// network I/O so the refresh timer is never blocked by the broker.
type Publisher struct {
	backend Backend
	source  Snapshotter
	prefix  string
	log     *slog.Logger

	queue   chan outbound
	frameID atomic.Uint64

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64

	mu            sync.Mutex
	lastErrorTime time.Time

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var (
	_ robot.SensorObserver = (*Publisher)(nil)
	_ robot.CameraObserver = (*Publisher)(nil)
)

// NewPublisher creates a publisher writing to "<prefix>/sensors" and
// "<prefix>/camera".
func NewPublisher(b Backend, source Snapshotter, prefix string) *Publisher {
	return &Publisher{
		backend: b,
		source:  source,
		prefix:  prefix,
		log:     log.With("component", "telemetry"),
		queue:   make(chan outbound, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}

// Start launches the worker goroutine.
func (p *Publisher) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

// Stop ends the worker. Messages still queued are discarded.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started.Load() {
		<-p.done
	}
}

// Stats returns the publisher counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Errors:    p.errors.Load(),
	}
}

// SensorValuesChanged implements robot.SensorObserver.
func (p *Publisher) SensorValuesChanged(changed []robot.Sensor) {
	msg, err := protocol.NewSensorsMessage(p.source.Snapshot(), changed)
	if err != nil {
		p.recordError(err)
		return
	}
	p.enqueue(TopicSensors, msg)
}

// CameraImageChanged implements robot.CameraObserver.
func (p *Publisher) CameraImageChanged(frame *robot.CameraFrame) {
	msg, err := protocol.NewCameraMessage(frame, p.frameID.Add(1))
	if err != nil {
		p.recordError(err)
		return
	}
	p.enqueue(TopicCamera, msg)
}

func (p *Publisher) enqueue(suffix string, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		p.recordError(err)
		return
	}
	select {
	case p.queue <- outbound{topic: p.Topic(suffix), payload: data}:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.log.Warn("telemetry queue full, dropping message", "dropped", n)
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case out := <-p.queue:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := p.backend.Publish(ctx, out.topic, out.payload)
			cancel()
			if err != nil {
				p.recordError(err)
				continue
			}
			p.published.Add(1)
		}
	}
}

// recordError counts a failure and logs at most once per 5 seconds.
func (p *Publisher) recordError(err error) {
	total := p.errors.Add(1)

	p.mu.Lock()
	loud := p.lastErrorTime.IsZero() || time.Since(p.lastErrorTime) > 5*time.Second
	if loud {
		p.lastErrorTime = time.Now()
	}
	p.mu.Unlock()

	if loud {
		p.log.Warn("publish failed", "error", err, "total_errors", total)
	}
}
