package robot

import (
	"slices"
	"sync"
	"sync/atomic"
)

// cell holds one channel's cached value. Each cell has its own lock so a
// slow refresh of one channel never blocks readers of another.
//
// Writes carry the sequence number of the RPC that produced them; a write
// older than the stored value is dropped, so readers never see a stale reply
// overwrite a newer one.
type cell[T any] struct {
	mu  sync.Mutex
	v   T
	seq uint64
}

func (c *cell[T]) load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// update replaces the value with fn(old) unless seq is older than the
// stored value. It reports whether the value was replaced.
func (c *cell[T]) update(seq uint64, fn func(old T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.seq {
		return false
	}
	c.v = fn(c.v)
	c.seq = seq
	return true
}

// reading is the cached state of an indexed channel. IDs selects which raw
// sensor positions are kept; Values always has the same length as IDs.
type reading struct {
	IDs    []int
	Values []float64
}

// indexed is a channel with a fixed number of sensors that may be read as a
// subset (proximity, light, ground).
type indexed struct {
	kind     Sensor
	function string
	offset   int // position in the aggregated signal
	count    int
	enabled  atomic.Bool
	cell[reading]
}

func newIndexed(kind Sensor, function string, offset, count int) *indexed {
	ids := make([]int, count)
	for i := range ids {
		ids[i] = i
	}
	ch := &indexed{kind: kind, function: function, offset: offset, count: count}
	ch.v = reading{IDs: ids, Values: make([]float64, count)}
	return ch
}

// values returns a copy of the cached values.
func (ch *indexed) values() []float64 {
	return slices.Clone(ch.load().Values)
}

// store selects the enabled ids from raw and caches them.
func (ch *indexed) store(seq uint64, raw []float64) bool {
	return ch.update(seq, func(old reading) reading {
		vals := make([]float64, len(old.IDs))
		for i, id := range old.IDs {
			vals[i] = raw[id]
		}
		return reading{IDs: old.IDs, Values: vals}
	})
}

// selectIDs replaces the id list and resets the cached values to zero.
func (ch *indexed) selectIDs(seq uint64, ids []int) {
	ids = slices.Clone(ids)
	ch.update(seq, func(reading) reading {
		return reading{IDs: ids, Values: make([]float64, len(ids))}
	})
}

// validateIDs checks a subset against the channel size.
func (ch *indexed) validateIDs(ids []int) error {
	if len(ids) > ch.count {
		return &ConfigError{Sensor: ch.kind, Err: ErrTooManySensors, Detail: sizeDetail(len(ids), ch.count)}
	}
	for _, id := range ids {
		if id < 0 || id >= ch.count {
			return &ConfigError{Sensor: ch.kind, Err: ErrInvalidSensorID, Detail: idDetail(id, ch.count)}
		}
	}
	return nil
}

// scalar is a channel holding a single value (accelerometer, wheel
// encoding, pose, camera).
type scalar[T any] struct {
	kind    Sensor
	enabled atomic.Bool
	cell[T]
}
