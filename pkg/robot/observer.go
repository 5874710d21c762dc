package robot

import "sync"

// SensorObserver is notified after a refresh updated one or more channels.
// Callbacks run on the goroutine that performed the refresh and must not
// call StopSensing or Disconnect.
type SensorObserver interface {
	SensorValuesChanged(changed []Sensor)
}

// SensorObserverFunc adapts a function to SensorObserver.
type SensorObserverFunc func(changed []Sensor)

func (f SensorObserverFunc) SensorValuesChanged(changed []Sensor) { f(changed) }

// CameraObserver is notified after every successful camera refresh.
type CameraObserver interface {
	CameraImageChanged(frame *CameraFrame)
}

// CameraObserverFunc adapts a function to CameraObserver.
type CameraObserverFunc func(frame *CameraFrame)

func (f CameraObserverFunc) CameraImageChanged(frame *CameraFrame) { f(frame) }

type entry[T any] struct {
	id int
	o  T
}

// observers is a registration-ordered list of callbacks. Notification
// copies the list first, so observers may register or unregister from
// within a callback.
type observers[T any] struct {
	mu     sync.Mutex
	nextID int
	list   []entry[T]
}

func (l *observers[T]) add(o T) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.list = append(l.list, entry[T]{id: id, o: o})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *observers[T]) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.list {
		if e.id == id {
			l.list = append(l.list[:i:i], l.list[i+1:]...)
			return
		}
	}
}

func (l *observers[T]) each(fn func(T)) {
	l.mu.Lock()
	list := l.list
	l.mu.Unlock()

	for _, e := range list {
		fn(e.o)
	}
}

func (l *observers[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

// AddSensorObserver registers o and returns a function that unregisters it.
func (e *EPuck) AddSensorObserver(o SensorObserver) (remove func()) {
	return e.sensorObs.add(o)
}

// AddCameraObserver registers o and returns a function that unregisters it.
func (e *EPuck) AddCameraObserver(o CameraObserver) (remove func()) {
	return e.cameraObs.add(o)
}

func (e *EPuck) notifySensors(changed []Sensor) {
	if len(changed) == 0 {
		return
	}
	e.sensorObs.each(func(o SensorObserver) {
		o.SensorValuesChanged(changed)
	})
}

func (e *EPuck) notifyCamera(frame *CameraFrame) {
	e.cameraObs.each(func(o CameraObserver) {
		o.CameraImageChanged(frame)
	})
}
