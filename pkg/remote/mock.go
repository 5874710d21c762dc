package remote

import (
	"context"
	"sync"

	"github.com/teslashibe/go-epuck/pkg/status"
)

// Call records one request made against a Mock.
type Call struct {
	Op       Op
	Target   string
	Function string
	Signal   string
	Enable   bool
	In       Args
}

// CallFunc produces the reply for a scripted function.
type CallFunc func(in Args) (Args, status.Code, error)

// SignalFunc produces the buffered value of a scripted signal.
type SignalFunc func() ([]byte, status.Code, error)

// Mock is a scriptable Link for tests. Unscripted functions and signals
// answer with the remote-error flag, the way the simulator answers a call to
// a script function that does not exist.
type Mock struct {
	mu        sync.Mutex
	functions map[string]CallFunc
	signals   map[string]SignalFunc
	simCodes  map[Op]status.Code
	calls     []Call
	closed    bool
}

// NewMock creates an empty mock link.
func NewMock() *Mock {
	return &Mock{
		functions: make(map[string]CallFunc),
		signals:   make(map[string]SignalFunc),
		simCodes:  make(map[Op]status.Code),
	}
}

// OnCall scripts a constant successful reply for a function.
func (m *Mock) OnCall(function string, out Args) {
	m.OnCallFunc(function, func(Args) (Args, status.Code, error) {
		return out, 0, nil
	})
}

// OnFloats scripts a constant float reply for a function.
func (m *Mock) OnFloats(function string, values ...float32) {
	m.OnCall(function, Args{Floats: values})
}

// OnCallFunc scripts a reply function for a function.
func (m *Mock) OnCallFunc(function string, fn CallFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.functions[function] = fn
}

// FailCall makes a function answer with the given status code.
func (m *Mock) FailCall(function string, code status.Code) {
	m.OnCallFunc(function, func(Args) (Args, status.Code, error) {
		return Args{}, code, nil
	})
}

// SetSignal scripts a constant buffered value for a signal.
func (m *Mock) SetSignal(signal string, payload []byte) {
	m.SetSignalFunc(signal, func() ([]byte, status.Code, error) {
		return payload, 0, nil
	})
}

// SetSignalFunc scripts a reply function for a signal.
func (m *Mock) SetSignalFunc(signal string, fn SignalFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[signal] = fn
}

// FailSignal makes a signal read answer with the given status code.
func (m *Mock) FailSignal(signal string, code status.Code) {
	m.SetSignalFunc(signal, func() ([]byte, status.Code, error) {
		return nil, code, nil
	})
}

// SetSimStatus sets the code answered to a simulation control op.
func (m *Mock) SetSimStatus(op Op, code status.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simCodes[op] = code
}

// Calls returns a copy of all recorded requests.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns how many requests matched op and, if non-empty, name
// (function for calls, signal for signal ops).
func (m *Mock) Count(op Op, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op != op {
			continue
		}
		if name == "" || c.Function == name || c.Signal == name {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests but keeps the script.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.calls = append(m.calls, c)
	return nil
}

// CallFunction implements Link.
func (m *Mock) CallFunction(ctx context.Context, target, function string, in Args) (Args, status.Code, error) {
	if err := m.record(Call{Op: OpCall, Target: target, Function: function, In: in}); err != nil {
		return Args{}, status.Code(status.LocalError), err
	}
	m.mu.Lock()
	fn := m.functions[function]
	m.mu.Unlock()

	if fn == nil {
		return Args{}, status.Code(status.RemoteError), nil
	}
	return fn(in)
}

// StartStreaming implements Link.
func (m *Mock) StartStreaming(ctx context.Context, signal string) (status.Code, error) {
	if err := m.record(Call{Op: OpStream, Signal: signal}); err != nil {
		return status.Code(status.LocalError), err
	}
	// Streaming start answers "no value yet", as the simulator does.
	return status.Code(status.NoValue), nil
}

// BufferedSignal implements Link.
func (m *Mock) BufferedSignal(ctx context.Context, signal string) ([]byte, status.Code, error) {
	if err := m.record(Call{Op: OpBuffer, Signal: signal}); err != nil {
		return nil, status.Code(status.LocalError), err
	}
	m.mu.Lock()
	fn := m.signals[signal]
	m.mu.Unlock()

	if fn == nil {
		return nil, status.Code(status.NoValue), nil
	}
	return fn()
}

func (m *Mock) simOp(op Op, enable bool) (status.Code, error) {
	if err := m.record(Call{Op: op, Enable: enable}); err != nil {
		return status.Code(status.LocalError), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.simCodes[op], nil
}

// StartSimulation implements Link.
func (m *Mock) StartSimulation(ctx context.Context) (status.Code, error) {
	return m.simOp(OpStartSim, false)
}

// SetSynchronous implements Link.
func (m *Mock) SetSynchronous(ctx context.Context, enable bool) (status.Code, error) {
	return m.simOp(OpSynchronous, enable)
}

// TriggerStep implements Link.
func (m *Mock) TriggerStep(ctx context.Context) (status.Code, error) {
	return m.simOp(OpTriggerStep, false)
}

// Close implements Link.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Link = (*Mock)(nil)
