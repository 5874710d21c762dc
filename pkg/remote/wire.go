package remote

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/teslashibe/go-epuck/pkg/status"
)

// Op identifies the kind of remote request.
type Op string

const (
	OpCall        Op = "call"          // blocking script function call
	OpStream      Op = "signal.stream" // start streaming a signal
	OpBuffer      Op = "signal.buffer" // read the last buffered value of a signal
	OpStartSim    Op = "sim.start"     // start the simulation
	OpSynchronous Op = "sim.sync"      // enable or disable lock-step mode
	OpTriggerStep Op = "sim.trigger"   // advance one simulation tick
)

// Args carries the typed input or output buffers of a script call.
type Args struct {
	Ints    []int32   `msgpack:"ints,omitempty"`
	Floats  []float32 `msgpack:"floats,omitempty"`
	Strings []string  `msgpack:"strings,omitempty"`
	Bytes   []byte    `msgpack:"bytes,omitempty"`
}

// Request is the wire envelope sent to the simulator bridge.
type Request struct {
	ID       string `msgpack:"id"`
	Op       Op     `msgpack:"op"`
	Target   string `msgpack:"target,omitempty"`
	Function string `msgpack:"function,omitempty"`
	Signal   string `msgpack:"signal,omitempty"`
	Enable   bool   `msgpack:"enable,omitempty"`
	Args     `msgpack:",inline"`
}

// Response is the wire envelope returned by the simulator bridge.
type Response struct {
	ID     string      `msgpack:"id"`
	Status status.Code `msgpack:"status"`
	Error  string      `msgpack:"error,omitempty"`
	Args   `msgpack:",inline"`
}

// EncodeRequest serializes a request to msgpack.
func EncodeRequest(r *Request) ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return data, nil
}

// DecodeRequest parses a msgpack request.
func DecodeRequest(data []byte) (*Request, error) {
	var r Request
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &r, nil
}

// EncodeResponse serializes a response to msgpack.
func EncodeResponse(r *Response) ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return data, nil
}

// DecodeResponse parses a msgpack response.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &r, nil
}

// PackFloats encodes values the way the simulator packs float string
// signals: consecutive little-endian float32.
func PackFloats(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// UnpackFloats decodes a packed float signal. Trailing bytes that do not
// form a whole float are an error.
func UnpackFloats(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("packed float signal has %d bytes, not a multiple of 4", len(data))
	}
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return out, nil
}
