// Package status decodes the return-code bitmask that the simulator's remote
// API attaches to every call.
//
// A zero code means success. Any other value is a set of independent flags
// that may co-occur, e.g. a remote error reported together with a timeout.
package status

import (
	"fmt"
	"strings"
)

// Code is the raw bitmask returned by a remote call.
type Code int32

// Flag is one named condition inside a Code.
type Flag int32

// Known flags. Values are the bit they occupy in a Code; OK is the whole-value
// match for zero and Unknown is a sentinel that never appears on the wire.
const (
	Unknown         Flag = -1
	OK              Flag = 0
	NoValue         Flag = 1  // input buffer doesn't contain the command
	Timeout         Flag = 2  // reply not received in time
	IllegalOpMode   Flag = 4  // operation mode not supported by the command
	RemoteError     Flag = 8  // command failed on the server side
	SplitProgress   Flag = 16 // previous split command still in progress
	LocalError      Flag = 32 // command failed on the client side
	InitializeError Flag = 64 // session was never started
)

// knownBits lists the flags in decode order.
var knownBits = []Flag{NoValue, Timeout, IllegalOpMode, RemoteError, SplitProgress, LocalError, InitializeError}

var names = map[Flag]string{
	Unknown:         "unknown",
	OK:              "ok",
	NoValue:         "novalue",
	Timeout:         "timeout",
	IllegalOpMode:   "illegal_opmode",
	RemoteError:     "remote_error",
	SplitProgress:   "split_progress",
	LocalError:      "local_error",
	InitializeError: "initialize_error",
}

var details = map[Flag]string{
	OK:              "Code 0: OK",
	NoValue:         "Code 1: Input buffer doesn't contain the specified command.",
	Timeout:         "Code 2: Command reply not received in time for blocking operation mode.",
	IllegalOpMode:   "Code 4: Command doesn't support the specified operation mode.",
	RemoteError:     "Code 8: Command caused an error on the server side.",
	SplitProgress:   "Code 16: Previous similar command not yet fully processed.",
	LocalError:      "Code 32: Command caused an error on the client side.",
	InitializeError: "Code 64: Remote session was not yet started.",
}

// String returns the short name of the flag.
func (f Flag) String() string {
	if n, ok := names[f]; ok {
		return n
	}
	return fmt.Sprintf("flag(%d)", int32(f))
}

// Status is a decoded flag. Raw keeps the code it was decoded from so that the
// unknown sentinel can report the value it could not interpret.
type Status struct {
	Flag Flag
	Raw  Code
}

// Detail returns the fixed human-readable description of the flag.
func (s Status) Detail() string {
	if d, ok := details[s.Flag]; ok {
		return d
	}
	return fmt.Sprintf("Given return code unknown. Return code: %d", int32(s.Raw))
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return s.Flag.String()
}

// Decode expands a code into its flags. Zero is matched as a whole value and
// yields exactly {OK}; every other value is tested bit by bit in ascending
// order. A value with no known bit yields the Unknown sentinel, so the result
// is never empty.
func Decode(c Code) []Status {
	if c == 0 {
		return []Status{{Flag: OK, Raw: c}}
	}

	var out []Status
	for _, bit := range knownBits {
		if Code(bit)&c != 0 {
			out = append(out, Status{Flag: bit, Raw: c})
		}
	}
	if len(out) == 0 {
		out = append(out, Status{Flag: Unknown, Raw: c})
	}
	return out
}

// OK reports whether the code signals success.
func (c Code) OK() bool {
	return c == 0
}

// Has reports whether the flag bit is set. Has(OK) is true only for zero.
func (c Code) Has(f Flag) bool {
	switch f {
	case OK:
		return c == 0
	case Unknown:
		return Decode(c)[0].Flag == Unknown
	default:
		return Code(f)&c != 0
	}
}

// Describe concatenates the details of every decoded flag in flag order.
func (c Code) Describe() string {
	flags := Decode(c)
	parts := make([]string, len(flags))
	for i, s := range flags {
		parts[i] = s.Detail()
	}
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer, e.g. "timeout|remote_error".
func (c Code) String() string {
	flags := Decode(c)
	parts := make([]string, len(flags))
	for i, s := range flags {
		parts[i] = s.Flag.String()
	}
	return strings.Join(parts, "|")
}
