package robot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-epuck/pkg/status"
)

// Sentinel errors. Use errors.Is to match them; the more specific ones
// also match their parent.
var (
	// ErrConfiguration is the parent of all invalid-setup errors.
	ErrConfiguration = errors.New("robot: configuration error")

	// ErrTooManySensors is returned when a subset names more ids than the
	// channel has sensors.
	ErrTooManySensors = fmt.Errorf("%w: too many sensors", ErrConfiguration)

	// ErrInvalidSensorID is returned for an id outside the channel's range.
	ErrInvalidSensorID = fmt.Errorf("%w: invalid sensor id", ErrConfiguration)

	// ErrNoSubset is returned when a subset is requested for a channel
	// that does not support one.
	ErrNoSubset = fmt.Errorf("%w: channel does not support a sensor subset", ErrConfiguration)

	// ErrNotSynchronous is returned when stepping is used on a session
	// created without synchronous mode.
	ErrNotSynchronous = fmt.Errorf("%w: session is not synchronous", ErrConfiguration)

	// ErrInvalidSpeed is returned for a NaN or infinite wheel velocity.
	ErrInvalidSpeed = fmt.Errorf("%w: wheel velocity is not a finite number", ErrConfiguration)

	// ErrNotEnabled is returned by a getter for a disabled channel.
	ErrNotEnabled = errors.New("robot: sensor not enabled")

	// ErrCameraNotEnabled is returned by the camera getter while the camera
	// is disabled.
	ErrCameraNotEnabled = fmt.Errorf("%w: camera", ErrNotEnabled)

	// ErrIncompatibleState is the parent of operations refused in the
	// current session state.
	ErrIncompatibleState = errors.New("robot: incompatible state")

	// ErrSteppingNotPossible is returned when stepping while a background
	// timer is active.
	ErrSteppingNotPossible = fmt.Errorf("%w: stepping not possible while a background timer is active", ErrIncompatibleState)

	// ErrNotConnected is returned before Connect or after Disconnect.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrIncompatibleState)

	// ErrRemoteCall matches every *RemoteCallError.
	ErrRemoteCall = errors.New("robot: remote call failed")

	// ErrShortReply is wrapped when a reply carries fewer values than the
	// channel needs.
	ErrShortReply = errors.New("robot: reply too short")
)

// RemoteCallError describes a failed call to the simulator, carrying the
// raw status code and its decoded flags.
type RemoteCallError struct {
	Op   string      // what the core was doing, e.g. "refresh proximity"
	Code status.Code // raw status bitmask, zero for a local decode failure
	Step int         // 1-based step index for stepping failures
	Err  error       // underlying transport or decode error, if any
}

// Flags returns the decoded status flags.
func (e *RemoteCallError) Flags() []status.Status {
	return status.Decode(e.Code)
}

func (e *RemoteCallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "robot: %s failed", e.Op)
	if e.Step > 0 {
		fmt.Fprintf(&b, " at step %d", e.Step)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, ". Return code msg from simulator: %s", e.Code.Describe())
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Is makes every RemoteCallError match ErrRemoteCall.
func (e *RemoteCallError) Is(target error) bool {
	return target == ErrRemoteCall
}

// IsTimeout reports whether the call timed out.
func (e *RemoteCallError) IsTimeout() bool {
	return e.Code.Has(status.Timeout)
}

// IsRemote reports whether the simulator reported a server-side error.
func (e *RemoteCallError) IsRemote() bool {
	return e.Code.Has(status.RemoteError)
}

// IsLocal reports whether the failure happened on this side of the link.
func (e *RemoteCallError) IsLocal() bool {
	return e.Code.Has(status.LocalError)
}

// IsTimeout reports whether err is a RemoteCallError caused by a timeout.
func IsTimeout(err error) bool {
	var rce *RemoteCallError
	return errors.As(err, &rce) && rce.IsTimeout()
}

// IsRemoteCall reports whether err is a RemoteCallError.
func IsRemoteCall(err error) bool {
	return errors.Is(err, ErrRemoteCall)
}

// checkCall turns a link result into an error. A transport error always
// yields a RemoteCallError with at least the local-error flag set.
func checkCall(op string, code status.Code, err error) error {
	if err != nil {
		if code == 0 {
			code = status.Code(status.LocalError)
		}
		return &RemoteCallError{Op: op, Code: code, Err: err}
	}
	if !code.OK() {
		return &RemoteCallError{Op: op, Code: code}
	}
	return nil
}

// ConfigError is an invalid sensor setup on one channel.
type ConfigError struct {
	Sensor Sensor
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v (%s: %s)", e.Err, e.Sensor, e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func sizeDetail(got, limit int) string {
	return fmt.Sprintf("%d ids requested, channel has %d sensors", got, limit)
}

func idDetail(id, limit int) string {
	return fmt.Sprintf("id %d outside [0, %d)", id, limit)
}
