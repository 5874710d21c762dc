// Package hub fans robot updates out to dashboard websocket clients.
//
// Every client gets its own buffered queue; a client that cannot keep up is
// dropped instead of slowing the robot's refresh path.
package hub

import "github.com/gofiber/websocket/v2"

// MessageType selects the websocket frame a Message is written as.
type MessageType int

const (
	// JSONMessage is a protocol envelope sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is raw data such as a PNG camera frame.
	BinaryMessage
)

func (t MessageType) String() string {
	if t == BinaryMessage {
		return "binary"
	}
	return "json"
}

// frameType maps t to the websocket opcode.
func (t MessageType) frameType() int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Message is one queued frame.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps an encoded envelope.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
