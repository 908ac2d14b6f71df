package pairing

import (
	"time"

	"github.com/google/uuid"
)

// Operations carried in a Message.
const (
	// OpWrite appends Data to the characteristic UUID (peer to device).
	OpWrite = "write"
	// OpRead asks for the value of UUID (peer to device).
	OpRead = "read"
	// OpValue answers a read (device to peer).
	OpValue = "value"
	// OpNotify carries a status notification (device to peer).
	OpNotify = "notify"
	// OpError reports a rejected request (device to peer).
	OpError = "error"
)

// DefaultPath is where the bridge accepts websocket connections.
const DefaultPath = "/pair"

// DefaultChunkSize mirrors the payload of one low-energy radio write.
const DefaultChunkSize = 20

const (
	writeWait      = 10 * time.Second
	idleTimeout    = 2 * time.Minute
	maxMessageSize = 1 << 12
)

// Message is one JSON frame on the pairing socket. Data is base64 on the
// wire.
type Message struct {
	Op    string `json:"op"`
	UUID  string `json:"uuid,omitempty"`
	Data  []byte `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeMessage(id uuid.UUID, data []byte) Message {
	return Message{Op: OpWrite, UUID: id.String(), Data: data}
}

func readMessage(id uuid.UUID) Message {
	return Message{Op: OpRead, UUID: id.String()}
}
