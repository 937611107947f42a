package inspector

import "github.com/sadewadee/phpworld/internal/wire"

// Direction identifies which way a traced frame travelled.
type Direction string

const (
	DirectionOutbound Direction = "out"
	DirectionInbound  Direction = "in"
)

// Event is the msgpack-encoded unit streamed to a connected debug
// client: one per wire frame, host-side write or PHP-side reply alike.
type Event struct {
	Seq          uint64           `msgpack:"seq"`
	Direction    Direction        `msgpack:"dir"`
	RecordType   wire.RecordType  `msgpack:"record_type,omitempty"`
	FrameKind    wire.FrameKind   `msgpack:"frame_kind,omitempty"`
	CallbackKind wire.CallbackKind `msgpack:"callback_kind,omitempty"`
	Payload      []byte           `msgpack:"payload,omitempty"`
}
