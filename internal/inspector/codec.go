package inspector

import "github.com/vmihailenco/msgpack/v5"

// marshalMsgpack encodes a trace event to msgpack bytes for the wire
// format consumed by the debug client.
func marshalMsgpack(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}
