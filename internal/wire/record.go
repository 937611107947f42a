// Package wire implements the length-prefixed framing codec used to
// carry the host<->PHP command grammar.
//
// Two distinct byte layouts are used depending on direction:
//
//   - Outbound (Go -> PHP): an 8-byte tagged header (record type +
//     payload length) followed by the payload, padded to an 8-byte
//     boundary.
//   - Inbound (PHP -> Go): a bare big-endian int32 length. Zero means
//     the null value, -1 means the distinguished "undefined" value,
//     a positive length introduces a JSON result payload, and any
//     other negative length introduces a callback request (a small
//     binary header followed by a JSON payload).
//
// A single sign bit is enough to multiplex results and reentrant
// callback requests onto the same half-duplex byte stream.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// OutboundHeaderSize is the fixed size of an outbound (Go -> PHP) frame header.
const OutboundHeaderSize = 8

// RecordType tags the purpose of an outbound frame. Values are stable
// integers shared with bootstrap.php.
type RecordType uint8

// Outbound record types, one per wire-grammar command.
const (
	TypeConst RecordType = iota + 1
	TypeGet
	TypeSet
	TypeSetInst
	TypeSetPath
	TypeSetPathInst
	TypeUnset
	TypeUnsetPath
	TypeClassStaticGet
	TypeClassStaticSet
	TypeClassStaticCall
	TypeConstruct
	TypeDestruct
	TypeClassGet
	TypeClassSet
	TypeClassCall
	TypeClassCallPath
	TypeClassInvoke
	TypeClassGetIterator
	TypeClassToString
	TypeClassIsset
	TypeClassUnset
	TypeClassProps
	TypeClassIterateBegin
	TypeClassIterate
	TypePopFrame
	TypePushFrame
	TypeNObjects
	TypeEndStdout
	TypeCall
	TypeCallEcho
	TypeCallEval
	TypeCallEvalThis
	TypeCallInclude
	TypeCallIncludeOnce
	TypeCallRequire
	TypeCallRequireOnce
	TypeExit
	TypeData // reply to an inbound callback request
)

// CallbackKind tags the purpose of an inbound callback request.
type CallbackKind uint32

// CallbackRemoteError is the reserved CallbackKind (zero value, never
// assigned to a real callback below) used by the PHP side to report an
// unhandled throwable from its dispatch loop: the
// payload is a JSON array [file, line, message, trace] rather than a
// dispatch-table request, and HostHandle is unused.
const CallbackRemoteError CallbackKind = 0

const (
	CallbackGetClass CallbackKind = iota + 1
	CallbackConstruct
	CallbackDestruct
	CallbackClassGet
	CallbackClassSet
	CallbackClassCall
	CallbackClassInvoke
	CallbackClassGetIterator
	CallbackClassToString
	CallbackClassIsset
	CallbackClassUnset
	CallbackClassProps
	CallbackClassStaticCall
	CallbackCall
	CallbackJSONEncode
)

// DATA reply type flags, a bitmap.
const (
	FlagHasIterator uint8 = 1 << 0
	FlagHasLength   uint8 = 1 << 1
	FlagHasSize     uint8 = 1 << 2
	FlagIsString    uint8 = 1 << 3
	FlagIsJSON      uint8 = 1 << 4
	FlagIsError     uint8 = 1 << 5
)

// Feature bits returned by GET_CLASS lookups. ClassExists is always
// set for a resolved symbol so a featureless one is still
// distinguishable from the 0 "not found" answer.
const (
	HasLength   uint32 = 1 << 0
	HasSize     uint32 = 1 << 1
	HasIterator uint32 = 1 << 2
	ClassExists uint32 = 1 << 7
)

// FeatureFlags maps a GET_CLASS feature bitmap onto the corresponding
// DATA-reply flag bits, used when a composite result crosses as a new
// host-handle id whose flags describe its discovered features.
func FeatureFlags(bits uint32) uint8 {
	var f uint8
	if bits&HasIterator != 0 {
		f |= FlagHasIterator
	}
	if bits&HasLength != 0 {
		f |= FlagHasLength
	}
	if bits&HasSize != 0 {
		f |= FlagHasSize
	}
	return f
}

func pad8(total int) int {
	rem := total % 8
	if rem == 0 {
		return 0
	}
	return 8 - rem
}

// WriteOutbound writes a tagged frame to w: header + payload, padded
// to an 8-byte boundary.
func WriteOutbound(w io.Writer, t RecordType, payload []byte) error {
	total := OutboundHeaderSize + len(payload)
	padding := pad8(total)

	buf := make([]byte, OutboundHeaderSize, total+padding)
	buf[0] = byte(t)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	// buf[5:8] reserved, left zero.
	buf = append(buf, payload...)
	if padding > 0 {
		buf = append(buf, make([]byte, padding)...)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: writing outbound frame (type %d): %w", t, err)
	}
	return nil
}

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameNull FrameKind = iota
	FrameUndefined
	FrameResult
	FrameCallback
)

// Inbound is a decoded inbound (PHP -> Go) frame.
type Inbound struct {
	Kind FrameKind

	// Valid when Kind == FrameResult: the raw JSON-encoded result value.
	JSON []byte

	// Valid when Kind == FrameCallback.
	CallbackKind CallbackKind
	HostHandle   int32
	Payload      []byte // UTF-8 JSON payload specific to CallbackKind
}

const callbackHeaderSize = 8 // 4 bytes kind + 4 bytes host-handle id

// ReadInbound reads and classifies one inbound frame.
func ReadInbound(r io.Reader) (*Inbound, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: reading inbound length: %w", err)
	}
	length := int32(binary.BigEndian.Uint32(lenBuf[:]))

	switch {
	case length == 0:
		if _, err := readBody(r, 0); err != nil {
			return nil, err
		}
		return &Inbound{Kind: FrameNull}, nil
	case length == -1:
		if _, err := readBody(r, 0); err != nil {
			return nil, err
		}
		return &Inbound{Kind: FrameUndefined}, nil
	case length > 0:
		data, err := readBody(r, int(length))
		if err != nil {
			return nil, err
		}
		return &Inbound{Kind: FrameResult, JSON: data}, nil
	default:
		n := int(-length)
		data, err := readBody(r, n)
		if err != nil {
			return nil, err
		}
		if len(data) < callbackHeaderSize {
			return nil, fmt.Errorf("wire: callback request too short: %d bytes", len(data))
		}
		kind := CallbackKind(binary.BigEndian.Uint32(data[0:4]))
		handle := int32(binary.BigEndian.Uint32(data[4:8]))
		return &Inbound{
			Kind:         FrameCallback,
			CallbackKind: kind,
			HostHandle:   handle,
			Payload:      data[callbackHeaderSize:],
		}, nil
	}
}

// WriteInboundResult writes a length-prefixed result/null/undefined
// frame using the inbound layout. It is used by the PHP-role side of
// the protocol (bootstrap.php) and by Go-side test fakes that stand in
// for a PHP peer.
func WriteInboundResult(w io.Writer, json []byte) error {
	if json == nil {
		return writeInboundBody(w, 0, nil)
	}
	return writeInboundBody(w, int32(len(json)), json)
}

// WriteInboundUndefined writes the distinguished "undefined" marker frame.
func WriteInboundUndefined(w io.Writer) error {
	return writeInboundBody(w, -1, nil)
}

// WriteInboundCallback writes a callback-request frame using the
// inbound layout (negative length, kind + handle header, JSON payload).
func WriteInboundCallback(w io.Writer, kind CallbackKind, hostHandle int32, payload []byte) error {
	body := make([]byte, callbackHeaderSize+len(payload))
	binary.BigEndian.PutUint32(body[0:4], uint32(kind))
	binary.BigEndian.PutUint32(body[4:8], uint32(hostHandle))
	copy(body[callbackHeaderSize:], payload)
	return writeInboundBody(w, int32(-len(body)), body)
}

func writeInboundBody(w io.Writer, length int32, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(length))

	n := len(body)
	padding := pad8(4 + n)

	buf := make([]byte, 0, 4+n+padding)
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, body...)
	if padding > 0 {
		buf = append(buf, make([]byte, padding)...)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: writing inbound frame: %w", err)
	}
	return nil
}

// readBody reads n bytes of frame body plus the padding needed to
// align the next frame on an 8-byte boundary measured from the start
// of the length word that preceded it.
func readBody(r io.Reader, n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("wire: reading inbound body (%d bytes): %w", n, err)
	}
	if padding := pad8(4 + n); padding > 0 {
		var discard [8]byte
		if _, err := io.ReadFull(r, discard[:padding]); err != nil {
			return nil, fmt.Errorf("wire: reading inbound padding: %w", err)
		}
	}
	return data, nil
}
