// Package ipc implements the IPC Message Loop (spec.md §4.H): a
// length-prefixed request/response server on a Unix domain socket,
// dispatching to Engine Facade operations, plus investigate-mode
// notification fan-out.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the wire-level u32 code identifying a frame's payload
// shape (spec.md §6's exact-values table).
type MessageType uint32

const (
	InvestigateWindow      MessageType = 0x1001
	InvestigateWindowReply MessageType = 0x1002
	EnableInvestigateMode  MessageType = 0x1003
	DisableInvestigateMode MessageType = 0x1004
	KeyEventNotify         MessageType = 0x1005

	Reload     MessageType = 0x2001
	StopCmd    MessageType = 0x2002
	StartCmd   MessageType = 0x2003
	GetStatus  MessageType = 0x2004
	GetConfig  MessageType = 0x2005
	GetKeymaps MessageType = 0x2006
	GetMetrics MessageType = 0x2007

	Ok           MessageType = 0x2100
	ErrorReply   MessageType = 0x2101
	StatusReply  MessageType = 0x2102
	ConfigReply  MessageType = 0x2103
	KeymapsReply MessageType = 0x2104
	MetricsReply MessageType = 0x2105
)

// MaxPayload is the IpcOverflow threshold (spec.md §7): a frame whose length
// prefix exceeds this is rejected with an Error response, the connection
// otherwise continues.
const MaxPayload = 1 << 20 // 1 MiB

// investigateReplyFieldLen is the fixed width of each fixed-size string
// field in the InvestigateWindow reply payload (spec.md §6).
const investigateReplyFieldLen = 256

// Frame is one decoded length-prefixed message: u32 length (covering the
// type field and the payload), u32 type, then length-4 bytes of payload.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// ErrFraming is returned by ReadFrame when the byte stream is not a strict
// u32-len|u32-type|payload triple — the connection must be closed
// (spec.md §7's IpcFraming error kind).
var ErrFraming = fmt.Errorf("ipc: malformed frame")

// ErrOverflow is returned by ReadFrame when the declared length exceeds
// MaxPayload (spec.md §7's IpcOverflow error kind). The connection may
// continue; the caller should write an Error response.
var ErrOverflow = fmt.Errorf("ipc: payload exceeds %d bytes", MaxPayload)

// ReadFrame reads one frame from r. io.EOF on the very first read (no bytes
// at all) is returned unwrapped so callers can distinguish a clean
// connection close from a mid-frame truncation.
//
// The length prefix L covers the type field plus the payload (spec.md §4.H:
// "payload begins with a 4-byte type code, then L-4 bytes"): after the
// initial u32 length, exactly L more bytes follow — 4 bytes of type, then
// L-4 bytes of payload.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenHeader [4]byte
	n, err := io.ReadFull(r, lenHeader[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	length := binary.BigEndian.Uint32(lenHeader[:])
	if length < 4 {
		return Frame{}, fmt.Errorf("%w: length %d too short for type field", ErrFraming, length)
	}

	payloadLen := length - 4
	if payloadLen > MaxPayload {
		// Drain and discard so the stream stays framed for the next message.
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrFraming, err)
		}
		return Frame{}, ErrOverflow
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	typ := MessageType(binary.BigEndian.Uint32(rest[0:4]))
	return Frame{Type: typ, Payload: rest[4:]}, nil
}

// WriteFrame writes one length-prefixed frame to w. The length prefix
// covers the 4-byte type field plus payload, matching ReadFrame.
func WriteFrame(w io.Writer, typ MessageType, payload []byte) error {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(4+len(payload)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(typ))
	copy(buf[8:], payload)
	_, err := w.Write(buf)
	return err
}

// fixedString truncates s to n bytes and pads with NUL, matching the
// InvestigateWindow reply's `field[256]` fixed-width C-struct convention
// (spec.md §6) translated into a Go byte slice.
func fixedString(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func trimFixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
