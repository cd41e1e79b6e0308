package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestWriteThenReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, GetStatus, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Type != GetStatus {
		t.Errorf("Type = 0x%04X, want 0x%04X", frame.Type, GetStatus)
	}
	if string(frame.Payload) != "hello" {
		t.Errorf("Payload = %q, want %q", frame.Payload, "hello")
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, StopCmd, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Payload) != 0 {
		t.Errorf("Payload len = %d, want 0", len(frame.Payload))
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf)
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestReadFrameTruncatedHeaderIsFraming(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x00, 0x00})
	_, err := ReadFrame(buf)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("err = %v, want ErrFraming", err)
	}
}

func TestReadFrameTruncatedPayloadIsFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, GetStatus, []byte("0123456789")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := bytes.NewBuffer(buf.Bytes()[:10])
	_, err := ReadFrame(truncated)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("err = %v, want ErrFraming", err)
	}
}

func TestReadFrameOverflowThenNextFrameSucceeds(t *testing.T) {
	var buf bytes.Buffer
	oversizedPayload := make([]byte, MaxPayload+1)
	writeRaw(t, &buf, GetMetrics, oversizedPayload)
	if err := WriteFrame(&buf, GetStatus, []byte("next")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if _, err := ReadFrame(&buf); !errors.Is(err, ErrOverflow) {
		t.Fatalf("first ReadFrame err = %v, want ErrOverflow", err)
	}

	frame2, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("second ReadFrame: %v", err)
	}
	if string(frame2.Payload) != "next" {
		t.Errorf("second frame payload = %q, want %q", frame2.Payload, "next")
	}
}

func TestWriteFrameLengthPrefixCoversTypeField(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, GetStatus, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	length := binary.BigEndian.Uint32(buf.Bytes()[0:4])
	if want := uint32(4 + len("hello")); length != want {
		t.Errorf("length prefix = %d, want %d (4-byte type + payload)", length, want)
	}
}

func writeRaw(t *testing.T, buf *bytes.Buffer, typ MessageType, payload []byte) {
	t.Helper()
	if err := WriteFrame(buf, typ, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
}

func TestFixedStringTruncatesAndPads(t *testing.T) {
	b := fixedString("hi", 5)
	if len(b) != 5 {
		t.Fatalf("len = %d, want 5", len(b))
	}
	if string(b[:2]) != "hi" || b[2] != 0 {
		t.Errorf("fixedString(%q, 5) = %v", "hi", b)
	}
}

func TestTrimFixedStringStopsAtNUL(t *testing.T) {
	b := fixedString("abc", 8)
	if got := trimFixedString(b); got != "abc" {
		t.Errorf("trimFixedString = %q, want %q", got, "abc")
	}
}
