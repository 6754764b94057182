// Package frame implements the shipproxy wire codec: a strictly ordered
// stream of typed, length-prefixed frames. The binary layout mirrors the
// header-then-payload discipline go-rawhttp's pkg/http2 frame handler uses
// around golang.org/x/net/http2.Framer, but the frame set here is the
// fixed 14-type shipproxy protocol rather than HTTP/2, so the header is a
// plain encoding/binary write instead of a Framer call.
package frame

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shipproxy/shipproxy/internal/constants"
)

// Type identifies the kind of a frame on the link.
type Type uint8

// Frame type constants, per the wire protocol table.
const (
	TypeRequestStart      Type = 1
	TypeRequestBodyChunk  Type = 2
	TypeRequestEnd        Type = 3
	TypeResponseStart     Type = 4
	TypeResponseBodyChunk Type = 5
	TypeResponseEnd       Type = 6
	TypeConnectOpen       Type = 10
	TypeConnectOpenResult Type = 11
	TypeConnectDataC2S    Type = 12
	TypeConnectDataS2C    Type = 13
	TypeConnectClose      Type = 14
)

func (t Type) String() string {
	switch t {
	case TypeRequestStart:
		return "RequestStart"
	case TypeRequestBodyChunk:
		return "RequestBodyChunk"
	case TypeRequestEnd:
		return "RequestEnd"
	case TypeResponseStart:
		return "ResponseStart"
	case TypeResponseBodyChunk:
		return "ResponseBodyChunk"
	case TypeResponseEnd:
		return "ResponseEnd"
	case TypeConnectOpen:
		return "ConnectOpen"
	case TypeConnectOpenResult:
		return "ConnectOpenResult"
	case TypeConnectDataC2S:
		return "ConnectDataC2S"
	case TypeConnectDataS2C:
		return "ConnectDataS2C"
	case TypeConnectClose:
		return "ConnectClose"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// WriteFrame writes one frame (type, big-endian uint32 length, payload) and
// flushes immediately: peers must never wait on buffered data sitting in
// this process.
func WriteFrame(w *bufio.Writer, t Type, payload []byte) error {
	var hdr [5]byte
	hdr[0] = byte(t)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("frame: write payload: %w", err)
		}
	}
	return w.Flush()
}

// ReadFrame reads exactly one frame: a 5-byte header then length payload
// bytes. A closed stream mid-frame surfaces as io.ErrUnexpectedEOF (or the
// underlying io.EOF if it happens exactly on a frame boundary).
func ReadFrame(r *bufio.Reader) (Type, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("frame: read header: %w", err)
	}
	t := Type(hdr[0])
	length := binary.BigEndian.Uint32(hdr[1:])
	if length > constants.MaxFramePayload {
		return 0, nil, fmt.Errorf("frame: payload length %d exceeds cap %d", length, constants.MaxFramePayload)
	}
	if length == 0 {
		return t, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, fmt.Errorf("frame: read payload: %w", err)
	}
	return t, payload, nil
}

// EncodeJSON marshals v as compact (whitespace-free) UTF-8 JSON, matching
// the wire format's `json.dumps(v, separators=(",", ":"))` convention.
func EncodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeJSON unmarshals payload into v.
func DecodeJSON(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}

// WriteJSONFrame encodes v as JSON and writes it as a single frame of type t.
func WriteJSONFrame(w *bufio.Writer, t Type, v any) error {
	payload, err := EncodeJSON(v)
	if err != nil {
		return fmt.Errorf("frame: encode json: %w", err)
	}
	return WriteFrame(w, t, payload)
}
