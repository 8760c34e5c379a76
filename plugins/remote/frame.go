package remote

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/xcall/errors"
	"github.com/wippyai/xcall/types"
)

// MaxFrame bounds the encoded size of one frame.
const MaxFrame = 16 << 20

// FrameType is the kind of a protocol frame.
type FrameType uint8

const (
	FrameHello FrameType = iota + 1
	FrameResolve
	FrameCall
	FrameUnload
	FrameResult
	FrameError
)

func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "HELLO"
	case FrameResolve:
		return "RESOLVE"
	case FrameCall:
		return "CALL"
	case FrameUnload:
		return "UNLOAD"
	case FrameResult:
		return "RESULT"
	case FrameError:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Frame is one message. Requests carry a fresh id; the response to a
// request carries the same id.
type Frame struct {
	Type      FrameType  `cbor:"1,keyasint"`
	ID        []byte     `cbor:"2,keyasint,omitempty"`
	Name      string     `cbor:"3,keyasint,omitempty"`
	RuntimeID uint64     `cbor:"4,keyasint,omitempty"`
	Module    string     `cbor:"5,keyasint,omitempty"`
	Entity    string     `cbor:"6,keyasint,omitempty"`
	Params    []string   `cbor:"7,keyasint,omitempty"`
	Returns   []string   `cbor:"8,keyasint,omitempty"`
	Binding   uint64     `cbor:"9,keyasint,omitempty"`
	Block     []byte     `cbor:"10,keyasint,omitempty"`
	Error     *WireError `cbor:"11,keyasint,omitempty"`
}

// WireError is an error as it crosses the connection. Bridge errors keep
// their phase and kind; any other error travels as its message with an
// empty kind.
type WireError struct {
	Phase   string   `cbor:"1,keyasint,omitempty"`
	Kind    string   `cbor:"2,keyasint,omitempty"`
	Message string   `cbor:"3,keyasint"`
	Path    []string `cbor:"4,keyasint,omitempty"`
	GoType  string   `cbor:"5,keyasint,omitempty"`
	XType   string   `cbor:"6,keyasint,omitempty"`
}

func toWireError(err error) *WireError {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return &WireError{Message: err.Error()}
	}
	msg := e.Detail
	if e.Cause != nil && e.Kind != errors.KindForeignCallFailed {
		msg += ": " + e.Cause.Error()
	}
	return &WireError{
		Phase:   string(e.Phase),
		Kind:    string(e.Kind),
		Message: msg,
		Path:    e.Path,
		GoType:  e.GoType,
		XType:   e.XType,
	}
}

func (w *WireError) err() error {
	if w.Kind == "" {
		return stderrors.New(w.Message)
	}
	return &errors.Error{
		Phase:  errors.Phase(w.Phase),
		Kind:   errors.Kind(w.Kind),
		Detail: w.Message,
		Path:   w.Path,
		GoType: w.GoType,
		XType:  w.XType,
	}
}

func descriptorStrings(ds []types.Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func parseDescriptors(ss []string) ([]types.Descriptor, error) {
	out := make([]types.Descriptor, len(ss))
	for i, s := range ss {
		d, err := types.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

var frameEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("remote: failed to create CBOR enc mode: %v", err))
	}
	frameEncMode = em
}

// FrameReader reads length-prefixed CBOR frames from a stream.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader creates a FrameReader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads one frame.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(fr.r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxFrame {
		return nil, fmt.Errorf("frame size %d exceeds limit %d", length, MaxFrame)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, err
	}
	var f Frame
	if err := cbor.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// FrameWriter writes length-prefixed CBOR frames to a stream. It is safe for
// concurrent use.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewFrameWriter creates a FrameWriter.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes one frame.
func (fw *FrameWriter) WriteFrame(f *Frame) error {
	buf, err := frameEncMode.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(buf) > MaxFrame {
		return fmt.Errorf("encoded frame size %d exceeds limit %d", len(buf), MaxFrame)
	}

	msg := make([]byte, 4+len(buf))
	binary.BigEndian.PutUint32(msg, uint32(len(buf)))
	copy(msg[4:], buf)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err = fw.w.Write(msg)
	return err
}
