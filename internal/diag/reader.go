package diag

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrTruncatedFrame reports a frame cut short by the byte bound. It
// usually means the bound was taken while the recorder was mid-write;
// everything before it decoded cleanly.
var ErrTruncatedFrame = errors.New("truncated frame")

const frameHeaderLen = 5 // uint32 length + uint8 data type

// maxFramePayload rejects absurd lengths before allocating; real
// containers are a few KB.
const maxFramePayload = 16 << 20

// Reader decodes containers from a capture log. It is forward-only
// and bounded: it never reads past the byte limit given at creation,
// so a concurrently growing file can be decoded safely up to the size
// observed when the analysis began.
type Reader struct {
	r         io.Reader
	remaining int64
}

// NewReader bounds r to limit bytes. A negative limit means unbounded.
func NewReader(r io.Reader, limit int64) *Reader {
	if limit < 0 {
		limit = 1<<63 - 1
	}
	return &Reader{r: r, remaining: limit}
}

// Containers returns a lazy sequence of decoded containers. The
// sequence ends at the byte bound, at EOF, or at the first decode
// error. It is single-use: ranging twice resumes where the first
// range stopped.
func (r *Reader) Containers(ctx context.Context) iter.Seq2[Container, error] {
	return func(yield func(Container, error) bool) {
		for {
			if ctx.Err() != nil {
				return
			}
			c, err := r.next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(c, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

func (r *Reader) next() (Container, error) {
	if r.remaining < frameHeaderLen {
		if r.remaining > 0 {
			return Container{}, ErrTruncatedFrame
		}
		return Container{}, io.EOF
	}

	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Container{}, ErrTruncatedFrame
		}
		return Container{}, err
	}
	r.remaining -= frameHeaderLen

	length := int64(binary.LittleEndian.Uint32(header[:4]))
	if length > maxFramePayload {
		return Container{}, fmt.Errorf("frame payload of %d bytes exceeds limit", length)
	}
	if length > r.remaining {
		return Container{}, ErrTruncatedFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Container{}, ErrTruncatedFrame
		}
		return Container{}, err
	}
	r.remaining -= length

	return Container{
		DataType: DataType(header[4]),
		Payload:  payload,
	}, nil
}

// AppendFrame encodes one frame to buf. Used by the recorder side of
// the store and by tests building capture fixtures.
func AppendFrame(buf []byte, dataType DataType, payload []byte) []byte {
	var header [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	header[4] = byte(dataType)
	buf = append(buf, header[:]...)
	return append(buf, payload...)
}
