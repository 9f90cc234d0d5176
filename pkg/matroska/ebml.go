package matroska

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

// SizeUnknown is the resolved value of an all-ones EBML size marker. An
// element with this size runs to the end of its parent.
const SizeUnknown = uint64(math.MaxUint64)

// millenniumEpoch is the zero point of EBML date elements.
var millenniumEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

type EBMLElement struct {
	ID         uint32
	Size       uint64
	Data       []byte
	Offset     uint64
	HeaderSize uint64
}

type EBMLReader struct {
	reader io.ReadSeeker
	pos    uint64
}

func NewEBMLReader(r io.ReadSeeker) *EBMLReader {
	return &EBMLReader{reader: r, pos: 0}
}

func (r *EBMLReader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.reader, b[:]); err != nil {
		return 0, err
	}
	r.pos++
	return b[0], nil
}

// ReadVINT reads a variable-length integer with the length marker cleared.
func (r *EBMLReader) ReadVINT() (uint64, int, error) {
	first, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}

	if first == 0 {
		return 0, 0, errors.NewMalformedEBMLError("invalid VINT: first byte is 0", nil)
	}

	var width int
	var mask byte
	for i := 7; i >= 0; i-- {
		if (first & (1 << i)) != 0 {
			width = 8 - i
			mask = byte((1 << i) - 1)
			break
		}
	}

	value := uint64(first & mask)
	for i := 1; i < width; i++ {
		b, errRead := r.readByte()
		if errRead != nil {
			return 0, 0, errRead
		}
		value = (value << 8) | uint64(b)
	}

	return value, width, nil
}

// ReadVINTRaw reads a variable-length integer keeping the length marker bit.
// Element IDs are compared bit-exact, so the marker is part of the value.
func (r *EBMLReader) ReadVINTRaw() (uint64, int, error) {
	first, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}

	if first == 0 {
		return 0, 0, errors.NewMalformedEBMLError("invalid VINT: first byte is 0", nil)
	}

	var width int
	for i := 7; i >= 0; i-- {
		if (first & (1 << i)) != 0 {
			width = 8 - i
			break
		}
	}

	value := uint64(first)
	for i := 1; i < width; i++ {
		b, errRead := r.readByte()
		if errRead != nil {
			return 0, 0, errRead
		}
		value = (value << 8) | uint64(b)
	}

	return value, width, nil
}

func (r *EBMLReader) ReadElementID() (uint32, error) {
	id, width, err := r.ReadVINTRaw()
	if err != nil {
		return 0, err
	}
	if width > 4 {
		return 0, errors.NewMalformedEBMLError("element ID wider than 4 bytes", nil)
	}
	return uint32(id), nil
}

func (r *EBMLReader) ReadElementSize() (uint64, error) {
	size, width, err := r.ReadVINT()
	if err != nil {
		return 0, err
	}

	if size == (uint64(1)<<(7*width))-1 {
		return SizeUnknown, nil
	}

	return size, nil
}

// ReadElementHeader reads only the element ID and declared size, leaving the
// stream positioned at the first payload byte.
func (r *EBMLReader) ReadElementHeader() (uint32, uint64, uint64, error) {
	startPos := r.pos

	id, err := r.ReadElementID()
	if err != nil {
		return 0, 0, 0, err
	}

	size, err := r.ReadElementSize()
	if err != nil {
		return 0, 0, 0, err
	}

	return id, size, r.pos - startPos, nil
}

func (r *EBMLReader) ReadElement() (*EBMLElement, error) {
	startPos := r.pos

	id, size, headerSize, err := r.ReadElementHeader()
	if err != nil {
		return nil, err
	}

	element := &EBMLElement{
		ID:         id,
		Size:       size,
		Offset:     startPos,
		HeaderSize: headerSize,
	}

	if size != SizeUnknown {
		// Segment and Cluster payloads are walked in place, never buffered
		if id == SegmentID || id == ClusterID {
			element.Data = nil
		} else {
			if size > math.MaxInt32 {
				return nil, errors.NewMalformedEBMLError("element size too large", nil)
			}

			data := make([]byte, size)
			n, errReadFull := io.ReadFull(r.reader, data)
			if errReadFull != nil {
				return nil, errors.NewShortReadError("failed to read element data", errReadFull)
			}
			r.pos += uint64(n)
			element.Data = data
		}
	}

	return element, nil
}

func (r *EBMLReader) Seek(pos uint64) error {
	_, err := r.reader.Seek(int64(pos), io.SeekStart)
	if err != nil {
		return err
	}
	r.pos = pos
	return nil
}

func (r *EBMLReader) Skip(n uint64) error {
	return r.Seek(r.pos + n)
}

func (r *EBMLReader) Position() uint64 {
	return r.pos
}

func (e *EBMLElement) ReadUint() (uint64, error) {
	if len(e.Data) > 8 {
		return 0, errors.NewMalformedEBMLError("unsigned integer wider than 8 bytes", nil)
	}

	var value uint64
	for _, b := range e.Data {
		value = (value << 8) | uint64(b)
	}
	return value, nil
}

func (e *EBMLElement) ReadInt() (int64, error) {
	if len(e.Data) > 8 {
		return 0, errors.NewMalformedEBMLError("signed integer wider than 8 bytes", nil)
	}

	if len(e.Data) == 0 {
		return 0, nil
	}

	var value int64
	if e.Data[0]&0x80 != 0 {
		value = -1
	}

	for _, b := range e.Data {
		value = (value << 8) | int64(b)
	}
	return value, nil
}

func (e *EBMLElement) ReadFloat() (float64, error) {
	switch len(e.Data) {
	case 4:
		bits := binary.BigEndian.Uint32(e.Data)
		return float64(math.Float32frombits(bits)), nil
	case 8:
		bits := binary.BigEndian.Uint64(e.Data)
		return math.Float64frombits(bits), nil
	default:
		return 0, errors.NewMalformedEBMLError("float payload must be 4 or 8 bytes", nil)
	}
}

// ReadDate interprets the payload as signed nanoseconds since 2001-01-01 UTC.
func (e *EBMLElement) ReadDate() (time.Time, error) {
	ns, err := e.ReadInt()
	if err != nil {
		return time.Time{}, err
	}
	return millenniumEpoch.Add(time.Duration(ns)), nil
}

func (e *EBMLElement) ReadString() string {
	data := e.Data
	for i, b := range data {
		if b == 0 {
			data = data[:i]
			break
		}
	}
	return string(data)
}

func (e *EBMLElement) ReadBytes() []byte {
	result := make([]byte, len(e.Data))
	copy(result, e.Data)
	return result
}

type bytesReader struct {
	data []byte
	pos  int64
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}

	n := copy(p, r.data[r.pos:])
	r.pos += int64(n)
	return n, nil
}

func (r *bytesReader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64

	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = int64(len(r.data)) + offset
	default:
		return 0, errors.NewFileError("invalid whence", nil)
	}

	if newPos < 0 {
		return 0, errors.NewFileError("negative position", nil)
	}

	r.pos = newPos
	return newPos, nil
}
