package matroska

import (
	"encoding/binary"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

// Block lacing modes, from bits 0x06 of the block flags byte.
const (
	lacingNone  = 0x00
	lacingXiph  = 0x02
	lacingFixed = 0x04
	lacingEBML  = 0x06
)

// blockInfo is the decoded header and payload of one Block or SimpleBlock.
// Frames holds more than one buffer only when the block was laced.
type blockInfo struct {
	trackNum uint64
	relTime  int16
	flags    byte
	frames   [][]byte
}

func readVINTData(data []byte) (uint64, int) {
	if len(data) == 0 {
		return 0, 0
	}

	first := data[0]
	if first == 0 {
		return 0, 0
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

	if width > len(data) {
		return 0, 0
	}

	value := uint64(first & mask)
	for i := 1; i < width; i++ {
		value = (value << 8) | uint64(data[i])
	}

	return value, width
}

// readSignedVINTData decodes the signed variant used by EBML lacing deltas:
// the unsigned value minus half the range of its width.
func readSignedVINTData(data []byte) (int64, int) {
	value, width := readVINTData(data)
	if width == 0 {
		return 0, 0
	}
	bias := int64(1)<<(7*width-1) - 1
	return int64(value) - bias, width
}

// parseBlockPayload splits a Block or SimpleBlock payload into its track
// number, relative timecode, flags and per-frame buffers.
func parseBlockPayload(data []byte) (*blockInfo, error) {
	trackNum, trackWidth := readVINTData(data)
	if trackWidth == 0 {
		return nil, errors.NewMalformedEBMLError("invalid track number in block", nil)
	}

	data = data[trackWidth:]
	if len(data) < 3 {
		return nil, errors.NewMalformedEBMLError("block too short for timecode and flags", nil)
	}

	relTime := int16(binary.BigEndian.Uint16(data[0:2]))
	flags := data[2]
	data = data[3:]

	info := &blockInfo{
		trackNum: trackNum,
		relTime:  relTime,
		flags:    flags,
	}

	switch flags & 0x06 {
	case lacingNone:
		info.frames = [][]byte{data}
		return info, nil
	case lacingXiph, lacingFixed, lacingEBML:
		frames, err := splitLacedFrames(data, flags&0x06)
		if err != nil {
			return nil, err
		}
		info.frames = frames
		return info, nil
	}

	return nil, errors.NewMalformedEBMLError("invalid lacing flags", nil)
}

func splitLacedFrames(data []byte, mode byte) ([][]byte, error) {
	if len(data) < 1 {
		return nil, errors.NewMalformedEBMLError("laced block too short", nil)
	}

	frameCount := int(data[0]) + 1
	data = data[1:]

	sizes := make([]int, frameCount)

	switch mode {
	case lacingXiph:
		for f := 0; f < frameCount-1; f++ {
			size := 0
			for {
				if len(data) == 0 {
					return nil, errors.NewMalformedEBMLError("truncated Xiph lace sizes", nil)
				}
				b := data[0]
				data = data[1:]
				size += int(b)
				if b != 0xFF {
					break
				}
			}
			sizes[f] = size
		}

	case lacingFixed:
		if len(data)%frameCount != 0 {
			return nil, errors.NewMalformedEBMLError("fixed lacing does not divide evenly", nil)
		}
		for f := 0; f < frameCount-1; f++ {
			sizes[f] = len(data) / frameCount
		}

	case lacingEBML:
		size, width := readVINTData(data)
		if width == 0 {
			return nil, errors.NewMalformedEBMLError("invalid EBML lace size", nil)
		}
		data = data[width:]
		sizes[0] = int(size)
		for f := 1; f < frameCount-1; f++ {
			delta, deltaWidth := readSignedVINTData(data)
			if deltaWidth == 0 {
				return nil, errors.NewMalformedEBMLError("invalid EBML lace delta", nil)
			}
			data = data[deltaWidth:]
			size = uint64(int64(size) + delta)
			sizes[f] = int(size)
		}
	}

	// The final frame takes whatever remains
	used := 0
	for f := 0; f < frameCount-1; f++ {
		used += sizes[f]
	}
	if used > len(data) {
		return nil, errors.NewMalformedEBMLError("lace sizes exceed block payload", nil)
	}
	sizes[frameCount-1] = len(data) - used

	frames := make([][]byte, frameCount)
	offset := 0
	for f := 0; f < frameCount; f++ {
		frames[f] = data[offset : offset+sizes[f]]
		offset += sizes[f]
	}

	return frames, nil
}
