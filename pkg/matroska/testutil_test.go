package matroska

import (
	"encoding/binary"
	"math"
)

// encodeVINT encodes v as an EBML variable-length integer of minimal width.
func encodeVINT(v uint64) []byte {
	for width := 1; width <= 8; width++ {
		limit := (uint64(1) << (7 * width)) - 1
		if v < limit {
			buf := make([]byte, width)
			for i := width - 1; i >= 0; i-- {
				buf[i] = byte(v)
				v >>= 8
			}
			buf[0] |= 1 << (8 - width)
			return buf
		}
	}
	panic("value too large for VINT")
}

// encodeID emits the raw on-disk bytes of an element ID.
func encodeID(id uint32) []byte {
	switch {
	case id <= 0xFF:
		return []byte{byte(id)}
	case id <= 0xFFFF:
		return []byte{byte(id >> 8), byte(id)}
	case id <= 0xFFFFFF:
		return []byte{byte(id >> 16), byte(id >> 8), byte(id)}
	default:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	}
}

func el(id uint32, payloads ...[]byte) []byte {
	var payload []byte
	for _, piece := range payloads {
		payload = append(payload, piece...)
	}

	out := encodeID(id)
	out = append(out, encodeVINT(uint64(len(payload)))...)
	return append(out, payload...)
}

func uintBE(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte(v)}, buf...)
		v >>= 8
	}
	return buf
}

func uintBEPad8(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func floatBE8(f float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}

// blockBytes builds an unlaced Block/SimpleBlock payload.
func blockBytes(trackNum uint64, relTime int16, flags byte, frame []byte) []byte {
	out := encodeVINT(trackNum)
	out = append(out, byte(uint16(relTime)>>8), byte(uint16(relTime)))
	out = append(out, flags)
	return append(out, frame...)
}

// xiphBlockBytes builds a Xiph-laced block payload.
func xiphBlockBytes(trackNum uint64, relTime int16, frames [][]byte) []byte {
	out := encodeVINT(trackNum)
	out = append(out, byte(uint16(relTime)>>8), byte(uint16(relTime)))
	out = append(out, lacingXiph)
	out = append(out, byte(len(frames)-1))
	for _, frame := range frames[:len(frames)-1] {
		size := len(frame)
		for size >= 255 {
			out = append(out, 0xFF)
			size -= 255
		}
		out = append(out, byte(size))
	}
	for _, frame := range frames {
		out = append(out, frame...)
	}
	return out
}

func buildEBMLHead() []byte {
	return el(EBMLHeaderID,
		el(DocTypeID, []byte("matroska")),
		el(DocTypeVersionID, uintBE(4)),
	)
}

func buildFile(segmentChildren ...[]byte) []byte {
	var payload []byte
	for _, child := range segmentChildren {
		payload = append(payload, child...)
	}

	out := buildEBMLHead()
	return append(out, el(SegmentID, payload)...)
}

func infoElement(timecodeScale uint64, durationTicks float64, extras ...[]byte) []byte {
	children := [][]byte{
		el(TimecodeScaleID, uintBE(timecodeScale)),
		el(DurationID, floatBE8(durationTicks)),
	}
	children = append(children, extras...)
	return el(SegmentInfoID, children...)
}

func audioTrackEntry(num uint16, uid uint64, codec string, defaultDuration uint64) []byte {
	children := [][]byte{
		el(TrackNumberID, uintBE(uint64(num))),
		el(TrackUIDID, uintBE(uid)),
		el(TrackTypeID, uintBE(uint64(TrackTypeAudio))),
		el(CodecIDID, []byte(codec)),
		el(AudioID,
			el(ChannelsID, uintBE(2)),
			el(SamplingFrequencyID, floatBE8(44100)),
		),
	}
	if defaultDuration > 0 {
		children = append(children, el(DefaultDurationID, uintBE(defaultDuration)))
	}
	return el(TrackEntryID, children...)
}

func videoTrackEntry(num uint16, uid uint64, codec string) []byte {
	return el(TrackEntryID,
		el(TrackNumberID, uintBE(uint64(num))),
		el(TrackUIDID, uintBE(uid)),
		el(TrackTypeID, uintBE(uint64(TrackTypeVideo))),
		el(CodecIDID, []byte(codec)),
		el(VideoID,
			el(PixelWidthID, uintBE(640)),
			el(PixelHeightID, uintBE(480)),
		),
	)
}

func tracksElement(entries ...[]byte) []byte {
	return el(TracksID, entries...)
}

func blockGroup(trackNum uint64, relTime int16, frame []byte, extras ...[]byte) []byte {
	children := [][]byte{el(BlockID, blockBytes(trackNum, relTime, 0, frame))}
	children = append(children, extras...)
	return el(BlockGroupID, children...)
}

func cluster(rawTimecode uint64, groups ...[]byte) []byte {
	children := [][]byte{el(TimecodeID, uintBE(rawTimecode))}
	children = append(children, groups...)
	return el(ClusterID, children...)
}

func seekEntry(targetID uint32, pos uint64) []byte {
	return el(SeekID,
		el(SeekIDElementID, encodeID(targetID)),
		el(SeekPositionID, uintBEPad8(pos)),
	)
}

func seekHeadElement(entries ...[]byte) []byte {
	return el(SeekHeadID, entries...)
}

func simpleTagElement(name, value string) []byte {
	return el(SimpleTagID,
		el(TagNameID, []byte(name)),
		el(TagStringID, []byte(value)),
	)
}

func tagElement(targets []byte, simpleTags ...[]byte) []byte {
	children := [][]byte{targets}
	children = append(children, simpleTags...)
	return el(TagID, children...)
}

func trackTargets(trackUID uint64) []byte {
	return el(TargetsID, el(TagTrackUIDID, uintBE(trackUID)))
}

// buildIndexedFile assembles a file whose SeekHead points at every cluster
// (and optionally at a trailing Tags element). The SeekHead is encoded with
// fixed-width positions so it can be measured before the offsets are known.
func buildIndexedFile(headerChildren [][]byte, clusters [][]byte, tagsElement []byte, indexTags bool) []byte {
	entryCount := len(clusters)
	if indexTags {
		entryCount++
	}

	placeholder := make([][]byte, entryCount)
	for i := range placeholder {
		placeholder[i] = seekEntry(ClusterID, 0)
	}
	seekHeadLen := len(seekHeadElement(placeholder...))

	headerLen := 0
	for _, child := range headerChildren {
		headerLen += len(child)
	}

	var entries [][]byte
	offset := uint64(seekHeadLen + headerLen)
	for _, clusterBytes := range clusters {
		entries = append(entries, seekEntry(ClusterID, offset))
		offset += uint64(len(clusterBytes))
	}
	if indexTags {
		entries = append(entries, seekEntry(TagsID, offset))
	}

	segmentChildren := [][]byte{seekHeadElement(entries...)}
	segmentChildren = append(segmentChildren, headerChildren...)
	segmentChildren = append(segmentChildren, clusters...)
	if tagsElement != nil {
		segmentChildren = append(segmentChildren, tagsElement)
	}

	return buildFile(segmentChildren...)
}
