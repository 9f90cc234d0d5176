package matroska

import (
	"io"
)

// fillQueue return codes, mirroring the classic reader's contract: a stall is
// flow control, EOF is a normal terminal signal, and only the no-cluster case
// reflects a damaged index.
const (
	statusQueueFull = -1
	statusOK        = 0
	statusEOF       = 1
	statusNoCluster = 2
)

func (p *Parser) trackNumIsEnabled(trackNum uint16) bool {
	_, ok := p.enabledTrackNumbers[trackNum]
	return ok
}

func (p *Parser) isAnyQueueFull() bool {
	if p.maxQueueDepth == 0 {
		return false
	}

	for _, queue := range p.frameQueues {
		if uint32(len(queue)) >= p.maxQueueDepth {
			return true
		}
	}

	return false
}

// fillQueue reads the cluster containing the current timecode and routes its
// frames into the per-track queues.
func (p *Parser) fillQueue() int {
	if p.isAnyQueueFull() {
		p.logger.Infof("fillQueue: not filling, a queue is full")
		return statusQueueFull
	}

	// Without SeekHead-advertised clusters the index holds at most the one
	// cluster the header walk stopped at; complete it by direct scan.
	if !p.indexFromMetaSeek && !p.clustersScanned {
		if err := p.scanClusters(); err != nil {
			p.logger.Warnf("fillQueue: cluster scan failed: %v", err)
		}
	}
	if len(p.clusterIndex) == 0 {
		p.eof = true
		return statusEOF
	}

	if p.currentTimecode == TimecodeUnknown {
		p.eof = true
		return statusEOF
	}

	entry, err := p.findCluster(p.currentTimecode)
	if err != nil {
		p.logger.Warnf("fillQueue: no cluster at timecode %d: %v", p.currentTimecode, err)
		return statusNoCluster
	}

	if err = p.reader.Seek(entry.Position); err != nil {
		return statusNoCluster
	}

	id, size, _, err := p.reader.ReadElementHeader()
	if err != nil || id != ClusterID {
		p.eof = true
		return statusEOF
	}

	clusterEnd := p.reader.Position() + size
	if size == SizeUnknown || clusterEnd > p.fileSize {
		clusterEnd = p.fileSize
	}

	clusterBase := uint64(0)
	if entry.Timecode != TimecodeUnknown {
		clusterBase = entry.Timecode
	}

	prevByQueue := make(map[uint16]*Frame)

	for p.reader.Position() < clusterEnd {
		childID, childSize, _, errChild := p.reader.ReadElementHeader()
		if errChild != nil {
			break
		}

		switch childID {
		case TimecodeID:
			data, errRead := p.readPayload(childSize)
			if errRead != nil {
				p.logger.Warnf("fillQueue: cluster timecode unreadable: %v", errRead)
				break
			}
			child := &EBMLElement{ID: childID, Size: childSize, Data: data}
			raw, errUint := child.ReadUint()
			if errUint != nil {
				p.logger.Warnf("fillQueue: cluster timecode unreadable: %v", errUint)
				break
			}
			clusterBase = raw * p.segmentInfo.TimecodeScale
			entry.Timecode = clusterBase

		case BlockGroupID:
			data, errRead := p.readPayload(childSize)
			if errRead != nil {
				p.logger.Warnf("fillQueue: block group unreadable: %v", errRead)
				return p.advancePastCluster(entry)
			}
			frame, trackIdx := p.buildGroupFrame(data, clusterBase)
			if frame != nil {
				p.enqueueFrame(trackIdx, frame, prevByQueue)
			}

		case SimpleBlockID:
			data, errRead := p.readPayload(childSize)
			if errRead != nil {
				p.logger.Warnf("fillQueue: simple block unreadable: %v", errRead)
				return p.advancePastCluster(entry)
			}
			frame, trackIdx := p.buildSimpleFrame(data, clusterBase)
			if frame != nil {
				p.enqueueFrame(trackIdx, frame, prevByQueue)
			}

		default:
			if errSkip := p.reader.Skip(childSize); errSkip != nil {
				return p.advancePastCluster(entry)
			}
		}
	}

	return p.advancePastCluster(entry)
}

// advancePastCluster moves the cursor to the next cluster's timecode,
// materialising it when needed, or parks the cursor at the unknown sentinel
// so the next fill reports end of file.
func (p *Parser) advancePastCluster(entry *ClusterEntry) int {
	nextNo := int(entry.ClusterNo) + 1
	if nextNo < len(p.clusterIndex) {
		next := p.clusterIndex[nextNo]
		if next.Timecode == TimecodeUnknown {
			next.Timecode = p.getClusterTimecode(next.Position)
		}
		if next.Timecode == TimecodeUnknown {
			p.logger.Warnf("fillQueue: next cluster timecode unreadable at %d", next.Position)
			return statusNoCluster
		}
		p.currentTimecode = next.Timecode
		return statusOK
	}

	p.currentTimecode = TimecodeUnknown
	return statusOK
}

// buildGroupFrame assembles one frame from a BlockGroup payload. Returns nil
// when the group's block targets a track that is not enabled, or carries no
// payload; the caller's cursor still advances either way.
func (p *Parser) buildGroupFrame(data []byte, clusterBase uint64) (*Frame, uint16) {
	reader := NewEBMLReader(&bytesReader{data: data})

	var info *blockInfo
	var blockDuration *uint64
	var addID uint64
	var additional []byte

	for reader.Position() < uint64(len(data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			p.logger.Warnf("block group child unreadable: %v", err)
			return nil, 0
		}

		switch child.ID {
		case BlockID:
			parsed, errBlock := parseBlockPayload(child.Data)
			if errBlock != nil {
				p.logger.Warnf("block payload malformed: %v", errBlock)
				return nil, 0
			}
			info = parsed

		case BlockDurationID:
			duration, errUint := child.ReadUint()
			if errUint != nil {
				return nil, 0
			}
			blockDuration = &duration

		case BlockAdditionsID:
			moreID, moreData, errAdditions := p.parseBlockAdditions(child)
			if errAdditions != nil {
				return nil, 0
			}
			if moreID != 0 {
				addID = moreID
			}
			if moreData != nil {
				additional = moreData
			}
		}
	}

	if info == nil {
		return nil, 0
	}
	if !p.trackNumIsEnabled(uint16(info.trackNum)) {
		return nil, 0
	}

	trackIdx := p.FindTrack(uint16(info.trackNum))
	if trackIdx == invalidTrackNumber {
		return nil, 0
	}
	track := &p.tracks[trackIdx]
	scale := p.segmentInfo.TimecodeScale

	frame := &Frame{
		Timecode: uint64(int64(clusterBase) + int64(info.relTime)*int64(scale)),
		Data:     info.frames,
	}

	switch {
	case blockDuration != nil:
		frame.Duration = *blockDuration * scale
	case len(info.frames) > 1:
		frame.Duration = track.DefaultDuration * uint64(len(info.frames))
	default:
		frame.Duration = track.DefaultDuration
	}

	frame.AddID = addID
	frame.AdditionalData = additional
	if frame.AdditionalData != nil && frame.AddID == 0 {
		frame.AddID = 1
	}

	return frame, trackIdx
}

func (p *Parser) parseBlockAdditions(element *EBMLElement) (uint64, []byte, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	var addID uint64
	var additional []byte

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, nil, err
		}

		if child.ID != BlockMoreID {
			continue
		}

		moreReader := NewEBMLReader(&bytesReader{data: child.Data})
		for moreReader.Position() < uint64(len(child.Data)) {
			more, errMore := moreReader.ReadElement()
			if errMore != nil {
				if errMore == io.EOF {
					break
				}
				return 0, nil, errMore
			}

			switch more.ID {
			case BlockAddIDID:
				id, errUint := more.ReadUint()
				if errUint != nil {
					return 0, nil, errUint
				}
				addID = id
			case BlockAdditionalID:
				additional = more.ReadBytes()
			}
		}
	}

	return addID, additional, nil
}

// buildSimpleFrame assembles one frame from a SimpleBlock payload. Simple
// blocks carry no duration or additions, so the track default applies.
func (p *Parser) buildSimpleFrame(data []byte, clusterBase uint64) (*Frame, uint16) {
	info, err := parseBlockPayload(data)
	if err != nil {
		p.logger.Warnf("simple block malformed: %v", err)
		return nil, 0
	}

	if !p.trackNumIsEnabled(uint16(info.trackNum)) {
		return nil, 0
	}

	trackIdx := p.FindTrack(uint16(info.trackNum))
	if trackIdx == invalidTrackNumber {
		return nil, 0
	}
	track := &p.tracks[trackIdx]
	scale := p.segmentInfo.TimecodeScale

	frame := &Frame{
		Timecode: uint64(int64(clusterBase) + int64(info.relTime)*int64(scale)),
		Data:     info.frames,
	}

	if len(info.frames) > 1 {
		frame.Duration = track.DefaultDuration * uint64(len(info.frames))
	} else {
		frame.Duration = track.DefaultDuration
	}

	return frame, trackIdx
}

func (p *Parser) enqueueFrame(trackIdx uint16, frame *Frame, prevByQueue map[uint16]*Frame) {
	if len(frame.Data) == 0 {
		return
	}

	queue, ok := p.frameQueues[trackIdx]
	if !ok {
		return
	}
	p.frameQueues[trackIdx] = append(queue, frame)

	if prev := prevByQueue[trackIdx]; prev != nil && prev.Duration == 0 {
		prev.Duration = frame.Timecode - prev.Timecode
	}
	prevByQueue[trackIdx] = frame

	// Loose re-entry bound: if fillQueue runs again before this cluster's
	// Timecode is registered, the cursor must still land in the next cluster.
	bound := 2 * frame.Duration
	if d := 2 * p.tracks[trackIdx].DefaultDuration; d > bound {
		bound = d
	}
	p.currentTimecode = frame.Timecode + bound
}

// skipFramesUntil drops queued frames strictly earlier than the destination
// (frames exactly at it are kept), filling as needed. Returns false once no
// more frames can be demuxed.
func (p *Parser) skipFramesUntil(destination float64, hintSamplerate uint) bool {
	haveData := false
	for !haveData {
		for trackIdx, queue := range p.frameQueues {
			for len(queue) > 0 && p.TimecodeToSeconds(queue[0].Timecode, hintSamplerate) < destination {
				queue = queue[1:]
			}
			p.frameQueues[trackIdx] = queue

			if len(queue) > 0 {
				haveData = true
			}
		}

		if !haveData && p.fillQueue() > 0 {
			return false
		}
	}

	return true
}

// Seek positions the demuxer at an absolute time in seconds. When a subsong
// chapter is selected the time is relative to the chapter start. Returns true
// iff at least one frame is demuxable at or after the target. The samplerate
// hint is accepted for API compatibility and ignored.
func (p *Parser) Seek(seconds float64, samplerateHint uint) bool {
	if p.currentChapter != nil {
		seconds += float64(int64(p.currentChapter.TimeStart)) / 1e9
	}

	seekToTimecode := p.SecondsToTimecode(seconds)
	p.currentTimecode = seekToTimecode

	// Stale queued frames would replay once the cursor moves; start clean,
	// then let skipFramesUntil fill and drop everything before the target.
	for trackIdx := range p.frameQueues {
		p.frameQueues[trackIdx] = nil
	}

	return p.skipFramesUntil(seconds, samplerateHint)
}

// ReadSingleFrame returns the next frame on the given track, or nil when no
// more frames are demuxable for it.
func (p *Parser) ReadSingleFrame(trackIdx uint16) *Frame {
	if _, ok := p.frameQueues[trackIdx]; !ok {
		return nil
	}

	for len(p.frameQueues[trackIdx]) == 0 {
		if p.fillQueue() != statusOK {
			return nil
		}
	}

	queue := p.frameQueues[trackIdx]
	frame := queue[0]
	p.frameQueues[trackIdx] = queue[1:]
	return frame
}

// Restart rewinds the demuxer to the start of the stream, clearing every
// queue and the end-of-file state.
func (p *Parser) Restart() bool {
	p.eof = false
	p.currentChapter = nil
	for trackIdx := range p.frameQueues {
		p.frameQueues[trackIdx] = nil
	}

	return p.Seek(0, 0)
}
