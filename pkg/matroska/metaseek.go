package matroska

import (
	"bytes"
	"io"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

// parseMetaSeek resolves one SeekHead payload. Cluster positions go into the
// cluster index, nested SeekHeads are followed (visited guards cycles), and a
// Tags entry is parsed immediately when tags are still missing.
func (p *Parser) parseMetaSeek(data []byte, infoOnly bool, visited map[uint64]bool) error {
	reader := NewEBMLReader(&bytesReader{data: data})

	for reader.Position() < uint64(len(data)) {
		if infoOnly && len(p.clusterIndex) >= 1 {
			break
		}

		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if child.ID == SeekID {
			if err = p.parseSeekEntry(child, infoOnly, visited); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Parser) parseSeekEntry(element *EBMLElement, infoOnly bool, visited map[uint64]bool) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	var seekID uint32
	var seekPosition uint64
	havePosition := false

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		switch child.ID {
		case SeekIDElementID:
			// the payload holds the raw bytes of the target's element ID
			var id uint64
			for _, b := range child.Data {
				id = (id << 8) | uint64(b)
			}
			seekID = uint32(id)
		case SeekPositionID:
			pos, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			seekPosition = pos
			havePosition = true
		}
	}

	if seekID == 0 || !havePosition {
		return nil
	}

	// SeekPosition is relative to the segment payload start
	absolutePos := p.segmentPos + seekPosition

	switch seekID {
	case ClusterID:
		p.clusterIndex = append(p.clusterIndex, &ClusterEntry{
			Position: absolutePos,
			Timecode: TimecodeUnknown,
		})
		p.indexFromMetaSeek = true
		p.logger.Infof("metaseek: cluster at %d", absolutePos)

	case SeekHeadID:
		if visited[absolutePos] {
			p.logger.Warnf("metaseek: cycle at %d, skipping", absolutePos)
			return nil
		}
		visited[absolutePos] = true
		return p.parseNestedSeekHead(absolutePos, infoOnly, visited)

	case TagsID:
		if p.tagPos == 0 {
			return p.parseTagsAt(absolutePos)
		}
	}

	return nil
}

func (p *Parser) parseNestedSeekHead(pos uint64, infoOnly bool, visited map[uint64]bool) error {
	oldPos := p.reader.Position()
	defer func() {
		_ = p.reader.Seek(oldPos)
	}()

	if err := p.reader.Seek(pos); err != nil {
		return errors.NewFileError("failed to seek to nested SeekHead", err)
	}

	id, size, _, err := p.reader.ReadElementHeader()
	if err != nil {
		return errors.NewMalformedEBMLError("failed to read nested SeekHead", err)
	}
	if id != SeekHeadID {
		return errors.NewMalformedEBMLError("SeekHead entry does not point at a SeekHead", nil)
	}

	data, err := p.readPayload(size)
	if err != nil {
		return err
	}

	return p.parseMetaSeek(data, infoOnly, visited)
}

func (p *Parser) parseTagsAt(pos uint64) error {
	oldPos := p.reader.Position()
	defer func() {
		_ = p.reader.Seek(oldPos)
	}()

	if err := p.reader.Seek(pos); err != nil {
		return errors.NewFileError("failed to seek to tags", err)
	}

	id, size, _, err := p.reader.ReadElementHeader()
	if err != nil {
		return errors.NewMalformedEBMLError("failed to read tags element", err)
	}
	if id != TagsID {
		return errors.NewMalformedEBMLError("SeekHead entry does not point at Tags", nil)
	}

	data, err := p.readPayload(size)
	if err != nil {
		return err
	}

	return p.parseTags(data, pos, size)
}

// rescueTags searches the file tail for a Tags element when no SeekHead
// advertised one. Boyer-Moore over the last tagScanRange bytes, then a plain
// rescan of the same window as the original reader does.
func (p *Parser) rescueTags() error {
	scanLen := uint64(p.tagScanRange)
	if scanLen > p.fileSize {
		scanLen = p.fileSize
	}
	if scanLen == 0 {
		return nil
	}
	start := p.fileSize - scanLen

	oldPos := p.reader.Position()
	defer func() {
		_ = p.reader.Seek(oldPos)
	}()

	if err := p.reader.Seek(start); err != nil {
		return errors.NewFileError("failed to seek to tag scan window", err)
	}
	buf, err := p.readPayload(scanLen)
	if err != nil {
		return err
	}

	// The pattern covers the last three bytes of the four-byte Tags class
	// ID, so the element header starts one byte before each match.
	search := newMatroskaSearch(buf, TagsSignature)
	for pos := search.Match(0); pos != -1; pos = search.Match(pos + 1) {
		if start+uint64(pos) == 0 {
			continue
		}
		if p.tryParseTagsAt(start + uint64(pos) - 1) {
			return nil
		}
	}

	for i := 0; i+len(TagsSignature) <= len(buf); i++ {
		if bytes.Equal(buf[i:i+len(TagsSignature)], TagsSignature) {
			if start+uint64(i) == 0 {
				continue
			}
			if p.tryParseTagsAt(start + uint64(i) - 1) {
				return nil
			}
		}
	}

	return nil
}

func (p *Parser) tryParseTagsAt(pos uint64) bool {
	if err := p.reader.Seek(pos); err != nil {
		return false
	}

	id, size, headerSize, err := p.reader.ReadElementHeader()
	if err != nil || id != TagsID || size == SizeUnknown {
		return false
	}
	if pos+headerSize+size > p.fileSize {
		return false
	}

	data, err := p.readPayload(size)
	if err != nil {
		return false
	}

	if err = p.parseTags(data, pos, size); err != nil {
		p.logger.Warnf("tag candidate at %d failed to parse: %v", pos, err)
		return false
	}

	return true
}

// getClusterTimecode reads only a cluster's first Timecode child, restoring
// the file position afterwards. Returns TimecodeUnknown on any failure.
func (p *Parser) getClusterTimecode(filePos uint64) uint64 {
	oldPos := p.reader.Position()
	defer func() {
		_ = p.reader.Seek(oldPos)
	}()

	if err := p.reader.Seek(filePos); err != nil {
		return TimecodeUnknown
	}

	id, size, _, err := p.reader.ReadElementHeader()
	if err != nil || id != ClusterID {
		return TimecodeUnknown
	}

	endPos := p.reader.Position() + size
	if size == SizeUnknown || endPos > p.fileSize {
		endPos = p.fileSize
	}

	for p.reader.Position() < endPos {
		childID, childSize, _, errChild := p.reader.ReadElementHeader()
		if errChild != nil {
			return TimecodeUnknown
		}

		if childID == TimecodeID {
			data, errRead := p.readPayload(childSize)
			if errRead != nil {
				return TimecodeUnknown
			}
			child := &EBMLElement{ID: childID, Size: childSize, Data: data}
			raw, errUint := child.ReadUint()
			if errUint != nil {
				return TimecodeUnknown
			}
			return raw * p.segmentInfo.TimecodeScale
		}

		if errSkip := p.reader.Skip(childSize); errSkip != nil {
			return TimecodeUnknown
		}
	}

	return TimecodeUnknown
}

func (p *Parser) materialiseClusterTimecode(entry *ClusterEntry) error {
	if entry.Timecode == TimecodeUnknown {
		entry.Timecode = p.getClusterTimecode(entry.Position)
	}
	if entry.Timecode == TimecodeUnknown {
		return errors.NewClusterTimecodeError("failed to read cluster timecode", nil).
			WithContext("position", entry.Position)
	}
	return nil
}

// findCluster locates the cluster containing the target timecode. The search
// starts from an affine guess assuming roughly uniform cluster spacing and
// then moves monotonically; once a direction is taken it is never reversed
// within one call.
func (p *Parser) findCluster(timecode uint64) (*ClusterEntry, error) {
	if len(p.clusterIndex) == 0 {
		if err := p.scanClusters(); err != nil {
			return nil, err
		}
		if len(p.clusterIndex) == 0 {
			return nil, errors.NewNoClusterError("file has no clusters", nil)
		}
	}

	if timecode == 0 {
		return p.clusterIndex[0], nil
	}

	durationNs := p.segmentInfo.Duration

	clusterIndex := 0
	if durationNs > 0 {
		clusterIndex = int(float64(len(p.clusterIndex)) / durationNs * float64(timecode))
	}
	if clusterIndex >= len(p.clusterIndex) {
		clusterIndex = len(p.clusterIndex) - 1
	}
	if clusterIndex < 0 {
		clusterIndex = 0
	}

	for {
		entry := p.clusterIndex[clusterIndex]
		var prev, next *ClusterEntry
		if clusterIndex > 0 {
			prev = p.clusterIndex[clusterIndex-1]
		}
		if clusterIndex+1 < len(p.clusterIndex) {
			next = p.clusterIndex[clusterIndex+1]
		}

		if err := p.materialiseClusterTimecode(entry); err != nil {
			return nil, err
		}
		if prev != nil {
			if err := p.materialiseClusterTimecode(prev); err != nil {
				return nil, err
			}
		}
		if next != nil {
			if err := p.materialiseClusterTimecode(next); err != nil {
				return nil, err
			}
		}

		if entry.Timecode == timecode {
			return entry, nil
		}

		if prev != nil {
			if entry.Timecode > timecode && timecode > prev.Timecode {
				return prev, nil
			}
			if prev.Timecode == timecode {
				return prev, nil
			}
			if timecode < prev.Timecode {
				clusterIndex--
				continue
			}
		}

		if next != nil {
			if entry.Timecode < timecode && timecode < next.Timecode {
				return entry, nil
			}
			if next.Timecode == timecode {
				return next, nil
			}
			if timecode > next.Timecode {
				clusterIndex++
				continue
			}
		}

		if float64(timecode) <= durationNs {
			return entry, nil
		}
		return nil, errors.NewNoClusterError("no cluster at timecode", nil).
			WithContext("timecode", timecode)
	}
}

// scanClusters registers every cluster position by walking the segment
// sequentially. Used when no SeekHead advertised any clusters.
func (p *Parser) scanClusters() error {
	if p.clustersScanned {
		return nil
	}
	p.clustersScanned = true

	oldPos := p.reader.Position()
	defer func() {
		_ = p.reader.Seek(oldPos)
	}()

	if err := p.reader.Seek(p.segmentPos); err != nil {
		return errors.NewFileError("failed to seek to segment", err)
	}

	endPos := p.segmentPos + p.segmentSize
	if endPos > p.fileSize {
		endPos = p.fileSize
	}

	known := make(map[uint64]bool, len(p.clusterIndex))
	for _, entry := range p.clusterIndex {
		known[entry.Position] = true
	}

	for p.reader.Position() < endPos {
		elementStart := p.reader.Position()
		id, size, _, err := p.reader.ReadElementHeader()
		if err != nil {
			break
		}

		if id == ClusterID && !known[elementStart] {
			p.clusterIndex = append(p.clusterIndex, &ClusterEntry{
				Position: elementStart,
				Timecode: TimecodeUnknown,
			})
		}

		if size == SizeUnknown {
			break
		}
		if err = p.reader.Skip(size); err != nil {
			break
		}
	}

	p.countClusters()
	return nil
}

// countClusters rewrites every entry's ordinal to its index in the vector.
func (p *Parser) countClusters() {
	for c := range p.clusterIndex {
		p.clusterIndex[c].ClusterNo = uint32(c)
	}
}
