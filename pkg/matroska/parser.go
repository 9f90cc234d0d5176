// Package matroska implements a streaming parser and demultiplexer for the
// Matroska container format. It reads file-wide metadata, tracks, chapters,
// tags and attachments from a seekable byte source, and demuxes per-track
// frames lazily through bounded queues.
package matroska

import (
	"io"
	"math"
	"os"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

// DefaultTagScanRange is how many trailing bytes the tags rescue scan reads
// when no SeekHead entry points at the Tags element.
const DefaultTagScanRange = 1024 * 64

// Parser is the Matroska reader facade. It owns the byte source exclusively;
// concurrent calls on one instance are undefined. Multiple instances against
// distinct files are independent.
type Parser struct {
	reader *EBMLReader
	file   *os.File
	logger Logger

	segmentPos  uint64
	segmentSize uint64

	segmentInfo *SegmentInfo
	tracks      []TrackInfo
	editions    []Edition
	chapters    []*Chapter
	tags        []*Tag
	attachments []Attachment

	clusterIndex      []*ClusterEntry
	clustersScanned   bool
	indexFromMetaSeek bool

	enabledTrackNumbers map[uint16]struct{}
	frameQueues         map[uint16][]*Frame
	maxQueueDepth       uint32
	currentTimecode     uint64
	currentChapter      *Chapter
	eof                 bool

	fileSize     uint64
	tagPos       uint64
	tagSize      uint64
	tagScanRange uint32
}

// Open opens a Matroska file by path.
func Open(path string) (*Parser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewFileError("failed to open file", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.NewFileError("failed to stat file", err)
	}

	parser := newParser(file, uint64(stat.Size()))
	parser.file = file
	return parser, nil
}

// NewParser wraps an already-open seekable source. The source's length is
// determined by seeking to its end.
func NewParser(r io.ReadSeeker) (*Parser, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.NewFileError("source is not seekable", err)
	}
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.NewFileError("source is not seekable", err)
	}

	return newParser(r, uint64(size)), nil
}

func newParser(r io.ReadSeeker, size uint64) *Parser {
	return &Parser{
		reader:              NewEBMLReader(r),
		logger:              nopLogger{},
		segmentInfo:         &SegmentInfo{TimecodeScale: DefaultTimecodeScale},
		enabledTrackNumbers: make(map[uint16]struct{}),
		frameQueues:         make(map[uint16][]*Frame),
		fileSize:            size,
		tagScanRange:        DefaultTagScanRange,
	}
}

// SetLogger wires a diagnostic sink. The default discards everything.
func (p *Parser) SetLogger(logger Logger) {
	if logger == nil {
		logger = nopLogger{}
	}
	p.logger = logger
}

// SetTagScanRange sets how many trailing bytes the tags rescue scan reads.
// 0 disables the scan.
func (p *Parser) SetTagScanRange(n uint32) {
	p.tagScanRange = n
}

// Close releases the underlying file when the parser was created via Open.
func (p *Parser) Close() error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// Parse walks the segment headers. With infoOnly, metaseek resolution stops
// once a single cluster is known. With breakAtClusters, the walk halts at the
// first cluster, leaving the file position at the cluster's first byte.
//
// Returns 0 on success and 1 on failure. Failure still leaves every list
// parsed so far intact; many real files have non-conforming tails, and the
// caller is expected to use whatever metadata was reached.
func (p *Parser) Parse(infoOnly, breakAtClusters bool) int {
	status := 0
	if err := p.parse(infoOnly, breakAtClusters); err != nil {
		p.logger.Warnf("parse failed: %v", err)
		status = 1
	}

	p.countClusters()
	p.fixChapterEndTimes()
	return status
}

func (p *Parser) parse(infoOnly, breakAtClusters bool) error {
	if err := p.reader.Seek(0); err != nil {
		return errors.NewFileError("failed to seek to start", err)
	}

	header, err := p.reader.ReadElement()
	if err != nil {
		return errors.NewUnsupportedFormatError("no EBML head found", err)
	}
	if header.ID != EBMLHeaderID {
		return errors.NewUnsupportedFormatError("first element is not an EBML head", nil)
	}
	if err = validateEBMLHeader(header); err != nil {
		return err
	}

	id, size, _, err := p.reader.ReadElementHeader()
	if err != nil {
		return errors.NewUnsupportedFormatError("no segment found", err)
	}
	if id != SegmentID {
		return errors.NewUnsupportedFormatError("no segment found", nil)
	}

	p.segmentPos = p.reader.Position()
	p.segmentSize = size
	if size == SizeUnknown {
		// An unknown-size segment runs to the end of the file
		p.segmentSize = p.fileSize - p.segmentPos
	}

	return p.parseSegmentChildren(infoOnly, breakAtClusters)
}

func validateEBMLHeader(header *EBMLElement) error {
	reader := NewEBMLReader(&bytesReader{data: header.Data})

	docType := "matroska"
	for reader.Position() < uint64(len(header.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.NewUnsupportedFormatError("invalid EBML head", err)
		}

		if child.ID == DocTypeID {
			docType = child.ReadString()
		}
	}

	if docType != "matroska" && docType != "webm" {
		return errors.NewUnsupportedFormatError("unsupported document type: "+docType, nil)
	}

	return nil
}

func (p *Parser) parseSegmentChildren(infoOnly, breakAtClusters bool) error {
	endPos := p.segmentPos + p.segmentSize
	if endPos > p.fileSize {
		endPos = p.fileSize
	}

	for p.reader.Position() < endPos {
		elementStart := p.reader.Position()
		id, size, _, err := p.reader.ReadElementHeader()
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.NewMalformedEBMLError("failed to read segment child header", err)
		}

		if size != SizeUnknown && p.reader.Position()+size > endPos {
			return errors.NewMalformedEBMLError("element "+ElementName(id)+" runs past segment end", nil)
		}

		switch id {
		case SeekHeadID:
			data, errRead := p.readPayload(size)
			if errRead != nil {
				return errRead
			}
			visited := map[uint64]bool{elementStart: true}
			if errSeek := p.parseMetaSeek(data, infoOnly, visited); errSeek != nil {
				return errSeek
			}
			if p.tagPos == 0 && p.tagScanRange > 0 {
				if errScan := p.rescueTags(); errScan != nil {
					p.logger.Warnf("tags rescue scan failed: %v", errScan)
				}
			}

		case SegmentInfoID:
			data, errRead := p.readPayload(size)
			if errRead != nil {
				return errRead
			}
			if errInfo := p.parseSegmentInfo(data); errInfo != nil {
				return errInfo
			}

		case TracksID:
			data, errRead := p.readPayload(size)
			if errRead != nil {
				return errRead
			}
			if errTracks := p.parseTracks(data); errTracks != nil {
				return errTracks
			}

		case ChaptersID:
			data, errRead := p.readPayload(size)
			if errRead != nil {
				return errRead
			}
			if errChapters := p.parseChapters(data); errChapters != nil {
				return errChapters
			}

		case TagsID:
			if p.tagPos == elementStart {
				// already parsed through a SeekHead entry
				if err = p.skipPayload(size, endPos); err != nil {
					return err
				}
				continue
			}
			data, errRead := p.readPayload(size)
			if errRead != nil {
				return errRead
			}
			if errTags := p.parseTags(data, elementStart, size); errTags != nil {
				return errTags
			}

		case AttachmentsID:
			if err = p.parseAttachments(size); err != nil {
				return err
			}

		case ClusterID:
			if len(p.clusterIndex) == 0 {
				p.clusterIndex = append(p.clusterIndex, &ClusterEntry{
					Position: elementStart,
					Timecode: TimecodeUnknown,
				})
			}
			if breakAtClusters {
				if err = p.reader.Seek(elementStart); err != nil {
					return errors.NewFileError("failed to reposition at cluster", err)
				}
				return nil
			}
			if err = p.skipPayload(size, endPos); err != nil {
				return err
			}

		default:
			if err = p.skipPayload(size, endPos); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Parser) readPayload(size uint64) ([]byte, error) {
	if size == SizeUnknown {
		return nil, errors.NewMalformedEBMLError("unknown-size element outside segment level", nil)
	}
	if size > math.MaxInt32 {
		return nil, errors.NewMalformedEBMLError("element size too large", nil)
	}

	data := make([]byte, size)
	n, err := io.ReadFull(p.reader.reader, data)
	if err != nil {
		return nil, errors.NewShortReadError("failed to read element payload", err)
	}
	p.reader.pos += uint64(n)
	return data, nil
}

func (p *Parser) skipPayload(size, endPos uint64) error {
	if size == SizeUnknown {
		return p.reader.Seek(endPos)
	}
	return p.reader.Skip(size)
}

func (p *Parser) parseSegmentInfo(data []byte) error {
	reader := NewEBMLReader(&bytesReader{data: data})

	info := &SegmentInfo{
		TimecodeScale: DefaultTimecodeScale,
	}

	for reader.Position() < uint64(len(data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		switch child.ID {
		case TimecodeScaleID:
			scale, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			info.TimecodeScale = scale
		case DurationID:
			duration, errReadFloat := child.ReadFloat()
			if errReadFloat != nil {
				return errReadFloat
			}
			// stored on disk in TimecodeScale units, kept in nanoseconds
			info.Duration = duration * float64(info.TimecodeScale)
		case DateUTCID:
			date, errReadDate := child.ReadDate()
			if errReadDate != nil {
				return errReadDate
			}
			info.DateUTC = date
			info.DateUTCValid = true
		case TitleID:
			info.Title = child.ReadString()
		case MuxingAppID:
			info.MuxingApp = child.ReadString()
		case WritingAppID:
			info.WritingApp = child.ReadString()
		case SegmentUIDID:
			uid := child.ReadBytes()
			if len(uid) <= 16 {
				copy(info.UID[:], uid)
			}
		case SegmentFilenameID:
			info.Filename = child.ReadString()
		case PrevUIDID:
			uid := child.ReadBytes()
			if len(uid) <= 16 {
				copy(info.PrevUID[:], uid)
			}
		case PrevFilenameID:
			info.PrevFilename = child.ReadString()
		case NextUIDID:
			uid := child.ReadBytes()
			if len(uid) <= 16 {
				copy(info.NextUID[:], uid)
			}
		case NextFilenameID:
			info.NextFilename = child.ReadString()
		}
	}

	p.segmentInfo = info
	return nil
}

func (p *Parser) parseTracks(data []byte) error {
	reader := NewEBMLReader(&bytesReader{data: data})

	for reader.Position() < uint64(len(data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if child.ID == TrackEntryID {
			track, errParseTrackEntry := p.parseTrackEntry(child)
			if errParseTrackEntry != nil {
				return errParseTrackEntry
			}
			if track.Number != invalidTrackNumber {
				p.tracks = append(p.tracks, *track)
			}
		}
	}

	return nil
}

func (p *Parser) parseTrackEntry(element *EBMLElement) (*TrackInfo, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	track := &TrackInfo{
		Enabled:  true,
		Default:  true,
		Lacing:   true,
		Language: "eng",
	}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		switch child.ID {
		case TrackNumberID:
			num, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Number = uint16(num)
		case TrackUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.UID = uid
		case TrackTypeID:
			trackType, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Type = TrackType(trackType)
		case FlagEnabledID:
			enabled, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Enabled = enabled != 0
		case FlagDefaultID:
			def, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Default = def != 0
		case FlagForcedID:
			forced, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Forced = forced != 0
		case FlagLacingID:
			lacing, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.Lacing = lacing != 0
		case DefaultDurationID:
			duration, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			track.DefaultDuration = duration
		case NameID:
			track.Name = child.ReadString()
		case LanguageID:
			lang := child.ReadString()
			if len(lang) >= 3 {
				track.Language = lang[:3]
			} else {
				track.Language = lang
			}
		case CodecIDID:
			track.CodecID = child.ReadString()
		case CodecPrivateID:
			track.CodecPrivate = child.ReadBytes()
		case VideoID:
			if err = p.parseVideoInfo(child, track); err != nil {
				return nil, err
			}
		case AudioID:
			if err = p.parseAudioInfo(child, track); err != nil {
				return nil, err
			}
		}
	}

	return track, nil
}

func (p *Parser) parseVideoInfo(element *EBMLElement, track *TrackInfo) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		switch child.ID {
		case FlagInterlacedID:
			interlaced, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Video.Interlaced = interlaced != 0
		case PixelWidthID:
			width, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Video.PixelWidth = uint32(width)
		case PixelHeightID:
			height, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Video.PixelHeight = uint32(height)
		case DisplayWidthID:
			width, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Video.DisplayWidth = uint32(width)
		case DisplayHeightID:
			height, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Video.DisplayHeight = uint32(height)
		}
	}

	if track.Video.DisplayWidth == 0 {
		track.Video.DisplayWidth = track.Video.PixelWidth
	}
	if track.Video.DisplayHeight == 0 {
		track.Video.DisplayHeight = track.Video.PixelHeight
	}

	return nil
}

func (p *Parser) parseAudioInfo(element *EBMLElement, track *TrackInfo) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	track.Audio.Channels = 1

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		switch child.ID {
		case SamplingFrequencyID:
			freq, errReadFloat := child.ReadFloat()
			if errReadFloat != nil {
				return errReadFloat
			}
			track.Audio.SamplingFreq = freq
		case OutputSamplingFrequencyID:
			freq, errReadFloat := child.ReadFloat()
			if errReadFloat != nil {
				return errReadFloat
			}
			track.Audio.OutputSamplingFreq = freq
		case ChannelsID:
			channels, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Audio.Channels = uint8(channels)
		case BitDepthID:
			depth, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			track.Audio.BitDepth = uint8(depth)
		}
	}

	if track.Audio.OutputSamplingFreq == 0 {
		track.Audio.OutputSamplingFreq = track.Audio.SamplingFreq
	}

	return nil
}

// TimecodeToSeconds converts nanoseconds to seconds. The samplerate hint is
// accepted for API compatibility and ignored.
func (p *Parser) TimecodeToSeconds(code uint64, _ uint) float64 {
	return float64(int64(code)) / 1e9
}

// SecondsToTimecode converts seconds to nanoseconds.
func (p *Parser) SecondsToTimecode(seconds float64) uint64 {
	return uint64(math.Floor(seconds * 1e9))
}

// GetDuration returns the file duration in seconds, or the current chapter's
// length when a subsong is selected.
func (p *Parser) GetDuration() float64 {
	if p.currentChapter != nil {
		return p.TimecodeToSeconds(p.currentChapter.TimeEnd-p.currentChapter.TimeStart, 0)
	}
	return p.segmentInfo.Duration / 1e9
}

// GetTrackDuration returns the track's default frame duration scaled by the
// file's timecode scale.
func (p *Parser) GetTrackDuration(trackIdx uint16) float64 {
	if int(trackIdx) >= len(p.tracks) {
		return 0
	}
	return float64(p.tracks[trackIdx].DefaultDuration) * float64(p.segmentInfo.TimecodeScale)
}

// GetFirstTrack returns the lowest track index of the given type, or -1.
func (p *Parser) GetFirstTrack(trackType TrackType) int {
	for t := range p.tracks {
		if p.tracks[t].Type == trackType {
			return t
		}
	}
	return -1
}

// GetTrackCount returns the total number of tracks.
func (p *Parser) GetTrackCount() uint32 {
	return uint32(len(p.tracks))
}

// GetTrackCountByType returns the number of tracks of the given type.
func (p *Parser) GetTrackCountByType(trackType TrackType) uint32 {
	var count uint32
	for t := range p.tracks {
		if p.tracks[t].Type == trackType {
			count++
		}
	}
	return count
}

// GetTrackIndex returns the absolute index of the n-th track of the given
// type, or -1.
func (p *Parser) GetTrackIndex(trackType TrackType, index uint32) int {
	var idx uint32
	for t := range p.tracks {
		if p.tracks[t].Type == trackType {
			if idx == index {
				return t
			}
			idx++
		}
	}
	return -1
}

// GetTrack returns the track at the given index.
func (p *Parser) GetTrack(trackIdx uint16) *TrackInfo {
	if int(trackIdx) >= len(p.tracks) {
		return nil
	}
	return &p.tracks[trackIdx]
}

// FindTrack resolves an on-disk track number to a track index, or 0xFFFF.
func (p *Parser) FindTrack(trackNum uint16) uint16 {
	for i := range p.tracks {
		if p.tracks[i].Number == trackNum {
			return uint16(i)
		}
	}
	return invalidTrackNumber
}

func (p *Parser) GetTimecodeScale() uint64 {
	return p.segmentInfo.TimecodeScale
}

func (p *Parser) GetSegmentFilename() string {
	return p.segmentInfo.Filename
}

func (p *Parser) GetFileInfo() *SegmentInfo {
	return p.segmentInfo
}

func (p *Parser) GetTracks() []TrackInfo {
	return p.tracks
}

func (p *Parser) GetEditions() []Edition {
	return p.editions
}

func (p *Parser) GetChapters() []*Chapter {
	return p.chapters
}

func (p *Parser) GetTags() []*Tag {
	return p.tags
}

// GetAttachmentList returns the attachments registered during parse. Their
// payloads have not been read; use ReadAttachment.
func (p *Parser) GetAttachmentList() []Attachment {
	return p.attachments
}

// GetAvgBitrate returns the whole-file average bitrate in kbps, computed the
// way the classic readers do: kibibytes over seconds, times eight.
func (p *Parser) GetAvgBitrate() int32 {
	ret := float64(int64(p.fileSize)) / 1024
	ret = ret / (p.segmentInfo.Duration / 1e9)
	ret = ret * 8
	return int32(ret)
}

// EnableTrack adds the track to the enabled set and creates its frame queue.
func (p *Parser) EnableTrack(trackIdx uint16) {
	if int(trackIdx) >= len(p.tracks) {
		return
	}
	p.enabledTrackNumbers[p.tracks[trackIdx].Number] = struct{}{}
	if _, ok := p.frameQueues[trackIdx]; !ok {
		p.frameQueues[trackIdx] = nil
	}
}

// SetMaxQueueDepth limits how many frames may queue on any track before
// FillQueue refuses to read further. 0 disables the limit.
func (p *Parser) SetMaxQueueDepth(depth uint32) {
	p.maxQueueDepth = depth
}

// SetSubSong selects the chapter that durations and seeks are rebased to.
// Pass -1 to return to whole-file playback.
func (p *Parser) SetSubSong(subsong int) {
	p.currentChapter = nil
	if subsong >= 0 && subsong < len(p.chapters) {
		p.currentChapter = p.chapters[subsong]
	}
}

// IsEof reports whether frame reading has run past the last cluster. When
// reading multiple tracks, use this to decide when to stop.
func (p *Parser) IsEof() bool {
	return p.eof
}

// ReadAttachment reads the payload of the attachment at the given index. The
// file position is restored afterwards, so streaming state is unaffected.
func (p *Parser) ReadAttachment(index int) ([]byte, error) {
	if index < 0 || index >= len(p.attachments) {
		return nil, errors.NewFileError("attachment index out of range", nil)
	}
	attachment := &p.attachments[index]

	oldPos := p.reader.Position()
	defer func() {
		_ = p.reader.Seek(oldPos)
	}()

	if err := p.reader.Seek(attachment.Position); err != nil {
		return nil, errors.NewFileError("failed to seek to attachment", err)
	}

	result := make([]byte, attachment.Length)
	n, err := io.ReadFull(p.reader.reader, result)
	if uint64(n) != attachment.Length {
		return nil, errors.NewShortReadError("attachment payload truncated", err)
	}

	return result, nil
}
