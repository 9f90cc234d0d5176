package matroska

import (
	"io"

	"github.com/pborman/uuid"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

// Demuxer is a closed-over view of a Parser that hands out defensive copies
// of parsed metadata. One demuxer owns one parser and its byte source.
type Demuxer struct {
	parser *Parser
	key    string
	closed bool
}

// OpenDemuxer opens and fully parses a Matroska file by path.
func OpenDemuxer(path string) (*Demuxer, error) {
	parser, err := Open(path)
	if err != nil {
		return nil, err
	}

	return newDemuxer(parser)
}

// NewDemuxer wraps an already-open seekable source and fully parses it.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	parser, err := NewParser(r)
	if err != nil {
		return nil, err
	}

	return newDemuxer(parser)
}

func newDemuxer(parser *Parser) (*Demuxer, error) {
	if parser.Parse(false, true) != 0 {
		_ = parser.Close()
		return nil, errors.NewUnsupportedFormatError("failed to parse file headers", nil)
	}

	return &Demuxer{
		parser: parser,
		key:    uuid.New(),
	}, nil
}

// Key returns the demuxer's unique instance key.
func (d *Demuxer) Key() string {
	return d.key
}

func (d *Demuxer) Close() {
	if d.closed {
		return
	}
	d.closed = true
	_ = d.parser.Close()
	d.parser = nil
}

func (d *Demuxer) GetNumTracks() (uint, error) {
	if d.closed {
		return 0, errors.NewFileError("demuxer is closed", nil)
	}

	return uint(len(d.parser.tracks)), nil
}

func (d *Demuxer) GetTrackInfo(track uint) (*TrackInfo, error) {
	if d.closed {
		return nil, errors.NewFileError("demuxer is closed", nil)
	}

	if int(track) >= len(d.parser.tracks) {
		return nil, errors.NewFileError("track index out of range", nil)
	}

	result := d.parser.tracks[track]
	if len(result.CodecPrivate) > 0 {
		private := make([]byte, len(result.CodecPrivate))
		copy(private, result.CodecPrivate)
		result.CodecPrivate = private
	}

	return &result, nil
}

func (d *Demuxer) GetFileInfo() (*SegmentInfo, error) {
	if d.closed {
		return nil, errors.NewFileError("demuxer is closed", nil)
	}

	result := *d.parser.segmentInfo
	return &result, nil
}

func (d *Demuxer) GetAttachments() []Attachment {
	if d.closed {
		return []Attachment{}
	}

	result := make([]Attachment, len(d.parser.attachments))
	copy(result, d.parser.attachments)
	return result
}

func (d *Demuxer) GetChapters() []*Chapter {
	if d.closed {
		return []*Chapter{}
	}

	result := make([]*Chapter, len(d.parser.chapters))
	for i, chapter := range d.parser.chapters {
		result[i] = copyChapter(chapter)
	}

	return result
}

func copyChapter(src *Chapter) *Chapter {
	dst := &Chapter{}
	*dst = *src

	if len(src.Tracks) > 0 {
		dst.Tracks = make([]uint64, len(src.Tracks))
		copy(dst.Tracks, src.Tracks)
	}

	if len(src.Display) > 0 {
		dst.Display = make([]ChapterDisplay, len(src.Display))
		copy(dst.Display, src.Display)
	}

	if len(src.Children) > 0 {
		dst.Children = make([]*Chapter, len(src.Children))
		for i, child := range src.Children {
			dst.Children[i] = copyChapter(child)
		}
	}

	return dst
}

func (d *Demuxer) GetEditions() []Edition {
	if d.closed {
		return []Edition{}
	}

	result := make([]Edition, len(d.parser.editions))
	for i, edition := range d.parser.editions {
		result[i] = edition
		if len(edition.Tracks) > 0 {
			result[i].Tracks = make([]uint64, len(edition.Tracks))
			copy(result[i].Tracks, edition.Tracks)
		}
	}

	return result
}

func (d *Demuxer) GetTags() []*Tag {
	if d.closed {
		return []*Tag{}
	}

	result := make([]*Tag, len(d.parser.tags))
	for i, tag := range d.parser.tags {
		result[i] = &Tag{}
		*result[i] = *tag

		if len(tag.SimpleTags) > 0 {
			result[i].SimpleTags = make([]SimpleTag, len(tag.SimpleTags))
			copy(result[i].SimpleTags, tag.SimpleTags)
		}
	}

	return result
}

func (d *Demuxer) GetDuration() float64 {
	if d.closed {
		return 0
	}
	return d.parser.GetDuration()
}

func (d *Demuxer) GetAvgBitrate() int32 {
	if d.closed {
		return 0
	}
	return d.parser.GetAvgBitrate()
}

func (d *Demuxer) EnableTrack(trackIdx uint16) {
	if d.closed {
		return
	}
	d.parser.EnableTrack(trackIdx)
}

func (d *Demuxer) SetMaxQueueDepth(depth uint32) {
	if d.closed {
		return
	}
	d.parser.SetMaxQueueDepth(depth)
}

func (d *Demuxer) SetSubSong(subsong int) {
	if d.closed {
		return
	}
	d.parser.SetSubSong(subsong)
}

func (d *Demuxer) Seek(seconds float64, samplerateHint uint) bool {
	if d.closed {
		return false
	}
	return d.parser.Seek(seconds, samplerateHint)
}

func (d *Demuxer) ReadSingleFrame(trackIdx uint16) *Frame {
	if d.closed {
		return nil
	}
	return d.parser.ReadSingleFrame(trackIdx)
}

func (d *Demuxer) Restart() bool {
	if d.closed {
		return false
	}
	return d.parser.Restart()
}

func (d *Demuxer) IsEof() bool {
	if d.closed {
		return true
	}
	return d.parser.IsEof()
}

func (d *Demuxer) ReadAttachment(index int) ([]byte, error) {
	if d.closed {
		return nil, errors.NewFileError("demuxer is closed", nil)
	}
	return d.parser.ReadAttachment(index)
}
