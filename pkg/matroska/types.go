package matroska

import (
	"strings"
	"time"
)

const (
	// DefaultTimecodeScale is the nanoseconds-per-tick value assumed until
	// the Info element says otherwise.
	DefaultTimecodeScale = 1000000

	// TimecodeUnknown marks a cluster whose timecode has not been read yet,
	// or a cursor past the last cluster.
	TimecodeUnknown = SizeUnknown

	// invalidTrackNumber is the sentinel for "no such track".
	invalidTrackNumber = 0xFFFF
)

// TrackType is the numeric Matroska track class.
type TrackType uint8

const (
	TrackTypeVideo    TrackType = 0x01
	TrackTypeAudio    TrackType = 0x02
	TrackTypeComplex  TrackType = 0x03
	TrackTypeLogo     TrackType = 0x10
	TrackTypeSubtitle TrackType = 0x11
	TrackTypeButtons  TrackType = 0x12
	TrackTypeControl  TrackType = 0x20
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeVideo:
		return "video"
	case TrackTypeAudio:
		return "audio"
	case TrackTypeComplex:
		return "complex"
	case TrackTypeLogo:
		return "logo"
	case TrackTypeSubtitle:
		return "subtitle"
	case TrackTypeButtons:
		return "buttons"
	case TrackTypeControl:
		return "control"
	default:
		return "other"
	}
}

// SegmentInfo carries the file-wide metadata from the Info element.
type SegmentInfo struct {
	UID           [16]byte
	Filename      string
	PrevUID       [16]byte
	PrevFilename  string
	NextUID       [16]byte
	NextFilename  string
	TimecodeScale uint64
	// Duration is in nanoseconds (the on-disk value is in TimecodeScale units)
	Duration     float64
	DateUTC      time.Time
	DateUTCValid bool
	Title        string
	MuxingApp    string
	WritingApp   string
}

type AudioInfo struct {
	Channels           uint8
	SamplingFreq       float64
	OutputSamplingFreq float64
	BitDepth           uint8
	AvgBytesPerSec     uint32
}

type VideoInfo struct {
	PixelWidth    uint32
	PixelHeight   uint32
	DisplayWidth  uint32
	DisplayHeight uint32
	Interlaced    bool
}

type TrackInfo struct {
	Number          uint16
	UID             uint64
	Type            TrackType
	Enabled         bool
	Default         bool
	Forced          bool
	Lacing          bool
	DefaultDuration uint64
	Name            string
	Language        string
	CodecID         string
	CodecPrivate    []byte
	Video           VideoInfo
	Audio           AudioInfo
}

// Edition is one EditionEntry. An empty Tracks slice means the edition
// applies to all tracks.
type Edition struct {
	UID    uint64
	Tracks []uint64
}

type ChapterDisplay struct {
	String   string
	Language string
	Country  string
}

// Chapter is one ChapterAtom. An empty Tracks slice means the chapter
// applies to all tracks. TimeStart and TimeEnd are nanoseconds.
type Chapter struct {
	UID       uint64
	TimeStart uint64
	TimeEnd   uint64
	Hidden    bool
	Enabled   bool
	Tracks    []uint64
	Display   []ChapterDisplay
	Children  []*Chapter
}

// SimpleTag is one name/value pair. Names are upper-cased on ingestion so
// lookups are case-insensitive by construction.
type SimpleTag struct {
	Name     string
	Value    string
	Language string
	Default  uint32

	removalPending bool
}

// Tag is one Tag element: a target selector plus its SimpleTag list.
type Tag struct {
	TargetTrackUID      uint64
	TargetEditionUID    uint64
	TargetChapterUID    uint64
	TargetAttachmentUID uint64
	TargetTypeValue     uint32
	TargetType          string
	SimpleTags          []SimpleTag
}

// SetTagValue replaces the index-th existing simple tag with a matching name
// (compared case-insensitively), clearing its removal mark, or appends a new
// one when no match remains.
func (t *Tag) SetTagValue(name, value string, index int) {
	for i := range t.SimpleTags {
		current := &t.SimpleTags[i]
		if strings.EqualFold(current.Name, name) {
			if index == 0 {
				current.Value = value
				current.removalPending = false
				return
			}
			index--
		}
	}

	t.SimpleTags = append(t.SimpleTags, SimpleTag{
		Name:     name,
		Value:    value,
		Language: "und",
		Default:  1,
	})
}

// MarkAllAsRemovalPending marks every simple tag for the two-phase sweep
// editors use: mark everything, rewrite what should stay, remove the rest.
func (t *Tag) MarkAllAsRemovalPending() {
	for i := range t.SimpleTags {
		t.SimpleTags[i].removalPending = true
	}
}

// RemoveMarkedTags drops every simple tag still marked for removal.
func (t *Tag) RemoveMarkedTags() {
	kept := t.SimpleTags[:0]
	for _, simpleTag := range t.SimpleTags {
		if !simpleTag.removalPending {
			kept = append(kept, simpleTag)
		}
	}
	t.SimpleTags = kept
}

// Attachment records where an attached file's payload lives. The payload
// itself is only read by ReadAttachment.
type Attachment struct {
	Name        string
	MimeType    string
	Description string
	UID         uint64
	// Position is the absolute file offset of the first payload byte
	Position uint64
	Length   uint64
}

// ClusterEntry is one cluster in the seek index. Timecode stays
// TimecodeUnknown until it is lazily materialised.
type ClusterEntry struct {
	ClusterNo uint32
	Position  uint64
	Timecode  uint64
}

// Frame is one demuxed frame. Data holds more than one buffer only when the
// source block used lacing.
type Frame struct {
	// Timecode is absolute, in nanoseconds
	Timecode uint64
	// Duration is in nanoseconds; 0 means unknown
	Duration       uint64
	Data           [][]byte
	AddID          uint64
	AdditionalData []byte
}

// Payload concatenates the frame's buffers into one slice.
func (f *Frame) Payload() []byte {
	total := 0
	for _, buffer := range f.Data {
		total += len(buffer)
	}

	result := make([]byte, 0, total)
	for _, buffer := range f.Data {
		result = append(result, buffer...)
	}
	return result
}

// Logger is the diagnostic sink the parser writes to. A parser made by Open or
// NewParser uses a discard sink until SetLogger wires another.
type Logger interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{}) {}
