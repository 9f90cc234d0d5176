package matroska

const (
	EBMLHeaderID         = 0x1A45DFA3
	EBMLVersionID        = 0x4286
	EBMLReadVersionID    = 0x42F7
	EBMLMaxIDLengthID    = 0x42F2
	EBMLMaxSizeLengthID  = 0x42F3
	DocTypeID            = 0x4282
	DocTypeVersionID     = 0x4287
	DocTypeReadVersionID = 0x4285

	SegmentID     = 0x18538067
	SeekHeadID    = 0x114D9B74
	SegmentInfoID = 0x1549A966
	TracksID      = 0x1654AE6B
	CuesID        = 0x1C53BB6B
	AttachmentsID = 0x1941A469
	ChaptersID    = 0x1043A770
	TagsID        = 0x1254C367
	ClusterID     = 0x1F43B675

	VoidID  = 0xEC
	CRC32ID = 0xBF

	SeekID          = 0x4DBB
	SeekIDElementID = 0x53AB
	SeekPositionID  = 0x53AC

	TimecodeScaleID   = 0x2AD7B1
	DurationID        = 0x4489
	DateUTCID         = 0x4461
	TitleID           = 0x7BA9
	MuxingAppID       = 0x4D80
	WritingAppID      = 0x5741
	SegmentUIDID      = 0x73A4
	SegmentFilenameID = 0x7384
	PrevUIDID         = 0x3CB923
	PrevFilenameID    = 0x3C83AB
	NextUIDID         = 0x3EB923
	NextFilenameID    = 0x3E83BB

	TrackEntryID      = 0xAE
	TrackNumberID     = 0xD7
	TrackUIDID        = 0x73C5
	TrackTypeID       = 0x83
	FlagEnabledID     = 0xB9
	FlagDefaultID     = 0x88
	FlagForcedID      = 0x55AA
	FlagLacingID      = 0x9C
	DefaultDurationID = 0x23E383
	NameID            = 0x536E
	LanguageID        = 0x22B59C
	CodecIDID         = 0x86
	CodecPrivateID    = 0x63A2
	CodecNameID       = 0x258688

	VideoID          = 0xE0
	FlagInterlacedID = 0x9A
	PixelWidthID     = 0xB0
	PixelHeightID    = 0xBA
	DisplayWidthID   = 0x54B0
	DisplayHeightID  = 0x54BA

	AudioID                   = 0xE1
	SamplingFrequencyID       = 0xB5
	OutputSamplingFrequencyID = 0x78B5
	ChannelsID                = 0x9F
	BitDepthID                = 0x6264

	TimecodeID        = 0xE7
	PositionID        = 0xA7
	PrevSizeID        = 0xAB
	SimpleBlockID     = 0xA3
	BlockGroupID      = 0xA0
	BlockID           = 0xA1
	BlockDurationID   = 0x9B
	ReferenceBlockID  = 0xFB
	BlockAdditionsID  = 0x75A1
	BlockMoreID       = 0xA6
	BlockAddIDID      = 0xEE
	BlockAdditionalID = 0xA5

	AttachedFileID    = 0x61A7
	FileDescriptionID = 0x467E
	FileNameID        = 0x466E
	FileMimeTypeID    = 0x4660
	FileDataID        = 0x465C
	FileUIDID         = 0x46AE

	EditionEntryID       = 0x45B9
	EditionUIDID         = 0x45BC
	ChapterAtomID        = 0xB6
	ChapterUIDID         = 0x73C4
	ChapterTimeStartID   = 0x91
	ChapterTimeEndID     = 0x92
	ChapterFlagHiddenID  = 0x98
	ChapterFlagEnabledID = 0x4598
	ChapterTrackID       = 0x8F
	ChapterTrackNumberID = 0x89
	ChapterDisplayID     = 0x80
	ChapStringID         = 0x85
	ChapLanguageID       = 0x437C
	ChapCountryID        = 0x437E

	TagID              = 0x7373
	TargetsID          = 0x63C0
	TargetTypeValueID  = 0x68CA
	TargetTypeID       = 0x63CA
	TagTrackUIDID      = 0x63C5
	TagEditionUIDID    = 0x63C9
	TagChapterUIDID    = 0x63C4
	TagAttachmentUIDID = 0x63C6
	SimpleTagID        = 0x67C8
	TagNameID          = 0x45A3
	TagLanguageID      = 0x447A
	TagDefaultID       = 0x4484
	TagStringID        = 0x4487
	TagBinaryID        = 0x4485
)

// TagsSignature is the trailing three bytes of the on-disk Tags class ID
// (0x1254C367), used by the tail rescue scan when no SeekHead entry points at
// the tags.
var TagsSignature = []byte{0x54, 0xC3, 0x67}

var ElementNames = map[uint32]string{
	EBMLHeaderID:         "EBML",
	EBMLVersionID:        "EBMLVersion",
	EBMLReadVersionID:    "EBMLReadVersion",
	EBMLMaxIDLengthID:    "EBMLMaxIDLength",
	EBMLMaxSizeLengthID:  "EBMLMaxSizeLength",
	DocTypeID:            "DocType",
	DocTypeVersionID:     "DocTypeVersion",
	DocTypeReadVersionID: "DocTypeReadVersion",

	SegmentID:     "Segment",
	SeekHeadID:    "SeekHead",
	SegmentInfoID: "Info",
	TracksID:      "Tracks",
	CuesID:        "Cues",
	AttachmentsID: "Attachments",
	ChaptersID:    "Chapters",
	TagsID:        "Tags",
	ClusterID:     "Cluster",

	SeekID:          "Seek",
	SeekIDElementID: "SeekID",
	SeekPositionID:  "SeekPosition",

	TimecodeScaleID:   "TimecodeScale",
	DurationID:        "Duration",
	DateUTCID:         "DateUTC",
	TitleID:           "Title",
	MuxingAppID:       "MuxingApp",
	WritingAppID:      "WritingApp",
	SegmentFilenameID: "SegmentFilename",

	TrackEntryID:      "TrackEntry",
	TrackNumberID:     "TrackNumber",
	TrackUIDID:        "TrackUID",
	TrackTypeID:       "TrackType",
	DefaultDurationID: "DefaultDuration",
	CodecIDID:         "CodecID",
	CodecPrivateID:    "CodecPrivate",
	NameID:            "Name",
	LanguageID:        "Language",

	AudioID:                   "Audio",
	SamplingFrequencyID:       "SamplingFrequency",
	OutputSamplingFrequencyID: "OutputSamplingFrequency",
	ChannelsID:                "Channels",
	BitDepthID:                "BitDepth",

	TimecodeID:        "Timecode",
	SimpleBlockID:     "SimpleBlock",
	BlockGroupID:      "BlockGroup",
	BlockID:           "Block",
	BlockDurationID:   "BlockDuration",
	BlockAdditionsID:  "BlockAdditions",
	BlockMoreID:       "BlockMore",
	BlockAddIDID:      "BlockAddID",
	BlockAdditionalID: "BlockAdditional",

	AttachedFileID:    "AttachedFile",
	FileDescriptionID: "FileDescription",
	FileNameID:        "FileName",
	FileMimeTypeID:    "FileMimeType",
	FileDataID:        "FileData",

	EditionEntryID:       "EditionEntry",
	EditionUIDID:         "EditionUID",
	ChapterAtomID:        "ChapterAtom",
	ChapterUIDID:         "ChapterUID",
	ChapterTimeStartID:   "ChapterTimeStart",
	ChapterTimeEndID:     "ChapterTimeEnd",
	ChapterTrackID:       "ChapterTrack",
	ChapterTrackNumberID: "ChapterTrackNumber",
	ChapterDisplayID:     "ChapterDisplay",
	ChapStringID:         "ChapString",
	ChapLanguageID:       "ChapLanguage",
	ChapCountryID:        "ChapCountry",

	TagID:              "Tag",
	TargetsID:          "Targets",
	TargetTypeValueID:  "TargetTypeValue",
	TargetTypeID:       "TargetType",
	TagTrackUIDID:      "TagTrackUID",
	TagEditionUIDID:    "TagEditionUID",
	TagChapterUIDID:    "TagChapterUID",
	TagAttachmentUIDID: "TagAttachmentUID",
	SimpleTagID:        "SimpleTag",
	TagNameID:          "TagName",
	TagLanguageID:      "TagLanguage",
	TagDefaultID:       "TagDefault",
	TagStringID:        "TagString",
}

// ElementName returns the catalog name for an element ID, or its hex form
// when the catalog does not know it.
func ElementName(id uint32) string {
	if name, ok := ElementNames[id]; ok {
		return name
	}
	return "0x" + hexUint32(id)
}

func hexUint32(v uint32) string {
	const digits = "0123456789ABCDEF"
	buf := make([]byte, 0, 8)
	started := false
	for shift := 28; shift >= 0; shift -= 4 {
		d := byte(v>>uint(shift)) & 0x0F
		if d != 0 || started || shift == 0 {
			buf = append(buf, digits[d])
			started = true
		}
	}
	return string(buf)
}
