package matroska

import (
	"io"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

func (p *Parser) parseChapters(data []byte) error {
	reader := NewEBMLReader(&bytesReader{data: data})

	for reader.Position() < uint64(len(data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if child.ID == EditionEntryID {
			if err = p.parseEditionEntry(child); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Parser) parseEditionEntry(element *EBMLElement) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	edition := Edition{}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		switch child.ID {
		case EditionUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			edition.UID = uid
		case ChapterAtomID:
			chapter, errParseChapterAtom := p.parseChapterAtom(child)
			if errParseChapterAtom != nil {
				return errParseChapterAtom
			}
			if chapter.UID != 0 && !p.findChapterUID(chapter.UID) {
				p.chapters = append(p.chapters, chapter)
			}
		}
	}

	if edition.UID != 0 && !p.findEditionUID(edition.UID) {
		p.editions = append(p.editions, edition)
	}

	return nil
}

func (p *Parser) parseChapterAtom(element *EBMLElement) (*Chapter, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	chapter := &Chapter{
		Enabled: true,
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
		case ChapterUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.UID = uid
		case ChapterTimeStartID:
			start, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.TimeStart = start
		case ChapterTimeEndID:
			end, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.TimeEnd = end
		case ChapterFlagHiddenID:
			hidden, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.Hidden = hidden != 0
		case ChapterFlagEnabledID:
			enabled, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return nil, errReadUint
			}
			chapter.Enabled = enabled != 0
		case ChapterTrackID:
			if err = p.parseChapterTrack(child, chapter); err != nil {
				return nil, err
			}
		case ChapterDisplayID:
			display, errParseChapterDisplay := p.parseChapterDisplay(child)
			if errParseChapterDisplay != nil {
				return nil, errParseChapterDisplay
			}
			// an empty display string is useless
			if len(display.String) > 0 {
				chapter.Display = append(chapter.Display, display)
			}
		case ChapterAtomID:
			childChapter, errParseChapterAtom := p.parseChapterAtom(child)
			if errParseChapterAtom != nil {
				return nil, errParseChapterAtom
			}
			chapter.Children = append(chapter.Children, childChapter)
		}
	}

	return chapter, nil
}

func (p *Parser) parseChapterTrack(element *EBMLElement, chapter *Chapter) error {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if child.ID == ChapterTrackNumberID {
			trackNum, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			chapter.Tracks = append(chapter.Tracks, trackNum)
		}
	}

	return nil
}

func (p *Parser) parseChapterDisplay(element *EBMLElement) (ChapterDisplay, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	var display ChapterDisplay

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return display, err
		}

		switch child.ID {
		case ChapStringID:
			display.String = child.ReadString()
		case ChapLanguageID:
			display.Language = child.ReadString()
		case ChapCountryID:
			display.Country = child.ReadString()
		}
	}

	return display, nil
}

// fixChapterEndTimes infers missing chapter end times once Chapters and Info
// are both known: a zero end becomes the next sibling's start, and the last
// chapter closes at the file duration. Sub-chapters are left as stored.
func (p *Parser) fixChapterEndTimes() {
	if len(p.chapters) == 0 {
		return
	}

	duration := uint64(p.segmentInfo.Duration)

	last := p.chapters[len(p.chapters)-1]
	if last.TimeEnd == 0 {
		last.TimeEnd = duration
	}
	for c := 0; c < len(p.chapters)-1; c++ {
		current := p.chapters[c]
		if current.TimeEnd == 0 {
			current.TimeEnd = p.chapters[c+1].TimeStart
		}
	}
	if last.TimeEnd == 0 || last.TimeEnd == last.TimeStart {
		last.TimeEnd = duration
	}
}

func (p *Parser) findEditionUID(uid uint64) bool {
	for c := range p.editions {
		if p.editions[c].UID == uid {
			return true
		}
	}
	return false
}

func (p *Parser) findChapterUID(uid uint64) bool {
	for c := range p.chapters {
		if p.chapters[c].UID == uid {
			return true
		}
	}
	return false
}

func (p *Parser) parseTags(data []byte, elementPos, elementSize uint64) error {
	reader := NewEBMLReader(&bytesReader{data: data})

	// accumulate locally so a mid-parse failure commits nothing
	var parsed []*Tag

	for reader.Position() < uint64(len(data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if child.ID == TagID {
			tag, errParseTag := p.parseTag(child)
			if errParseTag != nil {
				return errParseTag
			}
			parsed = append(parsed, tag)
		}
	}

	p.tags = append(p.tags, parsed...)
	p.tagPos = elementPos
	p.tagSize = elementSize
	return nil
}

func (p *Parser) parseTag(element *EBMLElement) (*Tag, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	tag := &Tag{
		TargetTypeValue: 50,
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
		case TargetsID:
			if err = p.parseTagTargets(child, tag); err != nil {
				return nil, err
			}
		case SimpleTagID:
			simpleTag, errParseSimpleTag := p.parseSimpleTag(child)
			if errParseSimpleTag != nil {
				return nil, errParseSimpleTag
			}
			tag.SimpleTags = append(tag.SimpleTags, simpleTag)
		}
	}

	return tag, nil
}

func (p *Parser) parseTagTargets(element *EBMLElement, tag *Tag) error {
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
		case TagTrackUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			tag.TargetTrackUID = uid
		case TagEditionUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			tag.TargetEditionUID = uid
		case TagChapterUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			tag.TargetChapterUID = uid
		case TagAttachmentUIDID:
			uid, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			tag.TargetAttachmentUID = uid
		case TargetTypeValueID:
			typeValue, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return errReadUint
			}
			tag.TargetTypeValue = uint32(typeValue)
		case TargetTypeID:
			tag.TargetType = child.ReadString()
		}
	}

	return nil
}

func (p *Parser) parseSimpleTag(element *EBMLElement) (SimpleTag, error) {
	reader := NewEBMLReader(&bytesReader{data: element.Data})

	simpleTag := SimpleTag{
		Language: "und",
		Default:  1,
	}

	for reader.Position() < uint64(len(element.Data)) {
		child, err := reader.ReadElement()
		if err != nil {
			if err == io.EOF {
				break
			}
			return simpleTag, err
		}

		switch child.ID {
		case TagNameID:
			// ASCII-only upper-casing; other bytes are kept as stored
			name := []byte(child.ReadString())
			for i, b := range name {
				if 'a' <= b && b <= 'z' {
					name[i] = b - ('a' - 'A')
				}
			}
			simpleTag.Name = string(name)
		case TagStringID:
			simpleTag.Value = child.ReadString()
		case TagLanguageID:
			simpleTag.Language = child.ReadString()
		case TagDefaultID:
			def, errReadUint := child.ReadUint()
			if errReadUint != nil {
				return simpleTag, errReadUint
			}
			simpleTag.Default = uint32(def)
		}
	}

	return simpleTag, nil
}

// FindTagWithTrackUID returns the first tag targeting exactly this track:
// the track UID matches and every other target UID is zero.
func (p *Parser) FindTagWithTrackUID(trackUID uint64) *Tag {
	for t := range p.tags {
		currentTag := p.tags[t]
		if currentTag.TargetTrackUID == trackUID &&
			currentTag.TargetEditionUID == 0 &&
			currentTag.TargetChapterUID == 0 &&
			currentTag.TargetAttachmentUID == 0 {
			return currentTag
		}
	}
	return nil
}

// FindTagWithEditionUID returns the first tag targeting the edition,
// optionally constrained to a track UID.
func (p *Parser) FindTagWithEditionUID(editionUID, trackUID uint64) *Tag {
	for t := range p.tags {
		currentTag := p.tags[t]
		if currentTag.TargetEditionUID == editionUID &&
			(trackUID == 0 || currentTag.TargetTrackUID == trackUID) {
			return currentTag
		}
	}
	return nil
}

// FindTagWithChapterUID returns the first tag targeting the chapter,
// optionally constrained to a track UID.
func (p *Parser) FindTagWithChapterUID(chapterUID, trackUID uint64) *Tag {
	for t := range p.tags {
		currentTag := p.tags[t]
		if currentTag.TargetChapterUID == chapterUID &&
			(trackUID == 0 || currentTag.TargetTrackUID == trackUID) {
			return currentTag
		}
	}
	return nil
}

// parseAttachments walks the Attachments element in place so that FileData
// offsets stay absolute. Payload bytes are never read here; only their
// location is recorded.
func (p *Parser) parseAttachments(size uint64) error {
	if size == SizeUnknown {
		return errors.NewMalformedEBMLError("attachments element with unknown size", nil)
	}

	endPos := p.reader.Position() + size

	for p.reader.Position() < endPos {
		id, childSize, _, err := p.reader.ReadElementHeader()
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.NewMalformedEBMLError("failed to read attachments child", err)
		}

		if id == AttachedFileID {
			if err = p.parseAttachedFile(childSize); err != nil {
				return err
			}
		} else {
			if err = p.reader.Skip(childSize); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Parser) parseAttachedFile(size uint64) error {
	endPos := p.reader.Position() + size

	attachment := Attachment{}

	for p.reader.Position() < endPos {
		id, childSize, _, err := p.reader.ReadElementHeader()
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.NewMalformedEBMLError("failed to read attached file child", err)
		}

		switch id {
		case FileDataID:
			// record where the payload lives and step over it unread
			attachment.Position = p.reader.Position()
			attachment.Length = childSize
			if err = p.reader.Skip(childSize); err != nil {
				return err
			}
		case FileNameID, FileMimeTypeID, FileDescriptionID, FileUIDID:
			data, errRead := p.readPayload(childSize)
			if errRead != nil {
				return errRead
			}
			child := &EBMLElement{ID: id, Size: childSize, Data: data}
			switch id {
			case FileNameID:
				attachment.Name = child.ReadString()
			case FileMimeTypeID:
				attachment.MimeType = child.ReadString()
			case FileDescriptionID:
				attachment.Description = child.ReadString()
			case FileUIDID:
				uid, errReadUint := child.ReadUint()
				if errReadUint != nil {
					return errReadUint
				}
				attachment.UID = uid
			}
		default:
			if err = p.reader.Skip(childSize); err != nil {
				return err
			}
		}
	}

	p.attachments = append(p.attachments, attachment)
	return nil
}
