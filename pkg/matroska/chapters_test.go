package matroska

import (
	"testing"
)

func chapterAtom(uid, startNs, endNs uint64, extras ...[]byte) []byte {
	children := [][]byte{
		el(ChapterUIDID, uintBE(uid)),
		el(ChapterTimeStartID, uintBE(startNs)),
		el(ChapterTimeEndID, uintBE(endNs)),
	}
	children = append(children, extras...)
	return el(ChapterAtomID, children...)
}

func chapterDisplay(text, language string) []byte {
	return el(ChapterDisplayID,
		el(ChapStringID, []byte(text)),
		el(ChapLanguageID, []byte(language)),
	)
}

func chaptersFile(editionChildren ...[]byte) []byte {
	return buildFile(
		infoElement(1000000, 30000.0),
		tracksElement(audioTrackEntry(1, 11, "A_AAC", 0)),
		el(ChaptersID, el(EditionEntryID, editionChildren...)),
		cluster(0, blockGroup(1, 0, []byte{0x01})),
	)
}

func TestFixChapterEndTimes(t *testing.T) {
	file := chaptersFile(
		el(EditionUIDID, uintBE(7)),
		chapterAtom(1, 0, 0),
		chapterAtom(2, 10_000_000_000, 0),
		chapterAtom(3, 20_000_000_000, 0),
	)

	parser := mustParse(t, file)
	chapters := parser.GetChapters()
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}

	expectedEnds := []uint64{10_000_000_000, 20_000_000_000, 30_000_000_000}
	for i, chapter := range chapters {
		if chapter.TimeEnd != expectedEnds[i] {
			t.Errorf("chapter %d TimeEnd = %d, want %d", i, chapter.TimeEnd, expectedEnds[i])
		}
	}

	// sibling bounds hold for every top-level chapter
	for i, chapter := range chapters {
		if chapter.TimeEnd < chapter.TimeStart {
			t.Errorf("chapter %d ends before it starts", i)
		}
		if i+1 < len(chapters) && chapter.TimeEnd > chapters[i+1].TimeStart {
			t.Errorf("chapter %d overlaps its successor", i)
		}
	}

	editions := parser.GetEditions()
	if len(editions) != 1 || editions[0].UID != 7 {
		t.Errorf("editions = %+v, want one with UID 7", editions)
	}
}

func TestLastChapterNeverZeroLength(t *testing.T) {
	file := chaptersFile(
		el(EditionUIDID, uintBE(7)),
		chapterAtom(1, 0, 0),
		chapterAtom(2, 25_000_000_000, 25_000_000_000),
	)

	parser := mustParse(t, file)
	chapters := parser.GetChapters()
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}

	last := chapters[1]
	if last.TimeEnd == last.TimeStart {
		t.Error("final chapter still zero-length after fixup")
	}
	if last.TimeEnd != 30_000_000_000 {
		t.Errorf("final chapter TimeEnd = %d, want file duration", last.TimeEnd)
	}
}

func TestChapterDisplayAndTracks(t *testing.T) {
	file := chaptersFile(
		el(EditionUIDID, uintBE(7)),
		chapterAtom(1, 0, 5_000_000_000,
			chapterDisplay("Intro", "eng"),
			chapterDisplay("", "ger"),
			el(ChapterTrackID, el(ChapterTrackNumberID, uintBE(1))),
		),
	)

	parser := mustParse(t, file)
	chapters := parser.GetChapters()
	if len(chapters) != 1 {
		t.Fatalf("got %d chapters, want 1", len(chapters))
	}

	chapter := chapters[0]
	if len(chapter.Display) != 1 {
		t.Fatalf("got %d display entries, want 1 (empty strings are dropped)", len(chapter.Display))
	}
	if chapter.Display[0].String != "Intro" || chapter.Display[0].Language != "eng" {
		t.Errorf("display = %+v", chapter.Display[0])
	}
	if len(chapter.Tracks) != 1 || chapter.Tracks[0] != 1 {
		t.Errorf("chapter tracks = %v, want [1]", chapter.Tracks)
	}
}

func TestSubChaptersKeptButNotFixed(t *testing.T) {
	file := chaptersFile(
		el(EditionUIDID, uintBE(7)),
		chapterAtom(1, 0, 0,
			chapterAtom(10, 1_000_000_000, 0),
		),
		chapterAtom(2, 15_000_000_000, 0),
	)

	parser := mustParse(t, file)
	chapters := parser.GetChapters()
	if len(chapters) != 2 {
		t.Fatalf("got %d top-level chapters, want 2", len(chapters))
	}

	if chapters[0].TimeEnd != 15_000_000_000 {
		t.Errorf("parent TimeEnd = %d, want next sibling start", chapters[0].TimeEnd)
	}

	if len(chapters[0].Children) != 1 {
		t.Fatalf("got %d sub-chapters, want 1", len(chapters[0].Children))
	}
	if chapters[0].Children[0].TimeEnd != 0 {
		t.Errorf("sub-chapter TimeEnd = %d, want 0 (untouched)", chapters[0].Children[0].TimeEnd)
	}
}

func TestDuplicateChapterUIDsIgnored(t *testing.T) {
	file := chaptersFile(
		el(EditionUIDID, uintBE(7)),
		chapterAtom(1, 0, 10_000_000_000),
		chapterAtom(1, 10_000_000_000, 20_000_000_000),
	)

	parser := mustParse(t, file)
	if got := len(parser.GetChapters()); got != 1 {
		t.Errorf("got %d chapters, want 1 (duplicate UID ignored)", got)
	}
}

func TestSetSubSongRebasesDuration(t *testing.T) {
	file := chaptersFile(
		el(EditionUIDID, uintBE(7)),
		chapterAtom(1, 0, 10_000_000_000),
		chapterAtom(2, 10_000_000_000, 30_000_000_000),
	)

	parser := mustParse(t, file)

	parser.SetSubSong(1)
	if got := parser.GetDuration(); got != 20.0 {
		t.Errorf("GetDuration() with subsong = %f, want 20.0", got)
	}

	parser.SetSubSong(-1)
	if got := parser.GetDuration(); got != 30.0 {
		t.Errorf("GetDuration() without subsong = %f, want 30.0", got)
	}
}
