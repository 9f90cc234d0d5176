package matroska

import (
	"testing"
)

func taggedFile(indexTags bool) []byte {
	header := [][]byte{
		infoElement(1000000, 5000.0),
		tracksElement(audioTrackEntry(1, 42, "A_AAC", 23220000)),
	}
	clusters := [][]byte{
		cluster(0, blockGroup(1, 0, []byte{0x01, 0x02})),
	}
	tags := el(TagsID, tagElement(trackTargets(42), simpleTagElement("artist", "X")))

	return buildIndexedFile(header, clusters, tags, indexTags)
}

func TestTagsViaSeekHead(t *testing.T) {
	parser := mustParse(t, taggedFile(true))

	tag := parser.FindTagWithTrackUID(42)
	if tag == nil {
		t.Fatal("FindTagWithTrackUID(42) = nil")
	}
	if len(tag.SimpleTags) != 1 {
		t.Fatalf("got %d simple tags, want 1", len(tag.SimpleTags))
	}

	simpleTag := tag.SimpleTags[0]
	if simpleTag.Name != "ARTIST" {
		t.Errorf("Name = %q, want upper-cased ARTIST", simpleTag.Name)
	}
	if simpleTag.Value != "X" {
		t.Errorf("Value = %q, want X", simpleTag.Value)
	}
	if simpleTag.Language != "und" {
		t.Errorf("Language = %q, want und (default)", simpleTag.Language)
	}
	if simpleTag.Default != 1 {
		t.Errorf("Default = %d, want 1", simpleTag.Default)
	}
	if tag.TargetTypeValue != 50 {
		t.Errorf("TargetTypeValue = %d, want 50 (default)", tag.TargetTypeValue)
	}
}

func TestTagsRescueScan(t *testing.T) {
	// SeekHead omits the Tags entry; the tail scan must find the element
	parser := mustParse(t, taggedFile(false))

	tag := parser.FindTagWithTrackUID(42)
	if tag == nil {
		t.Fatal("rescue scan did not find the tags element")
	}
	if len(tag.SimpleTags) != 1 || tag.SimpleTags[0].Name != "ARTIST" || tag.SimpleTags[0].Value != "X" {
		t.Errorf("rescued tag = %+v", tag.SimpleTags)
	}
}

func TestTagsRescueMatchesSeekHeadResult(t *testing.T) {
	indexed := mustParse(t, taggedFile(true))
	rescued := mustParse(t, taggedFile(false))

	indexedTags := indexed.GetTags()
	rescuedTags := rescued.GetTags()
	if len(indexedTags) != len(rescuedTags) {
		t.Fatalf("tag counts differ: %d vs %d", len(indexedTags), len(rescuedTags))
	}

	for i := range indexedTags {
		a, b := indexedTags[i], rescuedTags[i]
		if a.TargetTrackUID != b.TargetTrackUID || len(a.SimpleTags) != len(b.SimpleTags) {
			t.Fatalf("tag %d differs: %+v vs %+v", i, a, b)
		}
		for j := range a.SimpleTags {
			if a.SimpleTags[j] != b.SimpleTags[j] {
				t.Errorf("simple tag %d/%d differs: %+v vs %+v", i, j, a.SimpleTags[j], b.SimpleTags[j])
			}
		}
	}
}

func TestTagsRescueDisabled(t *testing.T) {
	parser := newTestParser(t, taggedFile(false))
	parser.SetTagScanRange(0)
	if status := parser.Parse(false, true); status != 0 {
		t.Fatalf("Parse() = %d, want 0", status)
	}

	if tag := parser.FindTagWithTrackUID(42); tag != nil {
		t.Error("tags found despite disabled rescue scan and missing SeekHead entry")
	}
}

func TestFindTagTargetSelectors(t *testing.T) {
	header := [][]byte{
		infoElement(1000000, 5000.0),
		tracksElement(audioTrackEntry(1, 42, "A_AAC", 0)),
	}
	clusters := [][]byte{
		cluster(0, blockGroup(1, 0, []byte{0x01})),
	}
	tags := el(TagsID,
		tagElement(trackTargets(42), simpleTagElement("title", "track tag")),
		tagElement(
			el(TargetsID,
				el(TagEditionUIDID, uintBE(7)),
				el(TagTrackUIDID, uintBE(42)),
			),
			simpleTagElement("title", "edition tag"),
		),
		tagElement(
			el(TargetsID, el(TagChapterUIDID, uintBE(9))),
			simpleTagElement("title", "chapter tag"),
		),
	)
	parser := mustParse(t, buildIndexedFile(header, clusters, tags, true))

	trackTag := parser.FindTagWithTrackUID(42)
	if trackTag == nil || trackTag.SimpleTags[0].Value != "track tag" {
		t.Errorf("FindTagWithTrackUID picked the wrong tag: %+v", trackTag)
	}

	editionTag := parser.FindTagWithEditionUID(7, 0)
	if editionTag == nil || editionTag.SimpleTags[0].Value != "edition tag" {
		t.Errorf("FindTagWithEditionUID(7, 0) = %+v", editionTag)
	}
	if got := parser.FindTagWithEditionUID(7, 42); got == nil {
		t.Error("FindTagWithEditionUID(7, 42) = nil, want match")
	}
	if got := parser.FindTagWithEditionUID(7, 43); got != nil {
		t.Error("FindTagWithEditionUID(7, 43) matched despite track constraint")
	}

	chapterTag := parser.FindTagWithChapterUID(9, 0)
	if chapterTag == nil || chapterTag.SimpleTags[0].Value != "chapter tag" {
		t.Errorf("FindTagWithChapterUID(9, 0) = %+v", chapterTag)
	}
}

func TestSetTagValue(t *testing.T) {
	tag := &Tag{
		SimpleTags: []SimpleTag{
			{Name: "ARTIST", Value: "old", Language: "und", Default: 1},
			{Name: "ARTIST", Value: "second", Language: "und", Default: 1},
		},
	}

	tag.SetTagValue("artist", "new", 0)
	if tag.SimpleTags[0].Value != "new" {
		t.Errorf("first ARTIST = %q, want new", tag.SimpleTags[0].Value)
	}
	if tag.SimpleTags[1].Value != "second" {
		t.Errorf("second ARTIST = %q, want untouched", tag.SimpleTags[1].Value)
	}

	tag.SetTagValue("Artist", "replaced", 1)
	if tag.SimpleTags[1].Value != "replaced" {
		t.Errorf("second ARTIST = %q, want replaced", tag.SimpleTags[1].Value)
	}

	tag.SetTagValue("ALBUM", "fresh", 0)
	if len(tag.SimpleTags) != 3 {
		t.Fatalf("got %d simple tags, want 3 after append", len(tag.SimpleTags))
	}
	appended := tag.SimpleTags[2]
	if appended.Name != "ALBUM" || appended.Value != "fresh" {
		t.Errorf("appended = %+v", appended)
	}
	if appended.Language != "und" || appended.Default != 1 {
		t.Errorf("appended defaults = %+v", appended)
	}
}

func TestRemovalPendingSweep(t *testing.T) {
	tag := &Tag{
		SimpleTags: []SimpleTag{
			{Name: "ARTIST", Value: "keep me"},
			{Name: "ALBUM", Value: "drop me"},
			{Name: "GENRE", Value: "drop me too"},
		},
	}

	tag.MarkAllAsRemovalPending()
	tag.SetTagValue("artist", "kept", 0)
	tag.RemoveMarkedTags()

	if len(tag.SimpleTags) != 1 {
		t.Fatalf("got %d simple tags, want 1 after sweep", len(tag.SimpleTags))
	}
	if tag.SimpleTags[0].Name != "ARTIST" || tag.SimpleTags[0].Value != "kept" {
		t.Errorf("survivor = %+v", tag.SimpleTags[0])
	}
}
