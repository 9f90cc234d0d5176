package matroska

import (
	"bytes"
	"testing"

	"github.com/luispater/mkvreader-go/pkg/errors"
)

func TestParseBlockPayloadUnlaced(t *testing.T) {
	payload := blockBytes(3, -20, 0, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	info, err := parseBlockPayload(payload)
	if err != nil {
		t.Fatalf("parseBlockPayload() error = %v", err)
	}

	if info.trackNum != 3 {
		t.Errorf("trackNum = %d, want 3", info.trackNum)
	}
	if info.relTime != -20 {
		t.Errorf("relTime = %d, want -20", info.relTime)
	}
	if len(info.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(info.frames))
	}
	if !bytes.Equal(info.frames[0], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("frame payload = %v", info.frames[0])
	}
}

func TestParseBlockPayloadXiphLacing(t *testing.T) {
	frames := [][]byte{
		bytes.Repeat([]byte{0x01}, 5),
		bytes.Repeat([]byte{0x02}, 300),
		bytes.Repeat([]byte{0x03}, 7),
	}
	payload := xiphBlockBytes(1, 0, frames)

	info, err := parseBlockPayload(payload)
	if err != nil {
		t.Fatalf("parseBlockPayload() error = %v", err)
	}

	if len(info.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(info.frames))
	}
	for i := range frames {
		if !bytes.Equal(info.frames[i], frames[i]) {
			t.Errorf("frame %d = %d bytes, want %d bytes", i, len(info.frames[i]), len(frames[i]))
		}
	}
}

func TestParseBlockPayloadFixedLacing(t *testing.T) {
	payload := encodeVINT(1)
	payload = append(payload, 0, 0, lacingFixed)
	payload = append(payload, 2) // three frames
	payload = append(payload, 0x0A, 0x0B, 0x1A, 0x1B, 0x2A, 0x2B)

	info, err := parseBlockPayload(payload)
	if err != nil {
		t.Fatalf("parseBlockPayload() error = %v", err)
	}

	expected := [][]byte{{0x0A, 0x0B}, {0x1A, 0x1B}, {0x2A, 0x2B}}
	if len(info.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(info.frames))
	}
	for i := range expected {
		if !bytes.Equal(info.frames[i], expected[i]) {
			t.Errorf("frame %d = %v, want %v", i, info.frames[i], expected[i])
		}
	}
}

func TestParseBlockPayloadEBMLLacing(t *testing.T) {
	// three frames: 5 bytes, 3 bytes (delta -2), rest
	payload := encodeVINT(1)
	payload = append(payload, 0, 0, lacingEBML)
	payload = append(payload, 2)
	payload = append(payload, encodeVINT(5)...)
	// signed VINT -2: one byte, bias 63
	payload = append(payload, encodeVINT(61)...)
	payload = append(payload, bytes.Repeat([]byte{0xA1}, 5)...)
	payload = append(payload, bytes.Repeat([]byte{0xB2}, 3)...)
	payload = append(payload, bytes.Repeat([]byte{0xC3}, 4)...)

	info, err := parseBlockPayload(payload)
	if err != nil {
		t.Fatalf("parseBlockPayload() error = %v", err)
	}

	if len(info.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(info.frames))
	}
	sizes := []int{5, 3, 4}
	for i, size := range sizes {
		if len(info.frames[i]) != size {
			t.Errorf("frame %d size = %d, want %d", i, len(info.frames[i]), size)
		}
	}
}

func TestParseBlockPayloadMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"zero track byte", []byte{0x00, 0x00, 0x00, 0x00}},
		{"too short for flags", []byte{0x81, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseBlockPayload(tt.payload); !errors.IsType(err, errors.ErrorTypeMalformedEBML) {
				t.Errorf("expected malformed_ebml, got %v", err)
			}
		})
	}
}

func TestReadSignedVINTData(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected int64
	}{
		{"zero", encodeVINT(63), 0},
		{"positive", encodeVINT(65), 2},
		{"negative", encodeVINT(61), -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, width := readSignedVINTData(tt.input)
			if width == 0 {
				t.Fatal("readSignedVINTData() failed to decode")
			}
			if value != tt.expected {
				t.Errorf("readSignedVINTData() = %d, want %d", value, tt.expected)
			}
		})
	}
}
