package imageformat

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDetect(t *testing.T) {
	testCases := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, JPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, PNG},
		{"gif89a", []byte("GIF89a\x01\x00"), GIF},
		{"tiff little endian", []byte{'I', 'I', 0x2A, 0x00, 0x08}, TIFF},
		{"tiff big endian", []byte{'M', 'M', 0x00, 0x2A, 0x00}, TIFF},
		{"jp2 box", append(append([]byte{}, jp2Signature...), 0x00, 0x00), JP2},
		{"j2k codestream", []byte{0xFF, 0x4F, 0xFF, 0x51, 0x00}, JP2},
		{"webp", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), WebP},
		{"bmp", []byte("BM\x36\x00"), BMP},
		{"text", []byte("hello world"), Unknown},
		{"empty", nil, Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.header); got != tc.want {
				t.Fatalf("Detect(%q) = %s, want %s", tc.header, got, tc.want)
			}
		})
	}
}

func TestDetectReaderShortInput(t *testing.T) {
	got, err := DetectReader(bytes.NewReader([]byte{0xFF, 0xD8}))
	if err != nil {
		t.Fatalf("short input should not fail: %v", err)
	}
	if got != JPEG {
		t.Fatalf("expected jpg, got %s", got)
	}
}

func TestDetectFileIgnoresExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xDB}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	got, err := DetectFile(path)
	if err != nil {
		t.Fatalf("DetectFile error: %v", err)
	}
	if got != JPEG {
		t.Fatalf("magic bytes must win over the .png suffix, got %s", got)
	}
}

func TestParse(t *testing.T) {
	if f, ok := Parse(".JPEG"); !ok || f != JPEG {
		t.Fatalf("Parse(.JPEG) = %s, %v", f, ok)
	}
	if f, ok := Parse("tiff"); !ok || f != TIFF {
		t.Fatalf("Parse(tiff) = %s, %v", f, ok)
	}
	if _, ok := Parse("svg"); ok {
		t.Fatalf("svg should not parse")
	}
	if Unknown.String() != "unknown" || JPEG.MediaType() != "image/jpeg" {
		t.Fatalf("unexpected string helpers")
	}
}
