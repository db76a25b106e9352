// Package imageformat identifies the encoding of a source image from its
// leading magic bytes. Identifiers routinely carry a serving-format suffix that
// says nothing about the stored object, so the bytes are the only source of
// truth.
package imageformat

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
)

// Format 是解析器返回给宿主的源图编码提示，取值与 loris 的格式扩展名保持一致。
type Format string

const (
	Unknown Format = ""
	JPEG    Format = "jpg"
	PNG     Format = "png"
	GIF     Format = "gif"
	TIFF    Format = "tif"
	JP2     Format = "jp2"
	WebP    Format = "webp"
	BMP     Format = "bmp"
)

// HeaderSize 是判定格式所需读取的最大字节数。
const HeaderSize = 16

// MediaType 返回格式对应的 MIME 类型。
func (f Format) MediaType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case GIF:
		return "image/gif"
	case TIFF:
		return "image/tiff"
	case JP2:
		return "image/jp2"
	case WebP:
		return "image/webp"
	case BMP:
		return "image/bmp"
	}
	return "application/octet-stream"
}

func (f Format) String() string {
	if f == Unknown {
		return "unknown"
	}
	return string(f)
}

var jp2Signature = []byte{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' ', 0x0D, 0x0A, 0x87, 0x0A}

// Detect 根据文件头判定格式，无法识别时返回 Unknown。
func Detect(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8}):
		return JPEG
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return PNG
	case bytes.HasPrefix(header, []byte("GIF87a")), bytes.HasPrefix(header, []byte("GIF89a")):
		return GIF
	case bytes.HasPrefix(header, []byte{'I', 'I', 0x2A, 0x00}), bytes.HasPrefix(header, []byte{'M', 'M', 0x00, 0x2A}):
		return TIFF
	case bytes.HasPrefix(header, jp2Signature):
		return JP2
	// raw JPEG 2000 codestream (SOC + SIZ markers)
	case bytes.HasPrefix(header, []byte{0xFF, 0x4F, 0xFF, 0x51}):
		return JP2
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return WebP
	case bytes.HasPrefix(header, []byte("BM")):
		return BMP
	}
	return Unknown
}

// DetectReader 读取 r 的前 HeaderSize 个字节并判定格式。
func DetectReader(r io.Reader) (Format, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Unknown, err
	}
	return Detect(buf[:n]), nil
}

// DetectFile 打开本地文件并判定格式。
func DetectFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown, err
	}
	defer f.Close()
	return DetectReader(f)
}

// Parse 把配置中的格式名（jpg/jpeg/tif/tiff/...）转换成 Format。
func Parse(name string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "jpg", "jpeg":
		return JPEG, true
	case "png":
		return PNG, true
	case "gif":
		return GIF, true
	case "tif", "tiff":
		return TIFF, true
	case "jp2", "j2k":
		return JP2, true
	case "webp":
		return WebP, true
	case "bmp":
		return BMP, true
	}
	return Unknown, false
}
