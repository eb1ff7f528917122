package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
)

const (
	// DefaultMaxWidth is the widest image sent to the OCR endpoint
	DefaultMaxWidth = 1024
	// DefaultQuality is the JPEG quality used when re-encoding
	DefaultQuality = 80
	// PassthroughSize is the size below which images are uploaded untouched
	PassthroughSize = 500 * 1024
)

// Image is an upload-ready image
type Image struct {
	Data        []byte
	ContentType string
	// Converted is true when Data was re-encoded as JPEG
	Converted bool
}

// Normalizer shrinks images to a bounded-size JPEG before upload
type Normalizer struct {
	MaxWidth int
	Quality  int
}

// NewNormalizer creates a Normalizer with the default width and quality
func NewNormalizer() *Normalizer {
	return &Normalizer{
		MaxWidth: DefaultMaxWidth,
		Quality:  DefaultQuality,
	}
}

// Normalize returns a JPEG no wider than MaxWidth. Small images are
// returned as-is, and any decode or encode failure yields the original
// input: normalization never fails the pipeline.
func (n *Normalizer) Normalize(data []byte, contentType string) Image {
	mimeType := normalizeMimeType(contentType, data)
	original := Image{Data: data, ContentType: mimeType}

	// The scan endpoint rejects PDF whatever its size
	if len(data) < PassthroughSize && mimeType != "application/pdf" {
		return original
	}

	out, err := n.transcode(data, mimeType)
	if err != nil {
		slog.Warn("Image normalization failed, uploading original",
			"content_type", mimeType,
			"file_size", len(data),
			"error", err,
		)
		return original
	}

	slog.Debug("Image normalized",
		"from_kb", fmt.Sprintf("%.1f", float64(len(data))/1024),
		"to_kb", fmt.Sprintf("%.1f", float64(len(out))/1024),
	)
	return Image{Data: out, ContentType: "image/jpeg", Converted: true}
}

func (n *Normalizer) transcode(data []byte, mimeType string) ([]byte, error) {
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}

	maxWidth := n.MaxWidth
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	quality := n.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleToWidth(img, maxWidth), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeImage decodes JPEG, PNG, GIF, HEIC/HEIF, or the first page of a PDF
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfToImage(data)
	}

	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// pdfToImage renders the first page of a PDF (most receipts are single page)
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// scaleToWidth flattens src onto white and shrinks it to maxWidth,
// keeping the aspect ratio. It never upscales.
func scaleToWidth(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	if width > maxWidth {
		height = int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
		if height < 1 {
			height = 1
		}
		width = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == b.Dx() && height == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// normalizeMimeType lowercases the declared type, sniffing the bytes when it is missing
func normalizeMimeType(contentType string, data []byte) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if isHEICFormat(data) {
			return "image/heic"
		}
		sniffed := http.DetectContentType(data)
		if i := strings.Index(sniffed, ";"); i >= 0 {
			sniffed = sniffed[:i]
		}
		if strings.HasPrefix(sniffed, "image/") || sniffed == "application/pdf" {
			return sniffed
		}
		return "image/jpeg"
	}
	return mimeType
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
