package scanning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/budget-sync/internal/gateway"
)

// ErrScanRejected is returned when the OCR service answers with success=false
var ErrScanRejected = errors.New("receipt scan rejected")

// ReceiptData contains extracted information from a receipt
type ReceiptData struct {
	Amount   decimal.Decimal `json:"amount"`
	Merchant string          `json:"merchant"`
	Date     string          `json:"date"` // ISO 8601 format
	Category string          `json:"category"`
	Items    []string        `json:"items"`
	Message  string          `json:"message,omitempty"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt uploads a receipt image and returns the extracted metadata
	ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*ReceiptData, error)
}

var _ Scanner = (*Pipeline)(nil)

// Gateway is the remote call the scanner depends on
type Gateway interface {
	ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*gateway.ScanResult, error)
}

// Scan describes one finished scan, successful or not
type Scan struct {
	Filename     string
	ContentType  string
	Digest       string // hex SHA-256 of the input before normalization
	OriginalSize int
	Uploaded     Image
	Attempts     int
	Receipt      *ReceiptData
	Err          error
}

// Recorder keeps a record of scans
type Recorder interface {
	Record(ctx context.Context, scan Scan) error
}

// Pipeline normalizes an image, uploads it with retries, and cleans up the result
type Pipeline struct {
	gateway    Gateway
	normalizer *Normalizer
	uploader   *Uploader
	recorder   Recorder
	now        func() time.Time
}

// NewPipeline creates a Pipeline with the default normalizer and retry budget
func NewPipeline(gw Gateway) *Pipeline {
	return NewPipelineWithDeps(gw, NewNormalizer(), NewUploader(DefaultMaxRetries), nil)
}

// NewPipelineWithDeps creates a Pipeline with custom dependencies. recorder may be nil.
func NewPipelineWithDeps(gw Gateway, normalizer *Normalizer, uploader *Uploader, recorder Recorder) *Pipeline {
	return &Pipeline{
		gateway:    gw,
		normalizer: normalizer,
		uploader:   uploader,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Digest returns the hex SHA-256 of data
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ScanReceipt normalizes the image, uploads it, and returns the parsed receipt
func (p *Pipeline) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*ReceiptData, error) {
	img := p.normalizer.Normalize(data, contentType)
	uploadName := uploadFilename(filename, img)

	result, attempts, err := Upload(ctx, p.uploader, func(ctx context.Context) (*gateway.ScanResult, error) {
		return p.gateway.ScanReceipt(ctx, uploadName, img.Data, img.ContentType)
	})

	var receipt *ReceiptData
	if err == nil {
		receipt, err = parseScanResult(result, p.now())
	}

	p.record(ctx, Scan{
		Filename:     filename,
		ContentType:  img.ContentType,
		Digest:       Digest(data),
		OriginalSize: len(data),
		Uploaded:     img,
		Attempts:     attempts,
		Receipt:      receipt,
		Err:          err,
	})

	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", img.ContentType,
			"file_size", len(img.Data),
			"attempts", attempts,
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	return receipt, nil
}

func (p *Pipeline) record(ctx context.Context, scan Scan) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, scan); err != nil {
		slog.Warn("Failed to record scan", "filename", scan.Filename, "error", err)
	}
}

// uploadFilename swaps the extension for .jpg when the image was re-encoded
func uploadFilename(filename string, img Image) string {
	if filename == "" {
		filename = "receipt"
	}
	if !img.Converted {
		return filename
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
}
