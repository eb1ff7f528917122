package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/budget-sync/internal/gateway"
)

type upload struct {
	filename    string
	data        []byte
	contentType string
}

// mockGateway is a mock implementation of Gateway
type mockGateway struct {
	errs    []error
	result  *gateway.ScanResult
	uploads []upload
}

func (m *mockGateway) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*gateway.ScanResult, error) {
	m.uploads = append(m.uploads, upload{filename: filename, data: data, contentType: contentType})
	if n := len(m.uploads); n <= len(m.errs) && m.errs[n-1] != nil {
		return nil, m.errs[n-1]
	}
	return m.result, nil
}

// mockRecorder is a mock implementation of Recorder
type mockRecorder struct {
	scans []Scan
	err   error
}

func (m *mockRecorder) Record(ctx context.Context, scan Scan) error {
	m.scans = append(m.scans, scan)
	return m.err
}

var _ = Describe("Pipeline", func() {
	var (
		gw       *mockGateway
		recorder *mockRecorder
		pipeline *Pipeline
		filename string
		data     []byte
		ctype    string
		receipt  *ReceiptData
		err      error
	)

	BeforeEach(func() {
		gw = &mockGateway{
			result: &gateway.ScanResult{
				Success: true,
				Data: gateway.ScanData{
					Amount:   decimal.RequireFromString("42.75"),
					Merchant: "Walgreens",
					Date:     "2024-03-20",
					Items:    []string{"vitamins"},
				},
			},
		}
		recorder = &mockRecorder{}
		pipeline = NewPipelineWithDeps(gw, NewNormalizer(), NewUploader(DefaultMaxRetries), recorder)
		pipeline.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
		filename = "IMG_0001.png"
		data = noisePNG(64, 64)
		ctype = "image/png"
	})

	JustBeforeEach(func() {
		receipt, err = pipeline.ScanReceipt(context.Background(), filename, data, ctype)
	})

	When("the scan succeeds on the first attempt", func() {
		It("should return the parsed receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Merchant).To(Equal("Walgreens"))
			Expect(receipt.Category).To(Equal(DefaultCategory))
			Expect(receipt.Amount.String()).To(Equal("42.75"))
		})

		It("should upload the small image untouched", func() {
			Expect(gw.uploads).To(HaveLen(1))
			Expect(gw.uploads[0].data).To(Equal(data))
			Expect(gw.uploads[0].filename).To(Equal("IMG_0001.png"))
			Expect(gw.uploads[0].contentType).To(Equal("image/png"))
		})

		It("should record the scan", func() {
			Expect(recorder.scans).To(HaveLen(1))
			Expect(recorder.scans[0].Attempts).To(Equal(1))
			Expect(recorder.scans[0].Digest).To(Equal(Digest(data)))
			Expect(recorder.scans[0].Err).NotTo(HaveOccurred())
		})
	})

	When("a 2 MB image times out once and then succeeds", func() {
		BeforeEach(func() {
			data = noisePNG(1000, 700)
			Expect(len(data)).To(BeNumerically(">", 2_000_000))
			gw.errs = []error{fmt.Errorf("calling POST /ai/scan-receipt: %w", context.DeadlineExceeded)}
		})

		It("should make exactly two attempts and return the second result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(gw.uploads).To(HaveLen(2))
			Expect(receipt.Merchant).To(Equal("Walgreens"))
			Expect(receipt.Date).To(Equal("2024-03-20"))
		})

		It("should upload a normalized JPEG", func() {
			uploaded := gw.uploads[1]
			Expect(uploaded.contentType).To(Equal("image/jpeg"))
			Expect(uploaded.filename).To(Equal("IMG_0001.jpg"))
			Expect(len(uploaded.data)).To(BeNumerically("<", len(data)))
			_, decodeErr := jpeg.DecodeConfig(bytes.NewReader(uploaded.data))
			Expect(decodeErr).NotTo(HaveOccurred())
		})

		It("should record two attempts", func() {
			Expect(recorder.scans[0].Attempts).To(Equal(2))
			Expect(recorder.scans[0].OriginalSize).To(Equal(len(data)))
		})
	})

	When("the service answers with a validation error", func() {
		BeforeEach(func() {
			gw.errs = []error{&gateway.APIError{StatusCode: http.StatusBadRequest, Detail: "please upload an image"}}
		})

		It("should not retry and should surface the error", func() {
			Expect(gw.uploads).To(HaveLen(1))
			var apiErr *gateway.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(receipt).To(BeNil())
		})

		It("should record the failure", func() {
			Expect(recorder.scans).To(HaveLen(1))
			Expect(recorder.scans[0].Err).To(HaveOccurred())
			Expect(recorder.scans[0].Receipt).To(BeNil())
		})
	})

	When("the service rejects the scan", func() {
		BeforeEach(func() {
			gw.result = &gateway.ScanResult{Success: false, Message: "unreadable"}
		})

		It("returns ErrScanRejected", func() {
			Expect(errors.Is(err, ErrScanRejected)).To(BeTrue())
		})
	})

	When("recording fails", func() {
		BeforeEach(func() {
			recorder.err = errors.New("disk full")
		})

		It("should still return the receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt).NotTo(BeNil())
		})
	})

	When("no recorder is configured", func() {
		BeforeEach(func() {
			pipeline = NewPipeline(gw)
		})

		It("should scan normally", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Merchant).To(Equal("Walgreens"))
		})
	})

	It("should serve as a Scanner", func() {
		var scanner Scanner = pipeline
		got, err := scanner.ScanReceipt(context.Background(), filename, data, ctype)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Merchant).To(Equal("Walgreens"))
	})
})

var _ = Describe("uploadFilename", func() {
	It("should keep the name of untouched images", func() {
		Expect(uploadFilename("a.heic", Image{})).To(Equal("a.heic"))
	})

	It("should switch the extension of converted images", func() {
		Expect(uploadFilename("scan.pdf", Image{Converted: true})).To(Equal("scan.jpg"))
	})

	It("should name anonymous uploads", func() {
		Expect(uploadFilename("", Image{Converted: true})).To(Equal("receipt.jpg"))
	})
})
