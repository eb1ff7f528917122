package scanning

import (
	"fmt"
	"strings"
	"time"

	"github.com/zombor/budget-sync/internal/gateway"
)

const (
	// DefaultCategory is used when the OCR service does not suggest one
	DefaultCategory = "shopping"
	unknownMerchant = "Unknown Merchant"
)

var receiptDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"2006.01.02",
}

// parseScanResult validates the scan response and fills in defaults
func parseScanResult(result *gateway.ScanResult, now time.Time) (*ReceiptData, error) {
	if result == nil {
		return nil, fmt.Errorf("empty scan response")
	}
	if !result.Success {
		if result.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrScanRejected, result.Message)
		}
		return nil, ErrScanRejected
	}

	data := &ReceiptData{
		Amount:   result.Data.Amount.Abs(),
		Merchant: strings.TrimSpace(result.Data.Merchant),
		Date:     normalizeReceiptDate(result.Data.Date, now),
		Category: strings.TrimSpace(result.Data.Category),
		Items:    make([]string, 0, len(result.Data.Items)),
		Message:  result.Message,
	}

	if data.Merchant == "" {
		data.Merchant = unknownMerchant
	}
	if data.Category == "" {
		data.Category = DefaultCategory
	}
	for _, item := range result.Data.Items {
		if item = strings.TrimSpace(item); item != "" {
			data.Items = append(data.Items, item)
		}
	}

	return data, nil
}

// normalizeReceiptDate converts common layouts to YYYY-MM-DD, defaulting to today
func normalizeReceiptDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range receiptDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return now.Format("2006-01-02")
}
