package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/budget-sync/internal/gateway"
	"github.com/zombor/budget-sync/internal/scanning"
)

var errNothingToUpdate = errors.New("nothing to update")

func parseKind(s string) (gateway.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "expense", "out":
		return gateway.Expense, nil
	case "income", "in":
		return gateway.Income, nil
	}
	return "", fmt.Errorf("unknown type %q (want income or expense)", s)
}

// parseDateFlag accepts YYYY-MM-DD, "today" and "yesterday". An empty
// string yields the zero date.
func parseDateFlag(s string, now time.Time) (gateway.Date, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return gateway.Date{}, nil
	case "today":
		return gateway.NewDate(now.Year(), now.Month(), now.Day()), nil
	case "yesterday":
		y := now.AddDate(0, 0, -1)
		return gateway.NewDate(y.Year(), y.Month(), y.Day()), nil
	}
	return gateway.ParseDate(strings.TrimSpace(s))
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(strings.TrimPrefix(s, "$")))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return amount, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transaction id %q", s)
	}
	return id, nil
}

// updateFlags are the raw values of the update subcommand; empty means unchanged
type updateFlags struct {
	kind        string
	amount      string
	category    string
	description string
	date        string
}

func (f updateFlags) build(now time.Time) (gateway.TransactionUpdate, error) {
	var u gateway.TransactionUpdate
	changed := false

	if f.kind != "" {
		kind, err := parseKind(f.kind)
		if err != nil {
			return u, err
		}
		u.Kind = &kind
		changed = true
	}
	if f.amount != "" {
		amount, err := parseAmount(f.amount)
		if err != nil {
			return u, err
		}
		u.Amount = &amount
		changed = true
	}
	if f.category != "" {
		u.Category = &f.category
		changed = true
	}
	if f.description != "" {
		u.Description = &f.description
		changed = true
	}
	if f.date != "" {
		date, err := parseDateFlag(f.date, now)
		if err != nil {
			return u, err
		}
		u.Date = &date
		changed = true
	}

	if !changed {
		return u, errNothingToUpdate
	}
	return u, nil
}

// draftFromReceipt turns a scanned receipt into an expense
func draftFromReceipt(r *scanning.ReceiptData, now time.Time) gateway.NewTransaction {
	date, err := gateway.ParseDate(r.Date)
	if err != nil {
		date = gateway.NewDate(now.Year(), now.Month(), now.Day())
	}
	return gateway.NewTransaction{
		Kind:        gateway.Expense,
		Amount:      r.Amount,
		Category:    r.Category,
		Description: r.Merchant,
		Date:        date,
		Source:      gateway.SourcePhoto,
	}
}

// draftFromVoice turns a parsed sentence into a transaction dated today
func draftFromVoice(v *gateway.VoiceParseResult, now time.Time) gateway.NewTransaction {
	kind := v.Kind
	if !kind.Valid() {
		kind = gateway.Expense
	}
	return gateway.NewTransaction{
		Kind:        kind,
		Amount:      v.Amount.Abs(),
		Category:    v.Category,
		Description: v.Description,
		Date:        gateway.NewDate(now.Year(), now.Month(), now.Day()),
		Source:      gateway.SourceVoice,
	}
}
