package gateway

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Kind is the direction of a transaction
type Kind string

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// Source records how a transaction was entered
type Source string

const (
	SourceManual Source = "manual"
	SourceVoice  Source = "voice"
	SourcePhoto  Source = "photo"
	SourceAI     Source = "ai"
)

// Valid reports whether s is one of the known sources
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceVoice, SourcePhoto, SourceAI:
		return true
	}
	return false
}

// Date is a calendar date serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate returns the calendar date y-m-d in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Timestamp accepts both RFC 3339 and the zone-less timestamps the API emits
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{parsed}
			return nil
		}
	}
	return fmt.Errorf("parsing timestamp %q", s)
}

// Transaction is a single income or expense record. ID is zero until the
// remote system has persisted it.
type Transaction struct {
	ID          int64           `json:"id,omitempty"`
	Kind        Kind            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        Date            `json:"date"`
	Source      Source          `json:"source,omitempty"`
	CreatedAt   Timestamp       `json:"created_at,omitempty"`
}

// NewTransaction is the payload for creating a transaction
type NewTransaction struct {
	Kind        Kind
	Amount      decimal.Decimal
	Category    string
	Description string
	Date        Date
	Source      Source
}

// TransactionUpdate is a partial update; nil fields are left untouched
type TransactionUpdate struct {
	Kind        *Kind
	Amount      *decimal.Decimal
	Category    *string
	Description *string
	Date        *Date
}

// Amounts travel as JSON numbers, not the quoted strings decimal emits by default.
type transactionPayload struct {
	Kind        Kind        `json:"type"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description,omitempty"`
	Date        Date        `json:"date"`
	Source      Source      `json:"source"`
}

type updatePayload struct {
	Kind        *Kind        `json:"type,omitempty"`
	Amount      *json.Number `json:"amount,omitempty"`
	Category    *string      `json:"category,omitempty"`
	Description *string      `json:"description,omitempty"`
	Date        *Date        `json:"date,omitempty"`
}

func (n NewTransaction) payload() transactionPayload {
	source := n.Source
	if source == "" {
		source = SourceManual
	}
	return transactionPayload{
		Kind:        n.Kind,
		Amount:      json.Number(n.Amount.String()),
		Category:    n.Category,
		Description: n.Description,
		Date:        n.Date,
		Source:      source,
	}
}

func (u TransactionUpdate) payload() updatePayload {
	p := updatePayload{
		Kind:        u.Kind,
		Category:    u.Category,
		Description: u.Description,
		Date:        u.Date,
	}
	if u.Amount != nil {
		n := json.Number(u.Amount.String())
		p.Amount = &n
	}
	return p
}

// TransactionQuery filters GET /transactions/. Zero fields are omitted.
type TransactionQuery struct {
	Skip      int
	Limit     int
	Kind      Kind
	StartDate Date
	EndDate   Date
}

func (q TransactionQuery) values() url.Values {
	v := url.Values{}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Kind != "" {
		v.Set("type", string(q.Kind))
	}
	if !q.StartDate.IsZero() {
		v.Set("start_date", q.StartDate.String())
	}
	if !q.EndDate.IsZero() {
		v.Set("end_date", q.EndDate.String())
	}
	return v
}

// Period selects a month; zero fields mean "current" on the server side
type Period struct {
	Year  int
	Month int
}

func (p Period) values() url.Values {
	v := url.Values{}
	if p.Year > 0 {
		v.Set("year", strconv.Itoa(p.Year))
	}
	if p.Month > 0 {
		v.Set("month", strconv.Itoa(p.Month))
	}
	return v
}

// MonthlyStats is the server's summary of one month
type MonthlyStats struct {
	Balance          decimal.Decimal `json:"balance"`
	Income           decimal.Decimal `json:"income"`
	Expense          decimal.Decimal `json:"expense"`
	TransactionCount int             `json:"transaction_count"`
}

// CategoryStat is one row of the category breakdown
type CategoryStat struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
	Count      int             `json:"count"`
}

// TrendSeries holds three index-aligned sequences
type TrendSeries struct {
	Dates   []string          `json:"dates"`
	Expense []decimal.Decimal `json:"expense"`
	Income  []decimal.Decimal `json:"income"`
}

// Len returns the number of points, or -1 when the series are misaligned
func (t TrendSeries) Len() int {
	if len(t.Dates) != len(t.Expense) || len(t.Dates) != len(t.Income) {
		return -1
	}
	return len(t.Dates)
}

// VoiceParseResult is the server's reading of a spoken transaction
type VoiceParseResult struct {
	Kind        Kind            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
}

// ScanData is the structured content extracted from a receipt
type ScanData struct {
	Amount   decimal.Decimal `json:"amount"`
	Merchant string          `json:"merchant"`
	Date     string          `json:"date"`
	Category string          `json:"category,omitempty"`
	Items    []string        `json:"items"`
}

// ScanResult is the response of POST /ai/scan-receipt
type ScanResult struct {
	Success bool     `json:"success"`
	Data    ScanData `json:"data"`
	Message string   `json:"message,omitempty"`
}

// ChatMessage is one turn of the assistant conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the assistant's answer
type ChatReply struct {
	Reply     string `json:"reply"`
	AIPowered bool   `json:"ai_powered,omitempty"`
}

// AIConfig reports how the AI service is configured
type AIConfig struct {
	Configured      bool   `json:"configured"`
	APIBase         string `json:"api_base,omitempty"`
	Model           string `json:"model,omitempty"`
	VisionModel     string `json:"vision_model,omitempty"`
	UseOllama       bool   `json:"use_ollama,omitempty"`
	OllamaAvailable bool   `json:"ollama_available,omitempty"`
}

// User is the account the client acts for
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
}

// UserStats are lifetime totals for the current user
type UserStats struct {
	Days         int             `json:"days"`
	TotalRecords int             `json:"total_records"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
}
