package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/zombor/budget-sync/internal/gateway"
	"github.com/zombor/budget-sync/internal/journal"
	"github.com/zombor/budget-sync/internal/scanning"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	incomeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	expenseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func flush(tw *tabwriter.Writer) {
	if err := tw.Flush(); err != nil {
		slog.Error("failed to flush table writer", "error", err)
	}
}

func header(tw io.Writer, cols ...string) {
	styled := make([]string, len(cols))
	rules := make([]string, len(cols))
	for i, c := range cols {
		styled[i] = headerStyle.Render(c)
		rules[i] = strings.Repeat("─", len(c))
	}
	fmt.Fprintln(tw, strings.Join(styled, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func signedAmount(kind gateway.Kind, amount decimal.Decimal) string {
	if kind == gateway.Income {
		return incomeStyle.Render("+" + money(amount))
	}
	return expenseStyle.Render("-" + money(amount))
}

func printTransactions(w io.Writer, txs []gateway.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No transactions."))
		return
	}
	tw := newTable(w)
	defer flush(tw)

	header(tw, "ID", "Date", "Amount", "Category", "Description", "Source")
	for _, t := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, signedAmount(t.Kind, t.Amount), t.Category, t.Description, t.Source)
	}
}

func printTransaction(w io.Writer, verb string, t *gateway.Transaction) {
	fmt.Fprintf(w, "%s #%d: %s %s on %s", verb, t.ID, signedAmount(t.Kind, t.Amount), t.Category, t.Date)
	if t.Description != "" {
		fmt.Fprintf(w, " (%s)", t.Description)
	}
	fmt.Fprintln(w)
}

func printMonthly(w io.Writer, s gateway.MonthlyStats) {
	fmt.Fprintln(w, titleStyle.Render("This month"))
	tw := newTable(w)
	defer flush(tw)
	fmt.Fprintf(tw, "Balance\t%s\n", money(s.Balance))
	fmt.Fprintf(tw, "Income\t%s\n", incomeStyle.Render(money(s.Income)))
	fmt.Fprintf(tw, "Expense\t%s\n", expenseStyle.Render(money(s.Expense)))
	fmt.Fprintf(tw, "Transactions\t%d\n", s.TransactionCount)
}

func printCategories(w io.Writer, stats []gateway.CategoryStat) {
	fmt.Fprintln(w, titleStyle.Render("By category"))
	if len(stats) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No data."))
		return
	}
	tw := newTable(w)
	defer flush(tw)

	header(tw, "Category", "Amount", "Share", "Count")
	for _, c := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%d\n", c.Category, money(c.Amount), c.Percentage, c.Count)
	}
}

func printTrend(w io.Writer, t gateway.TrendSeries) {
	fmt.Fprintln(w, titleStyle.Render("Trend"))
	n := t.Len()
	if n <= 0 {
		fmt.Fprintln(w, mutedStyle.Render("No data."))
		return
	}
	tw := newTable(w)
	defer flush(tw)

	header(tw, "Day", "Income", "Expense")
	for i := 0; i < n; i++ {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Dates[i], money(t.Income[i]), money(t.Expense[i]))
	}
}

func printReceipt(w io.Writer, filename string, r *scanning.ReceiptData) {
	fmt.Fprintln(w, titleStyle.Render(filename))
	tw := newTable(w)
	defer flush(tw)
	fmt.Fprintf(tw, "Merchant\t%s\n", r.Merchant)
	fmt.Fprintf(tw, "Amount\t%s\n", money(r.Amount))
	fmt.Fprintf(tw, "Date\t%s\n", r.Date)
	fmt.Fprintf(tw, "Category\t%s\n", r.Category)
	if len(r.Items) > 0 {
		fmt.Fprintf(tw, "Items\t%s\n", strings.Join(r.Items, ", "))
	}
}

func printScanRecords(w io.Writer, records []*journal.ScanRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No scans recorded."))
		return
	}
	tw := newTable(w)
	defer flush(tw)

	header(tw, "ID", "When", "File", "Size", "Tries", "Outcome", "Result")
	for _, r := range records {
		outcome := incomeStyle.Render(string(r.Outcome))
		result := r.Merchant
		if r.Amount != nil {
			result = fmt.Sprintf("%s %s", r.Merchant, money(*r.Amount))
		}
		if r.Outcome == journal.OutcomeFailed {
			outcome = expenseStyle.Render(string(r.Outcome))
			result = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s → %s\t%d\t%s\t%s\n",
			r.ID,
			humanize.Time(r.CreatedAt),
			r.Filename,
			humanize.Bytes(uint64(r.OriginalSize)),
			humanize.Bytes(uint64(r.UploadedSize)),
			r.Attempts,
			outcome,
			result)
	}
}
