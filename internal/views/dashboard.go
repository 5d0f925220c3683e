package views

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"expenses.durgadawaghar.com/internal/store"
	"expenses.durgadawaghar.com/internal/summary"
)

const dashboardCSS = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:56rem;color:#222}
table{border-collapse:collapse;width:100%;margin-bottom:1.5rem}
th,td{padding:.4rem .6rem;border-bottom:1px solid #ddd;text-align:left}
td:last-child,th:last-child{text-align:right}
.total{font-size:1.25rem;font-weight:600}
.empty{color:#777;font-style:italic}`

// Money formats an amount with thousands separators and two decimals
func Money(d decimal.Decimal) string {
	return "₹" + humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

// Dashboard renders a user's expenses and per-category totals
func Dashboard(phone string, expenses []store.Expense, s summary.Summary, now time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>Expenses</title>`)
		b.WriteString(`<style>` + dashboardCSS + `</style></head><body>`)
		fmt.Fprintf(&b, `<h1>Expenses for %s</h1>`, templ.EscapeString(phone))
		fmt.Fprintf(&b, `<p class="total">%s across %s transactions</p>`,
			Money(s.Total), humanize.Comma(int64(s.Count)))

		b.WriteString(`<h2>By category</h2><table class="categories"><tr><th>Category</th><th>Count</th><th>Total</th></tr>`)
		for _, c := range s.ByCategory {
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%d</td><td>%s</td></tr>`,
				templ.EscapeString(c.Category), c.Count, Money(c.Total))
		}
		b.WriteString(`</table>`)

		b.WriteString(`<h2>Recent</h2>`)
		if len(expenses) == 0 {
			b.WriteString(`<div class="empty">No expenses recorded yet.</div>`)
		} else {
			b.WriteString(`<table class="expenses"><tr><th>When</th><th>Merchant</th><th>Category</th><th>Amount</th><th>Source</th></tr>`)
			for _, e := range expenses {
				fmt.Fprintf(&b, `<tr><td title="%s">%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
					e.Date.Format(time.RFC3339),
					humanize.RelTime(e.Date, now, "ago", "from now"),
					templ.EscapeString(e.Merchant),
					templ.EscapeString(e.Category),
					Money(e.Amount),
					templ.EscapeString(e.AppName))
			}
			b.WriteString(`</table>`)
		}
		b.WriteString(`</body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}
