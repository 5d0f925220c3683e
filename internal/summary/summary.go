package summary

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"expenses.durgadawaghar.com/internal/store"
)

// Bucket is the spend attributed to one category
type Bucket struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// MerchantStat is the spend attributed to one merchant
type MerchantStat struct {
	Merchant string          `json:"merchant"`
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
	Recent   []store.Expense `json:"recent"`
}

// Summary aggregates a user's expenses
type Summary struct {
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
	ByCategory []Bucket        `json:"byCategory"`
	ByMerchant []MerchantStat  `json:"byMerchant"`
}

// Build groups expenses by category and by merchant, largest totals
// first. Merchants are grouped case-insensitively, keeping the spelling
// of the first occurrence. Each merchant keeps at most recent of its
// newest expenses.
func Build(expenses []store.Expense, recent int) Summary {
	s := Summary{
		Total:      decimal.Zero,
		ByCategory: []Bucket{},
		ByMerchant: []MerchantStat{},
	}

	categories := make(map[string]*Bucket)
	merchants := make(map[string]*MerchantStat)
	var categoryOrder, merchantOrder []string

	for _, e := range expenses {
		s.Count++
		s.Total = s.Total.Add(e.Amount)

		b, ok := categories[e.Category]
		if !ok {
			b = &Bucket{Category: e.Category, Total: decimal.Zero}
			categories[e.Category] = b
			categoryOrder = append(categoryOrder, e.Category)
		}
		b.Count++
		b.Total = b.Total.Add(e.Amount)

		key := strings.ToUpper(e.Merchant)
		m, ok := merchants[key]
		if !ok {
			m = &MerchantStat{Merchant: e.Merchant, Category: e.Category, Total: decimal.Zero}
			merchants[key] = m
			merchantOrder = append(merchantOrder, key)
		}
		m.Count++
		m.Total = m.Total.Add(e.Amount)
		m.Recent = append(m.Recent, e)
	}

	for _, k := range categoryOrder {
		s.ByCategory = append(s.ByCategory, *categories[k])
	}
	sort.SliceStable(s.ByCategory, func(i, j int) bool {
		return s.ByCategory[i].Total.GreaterThan(s.ByCategory[j].Total)
	})

	for _, k := range merchantOrder {
		m := merchants[k]
		sort.SliceStable(m.Recent, func(i, j int) bool {
			return m.Recent[i].Date.After(m.Recent[j].Date)
		})
		if len(m.Recent) > recent {
			m.Recent = m.Recent[:recent]
		}
		s.ByMerchant = append(s.ByMerchant, *m)
	}
	sort.SliceStable(s.ByMerchant, func(i, j int) bool {
		return s.ByMerchant[i].Total.GreaterThan(s.ByMerchant[j].Total)
	})

	return s
}
