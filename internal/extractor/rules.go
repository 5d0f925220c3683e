package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is a spending bucket derived from the merchant
type Category string

const (
	Food            Category = "Food"
	Travel          Category = "Travel"
	Bills           Category = "Bills"
	Shopping        Category = "Shopping"
	BillsOrShopping Category = "Bills/Shopping"
	General         Category = "General"
)

// Text is a message after normalization. Extractors only accept Text,
// so a message is normalized exactly once.
type Text struct {
	folded string // lowercased, grouping commas removed
	cased  string // grouping commas removed, original case
}

// Normalize lowercases a message and strips thousand separators
func Normalize(raw string) Text {
	cased := strings.ReplaceAll(raw, ",", "")
	return Text{folded: strings.ToLower(cased), cased: cased}
}

// Classification is the verdict of the direction classifier
type Classification struct {
	Direction Direction
	Reason    IgnoreReason
}

// Rules is the compiled form of a Profile
type Rules struct {
	style           SourceStyle
	merchantCase    MerchantCase
	creditKeywords  []string
	debitKeywords   []string
	amountPattern   *regexp.Regexp
	merchantPattern *regexp.Regexp
	railPattern     *regexp.Regexp
	categories      []CategoryRule
}

// Style is the source style these rules were compiled for
func (r *Rules) Style() SourceStyle {
	return r.style
}

// Classify gates the pipeline. Credit keywords are checked before debit
// keywords, so a credit notice mentioning "sent" is still ignored.
func (r *Rules) Classify(t Text) Classification {
	if containsAny(t.folded, r.creditKeywords) {
		return Classification{Direction: Ignore, Reason: ReasonCredit}
	}
	if !containsAny(t.folded, r.debitKeywords) {
		return Classification{Direction: Ignore, Reason: ReasonNotTransaction}
	}
	return Classification{Direction: Debit}
}

// Amount returns the number following the first currency marker in the
// message, or zero. Later currency mentions (balances, cashback) are
// never consulted, even when the first one is not the spend.
func (r *Rules) Amount(t Text) decimal.Decimal {
	m := r.amountPattern.FindStringSubmatch(t.folded)
	if m == nil {
		return decimal.Zero
	}
	// ".50" and "40." are both valid captures
	digits := strings.TrimSuffix(m[1], ".")
	if strings.HasPrefix(digits, ".") {
		digits = "0" + digits
	}
	amount, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// Merchant returns the raw counterparty text between the first
// preposition and the nearest terminator, in the message's original
// case, or UnknownMerchant.
func (r *Rules) Merchant(t Text) string {
	m := r.merchantPattern.FindStringSubmatch(t.cased)
	if m == nil {
		return UnknownMerchant
	}
	return strings.TrimSpace(m[1])
}

// Sanitize strips payment rail artifacts from an extracted merchant and
// applies the casing policy. Anything that cleans down to nothing is
// reported as UnknownMerchant.
func (r *Rules) Sanitize(merchant string) string {
	if merchant == UnknownMerchant {
		return merchant
	}
	if r.railPattern != nil {
		merchant = r.railPattern.ReplaceAllString(merchant, "")
	}
	if i := strings.IndexByte(merchant, '@'); i >= 0 {
		merchant = merchant[:i]
	}
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return UnknownMerchant
	}

	switch r.merchantCase {
	case CaseUpper:
		return strings.ToUpper(merchant)
	case CaseLower:
		return strings.ToLower(merchant)
	}
	return merchant
}

// Categorize maps a merchant to the first category whose keyword set has
// a member occurring anywhere in it
func (r *Rules) Categorize(merchant string) Category {
	if merchant == UnknownMerchant {
		return General
	}
	m := strings.ToLower(merchant)
	for _, c := range r.categories {
		if containsAny(m, c.Keywords) {
			return c.Name
		}
	}
	return General
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
