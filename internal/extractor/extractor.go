package extractor

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SourceStyle selects the message vocabulary a deployment receives
type SourceStyle string

const (
	BankSMS            SourceStyle = "bank_sms"
	WalletNotification SourceStyle = "wallet_notification"
)

// ParseSourceStyle maps a configuration value onto a known style
func ParseSourceStyle(s string) (SourceStyle, error) {
	switch style := SourceStyle(strings.ToLower(strings.TrimSpace(s))); style {
	case BankSMS, WalletNotification:
		return style, nil
	}
	return "", fmt.Errorf("unknown source style %q", s)
}

// Direction says whether a message should be recorded as a spend
type Direction string

const (
	Debit  Direction = "debit"
	Ignore Direction = "ignore"
)

// IgnoreReason explains an Ignore verdict
type IgnoreReason string

const (
	ReasonNone             IgnoreReason = ""
	ReasonCredit           IgnoreReason = "credit"
	ReasonNotTransaction   IgnoreReason = "not_transaction"
	ReasonUnsupportedStyle IgnoreReason = "unsupported_style"
)

// UnknownMerchant is returned when no merchant could be located
const UnknownMerchant = "Unknown"

// RawMessage is one inbound notification as received from the phone agent
type RawMessage struct {
	Text        string
	SourceApp   string
	SourceStyle SourceStyle
}

// Result is the outcome of running a message through the engine.
// A zero Amount means no currency-marked number was found and the
// message must not be recorded.
type Result struct {
	Amount    decimal.Decimal
	Merchant  string
	Category  Category
	Direction Direction
	Reason    IgnoreReason
}

// Recordable reports whether the result describes a spend worth persisting
func (r Result) Recordable() bool {
	return r.Direction == Debit && r.Amount.IsPositive()
}

// Engine runs the extraction pipeline for every configured source style.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	rules map[SourceStyle]*Rules
}

// NewEngine compiles the given profiles into an engine
func NewEngine(profiles []Profile) (*Engine, error) {
	e := &Engine{rules: make(map[SourceStyle]*Rules, len(profiles))}
	for _, p := range profiles {
		if _, dup := e.rules[p.Style]; dup {
			return nil, fmt.Errorf("duplicate profile for style %q", p.Style)
		}
		r, err := compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %s profile: %w", p.Style, err)
		}
		e.rules[p.Style] = r
	}
	return e, nil
}

// Default returns an engine built from the embedded keyword tables
func Default() *Engine {
	e, err := NewEngine(DefaultProfiles())
	if err != nil {
		panic(fmt.Sprintf("extractor: embedded profiles: %v", err))
	}
	return e
}

// Load builds an engine from a keyword profile file, or from the
// embedded tables when path is empty
func Load(path string) (*Engine, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening profiles: %w", err)
	}
	defer f.Close()

	profiles, err := LoadProfiles(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return NewEngine(profiles)
}

// Rules returns the compiled rules for a style
func (e *Engine) Rules(style SourceStyle) (*Rules, bool) {
	r, ok := e.rules[style]
	return r, ok
}

// Styles lists the styles this engine can process, sorted
func (e *Engine) Styles() []SourceStyle {
	styles := make([]SourceStyle, 0, len(e.rules))
	for s := range e.rules {
		styles = append(styles, s)
	}
	sort.Slice(styles, func(i, j int) bool { return styles[i] < styles[j] })
	return styles
}

// Extract runs the full pipeline over one message.
// Messages classified as Ignore are not extracted further.
func (e *Engine) Extract(msg RawMessage) Result {
	ignored := Result{
		Amount:    decimal.Zero,
		Merchant:  UnknownMerchant,
		Category:  General,
		Direction: Ignore,
	}

	r, ok := e.rules[msg.SourceStyle]
	if !ok {
		ignored.Reason = ReasonUnsupportedStyle
		return ignored
	}

	text := Normalize(msg.Text)

	verdict := r.Classify(text)
	if verdict.Direction == Ignore {
		ignored.Reason = verdict.Reason
		return ignored
	}

	merchant := r.Sanitize(r.Merchant(text))
	return Result{
		Amount:    r.Amount(text),
		Merchant:  merchant,
		Category:  r.Categorize(merchant),
		Direction: Debit,
	}
}
