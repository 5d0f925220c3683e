package extractor

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MerchantCase is the casing applied to a sanitized merchant before storage
type MerchantCase string

const (
	CaseUpper    MerchantCase = "upper"
	CaseLower    MerchantCase = "lower"
	CasePreserve MerchantCase = "preserve"
)

// CategoryRule assigns Name to merchants containing any of Keywords
type CategoryRule struct {
	Name     Category `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Profile holds every table the engine needs for one source style.
// Categories are evaluated in order and the first match wins.
type Profile struct {
	Style                SourceStyle    `yaml:"style"`
	CurrencyMarkers      []string       `yaml:"currency_markers"`
	CreditKeywords       []string       `yaml:"credit_keywords"`
	DebitKeywords        []string       `yaml:"debit_keywords"`
	MerchantPrepositions []string       `yaml:"merchant_prepositions"`
	MerchantTerminators  []string       `yaml:"merchant_terminators"`
	RailTokens           []string       `yaml:"rail_tokens"`
	MerchantCase         MerchantCase   `yaml:"merchant_case"`
	Categories           []CategoryRule `yaml:"categories"`
}

type profileFile struct {
	Version  int       `yaml:"version"`
	Profiles []Profile `yaml:"profiles"`
}

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// DefaultProfiles returns the built-in BankSMS and WalletNotification tables
func DefaultProfiles() []Profile {
	profiles, err := LoadProfiles(bytes.NewReader(defaultProfilesYAML))
	if err != nil {
		panic(fmt.Sprintf("extractor: embedded profiles.yaml: %v", err))
	}
	return profiles
}

// LoadProfiles decodes a YAML keyword table document
func LoadProfiles(r io.Reader) ([]Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f profileFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported profiles version %d", f.Version)
	}
	if len(f.Profiles) == 0 {
		return nil, errors.New("no profiles defined")
	}
	for i := range f.Profiles {
		if style, err := ParseSourceStyle(string(f.Profiles[i].Style)); err == nil {
			f.Profiles[i].Style = style
		}
		if err := f.Profiles[i].validate(); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
	}
	return f.Profiles, nil
}

func (p Profile) validate() error {
	style, err := ParseSourceStyle(string(p.Style))
	if err != nil {
		return err
	}
	if style != p.Style {
		return fmt.Errorf("style %q must be written as %q", p.Style, style)
	}
	switch p.MerchantCase {
	case CaseUpper, CaseLower, CasePreserve:
	default:
		return fmt.Errorf("%s: invalid merchant_case %q", p.Style, p.MerchantCase)
	}
	if len(p.CurrencyMarkers) == 0 {
		return fmt.Errorf("%s: currency_markers is empty", p.Style)
	}
	if len(p.DebitKeywords) == 0 {
		return fmt.Errorf("%s: debit_keywords is empty", p.Style)
	}
	if len(p.MerchantPrepositions) == 0 {
		return fmt.Errorf("%s: merchant_prepositions is empty", p.Style)
	}
	for _, c := range p.Categories {
		if c.Name == "" {
			return fmt.Errorf("%s: category without a name", p.Style)
		}
		if len(c.Keywords) == 0 {
			return fmt.Errorf("%s: category %s has no keywords", p.Style, c.Name)
		}
	}
	return nil
}

// merchantChars is the alphabet a merchant capture may span. '@', '_'
// and '*' admit VPA handles and starred order ids so the sanitizer sees them.
const merchantChars = `[a-z0-9\s&\-.@_*]`

func compile(p Profile) (*Rules, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	r := &Rules{
		style:          p.Style,
		merchantCase:   p.MerchantCase,
		creditKeywords: lowerAll(p.CreditKeywords),
		debitKeywords:  lowerAll(p.DebitKeywords),
	}

	var err error
	r.amountPattern, err = regexp.Compile(`(?:` + alternation(p.CurrencyMarkers) + `)\s*(\d+(?:\.\d*)?|\.\d+)`)
	if err != nil {
		return nil, fmt.Errorf("amount pattern: %w", err)
	}

	merchant := `(?i)(?:` + alternation(p.MerchantPrepositions) + `)\s+(` + merchantChars + `+?)`
	if len(p.MerchantTerminators) > 0 {
		merchant += `(?:\s+(?:` + alternation(p.MerchantTerminators) + `)|$)`
	} else {
		merchant += `$`
	}
	r.merchantPattern, err = regexp.Compile(merchant)
	if err != nil {
		return nil, fmt.Errorf("merchant pattern: %w", err)
	}

	if len(p.RailTokens) > 0 {
		r.railPattern, err = regexp.Compile(`(?i)` + alternation(p.RailTokens))
		if err != nil {
			return nil, fmt.Errorf("rail token pattern: %w", err)
		}
	}

	for _, c := range p.Categories {
		r.categories = append(r.categories, CategoryRule{Name: c.Name, Keywords: lowerAll(c.Keywords)})
	}
	return r, nil
}

// alternation quotes and lowercases words into a regexp alternation,
// keeping the configured order
func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return strings.Join(quoted, "|")
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}
