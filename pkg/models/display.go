package models

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Canonical store keys shared by the producer and every display surface.
const (
	DefaultPriceKey = "tv_price"
	DefaultAsOfKey  = "tv_date"
)

const maxInstanceIDLen = 128

// Text is an optional display string. The zero value is absent.
type Text struct {
	Value string `json:"value,omitempty"`
	Valid bool   `json:"valid"`
}

// NewText treats empty or whitespace-only input as absent so a blank never reaches a surface.
func NewText(s string) Text {
	if strings.TrimSpace(s) == "" {
		return Text{}
	}
	return Text{Value: s, Valid: true}
}

// Or returns the value, or placeholder when the field is absent.
func (t Text) Or(placeholder string) string {
	if !t.Valid {
		return placeholder
	}
	return t.Value
}

// DisplayRecord is the latest known state written by the producer.
type DisplayRecord struct {
	PriceText Text `json:"price_text"`
	AsOfText  Text `json:"as_of_text"`
}

// Schema names the store keys each DisplayRecord field lives under.
type Schema struct {
	PriceKey string `mapstructure:"price_key" json:"price_key"`
	AsOfKey  string `mapstructure:"as_of_key" json:"as_of_key"`
}

func DefaultSchema() Schema {
	return Schema{PriceKey: DefaultPriceKey, AsOfKey: DefaultAsOfKey}
}

func (s Schema) Validate() error {
	if strings.TrimSpace(s.PriceKey) == "" {
		return fmt.Errorf("schema: price key is empty")
	}
	if strings.TrimSpace(s.AsOfKey) == "" {
		return fmt.Errorf("schema: as-of key is empty")
	}
	if s.PriceKey == s.AsOfKey {
		return fmt.Errorf("schema: price and as-of keys are both %q", s.PriceKey)
	}
	return nil
}

// Fields maps a record onto store keys. Absent fields are left out.
func (s Schema) Fields(rec DisplayRecord) map[string]string {
	fields := make(map[string]string, 2)
	if rec.PriceText.Valid {
		fields[s.PriceKey] = rec.PriceText.Value
	}
	if rec.AsOfText.Valid {
		fields[s.AsOfKey] = rec.AsOfText.Value
	}
	return fields
}

// InstanceID identifies one placed copy of a display surface.
type InstanceID string

func (id InstanceID) Valid() bool {
	s := string(id)
	if strings.TrimSpace(s) == "" || len(s) > maxInstanceIDLen {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// PriceUpdate represents a single computed price tick on the producer stream
type PriceUpdate struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // unix micro
	SeqID     int64           `json:"seq_id"`    // monotonic counter per symbol
}
