package producer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/price-widget/pkg/models"
)

// Formatter turns a price tick into the human-readable strings surfaces display.
type Formatter struct {
	decimals int32
	loc      *time.Location
	layout   string
}

func NewFormatter(decimals int32, timezone, layout string) (*Formatter, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("price decimals cannot be negative, got %d", decimals)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if layout == "" {
		layout = "15:04"
	}
	return &Formatter{decimals: decimals, loc: loc, layout: layout}, nil
}

// Record formats u. A zero timestamp leaves the as-of field absent.
func (f *Formatter) Record(u models.PriceUpdate) models.DisplayRecord {
	rec := models.DisplayRecord{PriceText: models.NewText(f.Price(u.Price))}
	if u.Timestamp != 0 {
		rec.AsOfText = models.NewText(time.UnixMicro(u.Timestamp).In(f.loc).Format(f.layout))
	}
	return rec
}

// Price renders p with thousands separators, e.g. 1234000 -> "1,234,000".
func (f *Formatter) Price(p decimal.Decimal) string {
	s := p.StringFixed(f.decimals)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	b.WriteString(frac)
	return b.String()
}
