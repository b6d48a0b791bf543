// Package quote prices print jobs from a table of quantity breakpoints.
// Calculate is pure: identical requests always yield identical quotes.
package quote

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrNoPrice signals that the request has no automatic price. Callers must
// not substitute an estimate.
var ErrNoPrice = errors.New("quote: no automatic price")

// Request describes the job to price.
type Request struct {
	Product    string
	Quantity   int
	Sides      int
	Finish     string
	DesignTier string
	Size       string
}

// Quote is a tax-inclusive price breakdown.
type Quote struct {
	Product      string
	ProductName  string
	Quantity     int
	Sides        int
	Finish       string
	Size         string
	DesignTier   string
	Base         int64
	Design       int64
	DesignWaived bool
	Scaled       bool
	Total        int64
}

// Calculate prices req. Unknown products, option combinations, or
// quantities that fall between breakpoints return an error wrapping
// ErrNoPrice.
func Calculate(req Request) (Quote, error) {
	key := normalize(req.Product)
	name, ok := productAliases[key]
	if !ok {
		return Quote{}, fmt.Errorf("%w: unknown product %q", ErrNoPrice, req.Product)
	}
	p := catalog[name]
	if req.Quantity <= 0 {
		return Quote{}, fmt.Errorf("%w: quantity must be positive", ErrNoPrice)
	}

	tier, ok := tierAliases[normalize(req.DesignTier)]
	if !ok {
		return Quote{}, fmt.Errorf("%w: unknown design tier %q", ErrNoPrice, req.DesignTier)
	}

	v, q, err := p.pick(req)
	if err != nil {
		return Quote{}, err
	}
	q.Product = name
	q.ProductName = p.name
	q.Quantity = req.Quantity
	q.DesignTier = tier

	base, scaled, ok := v.price(req.Quantity)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %d units of %s is not a standard quantity", ErrNoPrice, req.Quantity, name)
	}
	q.Base = base
	q.Scaled = scaled

	q.Design = designFees[tier]
	if tier == TierBasic && base >= BasicWaiverThreshold {
		q.Design = 0
		q.DesignWaived = true
	}
	q.Total = q.Base + q.Design
	return q, nil
}

// pick selects the variant matching the request options.
func (p product) pick(req Request) (variant, Quote, error) {
	var q Quote
	if p.bySides {
		q.Sides = req.Sides
		if q.Sides == 0 {
			q.Sides = p.defaultSides
		}
	}
	if p.byFinish {
		f, ok := finishAliases[normalize(req.Finish)]
		if !ok {
			return variant{}, q, fmt.Errorf("%w: unknown finish %q", ErrNoPrice, req.Finish)
		}
		if f == "" {
			f = p.defaultFinish
		}
		q.Finish = f
	}
	if p.bySize {
		s := normalize(req.Size)
		if s == "" {
			s = p.defaultSize
		}
		canon, ok := sizeAliases[s]
		if !ok {
			return variant{}, q, fmt.Errorf("%w: unknown size %q", ErrNoPrice, req.Size)
		}
		q.Size = canon
	}
	for _, v := range p.variants {
		if p.bySides && v.sides != q.Sides {
			continue
		}
		if p.byFinish && v.finish != q.Finish {
			continue
		}
		if p.bySize && v.size != q.Size {
			continue
		}
		return v, q, nil
	}
	return variant{}, q, fmt.Errorf("%w: no %s price for sides=%d finish=%q size=%q", ErrNoPrice, p.name, q.Sides, q.Finish, q.Size)
}

// price looks qty up in the breakpoints. Quantities above the last
// breakpoint scale linearly at its unit price.
func (v variant) price(qty int) (int64, bool, bool) {
	for _, bp := range v.points {
		if bp.qty == qty {
			return bp.price, false, true
		}
	}
	top := v.points[len(v.points)-1]
	if qty > top.qty {
		unit := float64(top.price) / float64(top.qty)
		return int64(math.Round(unit * float64(qty))), true, true
	}
	return 0, false, false
}

// Breakpoints returns the standard quantities for a product, for prompts.
func Breakpoints(productName string) []int {
	name, ok := productAliases[normalize(productName)]
	if !ok {
		return nil
	}
	v := catalog[name].variants[0]
	out := make([]int, len(v.points))
	for i, bp := range v.points {
		out[i] = bp.qty
	}
	return out
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ñ", "n",
)

// normalize lower-cases, folds accents and joins words with underscores.
func normalize(s string) string {
	s = accentFolder.Replace(strings.ToLower(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
}

var printer = message.NewPrinter(language.English)

// Money formats an amount as $47,600.
func Money(v int64) string {
	return printer.Sprintf("$%d", v)
}

// String renders the breakdown shown to the model and the customer.
func (q Quote) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cotización %s x%d", q.ProductName, q.Quantity)
	var opts []string
	if q.Sides > 0 {
		opts = append(opts, fmt.Sprintf("%d lado(s)", q.Sides))
	}
	if q.Finish != "" {
		opts = append(opts, q.Finish)
	}
	if q.Size != "" {
		opts = append(opts, q.Size)
	}
	if len(opts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(opts, ", "))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Impresión: %s", Money(q.Base))
	if q.Scaled {
		b.WriteString(" (precio proporcional)")
	}
	b.WriteString("\n")
	switch {
	case q.DesignWaived:
		fmt.Fprintf(&b, "- Diseño %s: incluido sin costo\n", q.DesignTier)
	case q.Design > 0:
		fmt.Fprintf(&b, "- Diseño %s: %s\n", q.DesignTier, Money(q.Design))
	}
	fmt.Fprintf(&b, "TOTAL: %s IVA incluido", Money(q.Total))
	return b.String()
}
