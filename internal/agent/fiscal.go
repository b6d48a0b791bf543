package agent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pbimprenta/printdesk/internal/store"
)

var (
	rutPattern     = regexp.MustCompile(`\b(\d{1,2}\.?\d{3}\.?\d{3})\s?-\s?([\dkK])\b`)
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	addressPattern = regexp.MustCompile(`(?i)\b(?:direcci[oó]n|domicilio)(?:\s+de\s+(?:despacho|facturaci[oó]n|entrega))?\s*(?:es\b)?\s*[:\-]?\s*([^\n;]+)`)
	// addressStop ends a captured address where the sentence moves on to
	// another field.
	addressStop = regexp.MustCompile(`(?i)\s+(?:y\s+)?(?:mi|el|la|rut|correo|email)\s+(?:correo|email|rut|es)\b|\s+y\s+(?:mi|el|la)\s`)
)

// ExtractFiscal pattern-matches billing data out of texts, oldest first.
// Later mentions win. A tax ID is kept only when its check digit is valid.
func ExtractFiscal(texts ...string) store.FiscalFields {
	var f store.FiscalFields
	for _, text := range texts {
		for _, m := range rutPattern.FindAllStringSubmatch(text, -1) {
			if rut, ok := NormalizeRUT(m[1] + "-" + m[2]); ok {
				f.TaxID = rut
			}
		}
		if emails := emailPattern.FindAllString(text, -1); len(emails) > 0 {
			f.Email = strings.ToLower(emails[len(emails)-1])
		}
		if m := addressPattern.FindStringSubmatch(text); m != nil {
			if addr := cleanAddress(m[1]); addr != "" {
				f.Address = addr
			}
		}
	}
	return f
}

func cleanAddress(s string) string {
	if loc := addressStop.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	if loc := emailPattern.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.Trim(strings.TrimSpace(s), " ,.")
	// A street address carries a number.
	if len(s) < 5 || !strings.ContainsAny(s, "0123456789") {
		return ""
	}
	if len(s) > 160 {
		s = strings.TrimSpace(s[:160])
	}
	return s
}

// NormalizeRUT validates a Chilean RUT with its mod-11 check digit and
// returns it as digits, a dash and the upper-case check digit.
func NormalizeRUT(s string) (string, bool) {
	s = strings.ToUpper(strings.NewReplacer(".", "", " ", "").Replace(s))
	body, dv, ok := strings.Cut(s, "-")
	if !ok || body == "" || len(dv) != 1 {
		return "", false
	}
	if _, err := strconv.Atoi(body); err != nil {
		return "", false
	}
	if checkDigit(body) != dv {
		return "", false
	}
	return body + "-" + dv, true
}

func checkDigit(body string) string {
	sum, mul := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * mul
		mul++
		if mul > 7 {
			mul = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return "0"
	case 10:
		return "K"
	default:
		return strconv.Itoa(r)
	}
}
