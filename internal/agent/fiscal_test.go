package agent

import (
	"strconv"
	"testing"
)

func TestNormalizeRUT(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.345.678-5", "12345678-5", true},
		{"12345678-5", "12345678-5", true},
		{"11.111.111-1", "11111111-1", true},
		{"12.345.678-9", "", false},
		{"12345678", "", false},
		{"abc-1", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeRUT(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeRUT(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCheckDigitK(t *testing.T) {
	// 10 remainder maps to K, 11 to 0.
	for body := 1000000; body < 1000100; body++ {
		dv := checkDigit(strconv.Itoa(body))
		if dv == "K" {
			if _, ok := NormalizeRUT(strconv.Itoa(body) + "-k"); !ok {
				t.Fatalf("lower-case k rejected for %d", body)
			}
			return
		}
	}
	t.Fatal("no K check digit found in range")
}

func TestExtractFiscal(t *testing.T) {
	f := ExtractFiscal(
		"Hola, necesito flyers",
		"mi rut es 12.345.678-5 y mi correo es Ana@Example.com",
		"la dirección de despacho: Los Leones 456, Providencia",
	)
	if f.TaxID != "12345678-5" {
		t.Errorf("TaxID = %q", f.TaxID)
	}
	if f.Email != "ana@example.com" {
		t.Errorf("Email = %q", f.Email)
	}
	if f.Address != "Los Leones 456, Providencia" {
		t.Errorf("Address = %q", f.Address)
	}
}

func TestExtractFiscal_InvalidRUTIgnored(t *testing.T) {
	if f := ExtractFiscal("rut 12.345.678-9"); f.TaxID != "" {
		t.Errorf("TaxID = %q, want empty for a bad check digit", f.TaxID)
	}
}

func TestExtractFiscal_LaterMentionWins(t *testing.T) {
	f := ExtractFiscal("correo viejo@mail.cl", "mejor usa nuevo@mail.cl")
	if f.Email != "nuevo@mail.cl" {
		t.Errorf("Email = %q", f.Email)
	}
}

func TestExtractFiscal_AddressStopsAtNextField(t *testing.T) {
	f := ExtractFiscal("mi dirección es Av. Matta 123, Santiago y mi correo es a@b.cl")
	if f.Address != "Av. Matta 123, Santiago" {
		t.Errorf("Address = %q", f.Address)
	}
}

func TestExtractFiscal_AddressNeedsNumber(t *testing.T) {
	if f := ExtractFiscal("te paso mi dirección y correo luego"); f.Address != "" {
		t.Errorf("Address = %q, want empty", f.Address)
	}
}
