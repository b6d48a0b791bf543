package agent

import (
	"fmt"
	"strings"

	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/store"
)

const basePrompt = `Eres el asistente de ventas por WhatsApp de PB Imprenta.
Vendes tarjetas de presentación, flyers y pendones. Responde breve, cordial y con algún emoji.

Reglas:
- Nunca des un precio sin usar calculate_quote. Si la herramienta no entrega precio, ofrece una cotización manual.
- Los precios incluyen IVA.
- El diseño se cobra aparte (básico, medio o premium). Si el cliente contrata diseño no necesita enviar PDF.
- Solo registra un pedido cuando el cliente lo confirme, con archivo PDF recibido o servicio de diseño contratado.
- Para facturar pide nombre o razón social, RUT, dirección y correo. No vuelvas a pedir datos que ya tienes.
- Pago por transferencia. Si el cliente quiere hablar con una persona, indícale que un ejecutivo le escribirá.`

// promptContext is everything the instructions are built from.
type promptContext struct {
	Customer  *models.Customer
	Detected  store.FiscalFields
	HasFile   bool
	Files     []string
	Knowledge string
	Rules     []string
}

func buildPrompt(p promptContext) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if len(p.Rules) > 0 {
		b.WriteString("\n\nReglas aprendidas:\n")
		for _, r := range p.Rules {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(r))
		}
	}

	b.WriteString("\n\nCliente:\n")
	stored := store.Fiscal(p.Customer)
	writeField(&b, "Nombre", stored.Name)
	writeField(&b, "RUT", stored.TaxID)
	writeField(&b, "Dirección", stored.Address)
	writeField(&b, "Correo", stored.Email)

	if p.Detected != (store.FiscalFields{}) {
		b.WriteString("\nDatos detectados en la conversación:\n")
		writeField(&b, "RUT", p.Detected.TaxID)
		writeField(&b, "Dirección", p.Detected.Address)
		writeField(&b, "Correo", p.Detected.Email)
	}

	if p.HasFile {
		b.WriteString("\nArchivo: el cliente YA envió un archivo PDF válido")
		if len(p.Files) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(p.Files, ", "))
		}
		b.WriteString(".\n")
	} else {
		b.WriteString("\nArchivo: el cliente NO ha enviado archivo. Sin PDF solo se registra con servicio de diseño.\n")
	}

	if p.Knowledge != "" {
		b.WriteString("\nInformación del negocio:\n")
		b.WriteString(p.Knowledge)
		b.WriteString("\n")
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if store.IsPlaceholder(value) {
		value = "(sin dato)"
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
