package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pbimprenta/printdesk/internal/llm"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/order"
	"github.com/pbimprenta/printdesk/internal/quote"
	"github.com/pbimprenta/printdesk/internal/store"
)

// Tool names offered to the model.
const (
	ToolCalculateQuote = "calculate_quote"
	ToolRegisterOrder  = "register_order"
)

// Result is what a tool call returns to the model. Failures are results
// too: the model relays them to the customer.
type Result struct {
	ForLLM  string
	IsError bool
}

func errorResult(format string, args ...interface{}) Result {
	return Result{ForLLM: fmt.Sprintf(format, args...), IsError: true}
}

// toolDefinitions lists the callable tools.
func toolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		llm.Function(ToolCalculateQuote,
			"Calcula el precio exacto de un producto impreso. Úsala siempre antes de dar un precio.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product":     map[string]interface{}{"type": "string", "description": "tarjetas, flyers o pendones"},
					"quantity":    map[string]interface{}{"type": "integer", "description": "Cantidad de unidades"},
					"sides":       map[string]interface{}{"type": "integer", "description": "1 (tiro) o 2 (tiro y retiro)"},
					"finish":      map[string]interface{}{"type": "string", "description": "Terminación, p. ej. polilaminado o sin terminación"},
					"design_tier": map[string]interface{}{"type": "string", "description": "Servicio de diseño: ninguno, basico, medio o premium"},
					"size":        map[string]interface{}{"type": "string", "description": "Tamaño, p. ej. carta, media carta, 90x200"},
				},
				"required": []string{"product", "quantity"},
			}),
		llm.Function(ToolRegisterOrder,
			"Registra un pedido confirmado por el cliente. Requiere archivo PDF recibido o servicio de diseño pagado.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"description": map[string]interface{}{"type": "string", "description": "Detalle del pedido; indica el servicio de diseño si corresponde"},
					"total":       map[string]interface{}{"type": "number", "description": "Total con IVA según calculate_quote"},
					"quantity":    map[string]interface{}{"type": "integer"},
					"material":    map[string]interface{}{"type": "string"},
					"dimensions":  map[string]interface{}{"type": "string"},
					"sides":       map[string]interface{}{"type": "integer"},
					"name":        map[string]interface{}{"type": "string", "description": "Nombre o razón social"},
					"rut":         map[string]interface{}{"type": "string"},
					"address":     map[string]interface{}{"type": "string"},
					"email":       map[string]interface{}{"type": "string"},
				},
				"required": []string{"description", "total"},
			}),
	}
}

// turnTools executes tool calls for one turn. It owns the sanitizing of
// model-proposed arguments: identity, file presence and detected fiscal
// data come from the orchestrator, never from the model.
type turnTools struct {
	registrar *order.Registrar
	customer  *models.Customer
	hasFile   bool
	detected  store.FiscalFields

	receipt *order.Receipt
	quoted  bool
}

func (t *turnTools) execute(ctx context.Context, call llm.ToolCall) Result {
	switch call.Name {
	case ToolCalculateQuote:
		return t.calculateQuote(call.Arguments)
	case ToolRegisterOrder:
		return t.registerOrder(ctx, call.Arguments)
	default:
		return errorResult("❌ Herramienta desconocida: %s", call.Name)
	}
}

func (t *turnTools) calculateQuote(args map[string]interface{}) Result {
	req := quote.Request{
		Product:    argString(args, "product"),
		Quantity:   argInt(args, "quantity"),
		Sides:      argInt(args, "sides"),
		Finish:     argString(args, "finish"),
		DesignTier: argString(args, "design_tier"),
		Size:       argString(args, "size"),
	}
	q, err := quote.Calculate(req)
	if err != nil {
		if errors.Is(err, quote.ErrNoPrice) {
			return errorResult("❌ Sin precio automático para %s x%d. No inventes un precio: ofrece una cotización manual con el equipo.", req.Product, req.Quantity)
		}
		return errorResult("❌ No se pudo cotizar: %v", err)
	}
	t.quoted = true
	return Result{ForLLM: q.String()}
}

func (t *turnTools) registerOrder(ctx context.Context, args map[string]interface{}) Result {
	if t.receipt != nil {
		return errorResult("❌ Ya se registró el pedido #%s en este mensaje. No registres otro.", t.receipt.Order.Code)
	}
	if t.registrar == nil {
		return errorResult("❌ El registro de pedidos no está disponible.")
	}

	proposed := store.FiscalFields{
		Name:    argString(args, "name"),
		TaxID:   argString(args, "rut"),
		Address: argString(args, "address"),
		Email:   argString(args, "email"),
	}
	if rut, ok := NormalizeRUT(proposed.TaxID); ok {
		proposed.TaxID = rut
	}
	req := order.Request{
		CustomerID:  t.customer.ID,
		Description: argString(args, "description"),
		Total:       argFloat(args, "total"),
		HasFile:     t.hasFile,
		Quantity:    argInt(args, "quantity"),
		Material:    argString(args, "material"),
		Dimensions:  argString(args, "dimensions"),
		Sides:       argInt(args, "sides"),
		Fiscal:      proposed.Merge(t.detected),
	}

	receipt, err := t.registrar.Register(ctx, req)
	switch {
	case errors.Is(err, order.ErrMissingFile):
		return errorResult("❌ ERROR: No se puede registrar el pedido sin archivo PDF. Pide al cliente que envíe su diseño en PDF o que contrate el servicio de diseño.")
	case errors.Is(err, order.ErrInvalid):
		return errorResult("❌ ERROR: Datos del pedido incompletos o inválidos (%v).", err)
	case err != nil:
		return errorResult("❌ ERROR de base de datos al registrar el pedido. Indica al cliente que un ejecutivo lo confirmará.")
	}
	t.receipt = receipt
	return Result{ForLLM: receipt.Message()}
}

func argString(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func argFloat(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		s := strings.NewReplacer("$", "", ".", "", ",", "", " ", "").Replace(v)
		f, _ := strconv.ParseFloat(s, 64)
		return f
	default:
		return 0
	}
}

func argInt(args map[string]interface{}, key string) int {
	return int(math.Round(argFloat(args, key)))
}
