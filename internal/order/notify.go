package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/quote"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/rs/zerolog"
)

// ErrNoTemplate is returned for statuses that do not notify the customer.
var ErrNoTemplate = errors.New("order: no notification for status")

// transitionTemplates are keyed by target status. %[1]s is the greeting
// name, %[2]s the order code and %[3]s the outstanding balance.
var transitionTemplates = map[string]string{
	models.OrderDesign:     "🎨 Hola%[1]s, tu pedido #%[2]s pasó a etapa de diseño. Te enviaremos la propuesta para tu aprobación.",
	models.OrderProduction: "🖨️ Hola%[1]s, tu pedido #%[2]s ya está en producción. Te avisaremos cuando esté listo.",
	models.OrderReady:      "✅ Hola%[1]s, tu pedido #%[2]s está listo para retiro. Saldo pendiente: %[3]s.",
	models.OrderDelivered:  "📦 Hola%[1]s, tu pedido #%[2]s fue entregado. ¡Gracias por preferir PB Imprenta!",
}

// Notifier tells customers about staff-driven order changes. Every
// notification is sent and then persisted as an agent message carrying its
// delivery status.
type Notifier struct {
	store  *store.Store
	sender gateway.Sender
	log    zerolog.Logger
}

// NotifierOpts holds parameters for creating a Notifier.
type NotifierOpts struct {
	Store  *store.Store
	Sender gateway.Sender
	Logger zerolog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(opts NotifierOpts) (*Notifier, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("order: store is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("order: sender is required")
	}
	return &Notifier{store: opts.Store, sender: opts.Sender, log: opts.Logger}, nil
}

// TransitionText renders the customer message for an order entering status.
func TransitionText(status string, c *models.Customer, o *models.Order) (string, error) {
	tmpl, ok := transitionTemplates[status]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNoTemplate, status)
	}
	return fmt.Sprintf(tmpl, greetingName(c), o.Code, quote.Money(int64(o.Balance()))), nil
}

// NotifyTransition messages the customer that the order entered status.
func (n *Notifier) NotifyTransition(ctx context.Context, orderID uint, status string) (gateway.DeliveryStatus, error) {
	o, c, err := n.load(ctx, orderID)
	if err != nil {
		return gateway.DeliveryStatus{}, err
	}
	text, err := TransitionText(status, c, o)
	if err != nil {
		return gateway.DeliveryStatus{}, err
	}
	return n.deliver(ctx, c, text, models.TagStatusUpdate)
}

// NotifyPayment confirms a recorded deposit and the remaining balance.
func (n *Notifier) NotifyPayment(ctx context.Context, orderID uint) (gateway.DeliveryStatus, error) {
	o, c, err := n.load(ctx, orderID)
	if err != nil {
		return gateway.DeliveryStatus{}, err
	}
	text := fmt.Sprintf("💳 Hola%s, registramos un abono de %s para tu pedido #%s. Saldo pendiente: %s.",
		greetingName(c), quote.Money(int64(o.Deposit)), o.Code, quote.Money(int64(o.Balance())))
	return n.deliver(ctx, c, text, models.TagPaymentUpdate)
}

// SendManual sends a staff-written message outside the turn flow.
func (n *Notifier) SendManual(ctx context.Context, customerID uint, text string) (gateway.DeliveryStatus, error) {
	if strings.TrimSpace(text) == "" {
		return gateway.DeliveryStatus{}, fmt.Errorf("order: message text is required")
	}
	c, err := n.store.GetCustomer(ctx, customerID)
	if err != nil {
		return gateway.DeliveryStatus{}, fmt.Errorf("order: load customer %d: %w", customerID, err)
	}
	return n.deliver(ctx, c, text, models.TagManual)
}

func (n *Notifier) load(ctx context.Context, orderID uint) (*models.Order, *models.Customer, error) {
	o, err := n.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("order: load order %d: %w", orderID, err)
	}
	c, err := n.store.GetCustomer(ctx, o.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("order: load customer %d: %w", o.CustomerID, err)
	}
	return o, c, nil
}

func (n *Notifier) deliver(ctx context.Context, c *models.Customer, text, tag string) (gateway.DeliveryStatus, error) {
	status := n.sender.SendText(ctx, c.Phone, text)
	msg := &models.Message{
		CustomerID: c.ID,
		Role:       models.RoleAgent,
		Content:    text,
		Tag:        tag,
		Delivery:   status.JSON(),
	}
	if err := n.store.AppendMessage(ctx, msg); err != nil {
		return status, fmt.Errorf("order: persist %s message: %w", tag, err)
	}
	if !status.OK() {
		n.log.Warn().Str("address", c.Phone).Str("tag", tag).Str("state", status.State).Msg("order: notification not delivered")
	}
	return status, nil
}

func greetingName(c *models.Customer) string {
	if c == nil {
		return ""
	}
	parts := strings.Fields(c.Name)
	if len(parts) == 0 {
		return ""
	}
	return " " + parts[0]
}
