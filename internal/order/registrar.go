// Package order registers print orders and notifies customers when staff
// move an order through its statuses.
package order

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/quote"
	"github.com/pbimprenta/printdesk/internal/staff"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/rs/zerolog"
)

// ErrMissingFile rejects an order that has neither an attached print file
// nor a paid design service.
var ErrMissingFile = errors.New("order: a print-ready file or a paid design service is required")

// ErrInvalid wraps request validation failures.
var ErrInvalid = errors.New("order: invalid request")

// designService matches descriptions that explicitly buy a design service.
// A bare mention of "diseño" is not enough: "el cliente ya tiene diseño"
// must not pass.
var designService = regexp.MustCompile(`(?i)(servicio\s+de\s+dise(ñ|n)o|design\s+service|dise(ñ|n)o\s+(b[aá]sico|medio|intermedio|premium))`)

// HasDesignService reports whether description denotes a paid design service.
func HasDesignService(description string) bool {
	return designService.MatchString(description)
}

// Request is a sanitized order registration.
type Request struct {
	CustomerID  uint    `validate:"required"`
	Description string  `validate:"required,min=3,max=2000"`
	Total       float64 `validate:"gte=0"`
	HasFile     bool
	Quantity    int    `validate:"gte=0"`
	Material    string `validate:"max=128"`
	Dimensions  string `validate:"max=64"`
	Sides       int    `validate:"gte=0,lte=2"`
	Fiscal      store.FiscalFields
}

// Receipt describes a registered order.
type Receipt struct {
	Order         models.Order
	Files         []string
	FiscalUpdated []string
}

// Message is the confirmation relayed to the model.
func (r *Receipt) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Pedido registrado. Código: #%s. Total: %s.", r.Order.Code, quote.Money(int64(r.Order.Total)))
	if n := len(r.Files); n > 0 {
		fmt.Fprintf(&b, " Archivos vinculados: %d.", n)
	}
	if len(r.FiscalUpdated) > 0 {
		fmt.Fprintf(&b, " Datos actualizados: %s.", strings.Join(r.FiscalUpdated, ", "))
	}
	return b.String()
}

// Registrar creates orders and claims the customer's pending files.
type Registrar struct {
	store    *store.Store
	blob     *blob.Store
	staff    staff.Notifier
	validate *validator.Validate
	window   time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// RegistrarOpts holds parameters for creating a Registrar.
type RegistrarOpts struct {
	Store      *store.Store
	Blob       *blob.Store    // nil claims files without relocating them
	Staff      staff.Notifier // nil disables staff alerts
	FileWindow time.Duration  // how far back unclaimed files are absorbed, default 2h
	Logger     zerolog.Logger
	Now        func() time.Time
}

// NewRegistrar creates a Registrar.
func NewRegistrar(opts RegistrarOpts) (*Registrar, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("order: store is required")
	}
	r := &Registrar{
		store:    opts.Store,
		blob:     opts.Blob,
		staff:    opts.Staff,
		validate: validator.New(),
		window:   opts.FileWindow,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if r.staff == nil {
		r.staff = staff.Nop{}
	}
	if r.window <= 0 {
		r.window = 2 * time.Hour
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Window returns the file claiming window.
func (r *Registrar) Window() time.Duration {
	return r.window
}

// Register validates req and creates the order. The precondition is checked
// before any write. Fiscal updates and file claiming are best effort and
// never fail a registration once the order row exists.
func (r *Registrar) Register(ctx context.Context, req Request) (*Receipt, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !req.HasFile && !HasDesignService(req.Description) {
		return nil, ErrMissingFile
	}

	customer, err := r.store.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("order: load customer %d: %w", req.CustomerID, err)
	}

	rec := &Receipt{}
	changed, err := r.store.UpdateFiscal(ctx, customer.ID, req.Fiscal)
	if err != nil {
		r.log.Warn().Err(err).Uint("customer_id", customer.ID).Msg("order: fiscal update failed")
	}
	rec.FiscalUpdated = changed

	o := models.Order{
		Code:        newCode(),
		CustomerID:  customer.ID,
		Description: strings.TrimSpace(req.Description),
		Total:       req.Total,
		Status:      models.OrderNew,
		Quantity:    req.Quantity,
		Material:    req.Material,
		Dimensions:  req.Dimensions,
		Sides:       req.Sides,
	}
	if err := r.store.CreateOrder(ctx, &o); err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}

	rec.Files = r.claimFiles(ctx, customer, &o)
	if len(rec.Files) > 0 {
		if err := r.store.SetOrderFiles(ctx, o.ID, rec.Files); err != nil {
			r.log.Warn().Err(err).Uint("order_id", o.ID).Msg("order: linking files failed")
		} else {
			o.Files = models.EncodeFiles(rec.Files)
		}
	}
	if err := r.store.SetCustomerStatus(ctx, customer.ID, models.CustomerOrdered); err != nil {
		r.log.Warn().Err(err).Uint("customer_id", customer.ID).Msg("order: customer status update failed")
	}
	rec.Order = o

	r.log.Info().
		Str("code", o.Code).
		Uint("order_id", o.ID).
		Uint("customer_id", customer.ID).
		Int("files", len(rec.Files)).
		Msg("order: registered")

	if err := r.staff.Notify(ctx, newOrderAlert(customer, &o, len(rec.Files))); err != nil {
		r.log.Warn().Err(err).Str("code", o.Code).Msg("order: staff alert failed")
	}
	return rec, nil
}

// claimFiles links the customer's recent unclaimed files to o, relocating
// each under the order's folder. A failed move still claims the file in
// place so the linkage is never lost.
func (r *Registrar) claimFiles(ctx context.Context, c *models.Customer, o *models.Order) []string {
	files, err := r.store.UnclaimedFiles(ctx, c.ID, r.now().Add(-r.window))
	if err != nil {
		r.log.Warn().Err(err).Uint("order_id", o.ID).Msg("order: listing unclaimed files failed")
		return nil
	}

	var urls []string
	for _, f := range files {
		newPath, newURL := "", ""
		if r.blob != nil {
			dest := path.Join(blob.SafeName(c.Phone), "orders", o.Code, path.Base(f.Path))
			u, err := r.blob.Move(ctx, f.Path, dest)
			if err != nil {
				r.log.Warn().Err(err).Str("path", f.Path).Str("code", o.Code).Msg("order: file move failed, claiming in place")
			} else {
				newPath, newURL = dest, u
			}
		}
		if err := r.store.ClaimFile(ctx, f.ID, o.ID, newPath, newURL); err != nil {
			r.log.Warn().Err(err).Uint("file_id", f.ID).Msg("order: claim failed")
			continue
		}
		switch {
		case newURL != "":
			urls = append(urls, newURL)
		case f.URL != "":
			urls = append(urls, f.URL)
		default:
			urls = append(urls, f.Path)
		}
	}
	return urls
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func newOrderAlert(c *models.Customer, o *models.Order, files int) staff.Alert {
	name := c.Name
	if name == "" {
		name = "(sin nombre)"
	}
	return staff.Alert{
		Title: "Nuevo pedido #" + o.Code,
		Body:  o.Description,
		Color: "#36a64f",
		Fields: []staff.Field{
			{Name: "Cliente", Value: name, Short: true},
			{Name: "Teléfono", Value: c.Phone, Short: true},
			{Name: "Total", Value: quote.Money(int64(o.Total)), Short: true},
			{Name: "Archivos", Value: fmt.Sprintf("%d", files), Short: true},
		},
	}
}
