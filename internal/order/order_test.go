package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/db"
	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/staff"
	"github.com/pbimprenta/printdesk/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func openOrderTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gormDB
}

type fixture struct {
	store    *store.Store
	blob     *blob.Store
	staff    *staff.Recorder
	reg      *Registrar
	customer *models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := func() time.Time { return testNow }
	st, err := store.New(store.Opts{DB: openOrderTestDB(t), Now: now})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	bs, err := blob.New(blob.Opts{RootURL: "mem://localhost/order-" + name})
	if err != nil {
		t.Fatalf("blob.New: %v", err)
	}
	rec := &staff.Recorder{}
	reg, err := NewRegistrar(RegistrarOpts{Store: st, Blob: bs, Staff: rec, FileWindow: 2 * time.Hour, Now: now})
	if err != nil {
		t.Fatalf("NewRegistrar: %v", err)
	}
	c, err := st.UpsertCustomer(context.Background(), "56911112222", "Ana Pérez")
	if err != nil {
		t.Fatalf("UpsertCustomer: %v", err)
	}
	return &fixture{store: st, blob: bs, staff: rec, reg: reg, customer: c}
}

func (f *fixture) upload(t *testing.T, name string, at time.Time) models.PendingFile {
	t.Helper()
	rel := "56911112222/general/" + name
	u, err := f.blob.Put(context.Background(), rel, []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	pf := models.PendingFile{CustomerID: f.customer.ID, Path: rel, URL: u, FileName: name, MimeType: "application/pdf", CreatedAt: at}
	if err := f.store.CreatePendingFile(context.Background(), &pf); err != nil {
		t.Fatalf("CreatePendingFile: %v", err)
	}
	return pf
}

func countOrders(t *testing.T, st *store.Store) int {
	t.Helper()
	orders, err := st.ListOrders(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	return len(orders)
}

// --- Precondition ---

func TestHasDesignService(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"1000 Tarjetas (Cliente dice que tiene diseño)", false},
		{"500 flyers, el cliente trae su diseño", false},
		{"1000 tarjetas + servicio de diseño", true},
		{"Pendón 90x200 con Diseño Básico", true},
		{"flyers diseno premium", true},
		{"logo design service", true},
	}
	for _, tt := range tests {
		if got := HasDesignService(tt.desc); got != tt.want {
			t.Errorf("HasDesignService(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestRegister_RejectsWithoutFileOrDesign(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register(context.Background(), Request{
		CustomerID:  f.customer.ID,
		Description: "1000 Tarjetas (Cliente dice que tiene diseño)",
		Total:       50000,
		Fiscal:      store.FiscalFields{TaxID: "1-9", Address: "X", Email: "x@x.com"},
	})
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("err = %v, want ErrMissingFile", err)
	}
	if n := countOrders(t, f.store); n != 0 {
		t.Errorf("orders = %d, want 0", n)
	}
	c, _ := f.store.GetCustomer(context.Background(), f.customer.ID)
	if c.TaxID != "" {
		t.Error("rejected registration must not write fiscal data")
	}
}

func TestRegister_DesignServiceWithoutFile(t *testing.T) {
	f := newFixture(t)
	rec, err := f.reg.Register(context.Background(), Request{
		CustomerID:  f.customer.ID,
		Description: "1000 tarjetas con servicio de diseño básico",
		Total:       41000,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(rec.Order.Code) != 8 || rec.Order.Status != models.OrderNew {
		t.Errorf("order = %+v", rec.Order)
	}
	if !strings.Contains(rec.Message(), "#"+rec.Order.Code) || !strings.Contains(rec.Message(), "$41,000") {
		t.Errorf("Message() = %q", rec.Message())
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  Request
	}{
		{"no customer", Request{Description: "flyers", HasFile: true}},
		{"no description", Request{CustomerID: f.customer.ID, HasFile: true}},
		{"negative total", Request{CustomerID: f.customer.ID, Description: "flyers", Total: -1, HasFile: true}},
		{"three sides", Request{CustomerID: f.customer.ID, Description: "flyers", Sides: 3, HasFile: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.Register(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
	if n := countOrders(t, f.store); n != 0 {
		t.Errorf("orders = %d, want 0", n)
	}
}

func TestRegister_UnknownCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Register(context.Background(), Request{CustomerID: 999, Description: "flyers", HasFile: true})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- Claiming ---

func TestRegister_ClaimsAndRelocatesRecentFiles(t *testing.T) {
	f := newFixture(t)
	recent := f.upload(t, "arte.pdf", testNow.Add(-10*time.Minute))
	stale := f.upload(t, "viejo.pdf", testNow.Add(-3*time.Hour))

	rec, err := f.reg.Register(context.Background(), Request{
		CustomerID:  f.customer.ID,
		Description: "1000 flyers carta",
		Total:       99000,
		HasFile:     true,
		Quantity:    1000,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	wantRel := "56911112222/orders/" + rec.Order.Code + "/arte.pdf"
	if len(rec.Files) != 1 || rec.Files[0] != f.blob.URL(wantRel) {
		t.Fatalf("files = %v, want [%s]", rec.Files, f.blob.URL(wantRel))
	}

	ctx := context.Background()
	if ok, _ := f.blob.Exists(ctx, wantRel); !ok {
		t.Error("file was not moved under the order folder")
	}
	if ok, _ := f.blob.Exists(ctx, recent.Path); ok {
		t.Error("original file should be gone after the move")
	}

	files, _ := f.store.ListFiles(ctx, f.customer.ID)
	for _, pf := range files {
		switch pf.ID {
		case recent.ID:
			if pf.OrderID == nil || *pf.OrderID != rec.Order.ID || pf.Path != wantRel {
				t.Errorf("recent file = %+v", pf)
			}
		case stale.ID:
			if pf.Claimed() {
				t.Error("file outside the window must stay unclaimed")
			}
		}
	}

	stored, _ := f.store.GetOrder(ctx, rec.Order.ID)
	if got := stored.FileList(); len(got) != 1 {
		t.Errorf("order files = %v", got)
	}
	c, _ := f.store.GetCustomer(ctx, f.customer.ID)
	if c.Status != models.CustomerOrdered {
		t.Errorf("customer status = %q", c.Status)
	}
}

func TestRegister_MoveFailureStillClaims(t *testing.T) {
	f := newFixture(t)
	pf := models.PendingFile{CustomerID: f.customer.ID, Path: "56911112222/general/missing.pdf", URL: "mem://elsewhere/missing.pdf", CreatedAt: testNow.Add(-time.Minute)}
	if err := f.store.CreatePendingFile(context.Background(), &pf); err != nil {
		t.Fatalf("CreatePendingFile: %v", err)
	}

	rec, err := f.reg.Register(context.Background(), Request{CustomerID: f.customer.ID, Description: "pendón 90x200", HasFile: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(rec.Files) != 1 || rec.Files[0] != pf.URL {
		t.Errorf("files = %v, want original url", rec.Files)
	}
	files, _ := f.store.ListFiles(context.Background(), f.customer.ID)
	if !files[0].Claimed() || files[0].Path != pf.Path {
		t.Errorf("file = %+v, want claimed in place", files[0])
	}
}

func TestRegister_SecondOrderDoesNotReclaim(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "arte.pdf", testNow.Add(-time.Minute))
	ctx := context.Background()

	first, err := f.reg.Register(ctx, Request{CustomerID: f.customer.ID, Description: "flyers", HasFile: true})
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second, err := f.reg.Register(ctx, Request{CustomerID: f.customer.ID, Description: "tarjetas", HasFile: true})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if len(first.Files) != 1 || len(second.Files) != 0 {
		t.Errorf("first=%v second=%v", first.Files, second.Files)
	}
	if first.Order.Code == second.Order.Code {
		t.Error("order codes must differ")
	}
}

// --- Fiscal data ---

func TestRegister_FiscalNonDestructive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.UpdateFiscal(ctx, f.customer.ID, store.FiscalFields{TaxID: "12.345.678-5", Email: "ana@correo.cl"}); err != nil {
		t.Fatalf("UpdateFiscal: %v", err)
	}

	rec, err := f.reg.Register(ctx, Request{
		CustomerID:  f.customer.ID,
		Description: "flyers",
		HasFile:     true,
		Fiscal:      store.FiscalFields{TaxID: "", Email: "N/A", Address: "Av. Siempre Viva 742"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c, _ := f.store.GetCustomer(ctx, f.customer.ID)
	if c.TaxID != "12.345.678-5" || c.Email != "ana@correo.cl" {
		t.Errorf("stored fiscal data overwritten: %+v", c)
	}
	if c.Address != "Av. Siempre Viva 742" {
		t.Errorf("address = %q", c.Address)
	}
	if len(rec.FiscalUpdated) != 1 || rec.FiscalUpdated[0] != "address" {
		t.Errorf("FiscalUpdated = %v", rec.FiscalUpdated)
	}
}

// --- Staff alert ---

func TestRegister_AlertsStaff(t *testing.T) {
	f := newFixture(t)
	rec, err := f.reg.Register(context.Background(), Request{CustomerID: f.customer.ID, Description: "flyers", Total: 49000, HasFile: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	alerts := f.staff.Alerts()
	if len(alerts) != 1 || alerts[0].Title != "Nuevo pedido #"+rec.Order.Code {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestRegister_StaffFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.staff.Err = errors.New("slack down")
	if _, err := f.reg.Register(context.Background(), Request{CustomerID: f.customer.ID, Description: "flyers", HasFile: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

// --- Notifications ---

func newNotifier(t *testing.T, f *fixture) (*Notifier, *gateway.MockSender) {
	t.Helper()
	sender := gateway.NewMockSender()
	n, err := NewNotifier(NotifierOpts{Store: f.store, Sender: sender})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	return n, sender
}

func TestNotifyTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.reg.Register(ctx, Request{CustomerID: f.customer.ID, Description: "flyers", Total: 49000, HasFile: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.store.UpdatePayment(ctx, rec.Order.ID, 20000); err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}
	n, sender := newNotifier(t, f)

	st, err := n.NotifyTransition(ctx, rec.Order.ID, models.OrderReady)
	if err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}
	if !st.OK() {
		t.Errorf("status = %+v", st)
	}
	sent := sender.SentTo("56911112222")
	if len(sent) != 1 {
		t.Fatalf("sent = %d", len(sent))
	}
	for _, want := range []string{"Hola Ana", "#" + rec.Order.Code, "listo para retiro", "$29,000"} {
		if !strings.Contains(sent[0].Text, want) {
			t.Errorf("text %q missing %q", sent[0].Text, want)
		}
	}
	if n, _ := f.store.CountMessages(ctx, f.customer.ID, models.TagStatusUpdate); n != 1 {
		t.Errorf("status_update messages = %d", n)
	}
}

func TestNotifyTransition_EveryTemplatedStatus(t *testing.T) {
	c := &models.Customer{Name: "Ana"}
	o := &models.Order{Code: "ABCD1234", Total: 10000}
	for _, status := range []string{models.OrderDesign, models.OrderProduction, models.OrderReady, models.OrderDelivered} {
		text, err := TransitionText(status, c, o)
		if err != nil || !strings.Contains(text, "#ABCD1234") {
			t.Errorf("%s: text=%q err=%v", status, text, err)
		}
	}
	if _, err := TransitionText(models.OrderNew, c, o); !errors.Is(err, ErrNoTemplate) {
		t.Errorf("NUEVO err = %v, want ErrNoTemplate", err)
	}
}

func TestNotifyPayment_RecordsFailedDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, _ := f.reg.Register(ctx, Request{CustomerID: f.customer.ID, Description: "flyers", Total: 49000, HasFile: true})
	_ = f.store.UpdatePayment(ctx, rec.Order.ID, 49000)

	n, sender := newNotifier(t, f)
	sender.Status = gateway.DeliveryStatus{State: gateway.StateError, StatusCode: 400}

	st, err := n.NotifyPayment(ctx, rec.Order.ID)
	if err != nil {
		t.Fatalf("NotifyPayment: %v", err)
	}
	if st.OK() {
		t.Error("expected failed delivery")
	}
	msgs, _ := f.store.RecentMessages(ctx, f.customer.ID, 1)
	if len(msgs) != 1 || msgs[0].Tag != models.TagPaymentUpdate || !strings.Contains(msgs[0].Delivery, `"state":"error"`) {
		t.Errorf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "Saldo pendiente: $0") {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestSendManual(t *testing.T) {
	f := newFixture(t)
	n, sender := newNotifier(t, f)
	if _, err := n.SendManual(context.Background(), f.customer.ID, "  "); err == nil {
		t.Error("expected error for blank text")
	}
	if _, err := n.SendManual(context.Background(), f.customer.ID, "Tu prueba está lista"); err != nil {
		t.Fatalf("SendManual: %v", err)
	}
	if len(sender.Sent()) != 1 {
		t.Errorf("sent = %d", len(sender.Sent()))
	}
}
