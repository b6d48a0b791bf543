package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pbimprenta/printdesk/internal/audit"
	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/db"
	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/inbound"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/order"
	"github.com/pbimprenta/printdesk/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKey = "s3cret"

var testNow = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func openServerTestDB(t *testing.T) *gorm.DB {
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

type fakeWebhook struct {
	bodies [][]byte
	res    inbound.Result
	err    error
}

func (f *fakeWebhook) HandleWebhook(_ context.Context, body []byte) (inbound.Result, error) {
	f.bodies = append(f.bodies, body)
	return f.res, f.err
}

type fakeAuditor struct {
	rep   audit.Report
	err   error
	calls int
}

func (f *fakeAuditor) Run(context.Context) (audit.Report, error) {
	f.calls++
	return f.rep, f.err
}

type fixture struct {
	store   *store.Store
	blob    *blob.Store
	sender  *gateway.MockSender
	webhook *fakeWebhook
	server  *Server
}

func newFixture(t *testing.T, auditor AuditRunner) *fixture {
	t.Helper()
	st, err := store.New(store.Opts{DB: openServerTestDB(t), Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	name := strings.NewReplacer("/", "-", " ", "_").Replace(t.Name())
	bs, err := blob.New(blob.Opts{RootURL: "mem://localhost/server-" + name})
	if err != nil {
		t.Fatalf("blob.New: %v", err)
	}
	sender := gateway.NewMockSender()
	notifier, err := order.NewNotifier(order.NotifierOpts{Store: st, Sender: sender})
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	wh := &fakeWebhook{res: inbound.Result{Status: inbound.StatusProcessed, User: "56911112222"}}
	opts := Opts{
		Store:              st,
		Blob:               bs,
		Webhook:            wh,
		Notifier:           notifier,
		AdminKey:           testKey,
		CORSAllowedOrigins: []string{"*"},
		MaxUploadBytes:     1 << 10,
		Now:                func() time.Time { return testNow },
	}
	if auditor != nil {
		opts.Auditor = auditor
	}
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{store: st, blob: bs, sender: sender, webhook: wh, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AdminKeyHeader, testKey)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) customer(t *testing.T, phone string) *models.Customer {
	t.Helper()
	c, err := f.store.UpsertCustomer(context.Background(), phone, "Ana Pérez")
	if err != nil {
		t.Fatalf("UpsertCustomer: %v", err)
	}
	return c
}

func (f *fixture) order(t *testing.T, c *models.Customer) *models.Order {
	t.Helper()
	o := &models.Order{Code: "AB12CD", CustomerID: c.ID, Description: "100 tarjetas", Total: 25000}
	if err := f.store.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, w, &body)
	return body.Error.Code
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Opts{}); err == nil || !strings.Contains(err.Error(), "store is required") {
		t.Errorf("New(empty) error = %v, want store is required", err)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req_fixed")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req_fixed" {
		t.Errorf("request id = %q, want req_fixed", got)
	}
}

func TestWebhook_Processed(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/webhook", "/webhook/whatsapp"} {
		w := f.do(t, http.MethodPost, path, `{"event":"messages.upsert"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		var res inbound.Result
		decode(t, w, &res)
		if res.Status != inbound.StatusProcessed {
			t.Errorf("%s result = %+v", path, res)
		}
	}
	if len(f.webhook.bodies) != 2 || string(f.webhook.bodies[0]) != `{"event":"messages.upsert"}` {
		t.Errorf("bodies = %q", f.webhook.bodies)
	}
}

func TestWebhook_ErrorStillOK(t *testing.T) {
	f := newFixture(t, nil)
	f.webhook.err = errors.New("boom")
	w := f.do(t, http.MethodPost, "/webhook", `not json`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "error_handled" {
		t.Errorf("body = %v", body)
	}
}

func TestWebhook_OversizedBodyDropped(t *testing.T) {
	f := newFixture(t, nil)
	big := `{"event":"messages.upsert","pad":"` + strings.Repeat("A", 4<<10) + `"}`
	w := f.do(t, http.MethodPost, "/webhook", big)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "error_handled" {
		t.Errorf("body = %v", body)
	}
	if len(f.webhook.bodies) != 0 {
		t.Errorf("oversized body reached the handler: %d calls", len(f.webhook.bodies))
	}
}

func TestWebhook_NoAdminKeyNeeded(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAdminKey(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/learnings", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			w := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				if code := errorCode(t, w); code != "UNAUTHORIZED" {
					t.Errorf("code = %q", code)
				}
			}
		})
	}
}

func TestLearnings_ListApproveReject(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	l1 := &models.Learning{CustomerPhone: "569", ProposedRule: "No inventar precios"}
	l2 := &models.Learning{CustomerPhone: "569", ProposedRule: "Pedir PDF"}
	for _, l := range []*models.Learning{l1, l2} {
		if err := f.store.CreateLearning(ctx, l); err != nil {
			t.Fatalf("CreateLearning: %v", err)
		}
	}

	w := f.do(t, http.MethodPost, "/learnings/"+itoa(l1.ID)+"/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/learnings/"+itoa(l2.ID)+"/reject", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reject status = %d", w.Code)
	}

	rules, err := f.store.ApprovedRules(ctx)
	if err != nil {
		t.Fatalf("ApprovedRules: %v", err)
	}
	if len(rules) != 1 || rules[0] != "No inventar precios" {
		t.Errorf("rules = %v", rules)
	}

	w = f.do(t, http.MethodGet, "/learnings?status=rejected", nil)
	var body struct {
		Learnings []learningView `json:"learnings"`
	}
	decode(t, w, &body)
	if len(body.Learnings) != 1 || body.Learnings[0].ProposedRule != "Pedir PDF" {
		t.Errorf("rejected = %+v", body.Learnings)
	}
}

func TestLearnings_Errors(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(t, http.MethodPost, "/learnings/99/approve", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/learnings/abc/approve", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/learnings?status=maybe", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad filter status = %d, want 400", w.Code)
	}
}

func TestRunAudit(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(t, http.MethodPost, "/learnings/run_audit", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no auditor status = %d, want 503", w.Code)
	}

	fa := &fakeAuditor{rep: audit.Report{Conversations: 3, Analyzed: 2, Proposed: 1}}
	f = newFixture(t, fa)
	w := f.do(t, http.MethodPost, "/learnings/run_audit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Report audit.Report `json:"report"`
	}
	decode(t, w, &body)
	if fa.calls != 1 || body.Report.Proposed != 1 || body.Report.Analyzed != 2 {
		t.Errorf("calls = %d, report = %+v", fa.calls, body.Report)
	}

	fa.err = errors.New("llm down")
	if w := f.do(t, http.MethodPost, "/learnings/run_audit", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("failing audit status = %d, want 500", w.Code)
	}
}

func uploadRequest(t *testing.T, phone, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if phone != "" {
		if err := mw.WriteField("phone", phone); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/storage/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(AdminKeyHeader, testKey)
	return req
}

func TestStorage_UploadTreeDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, uploadRequest(t, "56911112222", "diseno final.pdf", pdf))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}
	var up struct {
		Path     string `json:"path"`
		MimeType string `json:"mime_type"`
	}
	decode(t, w, &up)
	wantPath := "56911112222/general/20260302T150405_diseno_final.pdf"
	if up.Path != wantPath {
		t.Errorf("path = %q, want %q", up.Path, wantPath)
	}
	if up.MimeType != "application/pdf" {
		t.Errorf("mime = %q", up.MimeType)
	}

	c, err := f.store.GetCustomerByPhone(ctx, "56911112222")
	if err != nil {
		t.Fatalf("customer not created: %v", err)
	}
	files, err := f.store.UnclaimedFiles(ctx, c.ID, testNow.Add(-time.Hour))
	if err != nil || len(files) != 1 {
		t.Fatalf("unclaimed = %v, %v", files, err)
	}

	w = f.do(t, http.MethodGet, "/storage/tree?prefix=56911112222", nil)
	var tree struct {
		Entries []blob.Entry `json:"entries"`
	}
	decode(t, w, &tree)
	found := false
	for _, e := range tree.Entries {
		if e.Path == wantPath {
			found = true
		}
	}
	if !found {
		t.Errorf("tree = %+v, want %s", tree.Entries, wantPath)
	}

	if w := f.do(t, http.MethodPost, "/storage/delete", gin.H{"path": wantPath}); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", w.Code, w.Body.String())
	}
	ok, err := f.blob.Exists(ctx, wantPath)
	if err != nil || ok {
		t.Errorf("exists after delete = %v, %v", ok, err)
	}
}

func TestStorage_UploadValidation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name  string
		phone string
		file  string
		data  []byte
		want  int
	}{
		{"no phone", "", "a.pdf", []byte("%PDF-1.4"), http.StatusBadRequest},
		{"no file", "569", "", nil, http.StatusBadRequest},
		{"too large", "569", "big.pdf", bytes.Repeat([]byte("x"), 2<<10), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(w, uploadRequest(t, tt.phone, tt.file, tt.data))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestStorage_DeleteRootRefused(t *testing.T) {
	f := newFixture(t, nil)
	for _, p := range []string{"/", " ", "."} {
		if w := f.do(t, http.MethodPost, "/storage/delete", gin.H{"path": p}); w.Code != http.StatusBadRequest {
			t.Errorf("delete %q status = %d, want 400", p, w.Code)
		}
	}
}

func TestOrders_UpdateStatusNotifies(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "56911112222")
	o := f.order(t, c)

	w := f.do(t, http.MethodPost, "/orders/update_status", gin.H{"order_id": o.ID, "status": models.OrderReady, "notify": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Order        orderView               `json:"order"`
		Notification *gateway.DeliveryStatus `json:"notification"`
	}
	decode(t, w, &body)
	if body.Order.Status != models.OrderReady {
		t.Errorf("order status = %q", body.Order.Status)
	}
	if body.Notification == nil || !body.Notification.OK() {
		t.Errorf("notification = %+v", body.Notification)
	}
	sent := f.sender.SentTo("56911112222")
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "#AB12CD") {
		t.Errorf("sent = %+v", sent)
	}
}

func TestOrders_UpdateStatusWithoutTemplate(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "56911112222")
	o := f.order(t, c)

	w := f.do(t, http.MethodPost, "/orders/update_status", gin.H{"order_id": o.ID, "status": models.OrderNew, "notify": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if n := len(f.sender.Sent()); n != 0 {
		t.Errorf("sent %d messages for NUEVO, want 0", n)
	}
}

func TestOrders_UpdateStatusErrors(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "569")
	o := f.order(t, c)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid status", gin.H{"order_id": o.ID, "status": "PERDIDO"}, http.StatusBadRequest},
		{"missing order", gin.H{"status": models.OrderReady}, http.StatusBadRequest},
		{"unknown order", gin.H{"order_id": 999, "status": models.OrderReady}, http.StatusNotFound},
		{"bad json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, http.MethodPost, "/orders/update_status", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestOrders_UpdatePayment(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "56911112222")
	o := f.order(t, c)

	w := f.do(t, http.MethodPost, "/orders/update_payment", gin.H{"order_id": o.ID, "deposit": 10000, "notify": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Order orderView `json:"order"`
	}
	decode(t, w, &body)
	if body.Order.Deposit != 10000 || body.Order.Balance != 15000 {
		t.Errorf("order = %+v", body.Order)
	}
	sent := f.sender.SentTo("56911112222")
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "abono") {
		t.Errorf("sent = %+v", sent)
	}

	if w := f.do(t, http.MethodPost, "/orders/update_payment", gin.H{"order_id": o.ID, "deposit": -1}); w.Code != http.StatusBadRequest {
		t.Errorf("negative deposit status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/orders/update_payment", gin.H{"order_id": o.ID}); w.Code != http.StatusBadRequest {
		t.Errorf("missing deposit status = %d, want 400", w.Code)
	}
}

func TestOrders_List(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "569")
	f.order(t, c)

	w := f.do(t, http.MethodGet, "/orders?customer_id="+itoa(c.ID), nil)
	var body struct {
		Orders []orderView `json:"orders"`
	}
	decode(t, w, &body)
	if len(body.Orders) != 1 || body.Orders[0].Code != "AB12CD" {
		t.Errorf("orders = %+v", body.Orders)
	}
	if body.Orders[0].Files == nil {
		t.Error("files should encode as an empty list")
	}
}

func TestChat_SendManual(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "56911112222")

	w := f.do(t, http.MethodPost, "/chat/send_manual", gin.H{"customer_id": c.ID, "text": "Hola, te llamamos en 5 min"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	n, err := f.store.CountMessages(context.Background(), c.ID, models.TagManual)
	if err != nil || n != 1 {
		t.Errorf("manual messages = %d, %v", n, err)
	}

	f.sender.Status = gateway.DeliveryStatus{State: gateway.StateError, StatusCode: 500}
	if w := f.do(t, http.MethodPost, "/chat/send_manual", gin.H{"customer_id": c.ID, "text": "hola"}); w.Code != http.StatusBadGateway {
		t.Errorf("failed delivery status = %d, want 502", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/chat/send_manual", gin.H{"customer_id": 999, "text": "hola"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown customer status = %d, want 404", w.Code)
	}
}

func TestLeads_ToggleAIAndList(t *testing.T) {
	f := newFixture(t, nil)
	c := f.customer(t, "56911112222")

	w := f.do(t, http.MethodPost, "/leads/toggle_ai", gin.H{"customer_id": c.ID, "enabled": false})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got, err := f.store.GetCustomer(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if got.AIEnabled {
		t.Error("ai_enabled should be false")
	}

	if w := f.do(t, http.MethodPost, "/leads/toggle_ai", gin.H{"customer_id": c.ID}); w.Code != http.StatusBadRequest {
		t.Errorf("missing enabled status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/leads/toggle_ai", gin.H{"customer_id": 999, "enabled": true}); w.Code != http.StatusNotFound {
		t.Errorf("unknown customer status = %d, want 404", w.Code)
	}

	w = f.do(t, http.MethodGet, "/leads", nil)
	var body struct {
		Leads []leadView `json:"leads"`
	}
	decode(t, w, &body)
	if len(body.Leads) != 1 || body.Leads[0].AIEnabled || body.Leads[0].Phone != "56911112222" {
		t.Errorf("leads = %+v", body.Leads)
	}
}

func TestLeads_Messages(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.customer(t, "569")
	for _, m := range []models.Message{
		{CustomerID: c.ID, Role: models.RoleCustomer, Content: "hola"},
		{CustomerID: c.ID, Role: models.RoleAgent, Content: "¡Hola!"},
	} {
		m := m
		if err := f.store.AppendMessage(ctx, &m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	w := f.do(t, http.MethodGet, "/leads/"+itoa(c.ID)+"/messages", nil)
	var body struct {
		Messages []messageView `json:"messages"`
	}
	decode(t, w, &body)
	if len(body.Messages) != 2 || body.Messages[0].Content != "hola" {
		t.Errorf("messages = %+v", body.Messages)
	}
	if w := f.do(t, http.MethodGet, "/leads/999/messages", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown lead status = %d, want 404", w.Code)
	}
}

func TestCORSConfig(t *testing.T) {
	if cfg := corsConfig([]string{"*"}); !cfg.AllowAllOrigins {
		t.Error("* should allow all origins")
	}
	cfg := corsConfig([]string{"https://admin.example.com"})
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
