package server

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/order"
	"github.com/pbimprenta/printdesk/internal/store"
)

type learningView struct {
	ID            uint      `json:"id"`
	CustomerPhone string    `json:"customer_phone"`
	Description   string    `json:"description"`
	Severity      string    `json:"severity"`
	ProposedRule  string    `json:"proposed_rule"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type orderView struct {
	ID          uint      `json:"id"`
	Code        string    `json:"code"`
	CustomerID  uint      `json:"customer_id"`
	Description string    `json:"description"`
	Total       float64   `json:"total"`
	Deposit     float64   `json:"deposit"`
	Balance     float64   `json:"balance"`
	Status      string    `json:"status"`
	Files       []string  `json:"files"`
	Quantity    int       `json:"quantity"`
	Material    string    `json:"material"`
	Dimensions  string    `json:"dimensions"`
	Sides       int       `json:"sides"`
	CreatedAt   time.Time `json:"created_at"`
}

type leadView struct {
	ID              uint      `json:"id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name"`
	TaxID           string    `json:"tax_id"`
	Address         string    `json:"address"`
	Email           string    `json:"email"`
	Status          string    `json:"status"`
	AIEnabled       bool      `json:"ai_enabled"`
	LastInteraction time.Time `json:"last_interaction"`
}

type messageView struct {
	ID        uint      `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tag       string    `json:"tag,omitempty"`
	Tokens    int       `json:"tokens"`
	Delivery  string    `json:"delivery,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toLearningView(l models.Learning) learningView {
	return learningView{
		ID:            l.ID,
		CustomerPhone: l.CustomerPhone,
		Description:   l.Description,
		Severity:      l.Severity,
		ProposedRule:  l.ProposedRule,
		Status:        l.Status,
		CreatedAt:     l.CreatedAt,
	}
}

func toOrderView(o models.Order) orderView {
	files := o.FileList()
	if files == nil {
		files = []string{}
	}
	return orderView{
		ID:          o.ID,
		Code:        o.Code,
		CustomerID:  o.CustomerID,
		Description: o.Description,
		Total:       o.Total,
		Deposit:     o.Deposit,
		Balance:     o.Balance(),
		Status:      o.Status,
		Files:       files,
		Quantity:    o.Quantity,
		Material:    o.Material,
		Dimensions:  o.Dimensions,
		Sides:       o.Sides,
		CreatedAt:   o.CreatedAt,
	}
}

func toLeadView(c models.Customer) leadView {
	return leadView{
		ID:              c.ID,
		Phone:           c.Phone,
		Name:            c.Name,
		TaxID:           c.TaxID,
		Address:         c.Address,
		Email:           c.Email,
		Status:          c.Status,
		AIEnabled:       c.AIEnabled,
		LastInteraction: c.LastInteraction,
	}
}

func (s *Server) healthz(c *gin.Context) {
	sqlDB, err := s.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, "UNHEALTHY", "Database unavailable", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebhook always answers 200 so the provider does not redeliver.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxWebhook))
	if err != nil {
		s.log.Warn().Err(err).Msg("server: read webhook body")
		c.JSON(http.StatusOK, gin.H{"status": "error_handled"})
		return
	}
	res, err := s.webhook.HandleWebhook(c.Request.Context(), body)
	if err != nil {
		s.log.Error().Err(err).Str("address", res.User).Msg("server: webhook")
		c.JSON(http.StatusOK, gin.H{"status": "error_handled"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listLearnings(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.LearningPending, models.LearningApproved, models.LearningRejected:
	default:
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid status filter", gin.H{"status": status})
		return
	}
	rows, err := s.store.ListLearnings(c.Request.Context(), status)
	if err != nil {
		s.log.Error().Err(err).Msg("server: list learnings")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to list learnings", nil)
		return
	}
	out := make([]learningView, 0, len(rows))
	for _, l := range rows {
		out = append(out, toLearningView(l))
	}
	c.JSON(http.StatusOK, gin.H{"learnings": out})
}

func (s *Server) setLearningStatus(status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		err := s.store.SetLearningStatus(c.Request.Context(), id, status)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Learning not found", nil)
			return
		case err != nil:
			s.log.Error().Err(err).Uint("learning_id", id).Msg("server: set learning status")
			writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to update learning", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
	}
}

func (s *Server) runAudit(c *gin.Context) {
	if s.auditor == nil {
		writeError(c, http.StatusServiceUnavailable, "AUDIT_DISABLED", "Auditor is not configured", nil)
		return
	}
	rep, err := s.auditor.Run(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("server: run audit")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Audit failed", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

func (s *Server) storageTree(c *gin.Context) {
	entries, err := s.blob.Tree(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		s.log.Error().Err(err).Msg("server: storage tree")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to list storage", nil)
		return
	}
	if entries == nil {
		entries = []blob.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// storageUpload stores a staff-provided file for a customer. The file is
// recorded as unclaimed so the next order can absorb it.
func (s *Server) storageUpload(c *gin.Context) {
	ctx := c.Request.Context()
	phone := strings.TrimSpace(c.PostForm("phone"))
	if phone == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "phone is required", nil)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	if fh.Size > s.maxUpload {
		writeError(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", "File exceeds the upload limit",
			gin.H{"max_bytes": s.maxUpload})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unreadable file", nil)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unreadable file", nil)
		return
	}
	if int64(len(data)) > s.maxUpload {
		writeError(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", "File exceeds the upload limit",
			gin.H{"max_bytes": s.maxUpload})
		return
	}

	cust, err := s.store.UpsertCustomer(ctx, phone, "")
	if err != nil {
		s.log.Error().Err(err).Str("address", phone).Msg("server: upload customer")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to store file", nil)
		return
	}
	folder := strings.Trim(c.DefaultPostForm("folder", "general"), "/ ")
	if folder == "" {
		folder = "general"
	}
	name := s.now().Format("20060102T150405") + "_" + blob.SafeName(fh.Filename)
	rel := path.Join(blob.SafeName(phone), blob.SafeName(folder), name)
	u, err := s.blob.Put(ctx, rel, data)
	if err != nil {
		s.log.Error().Err(err).Str("address", phone).Msg("server: upload put")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to store file", nil)
		return
	}
	pf := &models.PendingFile{
		CustomerID: cust.ID,
		Path:       rel,
		URL:        u,
		FileName:   fh.Filename,
		MimeType:   mimetype.Detect(data).String(),
		Size:       int64(len(data)),
	}
	if err := s.store.CreatePendingFile(ctx, pf); err != nil {
		s.log.Error().Err(err).Str("address", phone).Msg("server: upload record")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to store file", nil)
		return
	}
	s.log.Info().Str("address", phone).Uint("customer_id", cust.ID).Str("path", rel).Msg("server: file uploaded")
	c.JSON(http.StatusCreated, gin.H{"id": pf.ID, "path": rel, "url": u, "mime_type": pf.MimeType, "size": pf.Size})
}

type deleteRequest struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) storageDelete(c *gin.Context) {
	var req deleteRequest
	if !s.bind(c, &req) {
		return
	}
	if strings.Trim(req.Path, "/ .") == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Refusing to delete the storage root", nil)
		return
	}
	if err := s.blob.Delete(c.Request.Context(), req.Path); err != nil {
		s.log.Error().Err(err).Str("path", req.Path).Msg("server: storage delete")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to delete", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": req.Path})
}

func (s *Server) listOrders(c *gin.Context) {
	var customerID uint
	if raw := c.Query("customer_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid customer_id", nil)
			return
		}
		customerID = uint(id)
	}
	rows, err := s.store.ListOrders(c.Request.Context(), customerID)
	if err != nil {
		s.log.Error().Err(err).Msg("server: list orders")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to list orders", nil)
		return
	}
	out := make([]orderView, 0, len(rows))
	for _, o := range rows {
		out = append(out, toOrderView(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

type statusRequest struct {
	OrderID uint   `json:"order_id" validate:"required"`
	Status  string `json:"status" validate:"required"`
	Notify  bool   `json:"notify"`
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	ctx := c.Request.Context()
	var req statusRequest
	if !s.bind(c, &req) {
		return
	}
	if !models.ValidOrderStatus(req.Status) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid order status",
			gin.H{"allowed": models.OrderStatuses})
		return
	}
	if !s.orderUpdated(c, s.store.UpdateOrderStatus(ctx, req.OrderID, req.Status), req.OrderID) {
		return
	}
	var delivery *gateway.DeliveryStatus
	if req.Notify {
		st, err := s.notifier.NotifyTransition(ctx, req.OrderID, req.Status)
		switch {
		case errors.Is(err, order.ErrNoTemplate):
		case err != nil:
			s.log.Error().Err(err).Uint("order_id", req.OrderID).Msg("server: status notification")
			delivery = &st
		default:
			delivery = &st
		}
	}
	s.respondOrder(c, req.OrderID, delivery)
}

type paymentRequest struct {
	OrderID uint     `json:"order_id" validate:"required"`
	Deposit *float64 `json:"deposit" validate:"required,gte=0"`
	Notify  bool     `json:"notify"`
}

func (s *Server) updatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	var req paymentRequest
	if !s.bind(c, &req) {
		return
	}
	if !s.orderUpdated(c, s.store.UpdatePayment(ctx, req.OrderID, *req.Deposit), req.OrderID) {
		return
	}
	var delivery *gateway.DeliveryStatus
	if req.Notify {
		st, err := s.notifier.NotifyPayment(ctx, req.OrderID)
		if err != nil {
			s.log.Error().Err(err).Uint("order_id", req.OrderID).Msg("server: payment notification")
		}
		delivery = &st
	}
	s.respondOrder(c, req.OrderID, delivery)
}

func (s *Server) orderUpdated(c *gin.Context, err error, orderID uint) bool {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Order not found", nil)
		return false
	case err != nil:
		s.log.Error().Err(err).Uint("order_id", orderID).Msg("server: update order")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to update order", nil)
		return false
	}
	return true
}

func (s *Server) respondOrder(c *gin.Context, orderID uint, delivery *gateway.DeliveryStatus) {
	o, err := s.store.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		s.log.Error().Err(err).Uint("order_id", orderID).Msg("server: reload order")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to load order", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": toOrderView(*o), "notification": delivery})
}

type manualRequest struct {
	CustomerID uint   `json:"customer_id" validate:"required"`
	Text       string `json:"text" validate:"required"`
}

func (s *Server) sendManual(c *gin.Context) {
	var req manualRequest
	if !s.bind(c, &req) {
		return
	}
	st, err := s.notifier.SendManual(c.Request.Context(), req.CustomerID, req.Text)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Customer not found", nil)
		return
	case err != nil:
		s.log.Error().Err(err).Uint("customer_id", req.CustomerID).Msg("server: manual message")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to send message", nil)
		return
	}
	code := http.StatusOK
	if !st.OK() {
		code = http.StatusBadGateway
	}
	c.JSON(code, gin.H{"delivery": st})
}

type toggleRequest struct {
	CustomerID uint  `json:"customer_id" validate:"required"`
	Enabled    *bool `json:"enabled" validate:"required"`
}

func (s *Server) toggleAI(c *gin.Context) {
	var req toggleRequest
	if !s.bind(c, &req) {
		return
	}
	err := s.store.SetAIEnabled(c.Request.Context(), req.CustomerID, *req.Enabled)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Customer not found", nil)
		return
	case err != nil:
		s.log.Error().Err(err).Uint("customer_id", req.CustomerID).Msg("server: toggle ai")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to update customer", nil)
		return
	}
	s.log.Info().Uint("customer_id", req.CustomerID).Bool("ai_enabled", *req.Enabled).Msg("server: ai toggled")
	c.JSON(http.StatusOK, gin.H{"customer_id": req.CustomerID, "ai_enabled": *req.Enabled})
}

func (s *Server) listLeads(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid limit", nil)
			return
		}
		limit = n
	}
	rows, err := s.store.ListCustomers(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("server: list leads")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to list leads", nil)
		return
	}
	out := make([]leadView, 0, len(rows))
	for _, cu := range rows {
		out = append(out, toLeadView(cu))
	}
	c.JSON(http.StatusOK, gin.H{"leads": out})
}

func (s *Server) leadMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetCustomer(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Customer not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to load customer", nil)
		return
	}
	rows, err := s.store.RecentMessages(ctx, id, 200)
	if err != nil {
		s.log.Error().Err(err).Uint("customer_id", id).Msg("server: lead messages")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Failed to load messages", nil)
		return
	}
	out := make([]messageView, 0, len(rows))
	for _, m := range rows {
		out = append(out, messageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Tag:       m.Tag,
			Tokens:    m.Tokens,
			Delivery:  m.Delivery,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// bind decodes and validates a JSON body, writing the error response on
// failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", nil)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}
	return true
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid id", nil)
		return 0, false
	}
	return uint(id), true
}
