// Package server exposes the WhatsApp webhook and the staff admin API over
// HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pbimprenta/printdesk/internal/audit"
	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/inbound"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/order"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/rs/zerolog"
)

// WebhookHandler consumes raw provider webhook bodies.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte) (inbound.Result, error)
}

// AuditRunner runs one conversation audit on demand.
type AuditRunner interface {
	Run(ctx context.Context) (audit.Report, error)
}

// Server is the HTTP front of printdesk.
type Server struct {
	store      *store.Store
	blob       *blob.Store
	webhook    WebhookHandler
	notifier   *order.Notifier
	auditor    AuditRunner
	validate   *validator.Validate
	adminKey   string
	origins    []string
	maxUpload  int64
	maxWebhook int64
	port       int
	log        zerolog.Logger
	now        func() time.Time
	router     *gin.Engine
}

// Opts holds parameters for creating a Server.
type Opts struct {
	Store              *store.Store
	Blob               *blob.Store
	Webhook            WebhookHandler
	Notifier           *order.Notifier
	Auditor            AuditRunner // nil disables POST /learnings/run_audit
	AdminKey           string      // empty disables admin authentication
	CORSAllowedOrigins []string
	MaxUploadBytes     int64 // default 20 MiB
	MaxWebhookBytes    int64 // default twice MaxUploadBytes, room for inline base64 media
	Port               int   // default 8000
	Logger             zerolog.Logger
	Now                func() time.Time
}

// New creates a Server and builds its router.
func New(opts Opts) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("server: store is required")
	case opts.Blob == nil:
		return nil, fmt.Errorf("server: blob store is required")
	case opts.Webhook == nil:
		return nil, fmt.Errorf("server: webhook handler is required")
	case opts.Notifier == nil:
		return nil, fmt.Errorf("server: notifier is required")
	}
	s := &Server{
		store:      opts.Store,
		blob:       opts.Blob,
		webhook:    opts.Webhook,
		notifier:   opts.Notifier,
		auditor:    opts.Auditor,
		validate:   validator.New(),
		adminKey:   opts.AdminKey,
		origins:    opts.CORSAllowedOrigins,
		maxUpload:  opts.MaxUploadBytes,
		maxWebhook: opts.MaxWebhookBytes,
		port:       opts.Port,
		log:        opts.Logger,
		now:        opts.Now,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 20 << 20
	}
	if s.maxWebhook <= 0 {
		s.maxWebhook = 2 * s.maxUpload
	}
	if s.port <= 0 {
		s.port = 8000
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("server: shutdown")
		}
	}()

	s.log.Info().Int("port", s.port).Msg("server: listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.log))
	r.Use(cors.New(corsConfig(s.origins)))
	r.MaxMultipartMemory = s.maxUpload

	r.GET("/healthz", s.healthz)
	r.POST("/webhook", s.handleWebhook)
	r.POST("/webhook/whatsapp", s.handleWebhook)

	admin := r.Group("/", adminKey(s.adminKey))
	admin.GET("/learnings", s.listLearnings)
	admin.POST("/learnings/:id/approve", s.setLearningStatus(models.LearningApproved))
	admin.POST("/learnings/:id/reject", s.setLearningStatus(models.LearningRejected))
	admin.POST("/learnings/run_audit", s.runAudit)

	admin.GET("/storage/tree", s.storageTree)
	admin.POST("/storage/upload", s.storageUpload)
	admin.POST("/storage/delete", s.storageDelete)

	admin.GET("/orders", s.listOrders)
	admin.POST("/orders/update_status", s.updateOrderStatus)
	admin.POST("/orders/update_payment", s.updatePayment)

	admin.POST("/chat/send_manual", s.sendManual)

	admin.GET("/leads", s.listLeads)
	admin.GET("/leads/:id/messages", s.leadMessages)
	admin.POST("/leads/toggle_ai", s.toggleAI)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", AdminKeyHeader, RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
