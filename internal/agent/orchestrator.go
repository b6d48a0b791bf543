// Package agent turns settled customer turns into replies. Each turn runs
// a bounded two-round exchange with the model: an optional round of tool
// calls (quoting, order registration) followed by the customer-facing
// answer.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/knowledge"
	"github.com/pbimprenta/printdesk/internal/llm"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/order"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/pbimprenta/printdesk/internal/turn"
	"github.com/rs/zerolog"
)

// Customer-facing texts sent outside the model.
const (
	FallbackReply   = "Disculpa, tuve un problema técnico al procesar tu mensaje 🙏 ¿Me lo puedes repetir en un momento?"
	WarningMessage  = "👋 ¿Sigues ahí? Responde este mensaje para continuar con tu cotización."
	SessionClosed   = "⌛ Cerramos esta conversación por inactividad. Escríbenos cuando quieras para retomarla."
	defaultTopK     = 3
	defaultHistory  = 10
	defaultRetrieve = 5 * time.Second
)

// Orchestrator processes turns and performs the inactivity alerts.
type Orchestrator struct {
	store       *store.Store
	provider    llm.Provider
	retriever   knowledge.Retriever
	registrar   *order.Registrar
	sender      gateway.Sender
	model       string
	temperature *float64
	topK        int
	history     int
	fileWindow  time.Duration
	retrieveTTL time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

// Opts holds parameters for creating an Orchestrator.
type Opts struct {
	Store           *store.Store
	Provider        llm.Provider
	Sender          gateway.Sender
	Registrar       *order.Registrar    // nil disables register_order
	Retriever       knowledge.Retriever // default knowledge.Nop
	Model           string              // empty uses the provider default
	Temperature     *float64
	TopK            int           // knowledge snippets per turn, default 3
	HistoryLimit    int           // prior messages sent to the model, default 10
	FileWindow      time.Duration // default is the registrar's window
	RetrieveTimeout time.Duration // default 5s
	Logger          zerolog.Logger
	Now             func() time.Time
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("agent: store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("agent: provider is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("agent: sender is required")
	}
	o := &Orchestrator{
		store:       opts.Store,
		provider:    opts.Provider,
		retriever:   opts.Retriever,
		registrar:   opts.Registrar,
		sender:      opts.Sender,
		model:       opts.Model,
		temperature: opts.Temperature,
		topK:        opts.TopK,
		history:     opts.HistoryLimit,
		fileWindow:  opts.FileWindow,
		retrieveTTL: opts.RetrieveTimeout,
		log:         opts.Logger,
		now:         opts.Now,
	}
	if o.retriever == nil {
		o.retriever = knowledge.Nop{}
	}
	if o.topK <= 0 {
		o.topK = defaultTopK
	}
	if o.history <= 0 {
		o.history = defaultHistory
	}
	if o.fileWindow <= 0 {
		o.fileWindow = 2 * time.Hour
		if o.registrar != nil {
			o.fileWindow = o.registrar.Window()
		}
	}
	if o.retrieveTTL <= 0 {
		o.retrieveTTL = defaultRetrieve
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// HandleTurn implements turn.Handler. It returns an error only when the
// turn could not be started at all; model and tool failures still produce
// a reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, t turn.Turn) (turn.Outcome, error) {
	customer, err := o.store.UpsertCustomer(ctx, t.Address, t.DisplayName)
	if err != nil {
		return turn.Outcome{}, fmt.Errorf("agent: resolve customer: %w", err)
	}
	log := o.log.With().Str("address", t.Address).Uint("customer_id", customer.ID).Logger()

	history, err := o.store.RecentMessages(ctx, customer.ID, o.history)
	if err != nil {
		return turn.Outcome{}, fmt.Errorf("agent: load history: %w", err)
	}
	in := &models.Message{CustomerID: customer.ID, Role: models.RoleCustomer, Content: t.Text}
	if err := o.store.AppendMessage(ctx, in); err != nil {
		return turn.Outcome{}, fmt.Errorf("agent: persist turn: %w", err)
	}

	if !customer.AIEnabled {
		log.Info().Msg("agent: ai disabled for customer, turn stored without reply")
		return turn.Outcome{}, nil
	}

	files, hasFile := o.pendingFiles(ctx, customer, log)
	tools := &turnTools{
		registrar: o.registrar,
		customer:  customer,
		hasFile:   hasFile,
		detected:  ExtractFiscal(customerTexts(history, t.Text)...),
	}

	prompt := buildPrompt(promptContext{
		Customer:  customer,
		Detected:  tools.detected,
		HasFile:   hasFile,
		Files:     files,
		Knowledge: o.retrieve(ctx, t.Text, log),
		Rules:     o.rules(ctx, log),
	})
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt})
	messages = append(messages, toLLM(history)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: t.Text})

	reply, tokens := o.converse(ctx, messages, tools, log)

	out := &models.Message{CustomerID: customer.ID, Role: models.RoleAgent, Content: reply, Tokens: tokens}
	if err := o.store.AppendMessage(ctx, out); err != nil {
		log.Error().Err(err).Msg("agent: persist reply failed")
		out = nil
	}
	status := o.sender.SendText(ctx, customer.Phone, reply)
	if out != nil {
		if err := o.store.SetDelivery(ctx, out.ID, status.JSON()); err != nil {
			log.Warn().Err(err).Msg("agent: record delivery failed")
		}
	}
	if !status.OK() {
		log.Warn().Str("state", status.State).Int("status_code", status.StatusCode).Str("detail", status.Detail).Msg("agent: reply not delivered")
	}

	if tools.receipt == nil && tools.quoted && customer.Status == models.CustomerNew {
		if err := o.store.SetCustomerStatus(ctx, customer.ID, models.CustomerQuoted); err != nil {
			log.Warn().Err(err).Msg("agent: mark customer quoted failed")
		}
	}

	log.Info().Int("tokens", tokens).Bool("order_created", tools.receipt != nil).Bool("delivered", status.OK()).Msg("agent: turn handled")
	return turn.Outcome{Replied: status.OK(), OrderCreated: tools.receipt != nil}, nil
}

// converse runs at most two model rounds. The second round sees the tool
// results and may not call tools again.
func (o *Orchestrator) converse(ctx context.Context, messages []llm.Message, tools *turnTools, log zerolog.Logger) (string, int) {
	defs := toolDefinitions()
	resp, err := o.provider.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Tools:       defs,
		ToolChoice:  llm.ToolChoiceAuto,
		Model:       o.model,
		Temperature: o.temperature,
	})
	if err != nil {
		log.Error().Err(err).Msg("agent: model round 1 failed")
		return FallbackReply, 0
	}
	tokens := resp.Usage.Tokens()
	if len(resp.ToolCalls) == 0 {
		return replyOrFallback(resp.Content), tokens
	}

	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
	for _, call := range resp.ToolCalls {
		result := tools.execute(ctx, call)
		level := zerolog.InfoLevel
		if result.IsError {
			level = zerolog.WarnLevel
		}
		log.WithLevel(level).Str("tool", call.Name).Bool("is_error", result.IsError).Msg("agent: tool executed")
		messages = append(messages, llm.Message{Role: llm.RoleTool, Content: result.ForLLM, ToolCallID: call.ID})
	}

	final, err := o.provider.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Tools:       defs,
		ToolChoice:  llm.ToolChoiceNone,
		Model:       o.model,
		Temperature: o.temperature,
	})
	if err != nil {
		log.Error().Err(err).Msg("agent: model round 2 failed")
		if tools.receipt != nil {
			return tools.receipt.Message(), tokens
		}
		return FallbackReply, tokens
	}
	tokens += final.Usage.Tokens()
	if strings.TrimSpace(final.Content) == "" && tools.receipt != nil {
		return tools.receipt.Message(), tokens
	}
	return replyOrFallback(final.Content), tokens
}

func replyOrFallback(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return FallbackReply
	}
	return s
}

// pendingFiles reports whether the customer has an unclaimed upload inside
// the file window. Only uploads recorded by the inbound adapter count; the
// attachment marker in the turn text is informational.
func (o *Orchestrator) pendingFiles(ctx context.Context, c *models.Customer, log zerolog.Logger) ([]string, bool) {
	files, err := o.store.UnclaimedFiles(ctx, c.ID, o.now().Add(-o.fileWindow))
	if err != nil {
		log.Warn().Err(err).Msg("agent: unclaimed files lookup failed")
		return nil, false
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.FileName)
	}
	return names, len(files) > 0
}

// retrieve returns the knowledge context for text. Failures degrade to no
// context.
func (o *Orchestrator) retrieve(ctx context.Context, text string, log zerolog.Logger) string {
	rctx, cancel := context.WithTimeout(ctx, o.retrieveTTL)
	defer cancel()
	snippets, err := o.retriever.Retrieve(rctx, text, o.topK)
	if err != nil {
		log.Warn().Err(err).Msg("agent: knowledge retrieval failed, continuing without context")
		return ""
	}
	return knowledge.Join(snippets)
}

func (o *Orchestrator) rules(ctx context.Context, log zerolog.Logger) []string {
	rules, err := o.store.ApprovedRules(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("agent: approved rules lookup failed")
		return nil
	}
	return rules
}

// Alert implements turn.Alerter: the inactivity warning and the session
// close are sent to the customer and stored as tagged agent messages.
func (o *Orchestrator) Alert(ctx context.Context, address string, stage turn.Stage) error {
	var text, tag string
	switch stage {
	case turn.StageWarned:
		text, tag = WarningMessage, models.TagInactivityAlert
	case turn.StageClosed:
		text, tag = SessionClosed, models.TagSessionClosed
	default:
		return fmt.Errorf("agent: no alert for stage %s", stage)
	}

	c, err := o.store.GetCustomerByPhone(ctx, address)
	if err != nil {
		return fmt.Errorf("agent: alert %s: %w", address, err)
	}
	if !c.AIEnabled {
		return nil
	}

	status := o.sender.SendText(ctx, c.Phone, text)
	msg := &models.Message{CustomerID: c.ID, Role: models.RoleAgent, Content: text, Tag: tag, Delivery: status.JSON()}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("agent: persist %s: %w", tag, err)
	}
	if stage == turn.StageClosed && c.Status != models.CustomerOrdered {
		if err := o.store.SetCustomerStatus(ctx, c.ID, models.CustomerInactive); err != nil {
			o.log.Warn().Err(err).Str("address", address).Msg("agent: mark customer inactive failed")
		}
	}
	if !status.OK() {
		return fmt.Errorf("agent: %s not delivered: %s", tag, status.Detail)
	}
	return nil
}

// customerTexts returns the customer's own messages followed by the
// current turn, the only text fiscal data is extracted from.
func customerTexts(history []models.Message, current string) []string {
	texts := make([]string, 0, len(history)+1)
	for _, m := range history {
		if m.Role == models.RoleCustomer {
			texts = append(texts, m.Content)
		}
	}
	return append(texts, current)
}

func toLLM(history []models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleAssistant
		if m.Role == models.RoleCustomer {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
