// Package audit reviews recent conversations with the model and proposes
// correction rules for the agent. Proposals are stored as pending
// learnings; staff approve them before they reach the agent's prompt.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pbimprenta/printdesk/internal/llm"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/staff"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/rs/zerolog"
)

const systemPrompt = "Eres un sistema de auditoría de calidad para agentes de IA."

const auditPrompt = `Eres el AUDITOR SENIOR del agente de ventas por WhatsApp de PB Imprenta.
Busca errores sutiles del agente y propone reglas para evitarlos.

Contexto del negocio:
- Productos: tarjetas, flyers y pendones.
- El diseño se cobra aparte (básico, medio, premium). Con diseño contratado no se pide PDF.
- Pago por transferencia. Estilo amable, con emojis y profesional.

Conversación:
%s
Tarea: detecta errores de lógica, tono o proceso (pedidos duplicados, precios inventados, confundir diseño, etc.).
Responde solo con un objeto JSON:
{"error_detected": true|false, "description": "...", "severity": "low|medium|high", "proposed_rule": "..."}`

// Verdict is the model's assessment of one conversation.
type Verdict struct {
	ErrorDetected bool   `json:"error_detected"`
	Description   string `json:"description"`
	Severity      string `json:"severity"`
	ProposedRule  string `json:"proposed_rule"`
}

// Report summarizes one audit run.
type Report struct {
	Conversations int `json:"conversations"`
	Analyzed      int `json:"analyzed"`
	Proposed      int `json:"proposed"`
	Failed        int `json:"failed"`
}

// Auditor runs conversation audits.
type Auditor struct {
	store    *store.Store
	provider llm.Provider
	staff    staff.Notifier
	model    string
	lookback time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// Opts holds parameters for creating an Auditor.
type Opts struct {
	Store        *store.Store
	Provider     llm.Provider
	Staff        staff.Notifier // receives a summary when rules are proposed
	Model        string
	LookbackDays int // default 1
	Logger       zerolog.Logger
	Now          func() time.Time
}

// New creates an Auditor.
func New(opts Opts) (*Auditor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("audit: store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("audit: provider is required")
	}
	a := &Auditor{
		store:    opts.Store,
		provider: opts.Provider,
		staff:    opts.Staff,
		model:    opts.Model,
		lookback: time.Duration(opts.LookbackDays) * 24 * time.Hour,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if a.staff == nil {
		a.staff = staff.Nop{}
	}
	if a.lookback <= 0 {
		a.lookback = 24 * time.Hour
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Run audits every conversation with at least two messages in the
// lookback window. A failure on one conversation does not stop the run.
func (a *Auditor) Run(ctx context.Context) (Report, error) {
	msgs, err := a.store.MessagesSince(ctx, a.now().Add(-a.lookback))
	if err != nil {
		return Report{}, fmt.Errorf("audit: load messages: %w", err)
	}

	var rep Report
	for _, conv := range group(msgs) {
		rep.Conversations++
		if len(conv) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		c, err := a.store.GetCustomer(ctx, conv[0].CustomerID)
		if err != nil {
			a.log.Warn().Err(err).Uint("customer_id", conv[0].CustomerID).Msg("audit: customer lookup failed")
			rep.Failed++
			continue
		}
		v, err := a.analyze(ctx, conv)
		if err != nil {
			a.log.Warn().Err(err).Str("address", c.Phone).Msg("audit: analysis failed")
			rep.Failed++
			continue
		}
		rep.Analyzed++
		if !v.ErrorDetected || strings.TrimSpace(v.ProposedRule) == "" {
			continue
		}

		l := &models.Learning{
			CustomerPhone: c.Phone,
			Description:   strings.TrimSpace(v.Description),
			Severity:      severity(v.Severity),
			ProposedRule:  strings.TrimSpace(v.ProposedRule),
			Status:        models.LearningPending,
		}
		if err := a.store.CreateLearning(ctx, l); err != nil {
			a.log.Error().Err(err).Str("address", c.Phone).Msg("audit: save learning failed")
			rep.Failed++
			continue
		}
		rep.Proposed++
		a.log.Info().Str("address", c.Phone).Str("severity", l.Severity).Msg("audit: learning proposed")
	}

	a.log.Info().
		Int("conversations", rep.Conversations).
		Int("analyzed", rep.Analyzed).
		Int("proposed", rep.Proposed).
		Int("failed", rep.Failed).
		Msg("audit: run complete")

	if rep.Proposed > 0 {
		if err := a.staff.Notify(ctx, summaryAlert(rep)); err != nil {
			a.log.Warn().Err(err).Msg("audit: staff summary failed")
		}
	}
	return rep, nil
}

func (a *Auditor) analyze(ctx context.Context, conv []models.Message) (Verdict, error) {
	temp := 0.0
	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(auditPrompt, Transcript(conv))},
		},
		Model:       a.model,
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(resp.Content)
}

// ParseVerdict decodes the model's JSON verdict, tolerating a markdown
// code fence around it.
func ParseVerdict(content string) (Verdict, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return Verdict{}, fmt.Errorf("audit: decode verdict: %w", err)
	}
	return v, nil
}

// Transcript renders a conversation for the auditor.
func Transcript(conv []models.Message) string {
	var b strings.Builder
	for _, m := range conv {
		who := "👤 CLIENTE"
		if m.Role == models.RoleAgent {
			who = "🤖 AGENTE"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	return b.String()
}

// group splits messages, already ordered by customer then time, into
// conversations.
func group(msgs []models.Message) [][]models.Message {
	var out [][]models.Message
	for i := 0; i < len(msgs); {
		j := i
		for j < len(msgs) && msgs[j].CustomerID == msgs[i].CustomerID {
			j++
		}
		out = append(out, msgs[i:j])
		i = j
	}
	return out
}

func severity(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "low", "medium", "high":
		return s
	default:
		return "medium"
	}
}

func summaryAlert(rep Report) staff.Alert {
	return staff.Alert{
		Title: "Auditoría de conversaciones",
		Body:  fmt.Sprintf("%d reglas nuevas por revisar.", rep.Proposed),
		Color: "#f2c744",
		Fields: []staff.Field{
			{Name: "Conversaciones", Value: fmt.Sprint(rep.Conversations), Short: true},
			{Name: "Analizadas", Value: fmt.Sprint(rep.Analyzed), Short: true},
		},
	}
}
