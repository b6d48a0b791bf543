package inbound

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pbimprenta/printdesk/internal/blob"
	"github.com/pbimprenta/printdesk/internal/gateway"
	"github.com/pbimprenta/printdesk/internal/models"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/pbimprenta/printdesk/internal/turn"
	"github.com/rs/zerolog"
)

// Replies sent when an attachment is refused.
const (
	ImageRejected    = "📎 Por ahora solo recibimos diseños en PDF. ¿Puedes enviarlo como documento PDF?"
	DocumentRejected = "📎 No pudimos recibir ese archivo. Envíalo en formato PDF, por favor."
	TooLargeRejected = "📎 El archivo es demasiado grande. Envía un PDF más liviano o compártelo por correo."
)

const pdfMime = "application/pdf"

// Result statuses.
const (
	StatusProcessed = "processed"
	StatusIgnored   = "ignored"
	StatusRejected  = "rejected"
)

// Result reports what happened to one webhook event.
type Result struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	User   string `json:"user,omitempty"`
}

// FragmentSink receives text fragments and textless activity;
// turn.Scheduler implements it.
type FragmentSink interface {
	OnFragment(address, fragment, displayName string)
	Activity(address string)
}

// MediaSource fetches media bytes for messages that do not carry them
// inline.
type MediaSource interface {
	DownloadMedia(ctx context.Context, messageID string) (*gateway.Media, error)
}

// Adapter handles parsed webhook events.
type Adapter struct {
	store    *store.Store
	blob     *blob.Store
	sender   gateway.Sender
	media    MediaSource
	sink     FragmentSink
	maxBytes int64
	log      zerolog.Logger
	now      func() time.Time
}

// Opts holds parameters for creating an Adapter.
type Opts struct {
	Store    *store.Store
	Blob     *blob.Store
	Sender   gateway.Sender
	Media    MediaSource // nil accepts only inline media
	Sink     FragmentSink
	MaxBytes int64 // largest accepted document, default 20 MiB
	Logger   zerolog.Logger
	Now      func() time.Time
}

// New creates an Adapter.
func New(opts Opts) (*Adapter, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("inbound: store is required")
	case opts.Blob == nil:
		return nil, fmt.Errorf("inbound: blob store is required")
	case opts.Sender == nil:
		return nil, fmt.Errorf("inbound: sender is required")
	case opts.Sink == nil:
		return nil, fmt.Errorf("inbound: fragment sink is required")
	}
	a := &Adapter{
		store:    opts.Store,
		blob:     opts.Blob,
		sender:   opts.Sender,
		media:    opts.Media,
		sink:     opts.Sink,
		maxBytes: opts.MaxBytes,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if a.maxBytes <= 0 {
		a.maxBytes = 20 << 20
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// HandleWebhook parses and handles a raw webhook body.
func (a *Adapter) HandleWebhook(ctx context.Context, body []byte) (Result, error) {
	ev, err := Parse(body)
	if err != nil {
		return Result{}, err
	}
	return a.Handle(ctx, ev)
}

// Handle processes one event. Errors are returned only for failures the
// customer was not told about.
func (a *Adapter) Handle(ctx context.Context, ev Event) (Result, error) {
	if ev.Ignore != "" {
		return Result{Status: StatusIgnored, Reason: ev.Ignore}, nil
	}
	log := a.log.With().Str("address", ev.Address).Stringer("kind", ev.Kind).Logger()

	switch ev.Kind {
	case KindText:
		text := customerText(ev.Text)
		if text == "" {
			a.sink.Activity(ev.Address)
			return Result{Status: StatusIgnored, Reason: "empty_text", User: ev.Address}, nil
		}
		a.sink.OnFragment(ev.Address, text, ev.PushName)
		return Result{Status: StatusProcessed, User: ev.Address}, nil
	case KindImage:
		a.sink.Activity(ev.Address)
		log.Info().Msg("inbound: image rejected")
		return a.reject(ctx, ev, ImageRejected, "image")
	case KindDocument:
		a.sink.Activity(ev.Address)
		return a.acceptDocument(ctx, ev, log)
	default:
		return Result{Status: StatusIgnored, Reason: "unsupported_" + ev.Kind.String(), User: ev.Address}, nil
	}
}

func (a *Adapter) acceptDocument(ctx context.Context, ev Event, log zerolog.Logger) (Result, error) {
	data, declared, err := a.fetch(ctx, ev)
	if err != nil {
		log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("inbound: document download failed")
		return a.reject(ctx, ev, DocumentRejected, "download_failed")
	}
	if int64(len(data)) > a.maxBytes {
		return a.reject(ctx, ev, TooLargeRejected, "too_large")
	}
	detected := mimetype.Detect(data)
	if !detected.Is(pdfMime) {
		log.Info().Str("declared", declared).Str("detected", detected.String()).Msg("inbound: non-pdf document rejected")
		return a.reject(ctx, ev, DocumentRejected, "not_pdf")
	}

	c, err := a.store.UpsertCustomer(ctx, ev.Address, ev.PushName)
	if err != nil {
		return Result{}, fmt.Errorf("inbound: resolve customer: %w", err)
	}
	name := documentName(ev.FileName, a.now())
	rel := path.Join(blob.SafeName(ev.Address), "general", blob.SafeName(name))
	u, err := a.blob.Put(ctx, rel, data)
	if err != nil {
		return Result{}, fmt.Errorf("inbound: store document: %w", err)
	}
	pf := &models.PendingFile{
		CustomerID: c.ID,
		Path:       rel,
		URL:        u,
		FileName:   name,
		MimeType:   pdfMime,
		Size:       int64(len(data)),
		CreatedAt:  a.now(),
	}
	if err := a.store.CreatePendingFile(ctx, pf); err != nil {
		return Result{}, fmt.Errorf("inbound: record document: %w", err)
	}
	log.Info().Uint("customer_id", c.ID).Str("path", rel).Int("bytes", len(data)).Msg("inbound: document accepted")

	a.sink.OnFragment(ev.Address, turn.AttachmentMarker+" "+name, ev.PushName)
	a.forwardCaption(ev)
	return Result{Status: StatusProcessed, User: ev.Address}, nil
}

// fetch returns the document bytes and the mime type the provider
// declared.
func (a *Adapter) fetch(ctx context.Context, ev Event) ([]byte, string, error) {
	if ev.Base64 != "" {
		data, err := gateway.DecodeBase64(ev.Base64)
		if err == nil && len(data) > 0 {
			return data, ev.MimeType, nil
		}
	}
	if a.media == nil {
		return nil, "", errors.New("no inline media and no media source")
	}
	m, err := a.media.DownloadMedia(ctx, ev.MessageID)
	if err != nil {
		return nil, "", err
	}
	declared := m.MimeType
	if declared == "" {
		declared = ev.MimeType
	}
	return m.Data, declared, nil
}

// forwardCaption hands the text sent along with an attachment to the sink.
func (a *Adapter) forwardCaption(ev Event) {
	if caption := customerText(ev.Text); caption != "" {
		a.sink.OnFragment(ev.Address, caption, ev.PushName)
	}
}

// customerText removes the attachment marker from text the customer wrote,
// so only the adapter can announce an accepted file.
func customerText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, turn.AttachmentMarker, ""))
}

// reject answers the customer and records the refusal in the history. A
// caption still reaches the sink as a regular fragment.
func (a *Adapter) reject(ctx context.Context, ev Event, reply, reason string) (Result, error) {
	status := a.sender.SendText(ctx, ev.Address, reply)
	c, err := a.store.UpsertCustomer(ctx, ev.Address, ev.PushName)
	if err != nil {
		return Result{}, fmt.Errorf("inbound: resolve customer: %w", err)
	}
	msg := &models.Message{
		CustomerID: c.ID,
		Role:       models.RoleAgent,
		Content:    reply,
		Tag:        models.TagAttachmentRejected,
		Delivery:   status.JSON(),
	}
	if err := a.store.AppendMessage(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("inbound: record rejection: %w", err)
	}
	a.forwardCaption(ev)
	return Result{Status: StatusRejected, Reason: reason, User: ev.Address}, nil
}

func documentName(name string, now time.Time) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		name = "archivo.pdf"
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return now.UTC().Format("20060102T150405") + "_" + name
}
