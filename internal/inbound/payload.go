// Package inbound turns Evolution API webhook events into scheduler
// fragments. Text is forwarded as is; PDF documents are stored and
// announced with the attachment marker; images and other files are
// rejected with a reply.
package inbound

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies the content of an inbound message.
type Kind int

// Message kinds.
const (
	KindNone Kind = iota
	KindText
	KindImage
	KindDocument
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindDocument:
		return "document"
	case KindOther:
		return "other"
	default:
		return "none"
	}
}

// Reasons an event is ignored.
const (
	IgnoreNotUpsert = "not_upsert"
	IgnoreFromMe    = "from_me"
	IgnoreGroup     = "group_message"
	IgnoreNoContent = "no_content"
)

// maxUnwrap bounds nested wrapper messages.
const maxUnwrap = 5

// Event is a parsed inbound message. A non-empty Ignore means there is
// nothing to process.
type Event struct {
	Ignore    string
	Address   string // phone number without the JID domain
	PushName  string
	MessageID string
	Kind      Kind
	Text      string // text body, or the caption of media
	FileName  string
	MimeType  string
	Base64    string // inline media, when the webhook carries it
}

type webhook struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
	Body  *webhook    `json:"body"`
}

type webhookData struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string                     `json:"pushName"`
	Message  map[string]json.RawMessage `json:"message"`
	Base64   string                     `json:"base64"`
}

type textMessage struct {
	Text string `json:"text"`
}

type mediaMessage struct {
	Caption  string `json:"caption"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName"`
	Title    string `json:"title"`
}

type wrapper struct {
	Message map[string]json.RawMessage `json:"message"`
}

// wrappers are message types whose payload nests the real message.
var wrappers = []string{
	"ephemeralMessage",
	"viewOnceMessage",
	"viewOnceMessageV2",
	"viewOnceMessageV2Extension",
	"documentWithCaptionMessage",
}

var otherMedia = []string{"audioMessage", "videoMessage", "stickerMessage", "contactMessage", "locationMessage"}

// Parse decodes a webhook body. The payload may be a JSON array (first
// element wins) and may wrap the event in a "body" field.
func Parse(data []byte) (Event, error) {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) > 0 && data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return Event{}, fmt.Errorf("inbound: parse: %w", err)
		}
		if len(list) == 0 {
			return Event{Ignore: IgnoreNoContent}, nil
		}
		data = list[0]
	}

	var w webhook
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("inbound: parse: %w", err)
	}
	if w.Body != nil {
		w = *w.Body
	}
	if w.Event != "messages.upsert" {
		return Event{Ignore: IgnoreNotUpsert}, nil
	}

	d := w.Data
	if d.Key.FromMe {
		return Event{Ignore: IgnoreFromMe}, nil
	}
	jid := d.Key.RemoteJID
	if strings.Contains(jid, "g.us") || strings.HasPrefix(jid, "status@broadcast") {
		return Event{Ignore: IgnoreGroup}, nil
	}
	address, _, _ := strings.Cut(jid, "@")
	if address == "" {
		return Event{Ignore: IgnoreNoContent}, nil
	}

	ev := Event{
		Address:   address,
		PushName:  strings.TrimSpace(d.PushName),
		MessageID: d.Key.ID,
		Base64:    d.Base64,
	}
	classify(&ev, unwrap(d.Message))
	if ev.Kind == KindNone {
		ev.Ignore = IgnoreNoContent
	}
	return ev, nil
}

// unwrap peels wrapper messages off msg.
func unwrap(msg map[string]json.RawMessage) map[string]json.RawMessage {
	for depth := 0; depth < maxUnwrap; depth++ {
		inner := map[string]json.RawMessage(nil)
		for _, name := range wrappers {
			raw, ok := msg[name]
			if !ok {
				continue
			}
			var w wrapper
			if err := json.Unmarshal(raw, &w); err == nil && len(w.Message) > 0 {
				inner = w.Message
			}
			break
		}
		if inner == nil {
			return msg
		}
		msg = inner
	}
	return msg
}

func classify(ev *Event, msg map[string]json.RawMessage) {
	if raw, ok := msg["conversation"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			ev.Kind, ev.Text = KindText, strings.TrimSpace(s)
			return
		}
	}
	if raw, ok := msg["extendedTextMessage"]; ok {
		var t textMessage
		if json.Unmarshal(raw, &t) == nil && strings.TrimSpace(t.Text) != "" {
			ev.Kind, ev.Text = KindText, strings.TrimSpace(t.Text)
			return
		}
	}
	if raw, ok := msg["imageMessage"]; ok {
		var m mediaMessage
		_ = json.Unmarshal(raw, &m)
		ev.Kind, ev.Text, ev.MimeType = KindImage, strings.TrimSpace(m.Caption), m.MimeType
		return
	}
	if raw, ok := msg["documentMessage"]; ok {
		var m mediaMessage
		_ = json.Unmarshal(raw, &m)
		name := m.FileName
		if name == "" {
			name = m.Title
		}
		ev.Kind, ev.Text, ev.MimeType, ev.FileName = KindDocument, strings.TrimSpace(m.Caption), m.MimeType, name
		return
	}
	for _, name := range otherMedia {
		if _, ok := msg[name]; ok {
			ev.Kind = KindOther
			return
		}
	}
}
