// Package gateway sends WhatsApp messages through an Evolution API instance
// and downloads inbound media from it.
package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// Delivery states.
const (
	StateSuccess   = "success"
	StateError     = "error"
	StateException = "exception"
)

// DeliveryStatus is the outcome of one outbound send. It is persisted as
// JSON next to the message it belongs to.
type DeliveryStatus struct {
	State      string    `json:"state"`
	StatusCode int       `json:"status_code,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// OK reports whether the provider accepted the message.
func (d DeliveryStatus) OK() bool {
	return d.State == StateSuccess
}

// JSON encodes the status for storage.
func (d DeliveryStatus) JSON() string {
	data, err := json.Marshal(d)
	if err != nil {
		return `{"state":"exception"}`
	}
	return string(data)
}

// Document is a file sent as a WhatsApp document message.
type Document struct {
	Data     []byte
	FileName string
	MimeType string
	Caption  string
}

// Sender delivers outbound messages. Failures are reported in the returned
// status, never as errors.
type Sender interface {
	SendText(ctx context.Context, to, text string) DeliveryStatus
	SendDocument(ctx context.Context, to string, doc Document) DeliveryStatus
}
