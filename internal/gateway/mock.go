package gateway

import (
	"context"
	"sync"
	"time"
)

// SentMessage records one send made through a MockSender.
type SentMessage struct {
	To       string
	Text     string
	Document *Document
}

// MockSender implements Sender for testing. It records every send and
// answers with Status, which defaults to success.
type MockSender struct {
	mu     sync.Mutex
	sent   []SentMessage
	Status DeliveryStatus
	// OnSend, when set, is called with each message before it is recorded.
	OnSend func(SentMessage)
}

// NewMockSender creates a MockSender that reports successful delivery.
func NewMockSender() *MockSender {
	return &MockSender{Status: DeliveryStatus{State: StateSuccess, StatusCode: 201, MessageID: "mock"}}
}

// SendText records a text message.
func (m *MockSender) SendText(_ context.Context, to, text string) DeliveryStatus {
	return m.record(SentMessage{To: to, Text: text})
}

// SendDocument records a document message.
func (m *MockSender) SendDocument(_ context.Context, to string, doc Document) DeliveryStatus {
	return m.record(SentMessage{To: to, Text: doc.Caption, Document: &doc})
}

func (m *MockSender) record(msg SentMessage) DeliveryStatus {
	if m.OnSend != nil {
		m.OnSend(msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	st := m.Status
	st.SentAt = time.Now()
	return st
}

// Sent returns a copy of every recorded message.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns the messages recorded for one address.
func (m *MockSender) SentTo(to string) []SentMessage {
	var out []SentMessage
	for _, msg := range m.Sent() {
		if msg.To == to {
			out = append(out, msg)
		}
	}
	return out
}

// Reset clears recorded messages.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
