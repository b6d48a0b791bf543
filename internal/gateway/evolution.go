package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of a failed response is kept as detail.
const maxErrorBody = 512

// Client talks to the Evolution API.
type Client struct {
	baseURL  string
	apiKey   string
	instance string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
	now      func() time.Time
}

// Opts holds parameters for creating a Client.
type Opts struct {
	BaseURL    string
	APIKey     string
	Instance   string
	Timeout    time.Duration // per request, default 15s
	RatePerSec float64       // outbound sends per second, 0 means unlimited
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Now        func() time.Time
}

// New creates an Evolution API client.
func New(opts Opts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base url is required")
	}
	if opts.Instance == "" {
		return nil, fmt.Errorf("gateway: instance is required")
	}
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		instance: opts.Instance,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		log:      opts.Logger,
		now:      opts.Now,
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return c, nil
}

// Number strips the WhatsApp JID suffix: 56911112222@s.whatsapp.net
// becomes 56911112222.
func Number(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) DeliveryStatus {
	body := map[string]interface{}{
		"number": Number(to),
		"text":   text,
		"delay":  1200,
	}
	return c.send(ctx, "sendText", to, body)
}

// SendDocument sends a file as a document message.
func (c *Client) SendDocument(ctx context.Context, to string, doc Document) DeliveryStatus {
	mime := doc.MimeType
	if mime == "" {
		mime = "application/pdf"
	}
	body := map[string]interface{}{
		"number":    Number(to),
		"mediatype": "document",
		"mimetype":  mime,
		"fileName":  doc.FileName,
		"caption":   doc.Caption,
		"media":     base64.StdEncoding.EncodeToString(doc.Data),
	}
	return c.send(ctx, "sendMedia", to, body)
}

type sendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

func (c *Client) send(ctx context.Context, op, to string, body interface{}) DeliveryStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.exception(op, to, fmt.Errorf("rate limit wait: %w", err))
	}

	resp, err := c.post(ctx, "/message/"+op+"/", body)
	if err != nil {
		return c.exception(op, to, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	status := DeliveryStatus{StatusCode: resp.StatusCode, SentAt: c.now()}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status.State = StateError
		status.Detail = truncate(string(data), maxErrorBody)
		c.log.Warn().Str("op", op).Str("address", to).Int("status", resp.StatusCode).Msg("gateway: send rejected")
		return status
	}
	var parsed sendResponse
	if err := json.Unmarshal(data, &parsed); err == nil {
		status.MessageID = parsed.Key.ID
	}
	status.State = StateSuccess
	return status
}

func (c *Client) exception(op, to string, err error) DeliveryStatus {
	c.log.Error().Err(err).Str("op", op).Str("address", to).Msg("gateway: send failed")
	return DeliveryStatus{State: StateException, Detail: err.Error(), SentAt: c.now()}
}

// Media is an inbound attachment fetched from the provider.
type Media struct {
	Data     []byte
	MimeType string
	FileName string
}

// ErrNoMedia is returned when the provider has no media for a message.
var ErrNoMedia = errors.New("gateway: no media in message")

type mediaResponse struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName"`
}

// DownloadMedia fetches and decodes the media of an inbound message.
func (c *Client) DownloadMedia(ctx context.Context, messageID string) (*Media, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]interface{}{
		"message":      map[string]interface{}{"key": map[string]string{"id": messageID}},
		"convertToMp4": false,
	}
	resp, err := c.post(ctx, "/chat/getBase64FromMediaMessage/", body)
	if err != nil {
		return nil, fmt.Errorf("gateway: download media %s: %w", messageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("gateway: download media %s: status %d: %s", messageID, resp.StatusCode, data)
	}
	var parsed mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: download media %s: decode: %w", messageID, err)
	}
	if parsed.Base64 == "" {
		return nil, ErrNoMedia
	}
	data, err := DecodeBase64(parsed.Base64)
	if err != nil {
		return nil, fmt.Errorf("gateway: download media %s: %w", messageID, err)
	}
	return &Media{Data: data, MimeType: parsed.MimeType, FileName: parsed.FileName}, nil
}

// DecodeBase64 decodes provider base64, tolerating a data: URL prefix.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + path + url.PathEscape(c.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
