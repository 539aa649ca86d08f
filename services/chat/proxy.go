package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/services/completion"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

const readBufferSize = 4096

// ConfigSource provides the current completion configuration
type ConfigSource interface {
	Get(ctx context.Context, forceRefresh bool) completion.Config
}

// Config holds configuration for Proxy
type Config struct {
	Endpoint     string
	APIKey       string
	APIKeyHeader string
	Model        string
	Timeout      time.Duration
}

// Proxy relays streamed chat completions to the client as server-sent events
type Proxy struct {
	cfg        Config
	configs    ConfigSource
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// relayState tracks whether the response status line has been committed
type relayState int

const (
	headersPending relayState = iota
	streaming
)

// NewProxy creates a new Proxy. httpClient and metrics may be nil.
func NewProxy(cfg Config, configs ConfigSource, httpClient *http.Client, metrics *observability.Metrics, logger *zap.Logger) *Proxy {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "api-key"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Proxy{
		cfg:        cfg,
		configs:    configs,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger.Named("chat"),
	}
}

// Stream validates req, forwards it to the completion service and relays the
// response body to w chunk by chunk. An error is returned only while nothing
// has been written to w, including a stream that fails before its first
// byte; after that, upstream failures are reported in-band as an "error"
// event and a client disconnect ends the relay quietly.
func (p *Proxy) Stream(ctx context.Context, w http.ResponseWriter, req StreamRequest) error {
	if err := Validate(req); err != nil {
		p.observe("invalid")
		return err
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	settings := p.configs.Get(ctx, false)
	body, err := json.Marshal(completionRequest{
		Model:       p.cfg.Model,
		Messages:    BuildMessages(settings.SystemPrompt, req),
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Stream:      true,
		User:        req.UserID,
	})
	if err != nil {
		return services.WrapInternal("failed to encode completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return services.WrapInternal("failed to create completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set(p.cfg.APIKeyHeader, p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.observe("upstream_error")
		return &UpstreamError{StatusCode: http.StatusBadGateway, Message: "completion service unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.observe("upstream_error")
		return &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamErrorMessage(resp)}
	}

	return p.relay(ctx, w, resp.Body, req.UserID)
}

// relay commits the status line on the first upstream byte, or at EOF for an
// empty body. A read failure before that is still reported as an
// UpstreamError; after it, the failure goes out in-band.
func (p *Proxy) relay(ctx context.Context, w http.ResponseWriter, upstream io.Reader, userID string) error {
	rc := http.NewResponseController(w)
	state := headersPending

	commit := func() {
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache, no-transform")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		state = streaming
	}

	var relayed int64
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := upstream.Read(buf)
		if n > 0 {
			if state == headersPending {
				commit()
			}
			if _, err := w.Write(buf[:n]); err != nil {
				p.clientGone(userID, relayed, err)
				return nil
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				p.clientGone(userID, relayed, err)
				return nil
			}
			relayed += int64(n)
			if p.metrics != nil {
				p.metrics.StreamBytes.Add(float64(n))
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if state == headersPending {
				commit()
				_ = rc.Flush()
			}
			p.observe("completed")
			p.logger.Debug("stream completed", zap.String("user_id", userID), zap.Int64("bytes", relayed))
			return nil
		}
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			p.clientGone(userID, relayed, readErr)
			return nil
		}

		if state == headersPending {
			p.observe("upstream_error")
			status := http.StatusBadGateway
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			return &UpstreamError{StatusCode: status, Message: "completion stream failed before any data", Err: readErr}
		}

		p.observe("stream_error")
		p.logger.Error("completion stream failed mid-flight",
			zap.String("user_id", userID),
			zap.Int64("bytes", relayed),
			zap.Error(readErr))
		writeErrorEvent(w, "completion stream interrupted")
		_ = rc.Flush()
		return nil
	}
}

func (p *Proxy) clientGone(userID string, relayed int64, err error) {
	p.observe("client_closed")
	p.logger.Debug("client disconnected during stream",
		zap.String("user_id", userID),
		zap.Int64("bytes", relayed),
		zap.Error(err))
}

func (p *Proxy) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.StreamRequests.WithLabelValues(outcome).Inc()
	}
}

// Validate checks the user input and the prior message sequence
func Validate(req StreamRequest) error {
	if strings.TrimSpace(req.UserInput) == "" {
		return services.ErrEmptyUserInput
	}
	for i := range req.Messages {
		if err := utils.ValidateStruct(&req.Messages[i]); err != nil {
			return services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidMessages.Message, err).
				WithDetail("index", i)
		}
	}
	return nil
}

// BuildMessages orders the conversation: one system message carrying the
// prompt and report context, the prior messages, then the new user input
func BuildMessages(systemPrompt string, req StreamRequest) []models.ChatMessage {
	system := systemPrompt
	if ctxData := bytes.TrimSpace(req.ContextData); len(ctxData) > 0 && !bytes.Equal(ctxData, []byte("null")) {
		system += "\n\nReport context (JSON):\n" + string(ctxData)
	}

	messages := make([]models.ChatMessage, 0, len(req.Messages)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: system})
	messages = append(messages, req.Messages...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: req.UserInput})
	return messages
}

func writeErrorEvent(w io.Writer, message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
}

func upstreamErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp completionErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
