// Package proxy provides the relay's HTTP gateway: it gates the latest user
// turn, dispatches the conversation along the provider preference chain and
// streams the winning provider's output back in one normalized SSE format.
package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/sigmachat/sigma/pkg/failover"
	"github.com/sigmachat/sigma/pkg/gate"
	"github.com/sigmachat/sigma/pkg/llm"
	"github.com/sigmachat/sigma/pkg/logger"
	"github.com/sigmachat/sigma/pkg/provider"
	"github.com/sigmachat/sigma/pkg/sse"
)

// Dispatcher picks a provider for the conversation. *failover.Orchestrator
// is the production implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *provider.Request) (*provider.Stream, error)
}

// Proxy is the gateway endpoint. It is stateless across requests: the only
// shared state is the read-only preference chain held by the Dispatcher.
type Proxy struct {
	config     Config
	dispatcher Dispatcher
	logger     *zap.Logger
	server     *fiber.App
}

// New creates a new Proxy.
func New(config Config, dispatcher Dispatcher, logger *zap.Logger) (*Proxy, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if config.Personas.Bounded == "" || config.Personas.Unbounded == "" {
		config.Personas = gate.DefaultPersonas()
	}

	p := &Proxy{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger,
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          p.handleError,
	})
	p.server = app

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "*",
		AllowMethods: "POST,OPTIONS",
	}))

	// Register routes. The second path is the one the browser client uses.
	for _, path := range []string{"/chat", "/functions/v1/chat"} {
		app.Post(path, p.handleChat)
		app.Options(path, p.handlePreflight)
	}

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	app.Get("/debug/vars", adaptor.HTTPHandler(expvar.Handler()))

	return p, nil
}

// Run starts the gateway on the configured listening address.
func (p *Proxy) Run() error {
	p.logger.Info("starting gateway server",
		zap.String("listen", p.config.ListenAddr),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// Close stops accepting connections and waits for in-flight requests.
func (p *Proxy) Close() error {
	return p.server.Shutdown()
}

// handlePreflight answers cross-origin preflights the CORS middleware did not
// already terminate.
func (p *Proxy) handlePreflight(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

// handleChat runs one request through Received -> Gated -> {Rejected |
// Dispatching -> {StreamingSuccess | AllProvidersExhausted}}.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := uuid.NewString()
	c.Set("X-Request-Id", requestID)
	count(metricRequests)

	// Parse the incoming request
	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		count(metricInvalid)
		p.logger.Warn("failed to parse request", zap.String("request_id", requestID), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if err := validate(req.Messages); err != nil {
		count(metricInvalid)
		p.logger.Warn("invalid conversation", zap.String("request_id", requestID), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	log := p.logger.With(
		zap.String("request_id", requestID),
		zap.String("conversation", logger.Truncate(req.Messages.Fingerprint(), 16)),
	)
	log.Debug("received chat request",
		zap.Int("message_count", len(req.Messages)),
	)

	decision := gate.Evaluate(req.Messages)
	if decision.Outcome == gate.Rejected {
		count(metricRejected)
		log.Info("turn rejected by gate", zap.Duration("duration", time.Since(startTime)))
		return c.JSON(llm.NewAssistantResponse(decision.Refusal))
	}
	if decision.Unlocked {
		count(metricUnlocked)
		log.Info("secret token supplied, unbounded persona selected")
	}

	upstreamReq := &provider.Request{
		Conversation: decision.Conversation,
		SystemPrompt: p.config.Personas.SystemPrompt(decision),
	}

	// The upstream stream outlives this handler, so it must not be tied to
	// the fasthttp request context.
	stream, err := p.dispatcher.Dispatch(c.UserContext(), upstreamReq)
	if err != nil {
		return p.handleDispatchError(c, log, err)
	}

	count(metricStreamed)
	log.Info("streaming response",
		zap.String("provider", stream.Provider),
		zap.Duration("ttfb", time.Since(startTime)),
	)

	// Set up streaming response headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		p.pipe(w, stream, log, startTime)
	}))

	return nil
}

func (p *Proxy) handleDispatchError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var exhausted *failover.ExhaustedError
	if !errors.As(err, &exhausted) {
		return fmt.Errorf("dispatch: %w", err)
	}

	count(metricExhausted)
	log.Warn("all providers exhausted", zap.Int("failures", len(exhausted.Failures)), zap.Error(err))

	if p.config.ForwardRateLimitStatus {
		if status, ok := exhausted.OnlyQuota(); ok {
			count(metricRateLimited)
			return c.Status(status).JSON(llm.ErrorResponse{Error: rateLimitMessage(status)})
		}
	}

	return c.JSON(llm.NewAssistantResponse(OverloadedText))
}

// pipe copies normalized events to the client in arrival order. It owns the
// upstream stream and closes it on every path, including a client that has
// gone away.
func (p *Proxy) pipe(w *bufio.Writer, stream *provider.Stream, log *zap.Logger, startTime time.Time) {
	defer stream.Close()

	out := sse.NewWriter(w)
	events := sse.NewReader(stream.Body, stream.DeltaPath)

	var deltas int
	var content strings.Builder
	for {
		ev, ok := events.Next()
		if !ok {
			break
		}

		switch ev.Kind {
		case sse.TokenDelta:
			if err := out.Delta(ev.Text); err != nil {
				count(metricClientGone)
				log.Info("client went away, abandoning stream", zap.Int("deltas", deltas), zap.Error(err))
				return
			}
			deltas++
			content.WriteString(ev.Text)
		case sse.Error:
			count(metricStreamErrors)
			log.Error("upstream stream failed",
				zap.String("provider", stream.Provider),
				zap.String("kind", ev.ErrKind),
				zap.Error(events.Err()),
			)
			_ = out.Comment("error " + ev.ErrKind)
		}
	}

	if err := out.Done(); err != nil {
		count(metricClientGone)
		log.Info("client went away before end of stream", zap.Error(err))
		return
	}

	log.Info("stream complete",
		zap.String("provider", stream.Provider),
		zap.Int("deltas", deltas),
		zap.String("content_preview", logger.Truncate(content.String(), 80)),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// handleError degrades any unexpected fault, including recovered panics, to
// a fixed assistant message. Routing errors keep their status.
func (p *Proxy) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(llm.ErrorResponse{Error: fe.Message})
	}

	count(metricFaults)
	p.logger.Error("unexpected fault",
		zap.String("path", c.Path()),
		zap.String("request_id", string(c.Response().Header.Peek("X-Request-Id"))),
		zap.Error(err),
	)
	return c.Status(fiber.StatusOK).JSON(llm.NewAssistantResponse(FaultText))
}

// validate checks the conversation shape before the gate sees it.
func validate(conv llm.Conversation) error {
	if len(conv) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, t := range conv {
		if t.Role != llm.RoleUser && t.Role != llm.RoleAssistant {
			return fmt.Errorf("message %d: unsupported role %q", i, t.Role)
		}
	}
	last := conv[len(conv)-1]
	if last.Role != llm.RoleUser {
		return errors.New("last message must come from the user")
	}
	if strings.TrimSpace(last.Text) == "" && !last.HasImage() {
		return errors.New("last message is empty")
	}
	return nil
}
