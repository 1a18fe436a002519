// Package relay delivers composed submission messages to their Telegram chat.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/storefront-bridge/internal/format"
	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/internal/submission"
	"github.com/wolfman30/storefront-bridge/internal/telegram"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

var relayTracer = otel.Tracer("storefront.internal.relay")

// ErrNoDestination is returned when no chat is configured for a kind.
var ErrNoDestination = errors.New("relay: no destination configured")

// Sender is the subset of the Telegram client the relay needs.
type Sender interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) error
}

// Destination is a chat and an optional forum topic inside it.
type Destination struct {
	ChatID   string
	ThreadID int64
}

// Destinations routes each submission kind to a chat.
type Destinations struct {
	Order Destination
	Lead  Destination
}

// For returns the destination configured for kind.
func (d Destinations) For(kind submission.Kind) Destination {
	if kind == submission.KindLead {
		lead := d.Lead
		if lead.ChatID == "" {
			lead.ChatID = d.Order.ChatID
		}
		return lead
	}
	return d.Order
}

// Relay sends composed messages and applies the missing-thread fallback.
type Relay struct {
	sender       Sender
	destinations Destinations
	logger       *logging.Logger
	metrics      *metrics.IntakeMetrics
}

// New creates a relay. metrics may be nil.
func New(sender Sender, destinations Destinations, logger *logging.Logger, m *metrics.IntakeMetrics) *Relay {
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		sender:       sender,
		destinations: destinations,
		logger:       logger,
		metrics:      m,
	}
}

// Send delivers text to the chat configured for kind. When the configured
// topic no longer exists the message is resent once to the chat's general
// stream. Every other failure is returned.
func (r *Relay) Send(ctx context.Context, kind submission.Kind, text string) (err error) {
	dest := r.destinations.For(kind)
	ctx, span := relayTracer.Start(ctx, "relay.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bridge.kind", string(kind)),
			attribute.Bool("bridge.thread", dest.ThreadID != 0),
		),
	)
	defer span.End()

	start := time.Now()
	fallback := false
	defer func() {
		status := "sent"
		if err != nil {
			status = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, "relay failed")
		}
		span.SetAttributes(attribute.Bool("bridge.fallback", fallback))
		r.metrics.ObserveRelay(string(kind), status, fallback, time.Since(start).Seconds())
	}()

	if dest.ChatID == "" {
		return fmt.Errorf("%w for %s", ErrNoDestination, kind)
	}

	req := telegram.SendMessageRequest{
		ChatID:                dest.ChatID,
		Text:                  text,
		ParseMode:             format.ParseMode,
		MessageThreadID:       dest.ThreadID,
		DisableWebPagePreview: true,
	}
	err = r.sender.SendMessage(ctx, req)
	if err == nil {
		r.logger.Info("message relayed", "kind", kind, "chat_id", dest.ChatID, "thread_id", dest.ThreadID)
		return nil
	}
	if dest.ThreadID == 0 || !telegram.IsThreadNotFound(err) {
		return fmt.Errorf("relay: send %s: %w", kind, err)
	}

	r.logger.Warn("message thread not found, retrying without thread",
		"kind", kind,
		"chat_id", dest.ChatID,
		"thread_id", dest.ThreadID,
	)
	fallback = true
	req.MessageThreadID = 0
	if err = r.sender.SendMessage(ctx, req); err != nil {
		return fmt.Errorf("relay: send %s without thread: %w", kind, err)
	}
	r.logger.Info("message relayed", "kind", kind, "chat_id", dest.ChatID, "fallback", true)
	return nil
}
