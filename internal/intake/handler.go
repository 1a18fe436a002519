// Package intake serves the storefront order and lead endpoints.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfman30/storefront-bridge/internal/dedupe"
	"github.com/wolfman30/storefront-bridge/internal/format"
	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/internal/submission"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

// Error messages returned to the storefront.
const (
	MsgInvalidBody     = "Invalid JSON body"
	MsgPayloadTooLarge = "Payload too large"
	MsgBotRejected     = "Bot rejected"
	MsgDuplicate       = "Duplicate submit"
	MsgUpstream        = "Upstream error"
)

// Relayer delivers a composed message for a submission kind.
type Relayer interface {
	Send(ctx context.Context, kind submission.Kind, text string) error
}

// Response is the JSON body of every intake reply.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler runs decoded submissions through the honeypot, validation,
// duplicate suppression and relay steps.
type Handler struct {
	relay   Relayer
	dedupe  dedupe.Store
	logger  *logging.Logger
	metrics *metrics.IntakeMetrics
}

// NewHandler creates an intake handler. A nil store gets the default
// in-memory LRU.
func NewHandler(relay Relayer, store dedupe.Store, logger *logging.Logger, m *metrics.IntakeMetrics) *Handler {
	if store == nil {
		store = dedupe.NewMemoryStore(dedupe.DefaultCapacity, dedupe.DefaultTTL)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		relay:   relay,
		dedupe:  store,
		logger:  logger,
		metrics: m,
	}
}

// Order handles POST /api/telegram/order.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, submission.KindOrder)
}

// Lead handles POST /api/telegram/lead.
func (h *Handler) Lead(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, submission.KindLead)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, kind submission.Kind) {
	ctx := r.Context()
	log := h.logger.With("kind", kind)

	payload, err := submission.DecodePayload(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, kind, http.StatusRequestEntityTooLarge, MsgPayloadTooLarge, metrics.OutcomeInvalidBody)
			return
		}
		log.Debug("undecodable body", "error", err)
		h.reject(w, kind, http.StatusBadRequest, MsgInvalidBody, metrics.OutcomeInvalidBody)
		return
	}

	if payload.Trapped() {
		log.Info("honeypot triggered")
		h.reject(w, kind, http.StatusBadRequest, MsgBotRejected, metrics.OutcomeBot)
		return
	}

	sub, err := validatePayload(kind, payload)
	if err != nil {
		var verr *submission.ValidationError
		if !errors.As(err, &verr) {
			log.Error("unexpected validation failure", "error", err)
		}
		h.reject(w, kind, http.StatusBadRequest, err.Error(), metrics.OutcomeInvalid)
		return
	}

	fresh, err := h.dedupe.Claim(ctx, submission.Fingerprint(sub))
	if err != nil {
		log.Warn("dedupe store unavailable", "error", err)
		fresh = true
	}
	if !fresh {
		log.Info("duplicate submission suppressed")
		h.reject(w, kind, http.StatusTooManyRequests, MsgDuplicate, metrics.OutcomeDuplicate)
		return
	}

	if err := h.deliver(ctx, sub); err != nil {
		log.Error("relay failed", "error", err)
		h.reject(w, kind, http.StatusBadGateway, MsgUpstream, metrics.OutcomeUpstreamFail)
		return
	}

	h.metrics.ObserveSubmission(string(kind), metrics.OutcomeRelayed)
	writeJSON(w, http.StatusOK, Response{OK: true})
}

// deliver composes and relays sub. A panic in either step becomes an error
// so one bad submission cannot take the process down.
func (h *Handler) deliver(ctx context.Context, sub submission.Submission) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("intake: relay panic: %v", rec)
		}
	}()
	return h.relay.Send(ctx, sub.Kind(), format.Compose(sub))
}

func (h *Handler) reject(w http.ResponseWriter, kind submission.Kind, status int, msg, outcome string) {
	h.metrics.ObserveSubmission(string(kind), outcome)
	writeJSON(w, status, Response{OK: false, Error: msg})
}

func validatePayload(kind submission.Kind, p submission.Payload) (submission.Submission, error) {
	if kind == submission.KindLead {
		return submission.ValidateLead(p)
	}
	return submission.ValidateOrder(p)
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
