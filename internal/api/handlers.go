// Package api exposes the HTTP surface: campaign triggers, provider
// webhooks, and report queries.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twistylocks/outreach/internal/campaign"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/outcome"
	"github.com/twistylocks/outreach/internal/pkg/httputil"
	"github.com/twistylocks/outreach/internal/store"
)

// CampaignRunner triggers campaign runs.
type CampaignRunner interface {
	Run(ctx context.Context, campaignID string) (*domain.RunSummary, error)
}

// OutcomeRecorder consumes delivery results and inbound replies.
type OutcomeRecorder interface {
	Record(ctx context.Context, jobID string, result domain.OutcomeResult) error
	HandleInboundMessage(ctx context.Context, customerID string, ch domain.Channel, body string) (bool, error)
}

// ReportSource builds reports on demand.
type ReportSource interface {
	Summarize(ctx context.Context, period domain.ReportPeriod, asOf time.Time) (*domain.Report, error)
}

// Handlers carries the HTTP handler dependencies.
type Handlers struct {
	runner   CampaignRunner
	recorder OutcomeRecorder
	reports  ReportSource
	store    store.CustomerStore
}

// NewHandlers wires the handler set.
func NewHandlers(runner CampaignRunner, recorder OutcomeRecorder, reports ReportSource, customers store.CustomerStore) *Handlers {
	return &Handlers{runner: runner, recorder: recorder, reports: reports, store: customers}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunCampaign triggers a campaign run in the background and returns
// immediately. A second trigger while a run holds the lock gets 409.
func (h *Handlers) RunCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	if campaignID == "" {
		httputil.BadRequest(w, "missing campaign id")
		return
	}

	go func() {
		// Detached from the request: the run outlives the HTTP exchange.
		if _, err := h.runner.Run(context.Background(), campaignID); err != nil && !errors.Is(err, campaign.ErrRunInProgress) {
			log.Printf("[API] Campaign %s run failed: %v", campaignID, err)
		}
	}()

	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": campaignID,
		"status":      "triggered",
	})
}

type deliveryWebhook struct {
	JobID  string `json:"job_id"`
	Result string `json:"result"`
}

// DeliveryWebhook receives provider delivery results.
func (h *Handlers) DeliveryWebhook(w http.ResponseWriter, r *http.Request) {
	var payload deliveryWebhook
	if !httputil.Decode(w, r, &payload) {
		return
	}

	err := h.recorder.Record(r.Context(), payload.JobID, domain.OutcomeResult(payload.Result))
	switch {
	case errors.Is(err, outcome.ErrInvalidResult):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, outcome.ErrUnknownJob):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

type inboundWebhook struct {
	CustomerID string `json:"customer_id"`
	From       string `json:"from"`
	Channel    string `json:"channel"`
	Body       string `json:"body"`
}

// InboundWebhook receives customer replies. The payload carries either a
// customer ID or the sender's phone number.
func (h *Handlers) InboundWebhook(w http.ResponseWriter, r *http.Request) {
	var payload inboundWebhook
	if !httputil.Decode(w, r, &payload) {
		return
	}

	ch := domain.Channel(payload.Channel)
	if !ch.Valid() {
		ch = domain.ChannelSMS
	}

	customerID := payload.CustomerID
	if customerID == "" {
		id, err := h.customerByPhone(r.Context(), payload.From)
		if err != nil {
			httputil.NotFound(w, "unknown sender")
			return
		}
		customerID = id
	}

	matched, err := h.recorder.HandleInboundMessage(r.Context(), customerID, ch, payload.Body)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "received",
		"opt_out": matched,
	})
}

func (h *Handlers) customerByPhone(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", store.ErrNotFound
	}
	customers, err := h.store.ListActiveCustomers(ctx)
	if err != nil {
		return "", err
	}
	normalized := strings.TrimSpace(phone)
	for _, c := range customers {
		if c.Phone == normalized {
			return c.ID, nil
		}
	}
	return "", store.ErrNotFound
}

// GetReport builds and returns the report for the requested period.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	period := domain.ReportPeriod(chi.URLParam(r, "period"))
	if !period.Valid() {
		httputil.BadRequest(w, "period must be daily or weekly")
		return
	}

	rep, err := h.reports.Summarize(r.Context(), period, time.Now())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rep)
}
