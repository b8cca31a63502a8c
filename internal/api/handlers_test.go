package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/outcome"
	"github.com/twistylocks/outreach/internal/store"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	done chan string
}

func (f *fakeRunner) Run(_ context.Context, campaignID string) (*domain.RunSummary, error) {
	f.mu.Lock()
	f.runs = append(f.runs, campaignID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- campaignID
	}
	return &domain.RunSummary{CampaignID: campaignID}, nil
}

type fakeRecorder struct {
	recorded map[string]domain.OutcomeResult
	inbound  []string
	err      error
}

func (f *fakeRecorder) Record(_ context.Context, jobID string, result domain.OutcomeResult) error {
	if f.err != nil {
		return f.err
	}
	if f.recorded == nil {
		f.recorded = make(map[string]domain.OutcomeResult)
	}
	f.recorded[jobID] = result
	return nil
}

func (f *fakeRecorder) HandleInboundMessage(_ context.Context, customerID string, _ domain.Channel, body string) (bool, error) {
	f.inbound = append(f.inbound, customerID+":"+body)
	return strings.EqualFold(strings.TrimSpace(body), "stop"), nil
}

type fakeReports struct{}

func (fakeReports) Summarize(_ context.Context, period domain.ReportPeriod, _ time.Time) (*domain.Report, error) {
	return &domain.Report{Period: period, TotalJobs: 5}, nil
}

func testServer(runner *fakeRunner, recorder *fakeRecorder) (*httptest.Server, *store.Memory) {
	mem := store.NewMemory()
	h := NewHandlers(runner, recorder, fakeReports{}, mem)
	return httptest.NewServer(SetupRoutes(h)), mem
}

func TestHealthCheck(t *testing.T) {
	srv, _ := testServer(&fakeRunner{}, &fakeRecorder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRunCampaignTriggersAsync(t *testing.T) {
	runner := &fakeRunner{done: make(chan string, 1)}
	srv, _ := testServer(runner, &fakeRecorder{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/campaigns/weekday-promo/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST run: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	select {
	case id := <-runner.done:
		if id != "weekday-promo" {
			t.Fatalf("ran %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run never triggered")
	}
}

func TestDeliveryWebhook(t *testing.T) {
	recorder := &fakeRecorder{}
	srv, _ := testServer(&fakeRunner{}, recorder)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/webhooks/delivery", "application/json",
		strings.NewReader(`{"job_id":"job-1","result":"customer-booked"}`))
	if err != nil {
		t.Fatalf("POST delivery: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if recorder.recorded["job-1"] != domain.OutcomeBooked {
		t.Fatalf("recorded = %v", recorder.recorded)
	}
}

func TestDeliveryWebhookErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest},
		{"invalid result", `{"job_id":"j","result":"x"}`, outcome.ErrInvalidResult, http.StatusBadRequest},
		{"unknown job", `{"job_id":"j","result":"delivered"}`, outcome.ErrUnknownJob, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(&fakeRunner{}, &fakeRecorder{err: tt.err})
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/webhooks/delivery", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestInboundWebhookResolvesPhone(t *testing.T) {
	recorder := &fakeRecorder{}
	srv, mem := testServer(&fakeRunner{}, recorder)
	defer srv.Close()
	mem.SeedCustomers(domain.Customer{ID: "cust-1", Phone: "+15551230042", Active: true})

	resp, err := http.Post(srv.URL+"/api/webhooks/inbound", "application/json",
		strings.NewReader(`{"from":"+15551230042","channel":"sms","body":"STOP"}`))
	if err != nil {
		t.Fatalf("POST inbound: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		OptOut bool `json:"opt_out"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK || !out.OptOut {
		t.Fatalf("status = %d opt_out = %v", resp.StatusCode, out.OptOut)
	}
	if len(recorder.inbound) != 1 || recorder.inbound[0] != "cust-1:STOP" {
		t.Fatalf("inbound = %v", recorder.inbound)
	}
}

func TestInboundWebhookUnknownSender(t *testing.T) {
	srv, _ := testServer(&fakeRunner{}, &fakeRecorder{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/webhooks/inbound", "application/json",
		strings.NewReader(`{"from":"+19990000000","body":"STOP"}`))
	if err != nil {
		t.Fatalf("POST inbound: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetReport(t *testing.T) {
	srv, _ := testServer(&fakeRunner{}, &fakeRecorder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/reports/daily")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var rep domain.Report
	json.NewDecoder(resp.Body).Decode(&rep)
	if rep.Period != domain.PeriodDaily || rep.TotalJobs != 5 {
		t.Fatalf("report = %+v", rep)
	}

	bad, err := http.Get(srv.URL + "/api/reports/hourly")
	if err != nil {
		t.Fatalf("GET bad report: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", bad.StatusCode)
	}
}
