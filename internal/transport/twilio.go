package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/pkg/logger"
)

// TwilioSender delivers calls and SMS through the Twilio REST API. Calls use
// the Calls endpoint with inline TwiML; SMS uses the Messages endpoint.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
}

// NewTwilioSender creates a sender from transport configuration.
func NewTwilioSender(cfg config.TransportConfig) *TwilioSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com/2010-04-01"
	}
	return &TwilioSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: cfg.Timeout()},
	}
}

// Send implements Sender.
func (s *TwilioSender) Send(ctx context.Context, ch domain.Channel, msg Message) (*DeliveryResult, error) {
	if s.accountSID == "" || s.authToken == "" {
		return nil, fmt.Errorf("twilio credentials not configured")
	}

	form := url.Values{}
	form.Add("To", msg.To)
	form.Add("From", s.fromNumber)

	var endpoint string
	switch ch {
	case domain.ChannelCall:
		endpoint = fmt.Sprintf("%s/Accounts/%s/Calls.json", s.baseURL, s.accountSID)
		form.Add("Twiml", fmt.Sprintf("<Response><Say>%s</Say></Response>", xmlEscape(msg.Body)))
	case domain.ChannelSMS:
		endpoint = fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
		form.Add("Body", msg.Body)
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", ErrPermanent, ch)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors are transient by definition.
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, classifyError(resp.StatusCode, body)
	}

	var result struct {
		Sid string `json:"sid"`
	}
	json.Unmarshal(body, &result)
	log.Printf("[Transport] Accepted %s %s to %s (sid: %s)",
		ch, msg.JobID, logger.RedactPhone(msg.To), result.Sid)

	return &DeliveryResult{ProviderID: result.Sid, AcceptedAt: time.Now()}, nil
}

// Twilio error codes that mean the destination itself is bad. Retrying the
// same number cannot succeed.
var permanentCodes = map[int]bool{
	21211: true, // invalid To number
	21214: true, // not a valid mobile number
	21610: true, // recipient has blacklisted this sender
	13224: true, // number not reachable
}

func classifyError(status int, body []byte) error {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	json.Unmarshal(body, &apiErr)

	// 429 and 5xx are provider-side and retryable. 4xx means the request
	// itself is wrong and will fail identically on retry.
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("provider error %d (code %d): %s", status, apiErr.Code, apiErr.Message)
	}
	if permanentCodes[apiErr.Code] || status >= 400 {
		return fmt.Errorf("%w: provider error %d (code %d): %s", ErrPermanent, status, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("provider error %d: %s", status, string(body))
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}

// LogSender logs instead of contacting a provider. Used when transport.mock
// is set, e.g. in staging.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, ch domain.Channel, msg Message) (*DeliveryResult, error) {
	log.Printf("[Transport] MOCK %s %s to %s: %s",
		ch, msg.JobID, logger.RedactPhone(msg.To), truncate(msg.Body, 80))
	return &DeliveryResult{ProviderID: "mock-" + msg.JobID, AcceptedAt: time.Now()}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
