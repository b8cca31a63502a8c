package report

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/twistylocks/outreach/internal/config"
	"github.com/twistylocks/outreach/internal/domain"
	"github.com/twistylocks/outreach/internal/pkg/logger"
)

// Publisher delivers a finished report somewhere. Fire-and-forget from the
// aggregator's point of view.
type Publisher interface {
	Publish(ctx context.Context, rep *domain.Report) error
}

// LogPublisher writes the report to the process log. The fallback when mail
// delivery is not configured.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(_ context.Context, rep *domain.Report) error {
	log.Printf("[Report] %s %s – %s: jobs=%d statuses=%v bookings=%d opt-outs=%d follow-ups=%d aborted-runs=%d",
		rep.Period,
		rep.From.Format("2006-01-02"), rep.To.Add(-time.Second).Format("2006-01-02"),
		rep.TotalJobs, rep.ByStatus, rep.Bookings, rep.OptOuts, rep.FollowUps, len(rep.AbortedRuns))
	return nil
}

// SESPublisher mails the report to the salon manager through AWS SES.
type SESPublisher struct {
	client    *sesv2.Client
	from      string
	to        string
	salonName string
}

// NewSESPublisher creates a mail publisher. Returns an error when
// credentials are missing so the caller can fall back to log publishing.
func NewSESPublisher(cfg config.ReportsConfig, salonName string) (*SESPublisher, error) {
	if cfg.SESAccessKey == "" || cfg.SESSecretKey == "" || cfg.ManagerEmail == "" {
		return nil, fmt.Errorf("ses publisher not configured")
	}
	region := cfg.SESRegion
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return &SESPublisher{
		client:    sesv2.NewFromConfig(awsCfg),
		from:      cfg.FromEmail,
		to:        cfg.ManagerEmail,
		salonName: salonName,
	}, nil
}

// Publish implements Publisher.
func (p *SESPublisher) Publish(ctx context.Context, rep *domain.Report) error {
	subject := fmt.Sprintf("%s %s outreach report – %s",
		p.salonName, rep.Period, rep.GeneratedAt.Format("Jan 2, 2006"))

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", p.salonName, p.from)),
		Destination:      &types.Destination{ToAddresses: []string{p.to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(RenderHTML(rep)), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	log.Printf("[Report] Mailed %s report to %s", rep.Period, logger.RedactEmail(p.to))
	return nil
}

// RenderHTML renders the manager-facing summary email.
func RenderHTML(rep *domain.Report) string {
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family:sans-serif\">")
	fmt.Fprintf(&b, "<h2>%s outreach report</h2>", titleCase(string(rep.Period)))
	fmt.Fprintf(&b, "<p>%s – %s</p>",
		rep.From.Format("Mon Jan 2"), rep.To.Add(-time.Second).Format("Mon Jan 2"))

	fmt.Fprintf(&b, "<p><b>%d</b> contact jobs, <b>%d</b> bookings, <b>%d</b> opt-outs, <b>%d</b> follow-ups to revisit</p>",
		rep.TotalJobs, rep.Bookings, rep.OptOuts, rep.FollowUps)

	b.WriteString("<h3>By status</h3><ul>")
	for _, status := range []domain.JobStatus{
		domain.JobCompleted, domain.JobSent, domain.JobPending,
		domain.JobRetried, domain.JobFailed, domain.JobSuppressed,
	} {
		if n := rep.ByStatus[status]; n > 0 {
			fmt.Fprintf(&b, "<li>%s: %d</li>", status, n)
		}
	}
	b.WriteString("</ul>")

	if len(rep.ByPromotion) > 0 {
		b.WriteString("<h3>By promotion</h3><table border=\"1\" cellpadding=\"4\">")
		b.WriteString("<tr><th>Promotion</th><th>Jobs</th><th>Sent</th><th>Booked</th><th>Declined</th></tr>")
		for _, p := range rep.ByPromotion {
			name := p.PromotionName
			if name == "" {
				name = p.PromotionID
			}
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr>",
				name, p.Jobs, p.Sent, p.Booked, p.Declined)
		}
		b.WriteString("</table>")
	}

	if len(rep.Denials) > 0 {
		b.WriteString("<h3>Exclusions</h3><ul>")
		for _, reason := range []domain.DenialReason{
			domain.DenialOptedOut, domain.DenialQuietHours, domain.DenialDailyCap,
			domain.DenialStaleConsent, domain.DenialNoPromotion, domain.DenialAlreadySent,
		} {
			if n := rep.Denials[reason]; n > 0 {
				fmt.Fprintf(&b, "<li>%s: %d</li>", reason, n)
			}
		}
		b.WriteString("</ul>")
	}

	if len(rep.AbortedRuns) > 0 {
		b.WriteString("<h3>Aborted runs</h3><ul>")
		for _, run := range rep.AbortedRuns {
			fmt.Fprintf(&b, "<li>%s at %s: %s</li>",
				run.CampaignID, run.StartedAt.Format("15:04"), run.AbortReason)
		}
		b.WriteString("</ul>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

// titleCase capitalizes the first letter of an ASCII period label.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
