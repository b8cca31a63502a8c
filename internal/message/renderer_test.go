package message

import (
	"strings"
	"testing"
	"time"

	"github.com/twistylocks/outreach/internal/domain"
)

func testPromo() *domain.Promotion {
	return &domain.Promotion{
		ID:              "promo-1",
		Name:            "Summer Braids Special",
		Description:     "Any braid style with your favorite stylist.",
		DiscountPercent: 20,
		EndDate:         time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestRenderCallScript(t *testing.T) {
	r := NewRenderer("Twisty Locks", "+15550000")
	cust := &domain.Customer{FirstName: "Maya"}

	out, err := r.Render(domain.ChannelCall, cust, testPromo())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{"Maya", "Twisty Locks", "Summer Braids Special", "20% off", "August 31", "STOP"} {
		if !strings.Contains(out, want) {
			t.Errorf("script missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSMSBody(t *testing.T) {
	r := NewRenderer("Twisty Locks", "+15550000")
	cust := &domain.Customer{FirstName: "Maya"}

	out, err := r.Render(domain.ChannelSMS, cust, testPromo())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Aug 31") || !strings.Contains(out, "STOP") {
		t.Errorf("sms body incomplete:\n%s", out)
	}
}

func TestRenderDefaultsMissingName(t *testing.T) {
	r := NewRenderer("Twisty Locks", "+15550000")

	out, err := r.Render(domain.ChannelCall, &domain.Customer{}, testPromo())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Hi there,") {
		t.Errorf("missing first name must fall back to greeting:\n%s", out)
	}
}

func TestRenderFlatDiscount(t *testing.T) {
	r := NewRenderer("Twisty Locks", "+15550000")
	promo := testPromo()
	promo.DiscountPercent = 0
	promo.DiscountAmount = 15

	out, err := r.Render(domain.ChannelSMS, &domain.Customer{FirstName: "Maya"}, promo)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "$15.00 off") {
		t.Errorf("flat discount not rendered:\n%s", out)
	}
}

func TestSetTemplateOverride(t *testing.T) {
	r := NewRenderer("Twisty Locks", "+15550000")
	r.SetTemplate(domain.ChannelSMS, "{{ salon_name }}: custom")

	out, err := r.Render(domain.ChannelSMS, &domain.Customer{}, testPromo())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Twisty Locks: custom" {
		t.Errorf("override not applied: %q", out)
	}
}

func TestRenderBadTemplate(t *testing.T) {
	r := NewRenderer("Twisty Locks", "+15550000")
	r.SetTemplate(domain.ChannelSMS, "{% if %}")

	if _, err := r.Render(domain.ChannelSMS, &domain.Customer{}, testPromo()); err == nil {
		t.Fatal("malformed template must error")
	}
}
