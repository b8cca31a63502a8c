// Package message renders call scripts and SMS bodies from Liquid templates.
package message

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/twistylocks/outreach/internal/domain"
)

// Default templates. Deployments override these through the renderer's
// SetTemplate to match the salon's voice.
const (
	defaultCallScript = `Hi {{ first_name | default: "there" }}, this is {{ salon_name }}. ` +
		`We have a special offer for you: {{ promo_name }}. {{ promo_description }} ` +
		`{% if discount_percent > 0 %}That's {{ discount_percent | percentage }} off.{% endif %}` +
		`{% if discount_amount > 0 %}That's {{ discount_amount | currency }} off.{% endif %} ` +
		`The offer runs through {{ end_date | date: "%B %d" }}. ` +
		`Call us back at {{ salon_phone }} to book. Reply STOP to opt out of future calls.`

	defaultSMSBody = `{{ salon_name }}: {{ first_name | default: "Hi" }}, {{ promo_name }} — ` +
		`{% if discount_percent > 0 %}{{ discount_percent | percentage }} off{% endif %}` +
		`{% if discount_amount > 0 %}{{ discount_amount | currency }} off{% endif %} ` +
		`through {{ end_date | date: "%b %d" }}. Book: {{ salon_phone }}. Reply STOP to opt out.`
)

// Renderer renders personalized contact content. Parsed templates are cached;
// the renderer is safe for concurrent use.
type Renderer struct {
	engine     *liquid.Engine
	salonName  string
	salonPhone string

	mu        sync.RWMutex
	templates map[domain.Channel]string
	cache     sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the default templates and custom
// filters registered.
func NewRenderer(salonName, salonPhone string) *Renderer {
	r := &Renderer{
		engine:     liquid.NewEngine(),
		salonName:  salonName,
		salonPhone: salonPhone,
		templates: map[domain.Channel]string{
			domain.ChannelCall: defaultCallScript,
			domain.ChannelSMS:  defaultSMSBody,
		},
	}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ discount_amount | currency }}
	r.engine.RegisterFilter("currency", func(value interface{}) string {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case int:
			f = float64(v)
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return v
			}
			f = parsed
		default:
			return fmt.Sprintf("%v", value)
		}
		return fmt.Sprintf("$%.2f", f)
	})

	// {{ discount_percent | percentage }}
	r.engine.RegisterFilter("percentage", func(value interface{}) string {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case int:
			f = float64(v)
		default:
			return fmt.Sprintf("%v", value)
		}
		// Whole percentages read better spoken aloud.
		if f == float64(int(f)) {
			return fmt.Sprintf("%d%%", int(f))
		}
		return fmt.Sprintf("%.1f%%", f)
	})
}

// SetTemplate overrides the template for one channel.
func (r *Renderer) SetTemplate(ch domain.Channel, tpl string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[ch] = tpl
	r.cache.Delete(tpl)
}

// Render produces the contact body for one (customer, promotion) pairing.
func (r *Renderer) Render(ch domain.Channel, cust *domain.Customer, promo *domain.Promotion) (string, error) {
	r.mu.RLock()
	src, ok := r.templates[ch]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no template for channel %q", ch)
	}

	tpl, err := r.parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	bindings := map[string]interface{}{
		"first_name":        cust.FirstName,
		"full_name":         cust.FullName(),
		"salon_name":        r.salonName,
		"salon_phone":       r.salonPhone,
		"promo_name":        promo.Name,
		"promo_description": promo.Description,
		"discount_percent":  promo.DiscountPercent,
		"discount_amount":   promo.DiscountAmount,
		"end_date":          promo.EndDate,
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return strings.Join(strings.Fields(out), " "), nil
}

func (r *Renderer) parse(src string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(src); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, err
	}
	r.cache.Store(src, tpl)
	return tpl, nil
}
