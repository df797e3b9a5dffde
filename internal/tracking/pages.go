package tracking

import (
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

const successPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Unsubscribed</title></head>
<body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
<h1>You have been unsubscribed</h1>
<p>{% if already %}Your address was already removed from this list.{% else %}You will no longer receive marketing emails from us.{% endif %}</p>
</body>
</html>`

const failurePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Unsubscribe failed</title></head>
<body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
<h1>We could not process your request</h1>
<p>{% if reason == "unknown_tracking_id" %}This unsubscribe link is invalid or has expired.{% else %}Something went wrong on our side. Please try the link again later.{% endif %}</p>
</body>
</html>`

// staticFailure is served if a template fails to render.
const staticFailure = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
<h1>We could not process your request</h1></body></html>`

// Pages renders the unsubscribe confirmation pages.
type Pages struct {
	success *liquid.Template
	failure *liquid.Template
}

// NewPages compiles custom success and failure templates. Both receive the
// bindings "reason" and "already".
func NewPages(successTpl, failureTpl string) (*Pages, error) {
	engine := liquid.NewEngine()
	s, err := engine.ParseString(successTpl)
	if err != nil {
		return nil, fmt.Errorf("parse success page: %w", err)
	}
	f, err := engine.ParseString(failureTpl)
	if err != nil {
		return nil, fmt.Errorf("parse failure page: %w", err)
	}
	return &Pages{success: s, failure: f}, nil
}

// DefaultPages returns the built-in pages.
func DefaultPages() *Pages {
	p, err := NewPages(successPage, failurePage)
	if err != nil {
		panic(err)
	}
	return p
}

// Render returns the page for out. Any render error yields a static
// failure page.
func (p *Pages) Render(out Outcome) string {
	tpl := p.failure
	if out.OK() {
		tpl = p.success
	}
	html, err := tpl.RenderString(map[string]interface{}{
		"reason":  out.Reason,
		"already": out.OK() && !out.FirstOccurrence,
	})
	if err != nil {
		logger.Error("unsubscribe page render failed", "error", err)
		return staticFailure
	}
	return html
}
