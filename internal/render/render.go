// Package render turns a widget view into an HTML node tree. Rendering is a
// pure function of the view; every string that reaches the tree is placed in a
// text node or attribute value and escaped on serialisation.
package render

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"qualify/internal/conversation"
	"qualify/internal/model"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Actions carried in data-action attributes and dispatched by the shell
const (
	ActionOpen     = "open"
	ActionClose    = "close"
	ActionAnswer   = "answer"
	ActionReload   = "reload"
	ActionSchedule = "schedule"
)

const poweredByURL = "https://qualify.ai"

// View is everything the render layer needs to draw one state
type View struct {
	Phase          conversation.Phase
	Question       model.Question
	Index          int
	Total          int
	PreviousAnswer string
	Offline        bool
	CalendlyURL    string
	APIKey         string
	HidePoweredBy  bool
}

// Render builds the widget subtree for v
func Render(v View) *html.Node {
	switch v.Phase {
	case conversation.Closed:
		return launcher()
	case conversation.Open:
		return panel(v, loading())
	case conversation.Asking, conversation.Submitting:
		return panel(v, questionBody(v)...)
	case conversation.Qualified:
		return result(qualifiedBody(v)...)
	case conversation.NotQualified:
		return result(
			el("h3", attrs("class", "title"), text("Thanks for your responses!")),
			el("p", attrs("class", "muted"), text("We'll be in touch if we can help.")),
		)
	case conversation.OfflineSaved:
		return result(
			el("div", attrs("class", "icon icon-offline", "aria-hidden", "true")),
			el("h3", attrs("class", "title"), text("Saved offline")),
			el("p", attrs("class", "muted"), text("Your responses have been saved and will be submitted when you're back online.")),
		)
	case conversation.Failed:
		return result(
			el("div", attrs("class", "error-message"), el("p", nil, text("Something went wrong. Please try again later."))),
			el("button", attrs("type", "button", "class", "submit-btn", "data-action", ActionReload), text("Reload Page")),
		)
	}
	return launcher()
}

// HTML serialises a rendered tree
func HTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func launcher() *html.Node {
	return el("div", attrs("class", "widget minimized", "id", "widget-container"),
		el("button", attrs("type", "button", "class", "launcher", "data-action", ActionOpen, "aria-label", "Open chat"),
			el("span", attrs("class", "launcher-icon", "aria-hidden", "true")),
		),
	)
}

func panel(v View, body ...*html.Node) *html.Node {
	bodyNode := el("div", attrs("class", "widget-body"))
	if v.Offline {
		bodyNode.AppendChild(el("div", attrs("class", "offline-indicator", "role", "status"),
			text("You're offline - responses will be saved")))
	}
	for _, n := range body {
		bodyNode.AppendChild(n)
	}
	if !v.HidePoweredBy {
		bodyNode.AppendChild(poweredBy(v.APIKey))
	}

	return el("div", attrs("class", "widget", "id", "widget-container"),
		el("div", attrs("class", "widget-header"),
			el("h3", attrs("class", "header-title"), text("Quick question")),
			el("button", attrs("type", "button", "class", "close-btn", "data-action", ActionClose, "aria-label", "Close"), text("×")),
		),
		bodyNode,
	)
}

func loading() *html.Node {
	return el("div", attrs("class", "loading"),
		el("span", attrs("class", "spinner")),
		text(" Loading..."),
	)
}

func questionBody(v View) []*html.Node {
	submitting := v.Phase == conversation.Submitting
	var nodes []*html.Node

	if v.Total > 0 {
		nodes = append(nodes, el("div", attrs("class", "progress"),
			text(fmt.Sprintf("%d of %d", v.Index+1, v.Total))))
	}
	if v.PreviousAnswer != "" {
		nodes = append(nodes, el("div", attrs("class", "echo"),
			el("span", attrs("class", "echo-label"), text("You said: ")),
			el("span", attrs("class", "echo-text"), text(v.PreviousAnswer)),
		))
	}
	nodes = append(nodes, el("div", attrs("class", "question"), text(v.Question.Text)))

	form := el("form", attrs("id", "question-form", "data-action", ActionAnswer))
	if v.Question.Type == model.QuestionSelect && len(v.Question.Options) > 0 {
		opts := el("div", attrs("class", "options"))
		for _, o := range v.Question.Options {
			btn := el("button", attrs("type", "button", "class", "option-btn", "data-action", ActionAnswer, "data-value", o), text(o))
			if submitting {
				btn.Attr = append(btn.Attr, html.Attribute{Key: "disabled"})
			}
			opts.AppendChild(btn)
		}
		form.AppendChild(opts)
	} else {
		form.AppendChild(el("div", attrs("class", "input-wrapper"), input(v.Question.Type, submitting)))
	}

	label := "Next"
	if v.Index >= v.Total-1 {
		label = "Submit"
	}
	btn := el("button", attrs("type", "submit", "class", "submit-btn"))
	if submitting {
		btn.Attr = append(btn.Attr, html.Attribute{Key: "disabled"})
		btn.AppendChild(el("span", attrs("class", "spinner")))
		btn.AppendChild(text(" Processing..."))
	} else {
		btn.AppendChild(text(label))
	}
	form.AppendChild(btn)

	return append(nodes, form)
}

func input(t model.QuestionType, disabled bool) *html.Node {
	var n *html.Node
	switch t {
	case model.QuestionEmail:
		n = el("input", attrs("id", "answer-input", "class", "input", "name", "answer", "type", "email", "autocomplete", "email", "placeholder", "you@company.com"))
	case model.QuestionPhone:
		n = el("input", attrs("id", "answer-input", "class", "input", "name", "answer", "type", "tel", "autocomplete", "tel", "placeholder", "Phone number"))
	default:
		n = el("textarea", attrs("id", "answer-input", "class", "input", "name", "answer", "rows", "3", "placeholder", "Type your answer...", "autocomplete", "off", "spellcheck", "true"))
	}
	if disabled {
		n.Attr = append(n.Attr, html.Attribute{Key: "disabled"})
	}
	return n
}

func qualifiedBody(v View) []*html.Node {
	nodes := []*html.Node{
		el("div", attrs("class", "icon icon-check", "aria-hidden", "true")),
		el("h3", attrs("class", "title"), text("Great! You qualify!")),
		el("p", attrs("class", "muted"), text("Based on your responses, we'd love to show you a demo.")),
	}
	if href, ok := safeURL(v.CalendlyURL); ok {
		nodes = append(nodes, el("a", attrs("href", href, "target", "_blank", "rel", "noopener", "class", "submit-btn", "data-action", ActionSchedule), text("Schedule Demo")))
	} else {
		nodes = append(nodes, el("p", attrs("class", "accent"), text("Someone will reach out within 24 hours!")))
	}
	return nodes
}

func result(children ...*html.Node) *html.Node {
	body := el("div", attrs("class", "widget-body result"), children...)
	return el("div", attrs("class", "widget", "id", "widget-container"), body)
}

func poweredBy(apiKey string) *html.Node {
	href := poweredByURL + "?ref=" + url.QueryEscape(apiKey)
	return el("div", attrs("class", "powered-by"),
		el("a", attrs("href", href, "target", "_blank", "rel", "noopener"), text("AI Qualified by Qualify.ai")))
}

// safeURL accepts only absolute http(s) links
func safeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", false
	}
	return u.String(), true
}

func el(tag string, a []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     a,
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attrs(kv ...string) []html.Attribute {
	out := make([]html.Attribute, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return out
}

// Element is exported for the shell, which builds its container with the same helpers
func Element(tag string, kv ...string) *html.Node {
	return el(tag, attrs(kv...))
}

// Text creates a text node
func Text(s string) *html.Node {
	return text(s)
}
