package shell

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const blankPage = `<!DOCTYPE html><html><head><title></title></head><body></body></html>`

// DocumentHost is an in-memory host page. It stands in for a browser document
// in the CLI and in tests.
type DocumentHost struct {
	mu        sync.Mutex
	doc       *html.Node
	body      *html.Node
	isolation bool
	listeners map[*html.Node]func(action, value string)
}

// NewDocumentHost parses page, or a blank page when page is empty
func NewDocumentHost(page string) (*DocumentHost, error) {
	if strings.TrimSpace(page) == "" {
		page = blankPage
	}
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse host page: %w", err)
	}
	body := findElement(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if body == nil {
		return nil, errors.New("host page has no body")
	}
	return &DocumentHost{
		doc:       doc,
		body:      body,
		isolation: true,
		listeners: make(map[*html.Node]func(action, value string)),
	}, nil
}

// SetIsolation toggles shadow root support, for hosts that lack it
func (h *DocumentHost) SetIsolation(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isolation = ok
}

func (h *DocumentHost) SupportsIsolation() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isolation
}

func (h *DocumentHost) Attach(container *html.Node) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if container.Parent != nil {
		return errors.New("container already attached")
	}
	h.body.AppendChild(container)
	return nil
}

func (h *DocumentHost) Detach(container *html.Node) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if container.Parent == nil {
		return errors.New("container not attached")
	}
	container.Parent.RemoveChild(container)
	return nil
}

func (h *DocumentHost) Listen(container *html.Node, fn func(action, value string)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[container] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, container)
	}
}

func (h *DocumentHost) Update(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

// Click simulates the visitor activating a control carrying data-action. For
// controls with a data-value the value must match. It reports false when no
// enabled control matches or nothing listens on its container.
func (h *DocumentHost) Click(action, value string) bool {
	h.mu.Lock()
	var fire func(string, string)
	for container, fn := range h.listeners {
		if container.Parent == nil {
			continue
		}
		target := findElement(container, func(n *html.Node) bool {
			if attrVal(n, "data-action") != action || hasAttr(n, "disabled") {
				return false
			}
			if v, ok := attrOK(n, "data-value"); ok && v != value {
				return false
			}
			return true
		})
		if target != nil {
			fire = fn
			break
		}
	}
	h.mu.Unlock()

	if fire == nil {
		return false
	}
	fire(action, value)
	return true
}

// Listeners reports how many delegated listeners are installed
func (h *DocumentHost) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// HTML serialises the whole page
func (h *DocumentHost) HTML() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, h.doc); err != nil {
		return ""
	}
	return buf.String()
}

// Text returns the visible text inside attached widget roots
func (h *DocumentHost) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Style || n.DataAtom == atom.Script) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for container := range h.listeners {
		walk(container)
	}
	return b.String()
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrVal(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrOK(n, key)
	return ok
}
