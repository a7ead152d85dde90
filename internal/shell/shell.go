// Package shell mounts the widget into a host page inside an isolated root so
// host styles never leak in and widget styles never leak out.
package shell

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"qualify/internal/render"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var ErrIsolationUnsupported = errors.New("host does not support shadow root isolation")

// Host is the embedding page
type Host interface {
	SupportsIsolation() bool
	Attach(container *html.Node) error
	Detach(container *html.Node) error
	// Listen installs a delegated listener on container and returns its remover
	Listen(container *html.Node, fn func(action, value string)) (remove func())
	// Update runs fn while nothing else reads or writes the document
	Update(fn func())
}

// Handler receives the value carried by a dispatched action
type Handler func(value string)

type Shell struct {
	mu        sync.Mutex
	host      Host
	log       *zap.Logger
	id        string
	mobile    bool
	mounted   bool
	container *html.Node
	root      *html.Node
	handlers  map[string]Handler
	cleanups  []func()
}

func New(host Host, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{
		host:     host,
		log:      log,
		id:       "qualify-widget-" + strings.ToLower(ulid.Make().String()),
		handlers: make(map[string]Handler),
	}
}

// ID is the container element id
func (s *Shell) ID() string {
	return s.id
}

// Mount attaches the container to the host. Calling it again while mounted
// does nothing.
func (s *Shell) Mount(mobile bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return nil
	}
	if s.host == nil || !s.host.SupportsIsolation() {
		return ErrIsolationUnsupported
	}

	s.mobile = mobile
	style := render.Element("style")
	style.AppendChild(render.Text(render.Stylesheet(mobile)))
	s.root = render.Element("div", "class", "qualify-root")

	tmpl := render.Element("template", "shadowrootmode", "open")
	tmpl.AppendChild(style)
	tmpl.AppendChild(s.root)

	s.container = render.Element("div", "id", s.id, "class", "qualify-widget-container", "style", position(mobile, 0))
	s.container.AppendChild(tmpl)

	if err := s.host.Attach(s.container); err != nil {
		return err
	}
	remove := s.host.Listen(s.container, func(action, value string) {
		s.Dispatch(action, value)
	})
	s.cleanups = append(s.cleanups, remove)
	s.mounted = true
	return nil
}

// Unmount detaches the container and releases every registered listener
func (s *Shell) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	container := s.container
	cleanups := s.cleanups
	s.cleanups = nil
	s.handlers = make(map[string]Handler)
	s.mu.Unlock()

	if err := s.host.Detach(container); err != nil {
		s.log.Warn("Failed to detach widget container", zap.String("id", s.id), zap.Error(err))
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (s *Shell) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Replace swaps the content root's children for n. It reports false when the
// shell is not mounted.
func (s *Shell) Replace(n *html.Node) bool {
	s.mu.Lock()
	root := s.root
	mounted := s.mounted
	s.mu.Unlock()
	if !mounted {
		return false
	}

	s.host.Update(func() {
		for c := root.FirstChild; c != nil; {
			next := c.NextSibling
			root.RemoveChild(c)
			c = next
		}
		if n != nil {
			root.AppendChild(n)
		}
	})
	return true
}

// Reposition shifts the container up by offsetY pixels, used when an
// on-screen keyboard shrinks the visual viewport
func (s *Shell) Reposition(offsetY int) {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	container, style := s.container, position(s.mobile, offsetY)
	s.mu.Unlock()

	s.host.Update(func() {
		for i, a := range container.Attr {
			if a.Key == "style" {
				container.Attr[i].Val = style
			}
		}
	})
}

// On registers h for action. Handlers are dropped on unmount.
func (s *Shell) On(action string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = h
}

// AddCleanup registers fn to run on unmount
func (s *Shell) AddCleanup(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// Dispatch routes a delegated action to its handler. It is a no-op after
// unmount or for unknown actions.
func (s *Shell) Dispatch(action, value string) bool {
	s.mu.Lock()
	h, ok := s.handlers[action]
	mounted := s.mounted
	s.mu.Unlock()
	if !mounted || !ok {
		return false
	}
	h(value)
	return true
}

func position(mobile bool, offsetY int) string {
	var b strings.Builder
	if mobile {
		b.WriteString("position:fixed;bottom:16px;left:16px;right:16px;z-index:2147483647;")
	} else {
		b.WriteString("position:fixed;bottom:24px;right:24px;z-index:2147483647;")
	}
	if offsetY > 0 {
		fmt.Fprintf(&b, "transform:translateY(-%dpx);", offsetY)
	}
	return b.String()
}
