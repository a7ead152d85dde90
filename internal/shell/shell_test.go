package shell

import (
	"errors"
	"strings"
	"testing"

	"qualify/internal/conversation"
	"qualify/internal/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostPage = `<!DOCTYPE html><html><head><style>div { color: red !important; }</style></head><body><main>Host content</main></body></html>`

func newHost(t *testing.T) *DocumentHost {
	t.Helper()
	h, err := NewDocumentHost(hostPage)
	require.NoError(t, err)
	return h
}

func TestShell_MountIsIdempotent(t *testing.T) {
	h := newHost(t)
	s := New(h, nil)

	require.NoError(t, s.Mount(false))
	require.NoError(t, s.Mount(false))

	page := h.HTML()
	assert.Equal(t, 1, strings.Count(page, `id="`+s.ID()+`"`))
	assert.Contains(t, page, `<template shadowrootmode="open">`)
	assert.Contains(t, page, "bottom:24px;right:24px")
	assert.Contains(t, page, "<main>Host content</main>")
	assert.Equal(t, 1, h.Listeners())
}

func TestShell_IsolationUnsupported(t *testing.T) {
	h := newHost(t)
	h.SetIsolation(false)
	s := New(h, nil)

	err := s.Mount(false)
	assert.True(t, errors.Is(err, ErrIsolationUnsupported))
	assert.False(t, s.Mounted())
	assert.NotContains(t, h.HTML(), "qualify-widget")
}

func TestShell_MobilePosition(t *testing.T) {
	h := newHost(t)
	s := New(h, nil)
	require.NoError(t, s.Mount(true))
	assert.Contains(t, h.HTML(), "left:16px;right:16px")

	assert.Contains(t, h.HTML(), "100vw")

	s.Reposition(120)
	assert.Contains(t, h.HTML(), "transform:translateY(-120px);")

	s.Reposition(0)
	assert.NotContains(t, h.HTML(), "translateY")
}

func TestShell_ReplaceAndDispatch(t *testing.T) {
	h := newHost(t)
	s := New(h, nil)
	require.NoError(t, s.Mount(false))

	var opened int
	s.On(render.ActionOpen, func(string) { opened++ })

	assert.True(t, s.Replace(render.Render(render.View{Phase: conversation.Closed})))
	assert.True(t, h.Click(render.ActionOpen, ""))
	assert.Equal(t, 1, opened)

	// the launcher is gone once the panel replaces it
	assert.True(t, s.Replace(render.Render(render.View{Phase: conversation.Open})))
	assert.False(t, h.Click(render.ActionOpen, ""))
	assert.Equal(t, 1, opened)
	assert.Contains(t, h.Text(), "Loading...")
}

func TestShell_UnmountReleasesListeners(t *testing.T) {
	h := newHost(t)
	s := New(h, nil)
	require.NoError(t, s.Mount(false))

	var cleaned bool
	s.AddCleanup(func() { cleaned = true })
	s.On(render.ActionClose, func(string) { t.Fatal("handler survived unmount") })
	s.Replace(render.Render(render.View{Phase: conversation.Open}))

	s.Unmount()
	s.Unmount()

	assert.True(t, cleaned)
	assert.False(t, s.Mounted())
	assert.Equal(t, 0, h.Listeners())
	assert.NotContains(t, h.HTML(), s.ID())
	assert.False(t, h.Click(render.ActionClose, ""))
	assert.False(t, s.Dispatch(render.ActionClose, ""))
	assert.False(t, s.Replace(render.Render(render.View{Phase: conversation.Closed})))
}

func TestDocumentHost_ClickSkipsDisabledControls(t *testing.T) {
	h := newHost(t)
	s := New(h, nil)
	require.NoError(t, s.Mount(false))

	var got []string
	s.On(render.ActionAnswer, func(v string) { got = append(got, v) })

	s.Replace(render.Render(render.View{Phase: conversation.Failed}))
	assert.False(t, h.Click(render.ActionAnswer, "x"))

	s.Replace(render.Render(render.View{Phase: conversation.Asking, Total: 1}))
	assert.True(t, h.Click(render.ActionAnswer, "hello"))
	assert.Equal(t, []string{"hello"}, got)
}
