package probe

import (
	"path/filepath"
	"strings"
	"testing"

	"qualify/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNavigator struct {
	ua string
}

func (n fakeNavigator) UserAgent() string    { return n.ua }
func (n fakeNavigator) Language() string     { return "en-US" }
func (n fakeNavigator) Timezone() string     { return "Europe/Prague" }
func (n fakeNavigator) Screen() (int, int)   { return 1920, 1080 }
func (n fakeNavigator) Viewport() (int, int) { return 1280, 720 }
func (n fakeNavigator) Online() bool         { return true }

func TestDetectDevice(t *testing.T) {
	cases := []struct {
		name    string
		ua      string
		typ     model.DeviceType
		os      string
		browser string
	}{
		{
			name:    "iphone safari",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Mobile/15E148 Safari/604.1",
			typ:     model.DeviceMobile,
			os:      "iOS",
			browser: "Safari",
		},
		{
			name:    "windows chrome",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			typ:     model.DeviceDesktop,
			os:      "Windows",
			browser: "Chrome",
		},
		{
			name:    "windows edge",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			typ:     model.DeviceDesktop,
			os:      "Windows",
			browser: "Edge",
		},
		{
			name:    "unrecognised",
			ua:      "Widgetron/1.0",
			typ:     model.DeviceDesktop,
			os:      "Unknown",
			browser: "Unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := DetectDevice(fakeNavigator{ua: tc.ua})
			assert.Equal(t, tc.typ, info.Type)
			assert.Equal(t, tc.os, info.OS)
			assert.Equal(t, tc.browser, info.Browser)
			assert.Equal(t, 1920, info.ScreenWidth)
			assert.Equal(t, model.Viewport{Width: 1280, Height: 720}, info.Viewport)
		})
	}
}

func TestDetectDevice_EmptyUserAgent(t *testing.T) {
	info := DetectDevice(fakeNavigator{})
	assert.Equal(t, model.DeviceDesktop, info.Type)
	assert.Equal(t, "Unknown", info.Browser)
}

func TestVisitorID_StableAcrossLoads(t *testing.T) {
	store := NewFileStorage(filepath.Join(t.TempDir(), "profile.json"))

	first := VisitorID(store)
	second := VisitorID(NewFileStorage(filepath.Join(filepath.Dir(store.path), "profile.json")))

	assert.True(t, strings.HasPrefix(first, "v_"))
	assert.Equal(t, first, second)
}

func TestVisitorID_BlockedStorage(t *testing.T) {
	a := VisitorID(BlockedStorage{})
	b := VisitorID(BlockedStorage{})

	require.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		require.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}
