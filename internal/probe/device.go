package probe

import (
	"strings"

	"qualify/internal/model"

	"github.com/avct/uasurfer"
)

// Navigator exposes the host environment properties the widget reads at startup
type Navigator interface {
	UserAgent() string
	Language() string
	Timezone() string
	Screen() (width, height int)
	Viewport() (width, height int)
	Online() bool
}

// DetectDevice classifies the visitor's device from the navigator.
// Unrecognised user agents fall back to Unknown browser/OS on a desktop device.
func DetectDevice(nav Navigator) model.DeviceInfo {
	sw, sh := nav.Screen()
	vw, vh := nav.Viewport()
	ua := nav.UserAgent()

	info := model.DeviceInfo{
		Type:         model.DeviceDesktop,
		OS:           "Unknown",
		Browser:      "Unknown",
		ScreenWidth:  sw,
		ScreenHeight: sh,
		Viewport:     model.Viewport{Width: vw, Height: vh},
	}
	if ua == "" {
		return info
	}

	parsed := uasurfer.Parse(ua)
	if parsed == nil {
		return info
	}

	switch parsed.DeviceType {
	case uasurfer.DevicePhone, uasurfer.DeviceTablet:
		info.Type = model.DeviceMobile
	}
	info.OS = osName(parsed.OS.Name)
	info.Browser = browserName(ua, parsed.Browser.Name)
	return info
}

// ClassifyUserAgent is DetectDevice for a bare user-agent string, used server-side
func ClassifyUserAgent(ua string) model.DeviceInfo {
	return DetectDevice(StaticNavigator{UA: ua})
}

func osName(name uasurfer.OSName) string {
	switch name {
	case uasurfer.OSWindows, uasurfer.OSWindowsPhone:
		return "Windows"
	case uasurfer.OSMacOSX:
		return "macOS"
	case uasurfer.OSiOS:
		return "iOS"
	case uasurfer.OSAndroid:
		return "Android"
	case uasurfer.OSLinux, uasurfer.OSChromeOS:
		return "Linux"
	case uasurfer.OSUnknown:
		return "Unknown"
	}
	return name.StringTrimPrefix()
}

func browserName(ua string, name uasurfer.BrowserName) string {
	// uasurfer folds Chromium Edge into Chrome
	if strings.Contains(ua, "Edg/") || strings.Contains(ua, "Edge/") {
		return "Edge"
	}
	switch name {
	case uasurfer.BrowserChrome:
		return "Chrome"
	case uasurfer.BrowserSafari:
		return "Safari"
	case uasurfer.BrowserFirefox:
		return "Firefox"
	case uasurfer.BrowserUnknown:
		return "Unknown"
	}
	return name.StringTrimPrefix()
}

// StaticNavigator is a fixed environment for hosts that are not browsers
type StaticNavigator struct {
	UA             string
	Lang           string
	TZ             string
	ScreenWidth    int
	ScreenHeight   int
	ViewportWidth  int
	ViewportHeight int
	Offline        bool
}

func (n StaticNavigator) UserAgent() string { return n.UA }
func (n StaticNavigator) Language() string { return n.Lang }
func (n StaticNavigator) Timezone() string { return n.TZ }
func (n StaticNavigator) Screen() (int, int) { return n.ScreenWidth, n.ScreenHeight }
func (n StaticNavigator) Viewport() (int, int) { return n.ViewportWidth, n.ViewportHeight }
func (n StaticNavigator) Online() bool { return !n.Offline }
