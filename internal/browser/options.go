package browser

import (
	"strconv"
	"strings"
)

// PopupWindowOptions describes the features string passed to window.open.
type PopupWindowOptions struct {
	Left        int
	Top         int
	Width       int
	Height      int
	Directories bool
	Location    bool
	Menubar     bool
	Resizeable  bool
	Scrollbars  bool
	Status      bool
	Toolbar     bool
}

// DefaultPopupWindowOptions returns the options a fresh popup gets.
func DefaultPopupWindowOptions() *PopupWindowOptions {
	return &PopupWindowOptions{
		Width:      640,
		Height:     480,
		Resizeable: true,
		Scrollbars: true,
		Status:     true,
	}
}

// String renders the options as a window.open feature list.
func (o *PopupWindowOptions) String() string {
	if o == nil {
		return ""
	}
	parts := []string{
		"left=" + strconv.Itoa(o.Left),
		"top=" + strconv.Itoa(o.Top),
		"width=" + strconv.Itoa(o.Width),
		"height=" + strconv.Itoa(o.Height),
		"directories=" + yesNo(o.Directories),
		"location=" + yesNo(o.Location),
		"menubar=" + yesNo(o.Menubar),
		"resizable=" + yesNo(o.Resizeable),
		"scrollbars=" + yesNo(o.Scrollbars),
		"status=" + yesNo(o.Status),
		"toolbar=" + yesNo(o.Toolbar),
	}
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Settings mirrors the plugin parameters that gate the HTML bridge.
type Settings struct {
	EnableHTMLAccess    bool
	RunningOutOfBrowser bool
}

// Navigator holds the values the page exposes as window.navigator.
type Navigator struct {
	AppName       string
	AppVersion    string
	Platform      string
	UserAgent     string
	CookieEnabled bool
}

// BrowserInformation describes the hosting browser.
type BrowserInformation struct {
	Name           string `json:"name"`
	BrowserVersion string `json:"browser_version"`
	Platform       string `json:"platform"`
	UserAgent      string `json:"user_agent"`
	ProductName    string `json:"product_name"`
	ProductVersion string `json:"product_version"`
	CookiesEnabled bool   `json:"cookies_enabled"`
}

func newBrowserInformation(n Navigator) *BrowserInformation {
	info := &BrowserInformation{
		Name:           n.AppName,
		BrowserVersion: leadingVersion(n.AppVersion),
		Platform:       n.Platform,
		UserAgent:      n.UserAgent,
		CookiesEnabled: n.CookieEnabled,
	}
	if info.Name == "" {
		info.Name = "Netscape"
	}
	info.ProductName, info.ProductVersion = productToken(n.UserAgent)
	return info
}

// leadingVersion returns the dotted version at the start of s.
func leadingVersion(s string) string {
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	return strings.TrimSuffix(s[:end], ".")
}

// productToken picks the last "Name/Version" token of a user agent, skipping
// the generic Mozilla prefix.
func productToken(ua string) (string, string) {
	fields := strings.Fields(ua)
	for i := len(fields) - 1; i >= 0; i-- {
		name, version, ok := strings.Cut(fields[i], "/")
		if !ok || name == "" || strings.HasPrefix(name, "(") || name == "Mozilla" {
			continue
		}
		return name, leadingVersion(version)
	}
	return "", ""
}
