// Package browser is the bridge between managed code and the page hosting
// the plugin.
//
// A Page is created per plugin instance. It owns a parsed copy of the
// hosting document (x/net/html, queried with htmlquery and goquery) and a
// goja script environment exposing window, document, navigator, location
// and console. Managed objects become visible to script through
// RegisterScriptableObject, which also registers the object's pinned handle
// with the native engine.
//
// DOM accessors honour the plugin's HTML access settings and return
// ErrHTMLAccessDisabled when the bridge is off. Popups follow the
// user-initiated event rule: one popup per event, and only when the plugin
// allows them.
package browser
