// internal/command/device.go
package command

import (
	"strings"

	"github.com/mssola/useragent"
)

// isMobile reports whether a user agent belongs to a phone or tablet.
// It is a device-class gate for the join flow, not an authentication check.
func isMobile(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return false
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return false
	}
	if ua.Mobile() {
		return true
	}
	switch ua.Platform() {
	case "iPhone", "iPad", "iPod":
		return true
	}
	// Android tablets omit the "Mobile" token.
	return strings.Contains(ua.OS(), "Android") || strings.Contains(userAgent, "Mobi")
}
