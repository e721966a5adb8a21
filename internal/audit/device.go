package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceSummary condenses a User-Agent header into "Browser on OS", tagging
// bots and mobile devices. Empty input yields "".
func DeviceSummary(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}
	browser, _ := ua.Browser()
	osName := ua.OS()
	var b strings.Builder
	if browser == "" {
		browser = "Unknown"
	}
	b.WriteString(browser)
	if osName != "" {
		b.WriteString(" on ")
		b.WriteString(osName)
	}
	if ua.Mobile() {
		b.WriteString(" (mobile)")
	}
	return b.String()
}
