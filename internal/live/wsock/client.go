package wsock

import (
	"strings"

	"github.com/mssola/useragent"
)

// describeClient renders a user agent as "Browser on OS" for connection logs.
func describeClient(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "unknown client"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	name, _ := ua.Browser()
	if name == "" {
		name = "unknown browser"
	}
	system := ua.OS()
	if system == "" {
		system = ua.Platform()
	}
	if system == "" {
		system = "unknown OS"
	}
	desc := name + " on " + system
	if ua.Mobile() {
		desc += " (mobile)"
	}
	return desc
}
