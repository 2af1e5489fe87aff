package pipeline

import (
	"strings"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/types"
)

// Domain tables for the heuristic fallback. Matching covers the domain
// itself and its subdomains.
var (
	importantDomains = []string{
		"mail.google.com",
		"gmail.com",
		"calendar.google.com",
		"docs.google.com",
		"outlook.live.com",
		"outlook.office.com",
		"teams.microsoft.com",
		"slack.com",
		"discord.com",
		"web.whatsapp.com",
		"web.telegram.org",
		"meet.google.com",
		"zoom.us",
		"linear.app",
		"trello.com",
		"notion.so",
		"figma.com",
	}

	canCloseDomains = []string{
		"google.com",
		"bing.com",
		"duckduckgo.com",
		"search.brave.com",
		"facebook.com",
		"twitter.com",
		"x.com",
		"instagram.com",
		"tiktok.com",
		"reddit.com",
		"youtube.com",
		"netflix.com",
		"twitch.tv",
		"news.ycombinator.com",
		"linkedin.com",
		"pinterest.com",
	}

	saveLaterDomains = []string{
		"wikipedia.org",
		"stackoverflow.com",
		"stackexchange.com",
		"developer.mozilla.org",
		"pkg.go.dev",
		"go.dev",
		"docs.rs",
		"github.com",
		"gitlab.com",
		"bitbucket.org",
		"medium.com",
		"dev.to",
		"arxiv.org",
		"readthedocs.io",
		"npmjs.com",
	}

	devHosts = []string{"localhost", "127.0.0.1", "0.0.0.0"}

	// Path fragments suggesting active work on an otherwise reference site.
	importantPaths = []string{"/pull/", "/issues/", "/merge_requests/"}

	// Path fragments suggesting an article or documentation page.
	saveLaterPaths = []string{"/docs/", "/documentation/", "/wiki/", "/blog/", "/tutorial", "/guide", "/reference/"}
)

// Guess assigns a best-effort tier from domain and path patterns.
// Unknown addresses default to SaveLater — the heuristic never suggests
// closing something it cannot place. Never fails.
func Guess(u *types.Unit) types.Category {
	if addr.IsBrowserInternal(u.Address) {
		return types.CanClose
	}

	domain := u.Domain
	if domain == "" {
		domain = addr.Domain(u.Address)
	}

	if isDevHost(domain) {
		return types.Important
	}

	lowerAddr := strings.ToLower(u.Address)
	for _, p := range importantPaths {
		if strings.Contains(lowerAddr, p) {
			return types.Important
		}
	}

	if matchAny(domain, importantDomains) {
		return types.Important
	}
	if matchAny(domain, canCloseDomains) {
		return types.CanClose
	}
	if matchAny(domain, saveLaterDomains) {
		return types.SaveLater
	}

	for _, p := range saveLaterPaths {
		if strings.Contains(lowerAddr, p) {
			return types.SaveLater
		}
	}

	return types.SaveLater
}

func isDevHost(domain string) bool {
	for _, h := range devHosts {
		if domain == h {
			return true
		}
	}
	return strings.HasSuffix(domain, ".local") || strings.HasSuffix(domain, ".test") || strings.HasSuffix(domain, ".localhost")
}

func matchAny(domain string, list []string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
