// Package export renders canonical state and the URL list as Markdown
// or JSON documents for the export subcommands.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

// displayOrder lists tiers most important first, which is how every
// rendering presents them.
func displayOrder() []types.Category {
	return []types.Category{types.Important, types.SaveLater, types.CanClose, types.Uncategorized}
}

func tierHeading(c types.Category) string {
	switch c {
	case types.Important:
		return "Important"
	case types.SaveLater:
		return "Save for Later"
	case types.CanClose:
		return "Can Close"
	default:
		return "Uncategorized"
	}
}

// Markdown formats a state snapshot as a markdown document. Empty tiers
// are omitted.
func Markdown(snap *types.StateSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tab Triage\n")
	fmt.Fprintf(&b, "> Exported %s\n", time.Now().Format("2006-01-02 15:04"))

	for _, tier := range displayOrder() {
		units := snap.Categorized[tier]
		if len(units) == 0 {
			continue
		}
		n := len(units)
		noun := "tabs"
		if n == 1 {
			noun = "tab"
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", tierHeading(tier), n, noun)

		for _, u := range units {
			title := u.Title
			if title == "" {
				title = u.Address
			}
			fmt.Fprintf(&b, "- [%s](%s)", title, u.Address)
			if u.DuplicateCount > 1 {
				fmt.Fprintf(&b, " — %d open copies", u.DuplicateCount)
			}
			if u.AlreadySaved {
				b.WriteString(" (saved)")
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// URLsMarkdown formats persisted records as a markdown list, most
// recently categorized first (the order storage returns them in).
func URLsMarkdown(recs []storage.URLRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Saved URLs\n")
	fmt.Fprintf(&b, "> Exported %s\n\n", time.Now().Format("2006-01-02 15:04"))

	for _, r := range recs {
		title := r.Title
		if title == "" {
			title = r.Address
		}
		fmt.Fprintf(&b, "- [%s](%s) — %s, first seen %s", title, r.Address, r.Category, relativeTime(r.FirstSeen))
		if r.Saved {
			b.WriteString(" (saved)")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
