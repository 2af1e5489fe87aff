package export

import (
	"strings"
	"testing"
	"time"

	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

func snapshotFixture() *types.StateSnapshot {
	return &types.StateSnapshot{
		Categorized: map[types.Category][]types.Unit{
			types.Important: {
				{Title: "Go docs", Address: "https://go.dev/doc", Category: types.Important, DuplicateIDs: []int{1}, DuplicateCount: 1},
				{Title: "Design review", Address: "https://docs.example.com/review", Category: types.Important, DuplicateIDs: []int{2, 5}, DuplicateCount: 2},
			},
			types.SaveLater: {
				{Title: "Long read", Address: "https://longform.example/essay", Category: types.SaveLater, DuplicateIDs: []int{3}, DuplicateCount: 1},
			},
			types.CanClose: {
				{Title: "Old news", Address: "https://news.example/stale", Category: types.CanClose, DuplicateIDs: []int{4}, DuplicateCount: 1, AlreadySaved: true},
			},
			types.Uncategorized: {},
		},
	}
}

func TestMarkdown_TiersAndLinks(t *testing.T) {
	result := Markdown(snapshotFixture())

	if !strings.Contains(result, "# Tab Triage") {
		t.Errorf("missing header, got:\n%s", result)
	}
	if !strings.Contains(result, "## Important (2 tabs)") {
		t.Errorf("missing Important heading, got:\n%s", result)
	}
	if !strings.Contains(result, "## Save for Later (1 tab)") {
		t.Errorf("missing singular Save for Later heading, got:\n%s", result)
	}
	if !strings.Contains(result, "[Go docs](https://go.dev/doc)") {
		t.Errorf("missing Go docs link, got:\n%s", result)
	}
	if !strings.Contains(result, "2 open copies") {
		t.Errorf("missing duplicate marker, got:\n%s", result)
	}
	if !strings.Contains(result, "(saved)") {
		t.Errorf("missing saved marker, got:\n%s", result)
	}
}

func TestMarkdown_TierOrder(t *testing.T) {
	result := Markdown(snapshotFixture())

	imp := strings.Index(result, "## Important")
	sl := strings.Index(result, "## Save for Later")
	cc := strings.Index(result, "## Can Close")
	if imp < 0 || sl < 0 || cc < 0 {
		t.Fatalf("missing tier headings:\n%s", result)
	}
	if !(imp < sl && sl < cc) {
		t.Errorf("tiers out of order (important=%d saveLater=%d canClose=%d)", imp, sl, cc)
	}
	if strings.Contains(result, "## Uncategorized") {
		t.Errorf("empty tier rendered:\n%s", result)
	}
}

func TestMarkdown_TitleFallbackToAddress(t *testing.T) {
	snap := &types.StateSnapshot{
		Categorized: map[types.Category][]types.Unit{
			types.CanClose: {
				{Title: "", Address: "https://notitle.example/page", Category: types.CanClose, DuplicateCount: 1},
			},
		},
	}

	result := Markdown(snap)

	if !strings.Contains(result, "[https://notitle.example/page](https://notitle.example/page)") {
		t.Errorf("expected address as title fallback, got:\n%s", result)
	}
}

func TestMarkdown_EmptyState(t *testing.T) {
	result := Markdown(&types.StateSnapshot{Categorized: map[types.Category][]types.Unit{}})

	if !strings.Contains(result, "# Tab Triage") {
		t.Errorf("expected header even for empty state, got:\n%s", result)
	}
	if strings.Contains(result, "##") {
		t.Errorf("unexpected tier heading in empty state:\n%s", result)
	}
}

func TestURLsMarkdown(t *testing.T) {
	now := time.Now()
	recs := []storage.URLRecord{
		{Address: "https://a.example/doc", Title: "Doc", Category: types.Important, Saved: true, FirstSeen: now.Add(-3 * 24 * time.Hour)},
		{Address: "https://b.example/read", Title: "", Category: types.SaveLater, FirstSeen: now.Add(-5 * time.Hour)},
	}

	result := URLsMarkdown(recs)

	if !strings.Contains(result, "# Saved URLs") {
		t.Errorf("missing header, got:\n%s", result)
	}
	if !strings.Contains(result, "[Doc](https://a.example/doc)") {
		t.Errorf("missing Doc link, got:\n%s", result)
	}
	if !strings.Contains(result, "3d ago") {
		t.Errorf("expected '3d ago', got:\n%s", result)
	}
	if !strings.Contains(result, "(saved)") {
		t.Errorf("missing saved marker, got:\n%s", result)
	}
	if !strings.Contains(result, "[https://b.example/read](https://b.example/read)") {
		t.Errorf("expected address fallback, got:\n%s", result)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	cases := []struct {
		t    time.Time
		want string
	}{
		{now, "just now"},
		{now.Add(-30 * time.Minute), "30m ago"},
		{now.Add(-5 * time.Hour), "5h ago"},
		{now.Add(-3 * 24 * time.Hour), "3d ago"},
	}
	for _, tc := range cases {
		if got := relativeTime(tc.t); got != tc.want {
			t.Errorf("relativeTime(%v) = %q, want %q", tc.t, got, tc.want)
		}
	}
}
