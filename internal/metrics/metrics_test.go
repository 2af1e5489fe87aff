package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tabtriage/tabtriage/internal/types"
)

func TestSetUnitCounts(t *testing.T) {
	SetUnitCounts(map[types.Category]int{
		types.Important: 3,
		types.CanClose:  1,
	})

	if got := testutil.ToFloat64(UnitsPerTier.WithLabelValues("important")); got != 3 {
		t.Errorf("important gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(UnitsPerTier.WithLabelValues("can-close")); got != 1 {
		t.Errorf("can-close gauge = %v, want 1", got)
	}
	// Absent tiers reset to zero.
	if got := testutil.ToFloat64(UnitsPerTier.WithLabelValues("save-later")); got != 0 {
		t.Errorf("save-later gauge = %v, want 0", got)
	}
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(LifecycleEvents.WithLabelValues("created"))
	LifecycleEvents.WithLabelValues("created").Inc()
	after := testutil.ToFloat64(LifecycleEvents.WithLabelValues("created"))
	if after != before+1 {
		t.Errorf("counter went %v -> %v, want +1", before, after)
	}
}
