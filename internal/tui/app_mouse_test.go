package tui

import "testing"

func TestTabAtXMatchesTabWidths(t *testing.T) {
	const n = 6
	for active := 0; active < n; active++ {
		a := App{activeTab: active}
		pos := 0

		for i := 0; i < n; i++ {
			w := tabWidthForTest(i, active)
			x := pos + w/2 // midpoint inside this tab
			if got := a.tabAtX(x); got != i {
				t.Fatalf("active=%d x=%d -> tab=%d, want %d", active, x, got, i)
			}
			pos += w
			if i < n-1 {
				pos++ // separator
			}
		}
	}
}

func TestTabAtXOutside(t *testing.T) {
	a := App{}
	if got := a.tabAtX(-1); got != -1 {
		t.Errorf("tabAtX(-1) = %d", got)
	}
	if got := a.tabAtX(500); got != -1 {
		t.Errorf("tabAtX(500) = %d", got)
	}
}

func tabWidthForTest(tabIdx, activeIdx int) int {
	nameWidths := []int{
		len("Overview"),
		len("Budget"),
		len("Tasks"),
		len("Phases"),
		len("Inventory"),
		len("Permits"),
	}

	w := nameWidths[tabIdx] + 2 // horizontal padding in tab renderer
	if tabIdx != activeIdx && tabIdx == 5 {
		w += 3 // inactive Permits adds "[m]"
	}
	return w
}
