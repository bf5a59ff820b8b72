package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

func TestAllocateLaneBudgets_SumsToMaxTasks(t *testing.T) {
	budgets := allocateLaneBudgets(100)
	assert.Equal(t, 40, budgets[domain.LaneHigh])
	assert.Equal(t, 40, budgets[domain.LaneNormal])
	assert.Equal(t, 20, budgets[domain.LaneLow])

	total := budgets[domain.LaneHigh] + budgets[domain.LaneNormal] + budgets[domain.LaneLow]
	assert.Equal(t, 100, total)
}

func TestAllocateLaneBudgets_OddTotalStillSums(t *testing.T) {
	budgets := allocateLaneBudgets(7)
	total := budgets[domain.LaneHigh] + budgets[domain.LaneNormal] + budgets[domain.LaneLow]
	assert.Equal(t, 7, total)
}

func task(id, productID string, priority int) *domain.Task {
	return domain.NewTask(id, productID, priority, time.Now())
}

func TestSelectEvenSpread_RoundRobinsAcrossRetailers(t *testing.T) {
	tasks := []*domain.Task{
		task("a1", "p1", 1), task("a2", "p2", 1), task("a3", "p3", 1),
		task("b1", "p4", 1),
	}
	retailerOf := func(tt *domain.Task) string {
		switch tt.ID {
		case "a1", "a2", "a3":
			return "amazon"
		default:
			return "fnac"
		}
	}

	selected := selectEvenSpread(tasks, 2, retailerOf)

	require := assert.New(t)
	require.Len(selected, 2)
	ids := map[string]bool{selected[0].ID: true, selected[1].ID: true}
	require.True(ids["a1"], "expected amazon's first pending task to be taken")
	require.True(ids["b1"], "expected fnac's only task to be taken before a second amazon task")
}

func TestSelectEvenSpread_ZeroBudgetReturnsNil(t *testing.T) {
	tasks := []*domain.Task{task("a1", "p1", 1)}
	selected := selectEvenSpread(tasks, 0, func(*domain.Task) string { return "amazon" })
	assert.Nil(t, selected)
}

func TestInterleaveLanes_Follows4To2To1Rhythm(t *testing.T) {
	high := []*domain.Task{task("h1", "p1", 1), task("h2", "p2", 1), task("h3", "p3", 1), task("h4", "p4", 1), task("h5", "p5", 1)}
	normal := []*domain.Task{task("n1", "p6", 5), task("n2", "p7", 5)}
	low := []*domain.Task{task("l1", "p8", 9)}

	out := interleaveLanes(high, normal, low)

	ids := make([]string, len(out))
	for i, t := range out {
		ids[i] = t.ID
	}
	assert.Equal(t, []string{"h1", "h2", "h3", "h4", "n1", "n2", "l1", "h5"}, ids)
}

func TestInterleaveLanes_EmptyLanesSkipped(t *testing.T) {
	high := []*domain.Task{task("h1", "p1", 1)}
	out := interleaveLanes(high, nil, nil)
	assert.Len(t, out, 1)
	assert.Equal(t, "h1", out[0].ID)
}
