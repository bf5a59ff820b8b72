package dispatcher

import "github.com/DimaJoyti/priceguard/internal/monitoring/domain"

// allocateLaneBudgets splits maxTasks across the three lanes in the
// fixed 40% high / 40% normal / 20% low ratio. Rounding favors low so
// the three budgets always sum to maxTasks.
func allocateLaneBudgets(maxTasks int) map[domain.Lane]int {
	high := (maxTasks * 40) / 100
	normal := (maxTasks * 40) / 100
	low := maxTasks - high - normal
	return map[domain.Lane]int{
		domain.LaneHigh:   high,
		domain.LaneNormal: normal,
		domain.LaneLow:    low,
	}
}

// selectEvenSpread picks up to budget tasks from candidates (assumed
// already sorted by (priority, scheduledTime, id) within the lane),
// round-robining across retailers so one retailer's backlog can't starve
// the rest of the lane's budget.
func selectEvenSpread(candidates []*domain.Task, budget int, retailerOf func(*domain.Task) string) []*domain.Task {
	if budget <= 0 || len(candidates) == 0 {
		return nil
	}

	byRetailer := make(map[string][]*domain.Task)
	order := make([]string, 0)
	for _, t := range candidates {
		r := retailerOf(t)
		if _, ok := byRetailer[r]; !ok {
			order = append(order, r)
		}
		byRetailer[r] = append(byRetailer[r], t)
	}

	selected := make([]*domain.Task, 0, budget)
	for len(selected) < budget {
		progressed := false
		for _, r := range order {
			if len(selected) >= budget {
				break
			}
			bucket := byRetailer[r]
			if len(bucket) == 0 {
				continue
			}
			selected = append(selected, bucket[0])
			byRetailer[r] = bucket[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return selected
}

// interleaveLanes orders a cycle's admitted tasks in the 4:2:1
// high:normal:low rhythm so downstream consumers that process this list
// sequentially still make steady low-priority progress under load.
func interleaveLanes(high, normal, low []*domain.Task) []*domain.Task {
	out := make([]*domain.Task, 0, len(high)+len(normal)+len(low))
	hi, ni, li := 0, 0, 0

	for hi < len(high) || ni < len(normal) || li < len(low) {
		for i := 0; i < 4 && hi < len(high); i++ {
			out = append(out, high[hi])
			hi++
		}
		for i := 0; i < 2 && ni < len(normal); i++ {
			out = append(out, normal[ni])
			ni++
		}
		for i := 0; i < 1 && li < len(low); i++ {
			out = append(out, low[li])
			li++
		}
		if hi >= len(high) && ni >= len(normal) && li >= len(low) {
			break
		}
	}
	return out
}
