package dispatcher

// RetailerCeilings maps a retailer key (as returned by
// extraction.RetailerForURL) to its concurrency ceiling. Unlisted
// retailers fall back to Default.
type RetailerCeilings struct {
	ByRetailer map[string]int
	Default    int
}

// DefaultRetailerCeilings mirrors the original monitoring system's
// hard-coded throttle table, now held as data rather than logic so an
// operator can override it per environment.
func DefaultRetailerCeilings() RetailerCeilings {
	return RetailerCeilings{
		ByRetailer: map[string]int{
			"amazon":    20,
			"fnac":      10,
			"darty":     10,
			"boulanger": 10,
		},
		Default: 5,
	}
}

// CeilingFor returns the concurrency ceiling configured for retailer.
func (c RetailerCeilings) CeilingFor(retailer string) int {
	if v, ok := c.ByRetailer[retailer]; ok {
		return v
	}
	return c.Default
}
