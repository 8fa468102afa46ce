package hopper

// FilterAllows reports whether an item may pass through a hopper with the
// given filter. An empty filter admits everything; otherwise the item must
// match at least one template by kind and metadata, independent of count.
// Pure function: it is called on the world thread for every transfer and must
// never touch I/O.
func FilterAllows(filter []ItemStack, item ItemStack) bool {
	templates := 0
	for _, tmpl := range filter {
		if tmpl.Kind == "" {
			continue // empty slot
		}
		templates++
		if tmpl.Similar(item) {
			return true
		}
	}
	// A filter with no templates at all is no filter.
	return templates == 0
}

// ClampFilter truncates a template list to the fixed slot capacity.
func ClampFilter(items []ItemStack) []ItemStack {
	if len(items) > FilterSlots {
		return items[:FilterSlots]
	}
	return items
}
