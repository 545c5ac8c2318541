package domain

import "slices"

// AddToSet appends id when absent. It reports whether the set changed.
func AddToSet(set *[]string, id string) bool {
	if slices.Contains(*set, id) {
		return false
	}
	*set = append(*set, id)
	return true
}

// PullFromSet removes every occurrence of the given ids.
// Pulling an absent id is a no-op. It reports whether the set changed.
func PullFromSet(set *[]string, ids ...string) bool {
	if len(*set) == 0 || len(ids) == 0 {
		return false
	}
	before := len(*set)
	*set = slices.DeleteFunc(*set, func(v string) bool {
		return slices.Contains(ids, v)
	})
	return len(*set) != before
}
