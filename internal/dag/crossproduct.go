package dag

// crossproduct returns the Cartesian product of lists, preserving the
// order of each input list (spec.md §4.3 "cross-product over parent
// template fields"). crossproduct(nil) returns a single empty combination,
// matching the behavior needed when a template has no free fields left to
// fill.
func crossproduct(lists [][]string) [][]string {
	result := [][]string{{}}
	for _, list := range lists {
		var next [][]string
		for _, prefix := range result {
			for _, v := range list {
				combo := make([]string, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				combo = append(combo, v)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
