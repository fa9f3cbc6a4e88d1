package domain

import (
	"sort"
	"strconv"
	"strings"
)

// CompareCriteria orders WCAG success criterion ids numerically per
// component, so 1.4.3 sorts before 1.4.10.
func CompareCriteria(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(pa[i], pb[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

// SortCriteria sorts ids in place and drops duplicates.
func SortCriteria(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	sort.Slice(ids, func(i, j int) bool { return CompareCriteria(ids[i], ids[j]) < 0 })
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// CompareCriteriaSets orders two sorted criterion lists element-wise. An
// empty list sorts after any non-empty one so unmapped findings trail.
func CompareCriteriaSets(a, b []string) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareCriteria(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
