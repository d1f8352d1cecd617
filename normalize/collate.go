package normalize

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// sortThai orders items by the keys returned from key using Thai collation
// with numeric ordering, so "SUP2" sorts before "SUP10". Collators are not
// safe for concurrent use, so one is built per call.
func sortThai[T any](items []T, key func(T) (primary, secondary string)) {
	c := collate.New(language.Thai, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		pi, si := key(items[i])
		pj, sj := key(items[j])
		if d := c.CompareString(pi, pj); d != 0 {
			return d < 0
		}
		return c.CompareString(si, sj) < 0
	})
}
