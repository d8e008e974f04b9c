package tree

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"archon/internal/store"
)

// SortEntries orders entries directories first, then by name using
// locale-aware collation. The sort is stable.
func SortEntries(entries []store.Entry) {
	// A Collator is not safe for concurrent use.
	c := collate.New(language.Und)
	slices.SortStableFunc(entries, func(a, b store.Entry) int {
		da, db := a.Kind() == store.KindDirectory, b.Kind() == store.KindDirectory
		if da != db {
			if da {
				return -1
			}
			return 1
		}
		return c.CompareString(a.Name(), b.Name())
	})
}
