// Package codigo computes sequential item codes of the form
// <placeID><zero-padded integer>.
package codigo

import (
	"fmt"
	"strconv"
	"strings"

	"milista/internal/model"
)

// Next returns the next sequential code for a place given the current item
// set: max numeric suffix among codes prefixed by placeID, plus one, padded
// to at least 4 digits. Pure function of its input — there is no persisted
// counter, so callers must recompute against the latest observed items right
// before writing. Two genuinely concurrent adders can still race to the same
// code; that is an accepted limitation of the scheme.
func Next(items []model.Item, placeID string) string {
	max := 0
	for _, it := range items {
		if !strings.HasPrefix(it.Codigo, placeID) {
			continue
		}
		n, err := strconv.Atoi(it.Codigo[len(placeID):])
		if err != nil {
			n = 0 // unparseable or empty suffix counts as 0
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%04d", placeID, max+1)
}
