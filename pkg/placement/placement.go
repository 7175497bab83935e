// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package placement merges ranked sponsored items into organic listings at
// fixed positions. Interleaving is pure and deterministic: identical inputs
// always produce the identical merged list.
package placement

import (
	"github.com/nutrinexas/adserve/pkg/catalog"
	"github.com/nutrinexas/adserve/pkg/ids"
)

// Search listings take sponsored slots at the 1st, 3rd and 6th positions,
// then one every 10 positions. Category listings take the top slot, then
// one every 10.
var (
	searchFixedPositions = []int{0, 2, 5}
	searchInterval       = 10
	searchIntervalStart  = 15

	categoryInterval = 10
)

// Entry is one item of a rendered listing
type Entry struct {
	Product     *catalog.Product
	IsSponsored bool
	AdID        ids.ID
}

// MarkSponsored annotates an entry with its originating ad. Marking an
// already-sponsored entry again is a no-op, so the annotation is idempotent.
func MarkSponsored(e *Entry, adID ids.ID) {
	if e.IsSponsored {
		return
	}
	e.IsSponsored = true
	e.AdID = adID
}

// SearchPositions returns the slot indexes for a search listing of the
// given merged length: 0, 2, 5, 15, 25, ...
func SearchPositions(mergedLen int) []int {
	positions := make([]int, 0, len(searchFixedPositions))
	for _, p := range searchFixedPositions {
		if p < mergedLen {
			positions = append(positions, p)
		}
	}
	for p := searchIntervalStart; p < mergedLen; p += searchInterval {
		positions = append(positions, p)
	}
	return positions
}

// CategoryPositions returns the slot indexes for a category listing: 0,
// 10, 20, ...
func CategoryPositions(mergedLen int) []int {
	positions := make([]int, 0)
	for p := 0; p < mergedLen; p += categoryInterval {
		positions = append(positions, p)
	}
	return positions
}

// Interleave inserts sponsored entries into a search listing at the fixed
// slot positions. Insertions displace nothing: every organic item keeps its
// relative order and the merged length is len(organic) plus the number of
// sponsored entries inserted. A product appearing both organically and as a
// sponsored candidate is inserted anyway, as an explicitly labeled
// duplicate; deduplication is the caller's policy decision, not ours.
func Interleave(organic []Entry, sponsored []Entry) []Entry {
	return interleaveAt(organic, sponsored, SearchPositions)
}

// InterleaveCategory inserts sponsored entries into a category listing
func InterleaveCategory(organic []Entry, sponsored []Entry) []Entry {
	return interleaveAt(organic, sponsored, CategoryPositions)
}

func interleaveAt(organic []Entry, sponsored []Entry, positionsFor func(int) []int) []Entry {
	if len(organic) == 0 || len(sponsored) == 0 {
		out := make([]Entry, len(organic))
		copy(out, organic)
		return out
	}

	slots := make(map[int]struct{})
	for _, p := range positionsFor(len(organic) + len(sponsored)) {
		slots[p] = struct{}{}
	}

	merged := make([]Entry, 0, len(organic)+len(sponsored))
	next := 0
	for _, item := range organic {
		for next < len(sponsored) {
			if _, ok := slots[len(merged)]; !ok {
				break
			}
			sp := sponsored[next]
			MarkSponsored(&sp, sp.AdID)
			merged = append(merged, sp)
			next++
		}
		merged = append(merged, item)
	}

	return merged
}
