// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingestdb

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// pageBounds normalizes a limit/page pair into SQL limit and offset values.
func pageBounds(limit, page uint) (normalized uint, offset uint64, currentPage uint) {
	if limit == 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	if page == 0 {
		page = 1
	}
	return limit, uint64(page-1) * uint64(limit), page
}

// pageCount returns the number of pages holding total items.
func pageCount(total uint64, limit uint) uint {
	if total == 0 {
		return 0
	}
	return uint((total + uint64(limit) - 1) / uint64(limit))
}
