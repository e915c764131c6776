package cart

const DefaultPageSize = 3

// Paginate slices items into 1-indexed fixed-size pages. Pages below 1 or
// past the end yield an empty slice, never an error; totalPages is
// ceil(len/pageSize), so an empty list reports 0 pages.
func Paginate(items []Item, pageSize, page int) (pageItems []Item, totalPages int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	totalPages = (len(items) + pageSize - 1) / pageSize

	if page < 1 {
		return []Item{}, totalPages
	}

	start := (page - 1) * pageSize
	if start >= len(items) {
		return []Item{}, totalPages
	}

	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	return items[start:end], totalPages
}
