package app

// PageRequest selects one page of a listing. Page ids are 1-based, matching
// the page_id/page_size convention of the outward API.
type PageRequest struct {
	ID   int
	Size int
}

// Page carries one page of results plus the total match count so callers
// can render pagination controls without a second query.
type Page[T any] struct {
	TotalCount int
	Items      []T
}

// normalize clamps a page request to sane bounds. A zero request becomes
// page 1 with the default size; oversized requests are capped.
func (r PageRequest) normalize(defaultSize, maxSize int) (PageRequest, error) {
	if r.ID == 0 {
		r.ID = 1
	}
	if r.Size == 0 {
		r.Size = defaultSize
	}
	if r.ID < 1 || r.Size < 1 {
		return PageRequest{}, ErrInvalidPage
	}
	if r.Size > maxSize {
		r.Size = maxSize
	}
	return r, nil
}

// paginate slices items into the requested page.
func paginate[T any](items []T, req PageRequest) Page[T] {
	total := len(items)
	start := (req.ID - 1) * req.Size
	if start >= total {
		return Page[T]{TotalCount: total, Items: []T{}}
	}
	end := start + req.Size
	if end > total {
		end = total
	}
	return Page[T]{TotalCount: total, Items: append([]T{}, items[start:end]...)}
}
