package app

import (
	"errors"
	"testing"
)

func TestPageRequestNormalize(t *testing.T) {
	req, err := PageRequest{}.normalize(10, 50)
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if req.ID != 1 || req.Size != 10 {
		t.Fatalf("zero request normalized to %+v", req)
	}

	req, err = PageRequest{ID: 2, Size: 500}.normalize(10, 50)
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if req.Size != 50 {
		t.Fatalf("oversized request not capped: %+v", req)
	}

	if _, err := (PageRequest{ID: -1}).normalize(10, 50); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("negative page error = %v, want ErrInvalidPage", err)
	}
	if _, err := (PageRequest{ID: 1, Size: -5}).normalize(10, 50); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("negative size error = %v, want ErrInvalidPage", err)
	}
}

func TestPaginateBounds(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := paginate(items, PageRequest{ID: 2, Size: 2})
	if page.TotalCount != 5 || len(page.Items) != 2 || page.Items[0] != 3 {
		t.Fatalf("page 2 = %+v", page)
	}

	last := paginate(items, PageRequest{ID: 3, Size: 2})
	if len(last.Items) != 1 || last.Items[0] != 5 {
		t.Fatalf("last page = %+v", last)
	}

	beyond := paginate(items, PageRequest{ID: 9, Size: 2})
	if beyond.TotalCount != 5 || len(beyond.Items) != 0 {
		t.Fatalf("beyond page = %+v", beyond)
	}
}
