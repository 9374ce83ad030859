package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/hylla/fordela/internal/domain"
)

func TestMutationGuardSerializesPerTask(t *testing.T) {
	guard := newMutationGuard()

	if err := guard.acquireTask("p1", "t1"); err != nil {
		t.Fatalf("first acquire error = %v", err)
	}
	if err := guard.acquireTask("p1", "t1"); !errors.Is(err, domain.ErrMutationInProgress) {
		t.Fatalf("second acquire error = %v, want ErrMutationInProgress", err)
	}
	// Distinct task ids are independent.
	if err := guard.acquireTask("p1", "t2"); err != nil {
		t.Fatalf("distinct task acquire error = %v", err)
	}

	guard.releaseTask("t1")
	if err := guard.acquireTask("p1", "t1"); err != nil {
		t.Fatalf("acquire after release error = %v", err)
	}
}

func TestMutationGuardProjectClaimIsAllOrNothing(t *testing.T) {
	guard := newMutationGuard()

	if err := guard.acquireTask("p1", "t2"); err != nil {
		t.Fatalf("acquireTask() error = %v", err)
	}
	if err := guard.acquireProject("p1"); !errors.Is(err, domain.ErrMutationInProgress) {
		t.Fatalf("acquireProject() with held child error = %v, want ErrMutationInProgress", err)
	}
	guard.releaseTask("t2")

	// A claim for a brand-new task id, one no candidate list has seen,
	// blocks the project claim just the same.
	if err := guard.acquireTask("p1", "t-just-created"); err != nil {
		t.Fatalf("acquireTask() error = %v", err)
	}
	if err := guard.acquireProject("p1"); !errors.Is(err, domain.ErrMutationInProgress) {
		t.Fatalf("acquireProject() with unseen held child error = %v, want ErrMutationInProgress", err)
	}
	guard.releaseTask("t-just-created")

	if err := guard.acquireProject("p1"); err != nil {
		t.Fatalf("acquireProject() error = %v", err)
	}
	// Once archival holds the project, no child mutation may start.
	for _, id := range []string{"t1", "t2", "t3", "t-new"} {
		if err := guard.acquireTask("p1", id); !errors.Is(err, domain.ErrMutationInProgress) {
			t.Fatalf("acquireTask(%q) during archival error = %v, want ErrMutationInProgress", id, err)
		}
	}
	// Other projects are unaffected.
	if err := guard.acquireTask("p2", "t9"); err != nil {
		t.Fatalf("other project acquire error = %v", err)
	}
	if err := guard.acquireProject("p1"); !errors.Is(err, domain.ErrMutationInProgress) {
		t.Fatalf("double project claim error = %v, want ErrMutationInProgress", err)
	}

	guard.releaseProject("p1")
	if err := guard.acquireTask("p1", "t1"); err != nil {
		t.Fatalf("acquire after project release error = %v", err)
	}
}

func TestMutationGuardSerializesPerEngineer(t *testing.T) {
	guard := newMutationGuard()

	if err := guard.acquireEngineer("e1"); err != nil {
		t.Fatalf("first acquire error = %v", err)
	}
	if err := guard.acquireEngineer("e1"); !errors.Is(err, domain.ErrMutationInProgress) {
		t.Fatalf("second acquire error = %v, want ErrMutationInProgress", err)
	}
	// Distinct engineers are independent.
	if err := guard.acquireEngineer("e2"); err != nil {
		t.Fatalf("distinct engineer acquire error = %v", err)
	}

	guard.releaseEngineer("e1")
	if err := guard.acquireEngineer("e1"); err != nil {
		t.Fatalf("acquire after release error = %v", err)
	}
}

func TestMutationGuardConcurrentClaims(t *testing.T) {
	guard := newMutationGuard()

	const workers = 32
	var wg sync.WaitGroup
	won := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := guard.acquireTask("p1", "t1"); err == nil {
				won[i] = true
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range won {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}
