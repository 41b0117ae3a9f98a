package ratings

import (
	"testing"
	"time"
)

func TestPostRatingCacheGetPut(t *testing.T) {
	cache := NewPostRatingCache()
	if _, ok := cache.Get(1, 7); ok {
		t.Fatal("empty cache returned a hit")
	}

	cache.PutTournament(1, time.Now(), map[int]int{7: 1530, 8: 1470})
	if rating, ok := cache.Get(1, 7); !ok || rating != 1530 {
		t.Errorf("Get(1, 7) = %d, %v; want 1530, true", rating, ok)
	}
	if _, ok := cache.Get(1, 99); ok {
		t.Error("member absent from the tournament returned a hit")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestPostRatingCacheInvalidateFrom(t *testing.T) {
	cache := NewPostRatingCache()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cache.PutTournament(1, base, map[int]int{7: 1500})
	cache.PutTournament(2, base.Add(time.Hour), map[int]int{7: 1510})
	cache.PutTournament(3, base.Add(2*time.Hour), map[int]int{7: 1520})

	// Editing a match in tournament 2 stales everything from its creation
	// time onward, including tournament 2 itself.
	cache.InvalidateFrom(base.Add(time.Hour))

	if _, ok := cache.Get(1, 7); !ok {
		t.Error("earlier tournament evicted")
	}
	for _, tournamentID := range []int{2, 3} {
		if _, ok := cache.Get(tournamentID, 7); ok {
			t.Errorf("tournament %d survived invalidation", tournamentID)
		}
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}
