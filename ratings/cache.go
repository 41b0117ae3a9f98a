package ratings

import (
	"sync"
	"time"
)

// PostRatingCache holds per-tournament-per-member post ratings computed by
// the chronological replay. Read-heavy; writers take brief exclusive access.
type PostRatingCache struct {
	mu      sync.RWMutex
	ratings map[int]map[int]int // tournamentID -> memberID -> rating
	created map[int]time.Time   // tournamentID -> tournament created_at
}

func NewPostRatingCache() *PostRatingCache {
	return &PostRatingCache{
		ratings: make(map[int]map[int]int),
		created: make(map[int]time.Time),
	}
}

func (c *PostRatingCache) Get(tournamentID, memberID int) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byMember, ok := c.ratings[tournamentID]
	if !ok {
		return 0, false
	}
	rating, ok := byMember[memberID]
	return rating, ok
}

// GetTournament returns a copy of the tournament's full post-rating map.
func (c *PostRatingCache) GetTournament(tournamentID int) (map[int]int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byMember, ok := c.ratings[tournamentID]
	if !ok {
		return nil, false
	}
	out := make(map[int]int, len(byMember))
	for memberID, rating := range byMember {
		out[memberID] = rating
	}
	return out, true
}

// PutTournament stores the full post-rating map for one tournament.
func (c *PostRatingCache) PutTournament(tournamentID int, createdAt time.Time, finals map[int]int) {
	byMember := make(map[int]int, len(finals))
	for memberID, rating := range finals {
		byMember[memberID] = rating
	}
	c.mu.Lock()
	c.ratings[tournamentID] = byMember
	c.created[tournamentID] = createdAt
	c.mu.Unlock()
}

// InvalidateFrom drops the entries of every tournament created at or after
// the given instant. Called whenever a match in a tournament mutates or a
// tournament completes, with that tournament's creation time.
func (c *PostRatingCache) InvalidateFrom(createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tournamentID, created := range c.created {
		if !created.Before(createdAt) {
			delete(c.ratings, tournamentID)
			delete(c.created, tournamentID)
		}
	}
}

func (c *PostRatingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ratings)
}
