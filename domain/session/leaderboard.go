package session

import (
	"slices"
	"sort"
	"sync"
	"time"
)

const DefaultLeaderboardCapacity = 100

// Entry is one recorded score.
type Entry struct {
	Player      string
	RoomID      string
	Score       float64
	DisplayName string
	Timestamp   time.Time
}

// PlayerScore aggregates a player's retained entries.
type PlayerScore struct {
	Player      string
	TotalScore  float64
	GamesPlayed int
	Entries     []Entry
}

// Leaderboard keeps the top scores in descending order.
// Entries with equal scores keep their insertion order.
type Leaderboard struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

func NewLeaderboard(capacity int, opts ...Option) *Leaderboard {
	if capacity <= 0 {
		capacity = DefaultLeaderboardCapacity
	}
	o := buildOptions(opts)
	return &Leaderboard{
		entries:  make([]Entry, 0, capacity+1),
		capacity: capacity,
		now:      o.now,
	}
}

// Record inserts a score and evicts the lowest entries beyond capacity.
func (l *Leaderboard) Record(player, roomID string, score float64, displayName string) Entry {
	e := Entry{
		Player:      player,
		RoomID:      roomID,
		Score:       score,
		DisplayName: displayName,
		Timestamp:   l.now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// first position holding a strictly lower score
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].Score < score })
	l.entries = slices.Insert(l.entries, i, e)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	return e
}

// Top returns up to n highest entries.
func (l *Leaderboard) Top(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return []Entry{}
	}
	n = min(n, len(l.entries))
	return slices.Clone(l.entries[:n])
}

// ForPlayer returns every retained entry of player with totals.
func (l *Leaderboard) ForPlayer(player string) PlayerScore {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ps := PlayerScore{Player: player, Entries: []Entry{}}
	for _, e := range l.entries {
		if e.Player != player {
			continue
		}
		ps.Entries = append(ps.Entries, e)
		ps.TotalScore += e.Score
	}
	ps.GamesPlayed = len(ps.Entries)
	return ps
}

func (l *Leaderboard) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
