package room

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// roomLocks serializes work per room. A room id always maps to the same
// stripe; unrelated rooms may share one.
type roomLocks struct {
	stripes []sync.Mutex
}

func newRoomLocks(n int) *roomLocks {
	if n <= 0 {
		n = defaultStripes
	}
	return &roomLocks{stripes: make([]sync.Mutex, n)}
}

func (l *roomLocks) stripe(roomID string) int {
	return int(xxhash.Sum64String(roomID) % uint64(len(l.stripes)))
}

func (l *roomLocks) lock(roomID string) (unlock func()) {
	m := &l.stripes[l.stripe(roomID)]
	m.Lock()
	return m.Unlock
}

// lockAll holds the stripes of every given room at once. Stripes are taken
// in ascending index order so two multi-room holders cannot deadlock.
func (l *roomLocks) lockAll(roomIDs ...string) (unlock func()) {
	idx := make([]int, 0, len(roomIDs))
	for _, id := range roomIDs {
		idx = append(idx, l.stripe(id))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
