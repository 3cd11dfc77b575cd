package moderator

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"motion-live-client/internal/model"
)

// Row is one entry of the motion list.
type Row struct {
	Motion    model.Motion `json:"motion"`
	Tally     *model.Tally `json:"tally,omitempty"`
	Completed bool         `json:"completed"`
}

// Index maps motion ids to metadata and tallies. Tallies live in a
// go-cache so a non-zero ttl makes stale counts fall out and get fetched
// again on the next selection.
type Index struct {
	order   []int64
	motions map[int64]*model.Motion
	tallies *cache.Cache
}

// NewIndex creates an empty index. A ttl of zero keeps tallies forever.
func NewIndex(ttl time.Duration) *Index {
	exp := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		exp = ttl
		cleanup = 2 * ttl
	}
	return &Index{
		motions: make(map[int64]*model.Motion),
		tallies: cache.New(exp, cleanup),
	}
}

func tallyKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Load replaces the motion list, keeping display order. Cached tallies of
// motions still listed survive.
func (x *Index) Load(motions []model.Motion) {
	x.order = x.order[:0]
	fresh := make(map[int64]*model.Motion, len(motions))
	for _, m := range motions {
		if m.ID == 0 {
			continue
		}
		if _, dup := fresh[m.ID]; dup {
			continue
		}
		meta := metadata(m)
		fresh[m.ID] = meta
		x.order = append(x.order, m.ID)
	}
	for id := range x.motions {
		if _, ok := fresh[id]; !ok {
			x.tallies.Delete(tallyKey(id))
		}
	}
	x.motions = fresh
}

// metadata strips per-viewer fields a list entry never carries.
func metadata(m model.Motion) *model.Motion {
	out := m.Clone()
	out.Counts = nil
	out.Selection = nil
	return out
}

// Merge overlays an event payload onto the stored metadata. Unknown
// motions are appended to the list.
func (x *Index) Merge(m model.Motion) model.Motion {
	cur, ok := x.motions[m.ID]
	if !ok {
		meta := metadata(m)
		x.motions[m.ID] = meta
		x.order = append(x.order, m.ID)
		return *meta.Clone()
	}
	votes := cur.VotesCount
	*cur = *metadata(m)
	if cur.VotesCount == 0 {
		cur.VotesCount = votes
	}
	return *cur.Clone()
}

// Update applies fn to a stored motion.
func (x *Index) Update(id int64, fn func(*model.Motion)) bool {
	m, ok := x.motions[id]
	if !ok {
		return false
	}
	fn(m)
	return true
}

// Has reports whether id is listed.
func (x *Index) Has(id int64) bool {
	_, ok := x.motions[id]
	return ok
}

// Motion returns a copy of a motion's metadata.
func (x *Index) Motion(id int64) (model.Motion, bool) {
	m, ok := x.motions[id]
	if !ok {
		return model.Motion{}, false
	}
	return *m.Clone(), true
}

// First returns the id of the first listed motion, or 0.
func (x *Index) First() int64 {
	if len(x.order) == 0 {
		return 0
	}
	return x.order[0]
}

// Open returns the id of the first motion whose status is open, or 0.
func (x *Index) Open() int64 {
	for _, id := range x.order {
		if x.motions[id].IsOpen() {
			return id
		}
	}
	return 0
}

// SetTally stores counts for a motion and mirrors the total into the
// row's vote count.
func (x *Index) SetTally(id int64, t model.Tally) {
	if id == 0 {
		return
	}
	x.tallies.Set(tallyKey(id), t, cache.DefaultExpiration)
	if m, ok := x.motions[id]; ok {
		m.VotesCount = t.Total()
	}
}

// Tally returns the cached counts for a motion.
func (x *Index) Tally(id int64) (model.Tally, bool) {
	v, ok := x.tallies.Get(tallyKey(id))
	if !ok {
		return model.Tally{}, false
	}
	return v.(model.Tally), true
}

// Completed reports whether a motion ran to completion: it is closed, was
// opened and closed at known times, and received at least one vote.
func (x *Index) Completed(id int64) bool {
	m, ok := x.motions[id]
	if !ok || !m.IsClosed() || m.OpenedAt == nil || m.ClosedAt == nil {
		return false
	}
	total := m.VotesCount
	if t, ok := x.Tally(id); ok {
		total = t.Total()
	}
	return total > 0
}

// Rows returns the list in display order.
func (x *Index) Rows() []Row {
	rows := make([]Row, 0, len(x.order))
	for _, id := range x.order {
		row := Row{Motion: *x.motions[id].Clone(), Completed: x.Completed(id)}
		if t, ok := x.Tally(id); ok {
			row.Tally = &t
		}
		rows = append(rows, row)
	}
	return rows
}
