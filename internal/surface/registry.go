// Package surface tracks the page surfaces currently mounted in the document
// view together with their on-screen placement.
package surface

import (
	"sort"
	"sync"

	"github.com/bryanchriswhite/PageGrab/internal/geom"
	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// Descriptor describes one mounted page surface.
type Descriptor struct {
	PageIndex    int       `json:"page_index"` // 1-based
	ScreenBounds geom.Rect `json:"screen_bounds"`
	BitmapWidth  int       `json:"bitmap_width"`
	BitmapHeight int       `json:"bitmap_height"`
	Visible      bool      `json:"visible"`
	Raster       Raster    `json:"-"`
}

// Querier is the read side of the registry used by the capture pipeline.
type Querier interface {
	QueryPoint(p geom.Point) []Descriptor
	QueryRect(r geom.Rect) []Descriptor
}

type entry struct {
	desc Descriptor
	seq  uint64
}

// Registry holds the descriptors of mounted page surfaces keyed by page index.
type Registry struct {
	mu         sync.RWMutex
	entries    map[int]*entry
	nextSeq    uint64
	generation uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]*entry)}
}

// Register mounts a surface, or replaces the descriptor of an already mounted
// page. A replaced descriptor keeps its registration order.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[d.PageIndex]; ok {
		e.desc = d
		return
	}
	r.nextSeq++
	r.entries[d.PageIndex] = &entry{desc: d, seq: r.nextSeq}

	logger.WithComponent("surface").Debug().
		Int("page", d.PageIndex).
		Int("bitmap_width", d.BitmapWidth).
		Int("bitmap_height", d.BitmapHeight).
		Msg("Surface registered")
}

// Unregister removes a page surface. It reports whether the page was mounted.
func (r *Registry) Unregister(pageIndex int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[pageIndex]; !ok {
		return false
	}
	delete(r.entries, pageIndex)
	return true
}

// Reset drops every surface at once and starts a new generation.
func (r *Registry) Reset() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[int]*entry)
	r.nextSeq = 0
	r.generation++
	return r.generation
}

// Generation identifies the document the current surfaces belong to.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Get returns the descriptor of a mounted page.
func (r *Registry) Get(pageIndex int) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[pageIndex]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Len returns the number of mounted surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns every descriptor in query order.
func (r *Registry) Snapshot() []Descriptor {
	return r.collect(func(Descriptor) bool { return true })
}

// QueryPoint returns the surfaces whose bounds contain p, visible surfaces
// first, then by registration order.
func (r *Registry) QueryPoint(p geom.Point) []Descriptor {
	return r.collect(func(d Descriptor) bool { return d.ScreenBounds.Contains(p) })
}

// QueryRect returns the surfaces overlapping rect, in the same order as
// QueryPoint.
func (r *Registry) QueryRect(rect geom.Rect) []Descriptor {
	return r.collect(func(d Descriptor) bool { return d.ScreenBounds.Overlaps(rect) })
}

func (r *Registry) collect(match func(Descriptor) bool) []Descriptor {
	r.mu.RLock()
	matched := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if match(e.desc) {
			matched = append(matched, *e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].desc.Visible != matched[j].desc.Visible {
			return matched[i].desc.Visible
		}
		return matched[i].seq < matched[j].seq
	})

	out := make([]Descriptor, len(matched))
	for i := range matched {
		out[i] = matched[i].desc
	}
	return out
}
