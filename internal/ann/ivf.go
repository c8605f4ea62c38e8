package ann

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// IVF maps each partition to the set of slots assigned to it. It is not
// safe for concurrent mutation; the owning index serialises writers.
type IVF struct {
	part   *Partitioner
	lists  []*roaring.Bitmap
	member map[uint32]int
}

// NewIVF creates empty inverted lists for p.
func NewIVF(p *Partitioner) *IVF {
	lists := make([]*roaring.Bitmap, p.K())
	for i := range lists {
		lists[i] = roaring.New()
	}
	return &IVF{part: p, lists: lists, member: make(map[uint32]int)}
}

// Partitioner returns the centroids backing the lists.
func (f *IVF) Partitioner() *Partitioner { return f.part }

// Add assigns slot to the partition closest to v, replacing any previous
// assignment.
func (f *IVF) Add(slot uint32, v []float32) int {
	f.Remove(slot)
	p := f.part.Assign(v)
	f.lists[p].Add(slot)
	f.member[slot] = p
	return p
}

// Remove drops slot from its partition, if assigned.
func (f *IVF) Remove(slot uint32) {
	if p, ok := f.member[slot]; ok {
		f.lists[p].Remove(slot)
		delete(f.member, slot)
	}
}

// Len returns the number of assigned slots.
func (f *IVF) Len() int { return len(f.member) }

// Sizes returns the cardinality of every partition.
func (f *IVF) Sizes() []uint64 {
	out := make([]uint64, len(f.lists))
	for i, l := range f.lists {
		out[i] = l.GetCardinality()
	}
	return out
}

// Probe returns the union of the nprobe partitions closest to q. The result
// is a fresh bitmap owned by the caller.
func (f *IVF) Probe(q []float32, nprobe int) *roaring.Bitmap {
	ids := f.part.Probe(q, nprobe)
	bms := make([]*roaring.Bitmap, len(ids))
	for i, id := range ids {
		bms[i] = f.lists[id]
	}
	return roaring.FastOr(bms...)
}
