package vector

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sort"
	"sync"

	"github.com/hyperjump/semcache/pkg/utils"
)

// HNSWOptions tunes the HNSW graph. Zero values use the defaults.
type HNSWOptions struct {
	M              int   // neighbors per node above layer 0, layer 0 keeps 2*M (default 16)
	EfConstruction int   // candidate list size while linking a new node (default 200)
	EfSearch       int   // candidate list size during search (default 50, raised to k)
	Seed           int64 // level generator seed (default 1)
}

const (
	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 200
	defaultHNSWEfSearch       = 50
	defaultHNSWSeed           = 1
)

// hnswNode is one graph vertex. vector is the unit-normalized copy used for
// distances; friends[l] lists neighbor offsets on layer l.
type hnswNode struct {
	id      uint64
	vector  []float32
	friends [][]int32
}

// HNSWIndex is an in-memory HNSW index using cosine distance.
// The graph itself is unbounded; capacity is bookkeeping that mirrors a
// fixed-size ANN structure and is only changed by Init and Grow.
type HNSWIndex struct {
	opts   HNSWOptions
	levelM float64
	rng    *rand.Rand

	points   []point
	nodes    []hnswNode
	entry    int32
	maxLevel int
	// exact maps the bit pattern of a stored vector to its nodes so a
	// repeated vector always seeds the layer 0 search.
	exact map[string][]int32

	visited []uint32
	epoch   uint32

	capacity    int
	dimensions  int
	initialized bool
	mu          sync.Mutex
}

// NewHNSWIndex returns an uninitialized HNSW index; call Init before Insert.
func NewHNSWIndex(opts HNSWOptions) *HNSWIndex {
	if opts.M <= 1 {
		opts.M = defaultHNSWM
	}
	if opts.EfConstruction <= 0 {
		opts.EfConstruction = defaultHNSWEfConstruction
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = defaultHNSWEfSearch
	}
	if opts.Seed == 0 {
		opts.Seed = defaultHNSWSeed
	}
	return &HNSWIndex{
		opts:   opts,
		levelM: 1 / math.Log(float64(opts.M)),
	}
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Init discards all points and prepares an empty graph.
func (h *HNSWIndex) Init(capacity, dimensions int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = make([]point, 0, capacity)
	h.resetGraph(capacity)
	h.capacity = capacity
	h.dimensions = dimensions
	h.initialized = true
	return nil
}

func (h *HNSWIndex) resetGraph(capacity int) {
	h.rng = rand.New(rand.NewSource(h.opts.Seed))
	h.nodes = make([]hnswNode, 0, capacity)
	h.entry = -1
	h.maxLevel = -1
	h.exact = make(map[string][]int32, capacity)
	h.visited = make([]uint32, 0, capacity)
	h.epoch = 0
}

// Insert adds a point. It fails without mutating the index when the vector
// has the wrong dimension or the index is full.
func (h *HNSWIndex) Insert(vector []float32, id uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return ErrNotInitialized
	}
	if len(vector) != h.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), h.dimensions)
	}
	if len(h.points) >= h.capacity {
		return fmt.Errorf("%w: capacity %d", ErrIndexFull, h.capacity)
	}
	vec := utils.CloneVector(vector)
	h.add(id, vec)
	h.points = append(h.points, point{id: id, vector: vec})
	return nil
}

// Grow rebuilds the graph at newCapacity from the point log.
func (h *HNSWIndex) Grow(newCapacity int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return ErrNotInitialized
	}
	if newCapacity < len(h.points) {
		return fmt.Errorf("%w: %d is below current count %d", ErrInvalidCapacity, newCapacity, len(h.points))
	}
	points := make([]point, len(h.points), newCapacity)
	copy(points, h.points)
	h.points = points
	h.resetGraph(newCapacity)
	for _, p := range h.points {
		h.add(p.id, p.vector)
	}
	h.capacity = newCapacity
	return nil
}

// Count returns the number of inserted points.
func (h *HNSWIndex) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}

// Capacity returns the configured maximum number of points.
func (h *HNSWIndex) Capacity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity
}

// Dimensions returns the vector length, 0 before Init.
func (h *HNSWIndex) Dimensions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dimensions
}

// SearchKNN returns up to k nearest points by cosine distance, closest first.
// A query equal to a stored vector always returns that point first, at distance 0.
func (h *HNSWIndex) SearchKNN(query []float32, k int) ([]Neighbor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.initialized {
		return nil, ErrNotInitialized
	}
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), h.dimensions)
	}
	if k <= 0 || len(h.nodes) == 0 {
		return nil, nil
	}
	if k > len(h.nodes) {
		k = len(h.nodes)
	}
	ef := h.opts.EfSearch
	if ef < k {
		ef = k
	}

	q := normalize(query)
	ep := h.entry
	for level := h.maxLevel; level > 0; level-- {
		ep = h.greedyClosest(q, ep, level)
	}
	repeats := h.exact[vectorKey(query)]
	found := h.searchLayer(q, append([]int32{ep}, repeats...), ef, 0)
	if len(repeats) > 0 {
		for i := range found {
			if slices.Contains(repeats, found[i].node) {
				found[i].dist = 0
			}
		}
		sortCandidates(found)
	}

	results := make([]Neighbor, 0, k)
	for _, c := range found[:min(k, len(found))] {
		results = append(results, Neighbor{ID: h.nodes[c.node].id, Distance: c.dist})
	}
	return results, nil
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = nil
	h.nodes = nil
	h.exact = nil
	h.visited = nil
	h.initialized = false
	return nil
}

// add links a new node into every layer up to its randomly drawn level.
func (h *HNSWIndex) add(id uint64, vector []float32) {
	level := h.randomLevel()
	idx := int32(len(h.nodes))
	q := normalize(vector)
	h.nodes = append(h.nodes, hnswNode{id: id, vector: q, friends: make([][]int32, level+1)})
	h.visited = append(h.visited, 0)
	key := vectorKey(vector)
	h.exact[key] = append(h.exact[key], idx)

	if h.entry < 0 {
		h.entry = idx
		h.maxLevel = level
		return
	}

	ep := h.entry
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedyClosest(q, ep, l)
	}
	eps := []int32{ep}
	for l := min(level, h.maxLevel); l >= 0; l-- {
		found := h.searchLayer(q, eps, h.opts.EfConstruction, l)
		neighbors := h.selectNeighbors(found, h.opts.M)
		h.nodes[idx].friends[l] = neighbors
		for _, n := range neighbors {
			h.link(n, idx, l)
		}
		eps = eps[:0]
		for _, c := range found {
			eps = append(eps, c.node)
		}
	}
	if level > h.maxLevel {
		h.entry = idx
		h.maxLevel = level
	}
}

// link adds to as a neighbor of from on level and prunes from's list when it
// exceeds the layer's degree limit.
func (h *HNSWIndex) link(from, to int32, level int) {
	friends := append(h.nodes[from].friends[level], to)
	limit := h.opts.M
	if level == 0 {
		limit = 2 * h.opts.M
	}
	if len(friends) > limit {
		base := h.nodes[from].vector
		cands := make([]candidate, len(friends))
		for i, f := range friends {
			cands[i] = candidate{node: f, dist: distance(base, h.nodes[f].vector)}
		}
		sortCandidates(cands)
		friends = h.selectNeighbors(cands, limit)
	}
	h.nodes[from].friends[level] = friends
}

// selectNeighbors applies the HNSW diversity heuristic to cands (sorted by
// ascending distance) and tops up with pruned candidates until m are kept.
func (h *HNSWIndex) selectNeighbors(cands []candidate, m int) []int32 {
	selected := make([]candidate, 0, m)
	var pruned []candidate
	for _, c := range cands {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if distance(h.nodes[c.node].vector, h.nodes[s.node].vector) <= c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}
	for _, c := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c)
	}
	out := make([]int32, len(selected))
	for i, s := range selected {
		out[i] = s.node
	}
	return out
}

// greedyClosest walks level from ep towards q until no neighbor is closer.
func (h *HNSWIndex) greedyClosest(q []float32, ep int32, level int) int32 {
	best := ep
	bestDist := distance(q, h.nodes[ep].vector)
	for changed := true; changed; {
		changed = false
		for _, n := range h.nodes[best].friends[level] {
			if d := distance(q, h.nodes[n].vector); d < bestDist {
				best, bestDist, changed = n, d, true
			}
		}
	}
	return best
}

// searchLayer is the HNSW beam search on one level. It returns up to ef
// candidates sorted by ascending distance.
func (h *HNSWIndex) searchLayer(q []float32, eps []int32, ef, level int) []candidate {
	h.epoch++
	if h.epoch == 0 {
		clear(h.visited)
		h.epoch = 1
	}
	pending := &minHeap{}
	results := &maxHeap{}
	for _, ep := range eps {
		if h.visited[ep] == h.epoch {
			continue
		}
		h.visited[ep] = h.epoch
		c := candidate{node: ep, dist: distance(q, h.nodes[ep].vector)}
		heap.Push(pending, c)
		heap.Push(results, c)
	}
	for results.Len() > ef {
		heap.Pop(results)
	}

	for pending.Len() > 0 {
		c := heap.Pop(pending).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		if level >= len(h.nodes[c.node].friends) {
			continue
		}
		for _, n := range h.nodes[c.node].friends[level] {
			if h.visited[n] == h.epoch {
				continue
			}
			h.visited[n] = h.epoch
			d := distance(q, h.nodes[n].vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(pending, candidate{node: n, dist: d})
				heap.Push(results, candidate{node: n, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	sortCandidates(out)
	return out
}

func (h *HNSWIndex) randomLevel() int {
	return int(-math.Log(1-h.rng.Float64()) * h.levelM)
}

type candidate struct {
	node int32
	dist float64
}

func sortCandidates(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].dist != cs[j].dist {
			return cs[i].dist < cs[j].dist
		}
		return cs[i].node < cs[j].node
	})
}

type minHeap []candidate

func (m minHeap) Len() int           { return len(m) }
func (m minHeap) Less(i, j int) bool { return m[i].dist < m[j].dist }
func (m minHeap) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m *minHeap) Push(x any)        { *m = append(*m, x.(candidate)) }
func (m *minHeap) Pop() any {
	old := *m
	c := old[len(old)-1]
	*m = old[:len(old)-1]
	return c
}

type maxHeap []candidate

func (m maxHeap) Len() int           { return len(m) }
func (m maxHeap) Less(i, j int) bool { return m[i].dist > m[j].dist }
func (m maxHeap) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m *maxHeap) Push(x any)        { *m = append(*m, x.(candidate)) }
func (m *maxHeap) Pop() any {
	old := *m
	c := old[len(old)-1]
	*m = old[:len(old)-1]
	return c
}

// normalize returns a unit-length copy of v. A zero vector stays zero, which
// puts it at distance 1 from everything.
func normalize(v []float32) []float32 {
	out := utils.CloneVector(v)
	n := utils.L2Norm(out)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		clear(out)
		return out
	}
	utils.NormalizeL2(out)
	return out
}

// distance is the cosine distance of two unit vectors, clamped to [0, 2].
func distance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	d := 1 - dot
	switch {
	case math.IsNaN(d):
		return 1
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

func vectorKey(v []float32) string {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		bits := math.Float32bits(x)
		b[4*i] = byte(bits)
		b[4*i+1] = byte(bits >> 8)
		b[4*i+2] = byte(bits >> 16)
		b[4*i+3] = byte(bits >> 24)
	}
	return string(b)
}
