// Package numa implements the NUMA-aware memory manager: a set of nodes,
// each owning one fixed-block pool per size class over its own arena.
//
// Grounded on internal/runtime/numa/optimizer.go's Topology/Node/Allocator
// shapes (there a toy []byte-backed allocator over per-node MemoryPools),
// re-targeted here onto the real lock-free internal/pool pools built in
// §4.3, and on internal/allocator/allocator.go's sizeClasses table.
package numa

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/ashlar-systems/tradekernel/internal/arena"
	"github.com/ashlar-systems/tradekernel/internal/cycles"
	"github.com/ashlar-systems/tradekernel/internal/kernelerr"
	"github.com/ashlar-systems/tradekernel/internal/pool"
)

// SizeClasses are the fixed block sizes every node carries one pool for.
// The top entry, 8192, is sized to the documented default task stack (8
// KiB); 4096 stands in for the simulated page size (spec.md §9 O4).
var SizeClasses = []uintptr{64, 128, 256, 512, 1024, 2048, 4096, 8192}

// BlocksPerClass is how many blocks of each size class a node's arena is
// sized to hold.
const BlocksPerClass = 256

// Node is a single NUMA node: an identifier, the CPUs it owns, and one
// fixed-block pool per size class, all carved from the node's own arena.
type Node struct {
	ID    int
	CPUs  []int
	arena *arena.Arena
	pools map[uintptr]*pool.Pool

	mu    sync.Mutex
	stats NodeStats
}

// NodeStats tracks allocation activity on a single node, publishing the
// six statistics spec.md §4.4 requires: total_allocations,
// total_deallocations, total_bytes_allocated, peak_bytes_allocated,
// mean_alloc_cycles, and max_alloc_cycles. Allocation latency is
// cycle-timed around each pool call, per §4.4.
type NodeStats struct {
	TotalAllocations    int64
	TotalDeallocations  int64
	TotalBytesAllocated uint64
	PeakBytesAllocated  uint64
	MeanAllocCycles     uint64
	MaxAllocCycles      uint64

	Exhausted int64

	liveBytes      uint64
	sumAllocCycles uint64
}

// Config selects the manager's behavior at boot.
type Config struct {
	// Alignment applied to every pool's blocks.
	Alignment uintptr
	// LockPhysical requests that each node's backing arena be pinned
	// (mlock) for the simulation's lifetime, per spec.md §4.3's
	// lock_physical pool configuration.
	LockPhysical bool
}

// DefaultConfig matches the teacher's conservative defaults in
// kernel.DefaultKernelConfig: 8-byte alignment, no physical pinning.
func DefaultConfig() Config {
	return Config{Alignment: 8, LockPhysical: false}
}

// Manager owns the discovered topology and the pools built over it.
type Manager struct {
	nodes  []*Node
	cfg    Config
	pinned [][]byte
}

// Initialize discovers the host's NUMA topology (component O) and builds
// one pool per size class per node. Returns an error if any node's arena
// cannot be pinned when LockPhysical is requested.
func Initialize(cfg Config) (*Manager, error) {
	topo := DiscoverTopology()
	if cfg.Alignment == 0 {
		cfg.Alignment = 8
	}

	m := &Manager{cfg: cfg}

	for _, tn := range topo {
		node := &Node{
			ID:    tn.ID,
			CPUs:  tn.CPUs,
			pools: make(map[uintptr]*pool.Pool, len(SizeClasses)),
		}

		var regionSize uintptr
		for _, sc := range SizeClasses {
			regionSize += sc * BlocksPerClass
		}
		// Generous headroom for per-block headers and alignment padding.
		node.arena = arena.New(regionSize * 2)

		for _, sc := range SizeClasses {
			p, err := pool.New(node.arena, sc, BlocksPerClass, cfg.Alignment)
			if err != nil {
				return nil, fmt.Errorf("numa: node %d size class %d: %w", tn.ID, sc, err)
			}
			node.pools[sc] = p
		}

		if cfg.LockPhysical {
			buf := node.arena.Buffer()
			if err := lockPhysical(buf); err != nil {
				return nil, fmt.Errorf("numa: node %d: %w", tn.ID, err)
			}
			m.pinned = append(m.pinned, buf)
		}

		m.nodes = append(m.nodes, node)
	}

	return m, nil
}

// Shutdown unpins any physically locked node arenas. NumaNode/Pool
// lifetimes otherwise end with process exit per spec.md §3.
func (m *Manager) Shutdown() error {
	for _, buf := range m.pinned {
		if err := unlockPhysical(buf); err != nil {
			return err
		}
	}
	return nil
}

// Nodes returns the manager's nodes in ID order.
func (m *Manager) Nodes() []*Node {
	return m.nodes
}

// classFor returns the smallest size class that accommodates size, or 0
// if none of the manager's classes are large enough.
func classFor(size uintptr) uintptr {
	idx := sort.Search(len(SizeClasses), func(i int) bool {
		return SizeClasses[i] >= size
	})
	if idx == len(SizeClasses) {
		return 0
	}
	return SizeClasses[idx]
}

// Allocate draws a block from the given node's pool for the smallest size
// class that fits size. The pool call is cycle-timed so the node's latency
// statistics (mean_alloc_cycles, max_alloc_cycles) reflect the pool's own
// allocation cost, per spec.md §4.4.
func (m *Manager) Allocate(size uintptr, node int) (uintptr, error) {
	if node < 0 || node >= len(m.nodes) {
		return 0, kernelerr.ErrAllocationExhausted
	}
	sc := classFor(size)
	if sc == 0 {
		return 0, kernelerr.ErrAllocationExhausted
	}

	n := m.nodes[node]
	p := n.pools[sc]

	t0 := cycles.ReadCycle()
	ptr, err := p.Allocate()
	elapsed := cycles.ReadCycle().Elapsed(t0)

	n.mu.Lock()
	if err != nil {
		n.stats.Exhausted++
	} else {
		n.stats.TotalAllocations++
		n.stats.TotalBytesAllocated += uint64(sc)
		n.stats.liveBytes += uint64(sc)
		if n.stats.liveBytes > n.stats.PeakBytesAllocated {
			n.stats.PeakBytesAllocated = n.stats.liveBytes
		}
		n.stats.sumAllocCycles += elapsed
		n.stats.MeanAllocCycles = n.stats.sumAllocCycles / uint64(n.stats.TotalAllocations)
		if elapsed > n.stats.MaxAllocCycles {
			n.stats.MaxAllocCycles = elapsed
		}
	}
	n.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return uintptr(ptr), nil
}

// Deallocate returns ptr to whichever node/size-class pool owns it.
func (m *Manager) Deallocate(ptr uintptr) error {
	up := unsafe.Pointer(ptr) //nolint:govet // ptr was handed out by Allocate as a live pool address
	for _, n := range m.nodes {
		for _, p := range n.pools {
			if p.Contains(up) {
				if err := p.Deallocate(up); err != nil {
					return err
				}
				n.mu.Lock()
				n.stats.TotalDeallocations++
				if sz := uint64(p.BlockSize()); n.stats.liveBytes >= sz {
					n.stats.liveBytes -= sz
				}
				n.mu.Unlock()
				return nil
			}
		}
	}
	return kernelerr.ErrInvalidPointer
}

// Stats returns a snapshot of per-node allocation counters.
func (m *Manager) Stats() map[int]NodeStats {
	out := make(map[int]NodeStats, len(m.nodes))
	for _, n := range m.nodes {
		n.mu.Lock()
		out[n.ID] = n.stats
		n.mu.Unlock()
	}
	return out
}
