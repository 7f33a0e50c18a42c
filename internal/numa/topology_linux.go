//go:build linux

package numa

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// TopologyNode is the raw shape DiscoverTopology reports before pools are
// built over it.
type TopologyNode struct {
	ID   int
	CPUs []int
}

// DiscoverTopology reads /sys/devices/system/node on Linux to enumerate
// online NUMA nodes and the CPUs assigned to each, grounded on
// internal/runtime/numa/optimizer.go's discoverNodes (there a synthetic
// runtime.NumCPU()/4 partition; here the real sysfs topology). Falls back
// to a single node spanning every CPU if sysfs is absent or unreadable,
// matching the teacher's fallback-allocate posture for constrained hosts.
func DiscoverTopology() []TopologyNode {
	const base = "/sys/devices/system/node"
	entries, err := os.ReadDir(base)
	if err != nil {
		return singleNodeFallback()
	}

	var nodes []TopologyNode
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		idStr := strings.TrimPrefix(name, "node")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		cpus := readNodeCPUs(filepath.Join(base, name))
		nodes = append(nodes, TopologyNode{ID: id, CPUs: cpus})
	}

	if len(nodes) == 0 {
		return singleNodeFallback()
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// readNodeCPUs globs cpuNN entries under a node's sysfs directory.
func readNodeCPUs(nodeDir string) []int {
	entries, err := os.ReadDir(nodeDir)
	if err != nil {
		return nil
	}
	var cpus []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		numStr := strings.TrimPrefix(name, "cpu")
		if numStr == "" {
			continue
		}
		if n, err := strconv.Atoi(numStr); err == nil {
			cpus = append(cpus, n)
		}
	}
	sort.Ints(cpus)
	return cpus
}

func singleNodeFallback() []TopologyNode {
	cpus := make([]int, numCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return []TopologyNode{{ID: 0, CPUs: cpus}}
}
