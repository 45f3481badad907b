// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

package geometry

import (
	"math"

	"github.com/railatlas/railatlas/internal/blockpos"
	"github.com/railatlas/railatlas/internal/models"
)

// mergeEpsilon is the approximate-equality radius for collapsing
// coincident segment endpoints into one graph node, in block units.
const mergeEpsilon = 1e-3

// node is one merged endpoint of the track graph.
type node struct {
	x, y, z float64

	// edges out of this node, in first-seen order so walks are
	// deterministic.
	out []edge

	// merged counts how many distinct raw positions collapsed into
	// this node. Anything above 1 is worth a diagnostics note.
	merged int
}

type edge struct {
	to      int // node index
	segment int // index into the input segment list
}

// graph is the adjacency structure over merged nodes.
type graph struct {
	nodes []*node

	// buckets maps quantized coordinates to node indexes.
	buckets map[[3]int64]int

	// segNodes records the merged (from, to) node pair per input segment.
	segNodes [][2]int
}

func quantize(v float64) int64 {
	return int64(math.Round(v / mergeEpsilon))
}

func bucketKey(x, y, z float64) [3]int64 {
	return [3]int64{quantize(x), quantize(y), quantize(z)}
}

// buildGraph merges segment endpoints and wires directed edges. Every
// segment contributes its endpoints even when its connection metadata is
// missing; a bare edge still carries positional information.
func buildGraph(segments []models.RailSegment) *graph {
	g := &graph{
		buckets:  make(map[[3]int64]int),
		segNodes: make([][2]int, len(segments)),
	}
	for i, seg := range segments {
		from := g.intern(seg.Start)
		to := g.intern(seg.End)
		g.nodes[from].out = append(g.nodes[from].out, edge{to: to, segment: i})
		g.segNodes[i] = [2]int{from, to}
	}
	return g
}

// intern returns the node index for a position, merging positions that
// fall into the same epsilon bucket.
func (g *graph) intern(p blockpos.Pos) int {
	x, y, z := float64(p.X), float64(p.Y), float64(p.Z)
	key := bucketKey(x, y, z)
	if idx, ok := g.buckets[key]; ok {
		n := g.nodes[idx]
		if x != n.x || y != n.y || z != n.z {
			n.merged++
		}
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, &node{x: x, y: y, z: z, merged: 1})
	g.buckets[key] = idx
	return idx
}

// degrees counts the edges touching each node in both directions.
func (g *graph) degrees() []int {
	deg := make([]int, len(g.nodes))
	for _, pair := range g.segNodes {
		deg[pair[0]]++
		deg[pair[1]]++
	}
	return deg
}

// nearest returns the node index closest to (x, z) on the map plane, or
// -1 for an empty graph. Ties keep the lowest index so results are
// stable across runs.
func (g *graph) nearest(x, z float64) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, n := range g.nodes {
		d := (n.x-x)*(n.x-x) + (n.z-z)*(n.z-z)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// nearestAhead returns the closest node not behind (x, z) relative to
// the travel direction (dx, dz), or -1 when no node qualifies. A node
// coincident with the stop has a zero dot product and still qualifies.
func (g *graph) nearestAhead(x, z, dx, dz float64) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, n := range g.nodes {
		vx, vz := n.x-x, n.z-z
		if vx*dx+vz*dz < 0 {
			continue
		}
		d := vx*vx + vz*vz
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// walk finds a path of edges from node a to node b with a breadth-first
// search. Neighbor order is insertion order, so identical graphs always
// produce identical walks. Returns the segment indexes along the path,
// or nil when b is unreachable from a.
func (g *graph) walk(a, b int) []int {
	if a == b {
		return []int{}
	}
	type hop struct {
		prev    int // index into hops
		segment int
		node    int
	}
	visited := make([]bool, len(g.nodes))
	visited[a] = true
	hops := []hop{{prev: -1, segment: -1, node: a}}
	queue := []int{0}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.nodes[hops[cur].node].out {
			if visited[e.to] {
				continue
			}
			visited[e.to] = true
			hops = append(hops, hop{prev: cur, segment: e.segment, node: e.to})
			if e.to == b {
				// Unwind the hop chain into segment order.
				var segs []int
				for i := len(hops) - 1; hops[i].prev != -1; i = hops[i].prev {
					segs = append(segs, hops[i].segment)
				}
				reverseInts(segs)
				return segs
			}
			queue = append(queue, len(hops)-1)
		}
	}
	return nil
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
