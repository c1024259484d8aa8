// Package dimension builds the three-level category tree used to roll leaf
// scores up to their level-1 category.
package dimension

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okian/evalboard/internal/domain/model"
)

// Sentinel errors for tree construction and lookup.
var (
	ErrDuplicateID   = errors.New("duplicate dimension id")
	ErrUnknownParent = errors.New("unknown parent dimension")
	ErrNotFound      = errors.New("dimension not found")
)

const noNode = -1

type node struct {
	dim      model.Dimension
	parent   int
	children []int
}

// Tree is an arena of dimension nodes linked by index.
type Tree struct {
	nodes []node
	index map[int64]int
	roots []int
}

// Build constructs a tree from a flat dimension list. Parents may appear after children.
func Build(dims []model.Dimension) (*Tree, error) {
	t := &Tree{
		nodes: make([]node, 0, len(dims)),
		index: make(map[int64]int, len(dims)),
	}
	for _, d := range dims {
		if _, ok := t.index[d.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, d.ID)
		}
		t.index[d.ID] = len(t.nodes)
		t.nodes = append(t.nodes, node{dim: d, parent: noNode})
	}
	for i := range t.nodes {
		pid := t.nodes[i].dim.ParentID
		if pid == 0 {
			t.roots = append(t.roots, i)
			continue
		}
		p, ok := t.index[pid]
		if !ok {
			return nil, fmt.Errorf("%w: %d (child %d)", ErrUnknownParent, pid, t.nodes[i].dim.ID)
		}
		t.nodes[i].parent = p
		t.nodes[p].children = append(t.nodes[p].children, i)
	}
	byID := func(s []int) func(a, b int) bool {
		return func(a, b int) bool { return t.nodes[s[a]].dim.ID < t.nodes[s[b]].dim.ID }
	}
	sort.Slice(t.roots, byID(t.roots))
	for i := range t.nodes {
		c := t.nodes[i].children
		sort.Slice(c, byID(c))
	}
	return t, nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Get returns the dimension with the given id.
func (t *Tree) Get(id int64) (model.Dimension, bool) {
	i, ok := t.index[id]
	if !ok {
		return model.Dimension{}, false
	}
	return t.nodes[i].dim, true
}

// Roots returns the level-1 dimensions ordered by id.
func (t *Tree) Roots() []model.Dimension {
	out := make([]model.Dimension, 0, len(t.roots))
	for _, i := range t.roots {
		if t.nodes[i].dim.Level == model.LevelCategory {
			out = append(out, t.nodes[i].dim)
		}
	}
	return out
}

// Children returns the direct children of id ordered by id.
func (t *Tree) Children(id int64) []model.Dimension {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make([]model.Dimension, 0, len(t.nodes[i].children))
	for _, c := range t.nodes[i].children {
		out = append(out, t.nodes[c].dim)
	}
	return out
}

// RootOf walks leaf -> level 2 -> level 1 and returns the level-1 id.
// It fails unless the chain has exactly that shape.
func (t *Tree) RootOf(leafID int64) (int64, bool) {
	i, ok := t.index[leafID]
	if !ok || t.nodes[i].dim.Level != model.LevelLeaf {
		return 0, false
	}
	mid := t.nodes[i].parent
	if mid == noNode || t.nodes[mid].dim.Level != model.LevelSubCategory {
		return 0, false
	}
	top := t.nodes[mid].parent
	if top == noNode || t.nodes[top].dim.Level != model.LevelCategory {
		return 0, false
	}
	return t.nodes[top].dim.ID, true
}

// RootIndex precomputes RootOf for every leaf.
func (t *Tree) RootIndex() map[int64]int64 {
	out := make(map[int64]int64)
	for i := range t.nodes {
		if t.nodes[i].dim.Level != model.LevelLeaf {
			continue
		}
		if root, ok := t.RootOf(t.nodes[i].dim.ID); ok {
			out[t.nodes[i].dim.ID] = root
		}
	}
	return out
}

// FindByName returns the first dimension at level with the given name.
func (t *Tree) FindByName(level int, name string) (model.Dimension, error) {
	for i := range t.nodes {
		d := t.nodes[i].dim
		if d.Level == level && d.Name == name {
			return d, nil
		}
	}
	return model.Dimension{}, fmt.Errorf("%w: level %d name %q", ErrNotFound, level, name)
}
