// Package btree implements a concurrent B+Tree over raw byte keys, ordered
// by bytes.Compare, using latch crabbing (per-node RWMutex, lock coupling,
// preventive top-down splits) rather than a single tree-wide lock. It backs
// both the in-memory engine and the disk engine's in-memory index.
package btree

import (
	"bytes"
	"sync"
)

// BPlusTree is a concurrent, ordered []byte -> []byte index.
type BPlusTree struct {
	T    int
	Root *Node
	mu   sync.RWMutex // protects the Root pointer across root splits/collapses
}

// NewTree returns an empty tree with minimum degree t (each non-root node
// holds between t-1 and 2t-1 keys).
func NewTree(t int) *BPlusTree {
	return &BPlusTree{
		T:    t,
		Root: NewNode(t, true),
	}
}

// Set inserts key with value, overwriting any existing value for key.
func (b *BPlusTree) Set(key, value []byte) error {
	return b.Upsert(key, func(_ []byte, _ bool) ([]byte, error) {
		return value, nil
	})
}

// Upsert runs fn against key's current value (nil, false if absent) and
// stores the returned value. fn runs while the target leaf is locked,
// making the read-modify-write atomic with respect to other tree operations.
func (b *BPlusTree) Upsert(key []byte, fn func(oldValue []byte, exists bool) (newValue []byte, err error)) error {
	b.mu.Lock()
	root := b.Root
	root.Lock()

	if root.IsFull() {
		newRoot := NewNode(b.T, false)
		newRoot.Children = append(newRoot.Children, root)
		newRoot.SplitChild(0)
		b.Root = newRoot
		b.mu.Unlock()

		newRoot.Lock()
		root.Unlock()

		return b.upsertTopDown(newRoot, key, fn)
	}

	b.mu.Unlock()
	return b.upsertTopDown(root, key, fn)
}

// upsertTopDown descends the tree, splitting full children preventively
// before entering them so the leaf ultimately reached is never full.
// curr must already be locked by the caller.
func (b *BPlusTree) upsertTopDown(curr *Node, key []byte, fn func(oldValue []byte, exists bool) (newValue []byte, err error)) error {
	defer func() {
		if curr != nil {
			curr.Unlock()
		}
	}()

	for !curr.Leaf {
		i := 0
		for i < curr.N && bytes.Compare(key, curr.Keys[i]) >= 0 {
			i++
		}

		child := curr.Children[i]
		child.Lock()

		if child.IsFull() {
			curr.SplitChild(i)
			if bytes.Compare(key, curr.Keys[i]) >= 0 {
				child.Unlock()
				child = curr.Children[i+1]
				child.Lock()
			}
		}

		curr.Unlock()
		curr = child
	}

	return curr.UpsertNonFull(key, fn)
}

// Get looks up key, returning its value and true if present.
func (b *BPlusTree) Get(key []byte) ([]byte, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	curr := b.Root
	if curr == nil {
		b.mu.RUnlock()
		return nil, false
	}
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && bytes.Compare(key, curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}

	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if bytes.Equal(key, curr.Keys[j]) {
			return curr.Values[j], true
		}
	}
	return nil, false
}

// Delete removes key, reporting whether it was present. If removing key
// leaves the root an internal node with no keys, its sole child becomes the
// new root.
func (b *BPlusTree) Delete(key []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	root := b.Root
	root.Lock()
	ok := root.remove(key)
	root.Unlock()

	if !root.Leaf && root.N == 0 && len(root.Children) == 1 {
		b.Root = root.Children[0]
	}

	return ok
}

// Search reports whether key is present, returning the leaf node that holds
// it (RLock already released) for callers that only need the boolean.
func (b *BPlusTree) Search(key []byte) (*Node, bool) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		i := 0
		for i < curr.N && bytes.Compare(key, curr.Keys[i]) >= 0 {
			i++
		}
		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}

	defer curr.RUnlock()

	for j := 0; j < curr.N; j++ {
		if bytes.Equal(key, curr.Keys[j]) {
			return curr, true
		}
	}
	return nil, false
}

// FindLeafLowerBound returns, RLocked, the leaf and in-leaf index of the
// first key >= key (or the leftmost leaf/index 0 if key is nil). The caller
// must RUnlock the returned node.
func (b *BPlusTree) FindLeafLowerBound(key []byte) (*Node, int) {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		var i int
		if key == nil {
			i = 0
		} else {
			i = lowerBoundChild(curr, key)
		}

		child := curr.Children[i]
		child.RLock()
		curr.RUnlock()
		curr = child
	}

	var idx int
	if key == nil {
		idx = 0
	} else {
		idx = lowerBoundIndex(curr, key)
	}

	return curr, idx
}

// findRightmostLeaf returns, RLocked, the last leaf in key order.
func (b *BPlusTree) findRightmostLeaf() *Node {
	b.mu.RLock()
	curr := b.Root
	curr.RLock()
	b.mu.RUnlock()

	for !curr.Leaf {
		child := curr.Children[len(curr.Children)-1]
		child.RLock()
		curr.RUnlock()
		curr = child
	}
	return curr
}

// FindLeafUpperBound returns, RLocked, the leaf and in-leaf index of the
// last key strictly less than key (or the rightmost leaf/last index if key
// is nil). ok is false if the tree has no such key. The caller must RUnlock
// the returned node when ok is true.
func (b *BPlusTree) FindLeafUpperBound(key []byte) (node *Node, idx int, ok bool) {
	if key == nil {
		leaf := b.findRightmostLeaf()
		if leaf.N == 0 {
			leaf.RUnlock()
			return nil, 0, false
		}
		return leaf, leaf.N - 1, true
	}

	leaf, i := b.FindLeafLowerBound(key)
	i--
	for leaf != nil && i < 0 {
		prev := leaf.Prev
		if prev != nil {
			prev.RLock()
		}
		leaf.RUnlock()
		leaf = prev
		if leaf != nil {
			i = leaf.N - 1
		}
	}
	if leaf == nil {
		return nil, 0, false
	}
	return leaf, i, true
}

func lowerBoundIndex(n *Node, key []byte) int {
	lo, hi := 0, n.N
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.Keys[mid], key) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func lowerBoundChild(n *Node, key []byte) int {
	return lowerBoundIndex(n, key)
}
