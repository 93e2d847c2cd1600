// Package merkle_tree builds the per-SSTable Merkle tree used to detect
// which data blocks were corrupted after a disk read fails its CRC check,
// adapted from the engine's structures/merkle_tree for use as an SSTable
// component keyed on the same MD5 record hashes the data component already
// computes.
package merkle_tree

import (
	"crypto/md5"
	"errors"
	"math"
)

// MerkleNode is one node of the tree. Leaves hash a single record (or
// record digest); internal nodes hash the concatenation of their two
// children's hashes. leftChild and rightChild are either both nil (a leaf)
// or both set - the tree is always built by pairing, padding an odd level
// with a zero-valued node rather than duplicating the last real one.
type MerkleNode struct {
	hashedValue [md5.Size]byte
	leftChild   *MerkleNode
	rightChild  *MerkleNode
}

// GetHash returns the node's hash, matching the digest recorded for the
// data block it was built from.
func (n *MerkleNode) GetHash() [md5.Size]byte { return n.hashedValue }

// MerkleTree verifies SSTable data integrity: the data component's record
// hashes are folded into this tree at write time, and a freshly recomputed
// tree is compared against the one persisted alongside the table to find
// exactly which records were corrupted.
type MerkleTree struct {
	merkleRoot *MerkleNode
}

// NewMerkleTree builds a tree over blocks. If alreadyHashed is false, each
// block is an arbitrary byte string hashed with MD5 into a leaf; if true,
// each block is already an MD5 digest (e.g. a record hash computed by the
// data component) and is used as the leaf hash directly. An empty blocks
// slice yields a single-node tree whose hash is MD5 of the empty string,
// matching the reference implementation's treatment of an empty table.
func NewMerkleTree(blocks [][]byte, alreadyHashed bool) (*MerkleTree, error) {
	if len(blocks) == 0 {
		empty := md5.Sum(nil)
		return &MerkleTree{merkleRoot: &MerkleNode{hashedValue: empty}}, nil
	}

	nodes := make([]*MerkleNode, 0, len(blocks))
	for _, block := range blocks {
		var hashed [md5.Size]byte
		if alreadyHashed {
			if len(block) != md5.Size {
				return nil, errors.New("merkle_tree: pre-hashed block is not an MD5 digest")
			}
			copy(hashed[:], block)
		} else {
			hashed = md5.Sum(block)
		}
		nodes = append(nodes, &MerkleNode{hashedValue: hashed})
	}

	for len(nodes) > 1 {
		if len(nodes)%2 == 1 {
			nodes = append(nodes, &MerkleNode{})
		}
		next := make([]*MerkleNode, 0, len(nodes)/2)
		for i := 0; i < len(nodes); i += 2 {
			left, right := nodes[i], nodes[i+1]
			combined := make([]byte, 0, 2*md5.Size)
			combined = append(combined, left.hashedValue[:]...)
			combined = append(combined, right.hashedValue[:]...)
			next = append(next, &MerkleNode{
				hashedValue: md5.Sum(combined),
				leftChild:   left,
				rightChild:  right,
			})
		}
		nodes = next
	}

	return &MerkleTree{merkleRoot: nodes[0]}, nil
}

// Height returns the number of edges from the root to a leaf (0 for a
// single-node tree), which this tree's pairwise, always-balanced
// construction makes well-defined regardless of which leaf is followed.
func (mTree *MerkleTree) Height() uint64 {
	var height uint64
	current := mTree.merkleRoot
	for current != nil && current.leftChild != nil {
		current = current.leftChild
		height++
	}
	return height
}

// MaxNumOfNodes returns the node count of a perfect binary tree of this
// tree's height, i.e. an upper bound on how many nodes this tree can have.
func (mTree *MerkleTree) MaxNumOfNodes() uint64 {
	return uint64(math.Pow(2, float64(mTree.Height()+1))) - 1
}

// Validate compares mTree against other leaf by leaf, descending only into
// subtrees whose combined hash differs and stopping at the first mismatched
// leaf on each path. It returns whether the trees match and, if not, the
// mismatched leaves from each side in corresponding order - exactly what the
// data component needs to map a bad leaf back to the on-disk record it
// covers via the leaf's hash.
func (mTree *MerkleTree) Validate(other *MerkleTree) (bool, []*MerkleNode, []*MerkleNode) {
	var mine, theirs []*MerkleNode
	walkValidate(mTree.merkleRoot, other.merkleRoot, &mine, &theirs)
	return len(mine) == 0, mine, theirs
}

func walkValidate(a, b *MerkleNode, mine, theirs *[]*MerkleNode) {
	if a == nil && b == nil {
		return
	}
	var aHash, bHash [md5.Size]byte
	if a != nil {
		aHash = a.hashedValue
	}
	if b != nil {
		bHash = b.hashedValue
	}
	if aHash == bHash {
		return
	}

	aIsLeaf := a == nil || a.leftChild == nil
	bIsLeaf := b == nil || b.leftChild == nil
	if aIsLeaf || bIsLeaf {
		*mine = append(*mine, a)
		*theirs = append(*theirs, b)
		return
	}

	walkValidate(a.leftChild, b.leftChild, mine, theirs)
	walkValidate(a.rightChild, b.rightChild, mine, theirs)
}

// BFS visits every node breadth-first, root first.
func (mTree *MerkleTree) BFS(visit func(*MerkleNode)) {
	if mTree.merkleRoot == nil {
		return
	}
	queue := []*MerkleNode{mTree.merkleRoot}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visit(node)
		if node.leftChild != nil {
			queue = append(queue, node.leftChild, node.rightChild)
		}
	}
}

// DFS visits every node pre-order (node, then left subtree, then right).
func (mTree *MerkleTree) DFS(visit func(*MerkleNode)) {
	var walk func(*MerkleNode)
	walk = func(n *MerkleNode) {
		if n == nil {
			return
		}
		visit(n)
		walk(n.leftChild)
		walk(n.rightChild)
	}
	walk(mTree.merkleRoot)
}

// Serialize encodes the tree as a pre-order traversal: each node is a
// 1-byte leaf flag followed by its 16-byte hash. Leaves stop the recursion;
// internal nodes are always followed by their left then right subtree,
// which this tree's always-both-or-neither-children invariant makes
// unambiguous to parse back.
func (mTree *MerkleTree) Serialize() []byte {
	var buf []byte
	var walk func(*MerkleNode)
	walk = func(n *MerkleNode) {
		if n.leftChild == nil {
			buf = append(buf, 1)
			buf = append(buf, n.hashedValue[:]...)
			return
		}
		buf = append(buf, 0)
		buf = append(buf, n.hashedValue[:]...)
		walk(n.leftChild)
		walk(n.rightChild)
	}
	walk(mTree.merkleRoot)
	return buf
}

// Deserialize rebuilds a tree from Serialize's output. A truncated buffer
// does not panic: every node that would read past the end becomes a leaf
// with a zero hash, so an empty or short buffer yields a single-node tree
// with a zero hash, and a buffer cut off mid-tree keeps the nodes parsed
// before the cut.
func Deserialize(data []byte) *MerkleTree {
	offset := 0
	var parse func() *MerkleNode
	parse = func() *MerkleNode {
		if offset+1+md5.Size > len(data) {
			return &MerkleNode{}
		}
		isLeaf := data[offset] == 1
		offset++
		var hash [md5.Size]byte
		copy(hash[:], data[offset:offset+md5.Size])
		offset += md5.Size
		if isLeaf {
			return &MerkleNode{hashedValue: hash}
		}
		left := parse()
		right := parse()
		return &MerkleNode{hashedValue: hash, leftChild: left, rightChild: right}
	}
	return &MerkleTree{merkleRoot: parse()}
}
