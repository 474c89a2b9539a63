package crypto

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

// MerkleTree is built over leaves that are already 32-byte digests; the
// leaf layer is not re-hashed. Parent nodes are SHA-256(left || right),
// and an odd layer duplicates its last node. A single-leaf tree has root
// SHA-256(leaf) with no self-pairing.
type MerkleTree struct {
	levels [][][]byte // levels[0] is the leaf layer
	root   []byte
}

const LeafSize = sha256.Size

type PathPosition string

const (
	PositionLeft  PathPosition = "left"
	PositionRight PathPosition = "right"
)

type PathStep struct {
	Sibling  []byte       `json:"sibling"`
	Position PathPosition `json:"position"`
}

func NewMerkleTree(leaves [][]byte) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("merkle tree requires at least one leaf")
	}
	layer := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if len(leaf) != LeafSize {
			return nil, fmt.Errorf("leaf %d: want %d bytes, got %d", i, LeafSize, len(leaf))
		}
		layer[i] = append([]byte(nil), leaf...)
	}

	tree := &MerkleTree{levels: [][][]byte{layer}}
	if len(layer) == 1 {
		tree.root = SHA256Bytes(layer[0])
		tree.levels = append(tree.levels, [][]byte{tree.root})
		return tree, nil
	}

	for len(layer) > 1 {
		if len(layer)%2 == 1 {
			layer = append(layer, layer[len(layer)-1])
		}
		next := make([][]byte, 0, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next = append(next, hashPair(layer[i], layer[i+1]))
		}
		tree.levels = append(tree.levels, next)
		layer = next
	}
	tree.root = layer[0]
	return tree, nil
}

func (t *MerkleTree) Root() []byte {
	return append([]byte(nil), t.root...)
}

// Height is the number of reduction rounds between leaves and root.
func (t *MerkleTree) Height() int {
	return len(t.levels) - 1
}

func (t *MerkleTree) LeafCount() int {
	return len(t.levels[0])
}

// Path returns the sibling path proving membership of the leaf at index.
// A single-leaf tree has an empty path.
func (t *MerkleTree) Path(index int) ([]PathStep, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", index, len(t.levels[0]))
	}
	if len(t.levels[0]) == 1 {
		return nil, nil
	}
	var path []PathStep
	for depth := 0; depth < len(t.levels)-1; depth++ {
		layer := t.levels[depth]
		// Mirror the odd-layer duplication applied while building.
		if len(layer)%2 == 1 && len(layer) > 1 {
			layer = append(append([][]byte(nil), layer...), layer[len(layer)-1])
		}
		if len(layer) == 1 {
			break
		}
		var step PathStep
		if index%2 == 0 {
			step = PathStep{Sibling: append([]byte(nil), layer[index+1]...), Position: PositionRight}
		} else {
			step = PathStep{Sibling: append([]byte(nil), layer[index-1]...), Position: PositionLeft}
		}
		path = append(path, step)
		index /= 2
	}
	return path, nil
}

// VerifyPath folds a sibling path over a leaf and compares to root. The
// empty path covers the single-leaf tree, whose root is SHA-256(leaf).
func VerifyPath(leaf []byte, path []PathStep, root []byte) bool {
	if len(leaf) != LeafSize || len(root) != LeafSize {
		return false
	}
	if len(path) == 0 {
		return bytes.Equal(SHA256Bytes(leaf), root)
	}
	acc := append([]byte(nil), leaf...)
	for _, step := range path {
		if len(step.Sibling) != LeafSize {
			return false
		}
		switch step.Position {
		case PositionRight:
			acc = hashPair(acc, step.Sibling)
		case PositionLeft:
			acc = hashPair(step.Sibling, acc)
		default:
			return false
		}
	}
	return bytes.Equal(acc, root)
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
