package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Leaf is one committed boundary record's hash.
type Leaf struct {
	DistrictID string `json:"district_id"`
	Hash       string `json:"hash"`
}

// Tree is the full Merkle structure: the districts array preserves the
// canonical ordering used to derive leaf positions; Levels[0] is the leaf
// hashes, Levels[len-1] the root level.
//
// A Tree is immutable once published: IncrementalUpdate returns a new Tree,
// and a changed root is a new version, never a mutation.
type Tree struct {
	Districts []BoundaryRecord `json:"districts"`
	Leaves    []Leaf           `json:"leaves"`
	Levels    [][]string       `json:"levels"`
	Root      string           `json:"root"`

	index map[string]int // district id -> leaf position
}

// Build constructs a tree from boundary records.
//
// Records are deduplicated by district identifier (first-seen-wins in input
// order) and then sorted by identifier before leaf assignment — the
// sort-before-hash rule that makes construction commutative with respect to
// input arrival order.
func Build(records []BoundaryRecord) (*Tree, error) {
	unique := dedupe(records)
	sort.Slice(unique, func(i, j int) bool {
		return unique[i].DistrictID < unique[j].DistrictID
	})

	tree := &Tree{
		Districts: unique,
		Leaves:    make([]Leaf, len(unique)),
		index:     make(map[string]int, len(unique)),
	}
	hashes := make([]string, len(unique))
	for i, rec := range unique {
		hash, err := leafHash(rec)
		if err != nil {
			return nil, err
		}
		tree.Leaves[i] = Leaf{DistrictID: rec.DistrictID, Hash: hash}
		tree.index[rec.DistrictID] = i
		hashes[i] = hash
	}

	if len(hashes) == 0 {
		tree.Root = sha256Hex([]byte{})
		return tree, nil
	}

	tree.Levels = append(tree.Levels, hashes)
	for level := hashes; len(level) > 1; {
		level = nextLevel(level)
		tree.Levels = append(tree.Levels, level)
	}
	tree.Root = tree.Levels[len(tree.Levels)-1][0]
	return tree, nil
}

// Contains reports whether a district is committed in the tree.
func (t *Tree) Contains(districtID string) bool {
	_, ok := t.leafIndex(districtID)
	return ok
}

// LeafCount returns the number of committed districts.
func (t *Tree) LeafCount() int { return len(t.Leaves) }

func (t *Tree) leafIndex(districtID string) (int, bool) {
	if t.index != nil {
		i, ok := t.index[districtID]
		return i, ok
	}
	for i, leaf := range t.Leaves {
		if leaf.DistrictID == districtID {
			return i, true
		}
	}
	return 0, false
}

func dedupe(records []BoundaryRecord) []BoundaryRecord {
	seen := make(map[string]bool, len(records))
	out := make([]BoundaryRecord, 0, len(records))
	for _, rec := range records {
		if seen[rec.DistrictID] {
			continue
		}
		seen[rec.DistrictID] = true
		out = append(out, rec)
	}
	return out
}

func leafHash(rec BoundaryRecord) (string, error) {
	canonical, err := rec.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return sha256Hex(leafBytes(rec.DistrictID, canonical)), nil
}

// leafBytes is "atlas:boundary:leaf:v1\0" || district_id || "\0" || canonical.
func leafBytes(districtID string, canonical []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(LeafPrefix)
	buf.WriteByte(0)
	buf.WriteString(districtID)
	buf.WriteByte(0)
	buf.Write(canonical)
	return buf.Bytes()
}

// nextLevel pairs adjacent nodes, duplicating a lone last node — the odd-node
// convention proof verification depends on.
func nextLevel(level []string) []string {
	if len(level)%2 == 1 {
		level = append(level[:len(level):len(level)], level[len(level)-1])
	}
	next := make([]string, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next[i/2] = nodeHash(level[i], level[i+1])
	}
	return next
}

// nodeHash is "atlas:boundary:node:v1\0" || left || right over raw digest
// bytes, in fixed left-right order.
func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(NodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		// Hashes inside a built tree are always valid hex; reaching this
		// means a corrupted proof input, which verification rejects anyway.
		return nil
	}
	return b
}

// clone copies the tree's slices so updates never mutate a published tree.
func (t *Tree) clone() *Tree {
	c := &Tree{
		Districts: append([]BoundaryRecord(nil), t.Districts...),
		Leaves:    append([]Leaf(nil), t.Leaves...),
		Levels:    make([][]string, len(t.Levels)),
		Root:      t.Root,
		index:     make(map[string]int, len(t.Leaves)),
	}
	for i, level := range t.Levels {
		c.Levels[i] = append([]string(nil), level...)
	}
	for id, i := range t.index {
		c.index[id] = i
	}
	return c
}

var errNilTree = fmt.Errorf("merkle: operation on nil tree")
