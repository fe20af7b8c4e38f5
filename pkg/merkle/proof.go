package merkle

import "fmt"

// Proof is an inclusion proof: the sibling hash path from a leaf to the
// claimed root, verifiable without access to the full tree.
type Proof struct {
	DistrictID string      `json:"district_id"`
	LeafHash   string      `json:"leaf_hash"`
	MerkleRoot string      `json:"merkle_root"`
	Path       []ProofStep `json:"path"` // bottom to top
}

// ProofStep is one sibling on the path.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R": which side the sibling sits on
	SiblingHash string `json:"sibling_hash"`
}

// GenerateProof returns the inclusion proof for a committed district.
func (t *Tree) GenerateProof(districtID string) (*Proof, error) {
	if t == nil {
		return nil, errNilTree
	}
	idx, ok := t.leafIndex(districtID)
	if !ok {
		return nil, fmt.Errorf("district %q is not committed in this tree", districtID)
	}

	proof := &Proof{
		DistrictID: districtID,
		LeafHash:   t.Leaves[idx].Hash,
		MerkleRoot: t.Root,
		Path:       []ProofStep{},
	}

	current := idx
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		var sibling int
		var side string
		if current%2 == 0 {
			sibling = current + 1
			if sibling >= len(nodes) {
				sibling = current // lone last node paired with itself
			}
			side = "R"
		} else {
			sibling = current - 1
			side = "L"
		}
		proof.Path = append(proof.Path, ProofStep{Side: side, SiblingHash: nodes[sibling]})
		current /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from the leaf hash and sibling path and
// compares it to the proof's claimed root. Verification is a query: a
// mismatch returns false, never an error.
func VerifyProof(proof Proof) bool {
	return VerifyProofAgainstRoot(proof, proof.MerkleRoot)
}

// VerifyProofAgainstRoot verifies a proof against a trusted root supplied by
// the caller (e.g. the redistricting tracker's current root).
func VerifyProofAgainstRoot(proof Proof, trustedRoot string) bool {
	if proof.LeafHash == "" || trustedRoot == "" {
		return false
	}
	current := proof.LeafHash
	for _, step := range proof.Path {
		if step.Side == "L" {
			current = nodeHash(step.SiblingHash, current)
		} else {
			current = nodeHash(current, step.SiblingHash)
		}
	}
	return current == trustedRoot
}
