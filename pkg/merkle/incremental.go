package merkle

import "sort"

// UpdateStats reports the work an incremental update performed.
type UpdateStats struct {
	Appended          int `json:"appended"`
	DuplicatesIgnored int `json:"duplicates_ignored"`
	RecomputedNodes   int `json:"recomputed_nodes"`
}

// UpdateResult is the outcome of an incremental update.
type UpdateResult struct {
	Tree         *Tree       `json:"tree"`
	RootChanged  bool        `json:"root_changed"`
	PreviousRoot string      `json:"previous_root"`
	Stats        UpdateStats `json:"stats"`
}

// IncrementalUpdate appends new unique records to the tree and recomputes
// only the internal hashes on the affected right-edge paths.
//
// Appended batches are sorted by district id internally but placed after the
// existing leaves, so published leaf positions never move. Records whose
// identifiers are already committed are ignored — updating a tree with only
// already-present identifiers reports RootChanged=false and an identical
// root (the idempotence property).
//
// The input tree is never mutated; the result carries a new Tree.
func IncrementalUpdate(t *Tree, newRecords []BoundaryRecord) (*UpdateResult, error) {
	if t == nil {
		return nil, errNilTree
	}

	batch := make([]BoundaryRecord, 0, len(newRecords))
	seen := make(map[string]bool, len(newRecords))
	dupes := 0
	for _, rec := range newRecords {
		if t.Contains(rec.DistrictID) || seen[rec.DistrictID] {
			dupes++
			continue
		}
		seen[rec.DistrictID] = true
		batch = append(batch, rec)
	}
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].DistrictID < batch[j].DistrictID
	})

	if len(batch) == 0 {
		return &UpdateResult{
			Tree:         t,
			RootChanged:  false,
			PreviousRoot: t.Root,
			Stats:        UpdateStats{DuplicatesIgnored: dupes},
		}, nil
	}

	updated := t.clone()
	previousRoot := t.Root

	firstAffected := len(updated.Leaves)
	for _, rec := range batch {
		hash, err := leafHash(rec)
		if err != nil {
			return nil, err
		}
		updated.index[rec.DistrictID] = len(updated.Leaves)
		updated.Leaves = append(updated.Leaves, Leaf{DistrictID: rec.DistrictID, Hash: hash})
		updated.Districts = append(updated.Districts, rec)
	}

	recomputed := rebuildFrom(updated, firstAffected)
	updated.Root = updated.Levels[len(updated.Levels)-1][0]

	return &UpdateResult{
		Tree:         updated,
		RootChanged:  updated.Root != previousRoot,
		PreviousRoot: previousRoot,
		Stats: UpdateStats{
			Appended:          len(batch),
			DuplicatesIgnored: dupes,
			RecomputedNodes:   recomputed,
		},
	}, nil
}

// rebuildFrom recomputes tree levels starting at the first modified leaf
// index, reusing every internal hash whose children are untouched. Returns
// the number of node hashes recomputed.
func rebuildFrom(t *Tree, firstAffected int) int {
	oldLevels := t.Levels

	hashes := make([]string, len(t.Leaves))
	for i, leaf := range t.Leaves {
		hashes[i] = leaf.Hash
	}

	levels := [][]string{hashes}
	recomputed := 0
	start := firstAffected

	for level := 0; len(levels[level]) > 1; level++ {
		current := levels[level]

		// A previously-odd level duplicated its last node upward, so that
		// node's parent must be recomputed once a real sibling arrives.
		affected := start
		if level < len(oldLevels) {
			oldLen := len(oldLevels[level])
			if oldLen%2 == 1 && oldLen-1 < affected {
				affected = oldLen - 1
			}
		}
		if affected%2 == 1 {
			affected-- // re-pair with its left sibling
		}

		nextLen := (len(current) + 1) / 2
		next := make([]string, nextLen)
		for i := 0; i < nextLen; i++ {
			if i < affected/2 && level+1 < len(oldLevels) && i < len(oldLevels[level+1]) {
				next[i] = oldLevels[level+1][i]
				continue
			}
			left := current[2*i]
			right := left
			if 2*i+1 < len(current) {
				right = current[2*i+1]
			}
			next[i] = nodeHash(left, right)
			recomputed++
		}
		levels = append(levels, next)
		start = affected / 2
	}

	t.Levels = levels
	return recomputed
}
