package consensus

import "fmt"

// SelectPath resolves one group of the matrix into its ordered child scripts.
// Indices inside the matrix are trusted to have passed Policy.Validate.
func SelectPath(p *Policy, pathIndex uint16) ([]Script, error) {
	if int(pathIndex) >= len(p.Matrix) {
		return nil, lockerr(LOCK_ERR_PATH_INDEX_OUT_OF_RANGE, fmt.Sprintf("path index %d, matrix has %d groups", pathIndex, len(p.Matrix)))
	}
	group := p.Matrix[pathIndex]
	out := make([]Script, len(group))
	for i, idx := range group {
		out[i] = p.Registry[idx]
	}
	return out, nil
}
