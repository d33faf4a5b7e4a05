package gp

import "gonum.org/v1/gonum/mat"

// matrixPool reuses kernel matrix allocations across refits. The loop
// refits from scratch every round, so without pooling each round allocates
// a fresh n x n matrix that the previous round just released.
type matrixPool struct {
	sym map[int][]*mat.SymDense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{sym: make(map[int][]*mat.SymDense)}
}

// getSym returns a zeroed n x n symmetric matrix, recycling one of the
// right size when available.
func (p *matrixPool) getSym(n int) *mat.SymDense {
	free := p.sym[n]
	if len(free) == 0 {
		return mat.NewSymDense(n, nil)
	}
	m := free[len(free)-1]
	p.sym[n] = free[:len(free)-1]
	m.Zero()
	return m
}

// putSym returns a matrix to the pool.
func (p *matrixPool) putSym(m *mat.SymDense) {
	if m == nil {
		return
	}
	n := m.SymmetricDim()
	p.sym[n] = append(p.sym[n], m)
}
