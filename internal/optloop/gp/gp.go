// Package gp implements a Gaussian process regression model satisfying the
// engine's SurrogateModel contract. It is the default collaborator: the
// loop itself only ever sees the fit/predict interface.
package gp

import (
	"errors"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/harmonlabs/optloop/internal/optloop"
	"github.com/harmonlabs/optloop/internal/optloop/kernels"
)

// GP is a Gaussian process with a zero mean function and homoscedastic
// observation noise. Fit retrains from scratch on the full history each
// call; the kernel hyperparameters are retained across fits, which gives a
// warm start without the loop depending on one.
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64

	// Training data, copied on Fit.
	x *mat.Dense
	y *mat.VecDense

	// Precomputed on Fit: alpha solves K*alpha = y, lower is the Cholesky
	// factor L with L*Lt = K.
	alpha *mat.VecDense
	lower *mat.TriDense

	pool   *matrixPool
	logger *zap.Logger
}

// Option configures a GP.
type Option func(*GP)

// WithLogger routes the model's diagnostics through the given logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *GP) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a GP with the given kernel and observation noise variance.
// A small positive noise variance keeps the kernel matrix well conditioned.
func New(kernel kernels.Kernel, noiseVar float64, opts ...Option) *GP {
	g := &GP{
		kernel:   kernel,
		noiseVar: noiseVar,
		pool:     newMatrixPool(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fit trains the model on the full history. Implements
// optloop.SurrogateModel; failures satisfy optloop.IsModelFit.
func (g *GP) Fit(X *mat.Dense, y *mat.VecDense) error {
	const op = "GP.Fit"

	if X == nil || y == nil {
		return optloop.ModelFitf(op, "training matrices must not be nil")
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return optloop.ModelFitf(op, "training matrix must not be empty")
	}
	if yLen := y.Len(); nSamples != yLen {
		return optloop.ModelFitf(op, "X has %d samples but y has length %d", nSamples, yLen)
	}

	g.logger.Debug("fitting GP",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("noise_var", g.noiseVar),
	)

	K := g.kernelMatrix(X, nSamples)
	defer g.pool.putSym(K)

	alpha, lower, err := g.solve(K, y)
	if err != nil {
		return optloop.ModelFit(op, err)
	}

	g.x = mat.DenseCopyOf(X)
	g.y = mat.VecDenseCopyOf(y)
	g.alpha = alpha
	g.lower = lower
	return nil
}

// Predict returns the posterior predictive mean and variance at each row
// of X. Implements optloop.SurrogateModel.
func (g *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if X == nil {
		return nil, nil, optloop.ModelFitf(op, "query matrix must not be nil")
	}
	if g.x == nil || g.alpha == nil {
		return nil, nil, optloop.ModelFitf(op, "model has not been fit")
	}

	nTest, nFeatures := X.Dims()
	nTrain, trained := g.x.Dims()
	if nFeatures != trained {
		return nil, nil, optloop.ModelFitf(op, "query points have %d features, model was fit on %d", nFeatures, trained)
	}

	mean := mat.NewVecDense(nTest, nil)
	variance := mat.NewVecDense(nTest, nil)

	kss := make([]float64, nTest)
	kstar := mat.NewDense(nTest, nTrain, nil)
	for i := 0; i < nTest; i++ {
		xq := X.RawRowView(i)
		kss[i] = g.kernel.Eval(xq, xq) + g.noiseVar
		for j := 0; j < nTrain; j++ {
			kstar.Set(i, j, g.kernel.Eval(xq, g.x.RawRowView(j)))
		}
	}

	// mean = K* alpha
	mean.MulVec(kstar, g.alpha)

	// variance = diag(K** - K* K^-1 K*^T). With v solving L*v = K*^T the
	// quadratic form K* K^-1 K*^T reduces to column sums of squares of v;
	// this only holds for a triangular solve against the factor, not for a
	// full solve against K.
	v := mat.NewDense(nTrain, nTest, nil)
	if err := v.Solve(g.lower, kstar.T()); err != nil {
		return nil, nil, optloop.ModelFit(op, err)
	}
	for i := 0; i < nTest; i++ {
		var explained float64
		for j := 0; j < nTrain; j++ {
			val := v.At(j, i)
			explained += val * val
		}
		residual := kss[i] - explained
		if residual < 0 {
			g.logger.Debug("clamping negative predictive variance",
				zap.Int("point", i),
				zap.Float64("variance", residual),
			)
			residual = 0
		}
		variance.SetVec(i, residual)
	}

	return mean, variance, nil
}

// kernelMatrix evaluates the kernel on all training pairs and adds the
// observation noise to the diagonal.
func (g *GP) kernelMatrix(X *mat.Dense, n int) *mat.SymDense {
	K := g.pool.getSym(n)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		K.SetSym(i, i, g.kernel.Eval(xi, xi)+g.noiseVar)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, g.kernel.Eval(xi, X.RawRowView(j)))
		}
	}
	return K
}

// solve factors K, solves K*alpha = y and returns alpha with the lower
// Cholesky factor. Cholesky is attempted with an escalating diagonal
// jitter; near-duplicate observations make K close to singular well before
// it stops being mathematically positive definite.
func (g *GP) solve(K *mat.SymDense, y *mat.VecDense) (*mat.VecDense, *mat.TriDense, error) {
	n := y.Len()
	jitter := 0.0

	const maxAttempts = 8
	for attempt := 0; attempt < maxAttempts; attempt++ {
		Kj := mat.NewSymDense(n, nil)
		Kj.CopySym(K)
		if jitter > 0 {
			for i := 0; i < n; i++ {
				Kj.SetSym(i, i, Kj.At(i, i)+jitter)
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(Kj); !ok {
			g.logger.Debug("Cholesky factorization failed, increasing jitter",
				zap.Int("attempt", attempt+1),
				zap.Float64("jitter", jitter),
			)
			jitter = nextJitter(jitter)
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, y); err != nil {
			jitter = nextJitter(jitter)
			continue
		}

		if jitter > 0 {
			g.logger.Debug("factorized kernel matrix with jitter",
				zap.Float64("jitter", jitter),
			)
		}
		var lower mat.TriDense
		chol.LTo(&lower)
		return alpha, &lower, nil
	}

	return nil, nil, errors.New("kernel matrix is not positive definite; observations may be duplicated")
}

func nextJitter(jitter float64) float64 {
	if jitter == 0 {
		return 1e-10
	}
	return jitter * 10
}

// Kernel returns the model's kernel, exposing its hyperparameters for
// callers that want to warm-start across fits.
func (g *GP) Kernel() kernels.Kernel { return g.kernel }
