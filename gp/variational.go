package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"fairgp/covariance"
	"fairgp/fairness"
)

// Variational is a sparse variational GP classifier. The posterior over the
// inducing values u = f(Z) is q(u) = N(m, L·Lᵀ), with L stored as a triangle
// vector. The inducing inputs Z stay fixed.
//
// The loss is the negative evidence lower bound per training example:
//
//	-mean_n E_q[log p(y_n | f_n)] + KL(q(u) || p(u)) / numTrain
//
// and with a debiasing tensor the expectation is taken under the
// reweighted likelihood.
type Variational struct {
	kernel      Kernel
	lik         Likelihood
	inducing    *mat.Dense
	numTrain    int
	latentNoise float64

	mean *Param
	chol *Param

	debias *fairness.DebiasingTensor
}

// NewVariational builds the strategy for a single output. debias may be nil.
func NewVariational(k Kernel, lik Likelihood, inducing *mat.Dense, numTrain int, opts Options, debias *fairness.DebiasingTensor) (*Variational, error) {
	if inducing == nil {
		return nil, fmt.Errorf("%w: variational inference needs inducing inputs", ErrConfig)
	}
	if numTrain <= 0 {
		return nil, fmt.Errorf("%w: number of training examples must be positive, got %d", ErrConfig, numTrain)
	}
	if opts.LatentNoise < 0 {
		return nil, fmt.Errorf("%w: latent noise must be non-negative, got %v", ErrConfig, opts.LatentNoise)
	}
	m, _ := inducing.Dims()
	if m == 0 {
		return nil, fmt.Errorf("%w: no inducing inputs", ErrConfig)
	}
	eye := mat.NewTriDense(m, mat.Lower, nil)
	for i := 0; i < m; i++ {
		eye.SetTri(i, i, 1)
	}
	return &Variational{
		kernel:      k,
		lik:         lik,
		inducing:    inducing,
		numTrain:    numTrain,
		latentNoise: opts.LatentNoise,
		mean:        NewParam("vi_mean", make([]float64, m)...),
		chol:        NewParam("vi_chol", covariance.TriToVec(eye)...),
		debias:      debias,
	}, nil
}

// Variables implements Inference.
func (v *Variational) Variables() []*Param { return []*Param{v.mean, v.chol} }

// posterior caches what one evaluation needs from the prior and q(u).
type posterior struct {
	z    mat.Matrix
	kzz  mat.Cholesky
	lq   *mat.TriDense
	m    *mat.VecDense
	size int
}

func (v *Variational) posterior() (*posterior, error) {
	z := v.inducing
	size, _ := z.Dims()
	k := v.kernel.Cov(z, z)
	sym := mat.NewSymDense(size, nil)
	for i := 0; i < size; i++ {
		for j := i; j < size; j++ {
			sym.SetSym(i, j, k.At(i, j))
		}
		sym.SetSym(i, i, k.At(i, i)+v.latentNoise)
	}
	p := &posterior{z: z, size: size, m: mat.NewVecDense(size, v.mean.Value)}
	if ok := p.kzz.Factorize(sym); !ok {
		return nil, fmt.Errorf("%w: inducing covariance is not positive definite", ErrNumeric)
	}
	lq, err := covariance.VecToTri(v.chol.Value, size)
	if err != nil {
		return nil, err
	}
	p.lq = lq
	return p, nil
}

// KL returns KL(q(u) || p(u)).
func (v *Variational) KL() (float64, error) {
	p, err := v.posterior()
	if err != nil {
		return 0, err
	}
	return p.kl()
}

func (p *posterior) kl() (float64, error) {
	var kinvS mat.Dense
	if err := p.kzz.SolveTo(&kinvS, covariance.MatSquare(p.lq)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNumeric, err)
	}
	var kinvM mat.VecDense
	if err := p.kzz.SolveVecTo(&kinvM, p.m); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNumeric, err)
	}
	var lk mat.TriDense
	p.kzz.LTo(&lk)
	logdetK, err := covariance.LogCholeskyDet(&lk)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNumeric, err)
	}
	logdetS, err := covariance.LogCholeskyDet(positiveDiag(p.lq))
	if err != nil {
		return 0, fmt.Errorf("%w: variational covariance is singular: %v", ErrNumeric, err)
	}
	quad := mat.Dot(p.m, &kinvM)
	return 0.5 * (mat.Trace(&kinvS) + quad - float64(p.size) + logdetK - logdetS), nil
}

// positiveDiag flips the sign of every column of l whose diagonal entry is
// negative. L·Lᵀ is unchanged.
func positiveDiag(l *mat.TriDense) *mat.TriDense {
	n, _ := l.Dims()
	out := mat.NewTriDense(n, mat.Lower, nil)
	out.Copy(l)
	for j := 0; j < n; j++ {
		if l.At(j, j) >= 0 {
			continue
		}
		for i := j; i < n; i++ {
			out.SetTri(i, j, -l.At(i, j))
		}
	}
	return out
}

// marginals returns the mean and variance of q(f(x)) for every row of x.
func (p *posterior) marginals(k Kernel, x mat.Matrix) (mean, variance []float64, err error) {
	kzx := k.Cov(p.z, x)
	var a mat.Dense
	if err := p.kzz.SolveTo(&a, kzx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNumeric, err)
	}
	n, _ := x.Dims()
	mv := mat.NewVecDense(n, nil)
	mv.MulVec(a.T(), p.m)

	explained, err := covariance.DiagMul(kzx.T(), a.T())
	if err != nil {
		return nil, nil, err
	}
	var b mat.Dense
	b.Mul(p.lq.T(), &a)
	added, err := covariance.DiagMul(b.T(), b.T())
	if err != nil {
		return nil, nil, err
	}
	variance = k.Diag(x)
	floats.Sub(variance, explained)
	floats.Add(variance, added)
	for i, s := range variance {
		variance[i] = math.Max(s, 0)
	}
	return mv.RawVector().Data, variance, nil
}

// Inference implements Inference.
func (v *Variational) Inference(b Batch, isTrain bool) (fairness.LossReport, error) {
	_, dim := v.inducing.Dims()
	if err := b.check(dim); err != nil {
		return fairness.LossReport{}, err
	}
	p, err := v.posterior()
	if err != nil {
		return fairness.LossReport{}, err
	}
	kl, err := p.kl()
	if err != nil {
		return fairness.LossReport{}, err
	}
	mu, s2, err := p.marginals(v.kernel, b.X)
	if err != nil {
		return fairness.LossReport{}, err
	}
	fb := fairness.Batch{
		LogLik0: make([]float64, len(mu)),
		LogLik1: make([]float64, len(mu)),
		Labels:  b.Labels,
		Groups:  b.Groups,
	}
	for i := range mu {
		fb.LogLik0[i] = v.lik.ExpectedLogProb(0, mu[i], s2[i])
		fb.LogLik1[i] = v.lik.ExpectedLogProb(1, mu[i], s2[i])
	}
	reg := kl / float64(v.numTrain)
	if v.debias != nil && isTrain {
		return fairness.ReweightedLoss(fb, v.debias, reg)
	}
	return fairness.PlainLoss(fb, reg)
}

// Prediction implements Inference. The mean column holds P(y=1) and the
// variance column the latent variance of f.
func (v *Variational) Prediction(x mat.Matrix) (mean, variance *mat.Dense, err error) {
	_, dim := v.inducing.Dims()
	r, c := x.Dims()
	if r == 0 {
		return nil, nil, fmt.Errorf("%w: no inputs", ErrShape)
	}
	if c != dim {
		return nil, nil, fmt.Errorf("%w: inputs have %d columns, model expects %d", ErrShape, c, dim)
	}
	p, err := v.posterior()
	if err != nil {
		return nil, nil, err
	}
	mu, s2, err := p.marginals(v.kernel, x)
	if err != nil {
		return nil, nil, err
	}
	mean = mat.NewDense(len(mu), 1, nil)
	for i := range mu {
		mean.Set(i, 0, v.lik.Predict(mu[i], s2[i]))
	}
	return mean, mat.NewDense(len(s2), 1, s2), nil
}
