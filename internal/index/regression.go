package index

import (
	"math"
)

// LinearFit holds an ordinary least squares fit of y = Slope*x + Intercept
type LinearFit struct {
	Slope     float64
	Intercept float64
	R         float64 // Pearson correlation of x and y
	RSquared  float64
	PValue    float64 // two-sided, against zero slope
	N         int
}

// FitLinear performs ordinary least squares over the paired samples.
// Returns a zero fit when fewer than two finite pairs are available or the
// predictor carries no variance.
func FitLinear(x, y []float64) LinearFit {
	if len(x) != len(y) || len(x) < 2 {
		return LinearFit{N: len(x)}
	}

	var sumX, sumY float64
	n := 0
	for i := range x {
		if !finite(x[i]) || !finite(y[i]) {
			continue
		}
		sumX += x[i]
		sumY += y[i]
		n++
	}
	if n < 2 {
		return LinearFit{N: n}
	}

	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, syy, sxy float64
	for i := range x {
		if !finite(x[i]) || !finite(y[i]) {
			continue
		}
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 {
		return LinearFit{N: n}
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var r float64
	if syy > 0 {
		r = sxy / math.Sqrt(sxx*syy)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		r = 0
	}

	return LinearFit{
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		RSquared:  r * r,
		PValue:    pearsonPValue(r, n),
		N:         n,
	}
}

// Pearson computes the Pearson correlation coefficient and its two-sided
// p-value against the null hypothesis of zero correlation.
func Pearson(x, y []float64) (r, p float64, n int) {
	fit := FitLinear(x, y)
	return fit.R, fit.PValue, fit.N
}

// pearsonPValue derives the two-sided p-value for a sample correlation r
// over n pairs using the exact t distribution with n-2 degrees of freedom.
func pearsonPValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	df := float64(n - 2)
	denom := 1 - r*r
	if denom <= 0 {
		return 0
	}
	t := r * math.Sqrt(df/denom)
	return studentTTwoSided(t, df)
}

// studentTTwoSided returns P(|T| >= |t|) for Student's t with df degrees
// of freedom, via the regularized incomplete beta function.
func studentTTwoSided(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	p := regularizedIncompleteBeta(df/2, 0.5, df/(df+t*t))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// regularizedIncompleteBeta computes I_x(a, b) by continued fraction,
// the standard Lentz evaluation with the symmetry split at the
// convergence boundary.
func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lbeta, _ := math.Lgamma(a + b)
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	front := math.Exp(lbeta - la - lb + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction evaluates the continued fraction for the incomplete
// beta function using the modified Lentz method.
func betaContinuedFraction(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 3e-14
		tiny          = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}

	return h
}

// FitPolynomial fits the six-term index3 surface
// y = c0 + c1*n1 + c2*n2 + c3*n1*n2 + c4*n1^2 + c5*n2^2
// by solving the normal equations. Returns the coefficient vector in that
// order plus the coefficient of determination.
func FitPolynomial(triples []Index3Triple) (coeffs [6]float64, rSquared float64, ok bool) {
	const terms = 6
	if len(triples) < terms {
		return coeffs, 0, false
	}

	// Accumulate A^T A and A^T y over the design matrix rows.
	var ata [terms][terms]float64
	var aty [terms]float64
	for _, tr := range triples {
		row := polynomialTerms(tr.Index1, tr.Index2)
		for i := 0; i < terms; i++ {
			for j := 0; j < terms; j++ {
				ata[i][j] += row[i] * row[j]
			}
			aty[i] += row[i] * tr.Index3
		}
	}

	solved, ok := solveLinearSystem(ata, aty)
	if !ok {
		return coeffs, 0, false
	}
	coeffs = solved

	// R^2 against the pooled mean.
	var meanY float64
	for _, tr := range triples {
		meanY += tr.Index3
	}
	meanY /= float64(len(triples))

	var ssRes, ssTot float64
	for _, tr := range triples {
		row := polynomialTerms(tr.Index1, tr.Index2)
		var pred float64
		for i := 0; i < terms; i++ {
			pred += coeffs[i] * row[i]
		}
		ssRes += (tr.Index3 - pred) * (tr.Index3 - pred)
		ssTot += (tr.Index3 - meanY) * (tr.Index3 - meanY)
	}
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
		if rSquared < 0 {
			rSquared = 0
		}
	}

	return coeffs, rSquared, true
}

func polynomialTerms(n1, n2 float64) [6]float64 {
	return [6]float64{1, n1, n2, n1 * n2, n1 * n1, n2 * n2}
}

// solveLinearSystem solves the 6x6 system via Gaussian elimination with
// partial pivoting.
func solveLinearSystem(a [6][6]float64, b [6]float64) ([6]float64, bool) {
	const n = 6
	var x [6]float64

	for col := 0; col < n; col++ {
		// Pivot selection
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, false
		}
		if pivot != col {
			a[pivot], a[col] = a[col], a[pivot]
			b[pivot], b[col] = b[col], b[pivot]
		}

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}

	return x, true
}

// Mean returns the arithmetic mean of the finite values in v
func Mean(v []float64) float64 {
	var sum float64
	n := 0
	for _, x := range v {
		if finite(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// StdDev returns the population standard deviation of the finite values in v
func StdDev(v []float64) float64 {
	mean := Mean(v)
	var sum float64
	n := 0
	for _, x := range v {
		if finite(x) {
			d := x - mean
			sum += d * d
			n++
		}
	}
	if n < 2 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
