package analytics

import "math/rand"

const (
	benchmarkSeed  = 42
	benchmarkDrift = 0.0003
	benchmarkSigma = 0.01
)

// benchmarkReturns builds the synthetic market series used for beta,
// alpha and correlation. The walk is regenerated from a fixed seed on
// every call, so a given length always yields the same series and a
// shorter series is a prefix of a longer one.
func benchmarkReturns(n int) []float64 {
	rng := rand.New(rand.NewSource(benchmarkSeed))
	out := make([]float64, n)
	for i := range out {
		out[i] = benchmarkDrift + rng.NormFloat64()*benchmarkSigma
	}
	return out
}
