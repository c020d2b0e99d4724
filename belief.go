package replan

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"
	"sync"
)

// DDist is a discrete distribution with a stable support order.
type DDist[K comparable] struct {
	support []K
	probs   map[K]float64
}

// NewDDist normalizes weights into a distribution. Non-positive weights are dropped.
func NewDDist[K comparable](support []K, weights []float64) *DDist[K] {
	d := &DDist[K]{probs: make(map[K]float64, len(support))}
	var total float64
	for i, k := range support {
		if weights[i] <= 0 {
			continue
		}
		if _, ok := d.probs[k]; !ok {
			d.support = append(d.support, k)
		}
		d.probs[k] += weights[i]
		total += weights[i]
	}
	for k := range d.probs {
		d.probs[k] /= total
	}
	return d
}

// UniformDist spreads mass evenly over support.
func UniformDist[K comparable](support []K) *DDist[K] {
	weights := make([]float64, len(support))
	for i := range weights {
		weights[i] = 1
	}
	return NewDDist(support, weights)
}

// DeltaDist places all mass on k.
func DeltaDist[K comparable](k K) *DDist[K] {
	return NewDDist([]K{k}, []float64{1})
}

// MapDist pushes d through fn, merging mass on equal images.
func MapDist[K, V comparable](d *DDist[K], fn func(K) V) *DDist[V] {
	support := make([]V, len(d.support))
	weights := make([]float64, len(d.support))
	for i, k := range d.support {
		support[i] = fn(k)
		weights[i] = d.probs[k]
	}
	return NewDDist(support, weights)
}

// Prob returns the mass on k.
func (d *DDist[K]) Prob(k K) float64 { return d.probs[k] }

// Len returns the support size.
func (d *DDist[K]) Len() int { return len(d.support) }

// Support returns the support in insertion order.
func (d *DDist[K]) Support() []K { return slices.Clone(d.support) }

// SortedSupport returns the support by descending probability. Ties keep
// insertion order.
func (d *DDist[K]) SortedSupport() []K {
	out := slices.Clone(d.support)
	slices.SortStableFunc(out, func(a, b K) int { return cmp.Compare(d.probs[b], d.probs[a]) })
	return out
}

// MLE returns the most likely element.
func (d *DDist[K]) MLE() (K, bool) {
	sorted := d.SortedSupport()
	if len(sorted) == 0 {
		var zero K
		return zero, false
	}
	return sorted[0], true
}

// Sample draws one element.
func (d *DDist[K]) Sample(rng *rand.Rand) (K, bool) {
	return sampleWeighted(rng, d.support, func(k K) float64 { return d.probs[k] })
}

// WithoutReplacement draws every element once, weighted by mass, then is Done.
func (d *DDist[K]) WithoutReplacement(rng *rand.Rand) Generator[K] {
	remaining := slices.Clone(d.support)
	return Stream(func(context.Context) Result[K] {
		k, ok := sampleWeighted(rng, remaining, func(k K) float64 { return d.probs[k] })
		if !ok {
			return Done[K]()
		}
		remaining = slices.DeleteFunc(remaining, func(o K) bool { return o == k })
		return Value(k)
	})
}

func sampleWeighted[K comparable](rng *rand.Rand, items []K, weight func(K) float64) (K, bool) {
	var total float64
	for _, k := range items {
		total += weight(k)
	}
	if len(items) == 0 || total <= 0 {
		var zero K
		return zero, false
	}
	x := rng.Float64() * total
	for _, k := range items {
		x -= weight(k)
		if x < 0 {
			return k, true
		}
	}
	return items[len(items)-1], true
}

// Observation is a detection outcome for an object hypothesis.
type Observation struct {
	Object string
	Pose   *RelPose
}

// Belief holds the current pose distribution of every uncertain object.
type Belief struct {
	mu    sync.RWMutex
	dists map[string]*SurfaceDist
}

// NewBelief creates a belief over the given distributions.
func NewBelief(dists ...*SurfaceDist) *Belief {
	b := &Belief{dists: make(map[string]*SurfaceDist, len(dists))}
	for _, d := range dists {
		b.dists[d.Body] = d
	}
	return b
}

// Get returns the distribution held for obj.
func (b *Belief) Get(obj string) (*SurfaceDist, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.dists[obj]
	return d, ok
}

// Update replaces obj's distribution with a delta on the observed pose.
func (b *Belief) Update(obs Observation) *SurfaceDist {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &SurfaceDist{Body: obs.Object, Surface: obs.Pose.Support, Dist: DeltaDist(obs.Pose)}
	b.dists[obs.Object] = d
	return d
}
