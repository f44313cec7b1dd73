package detector

import "sync"

// fillRateAlpha is the exponential weight of the newest observation.
const fillRateAlpha = 0.2

// FillRateTracker keeps an exponentially weighted fill-success ratio per
// venue pair ("buy->sell"). Pairs start at 1.0 so new venue pairs are not
// penalized before any history exists.
type FillRateTracker struct {
	mu    sync.Mutex
	rates map[string]float64
}

// NewFillRateTracker creates an empty tracker.
func NewFillRateTracker() *FillRateTracker {
	return &FillRateTracker{rates: make(map[string]float64)}
}

// Record folds one execution outcome for the pair into the running rate.
func (t *FillRateTracker) Record(pair string, filled bool) {
	obs := 0.0
	if filled {
		obs = 1.0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.rates[pair]
	if !ok {
		prev = 1.0
	}
	t.rates[pair] = (1-fillRateAlpha)*prev + fillRateAlpha*obs
}

// Rate returns the current fill rate for the pair, 1.0 when unseen.
func (t *FillRateTracker) Rate(pair string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rates[pair]; ok {
		return r
	}
	return 1.0
}
