package source

import (
	"math/rand"
	"time"
)

// jitter spreads the pump's poll sleeps so that a fleet of pumps
// sharing one upstream ledger does not poll in lockstep.
type jitter struct {
	rand *rand.Rand
}

func newJitter() *jitter {
	return &jitter{
		rand: rand.New(rand.NewSource(time.Now().UTC().UnixNano())),
	}
}

// Jitter scales dur by a random factor in [1-coefficient, 1+coefficient].
// A zero coefficient returns dur unchanged; results never go negative.
func (j *jitter) Jitter(dur time.Duration, coefficient float64) time.Duration {
	val := float64(dur) * (1.0 + coefficient*(j.rand.Float64()-0.5)*2.0)
	if val < 0.0 {
		return 0.0
	}
	return time.Duration(val)
}
