package content

import (
	"math/rand/v2"
	"time"
)

func newRandom() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}
