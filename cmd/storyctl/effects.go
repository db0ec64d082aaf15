package main

import (
	"math/rand/v2"
	"time"
)

var soundEffects = []string{"THWIP!", "POW!", "BAM!", "WHOOSH!", "KRAK!", "ZAP!", "BOOM!", "SNAP!"}

// effects fires a comic sound effect on a share of choice inputs. It holds no
// session state and never affects the story.
type effects struct {
	rate float64
	rnd  *rand.Rand
}

func newEffects(rate float64, seed uint64) *effects {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &effects{rate: rate, rnd: rand.New(rand.NewPCG(seed, seed>>1))}
}

// trigger returns a sound effect, or false when this input stays quiet.
func (e *effects) trigger() (string, bool) {
	if e == nil || e.rnd.Float64() >= e.rate {
		return "", false
	}
	return soundEffects[e.rnd.IntN(len(soundEffects))], true
}
