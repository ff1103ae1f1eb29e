package engine

import (
	"fmt"
	"time"
)

// Timings drive the attack choreography. All delays are measured from the
// start of an attack sequence except Flash (measured from the end of Lunge)
// and Think (measured from the moment the opponent gets the turn).
type Timings struct {
	Lunge   time.Duration `yaml:"lunge" validate:"gt=0"`
	Flash   time.Duration `yaml:"flash" validate:"gt=0"`
	Resolve time.Duration `yaml:"resolve" validate:"gt=0"`
	Think   time.Duration `yaml:"think" validate:"gte=0"`
}

// DefaultTimings match the reference pacing.
func DefaultTimings() Timings {
	return Timings{
		Lunge:   250 * time.Millisecond,
		Flash:   200 * time.Millisecond,
		Resolve: 600 * time.Millisecond,
		Think:   1500 * time.Millisecond,
	}
}

// Validate checks that the animation phase completes before the turn resolves.
func (t Timings) Validate() error {
	if t.Lunge <= 0 || t.Flash <= 0 || t.Resolve <= 0 || t.Think < 0 {
		return fmt.Errorf("timings must be positive: %+v", t)
	}
	if t.Lunge+t.Flash >= t.Resolve {
		return fmt.Errorf("lunge (%s) + flash (%s) must end before resolve (%s)", t.Lunge, t.Flash, t.Resolve)
	}
	return nil
}
