package stats

import (
	"strings"
	"sync"
	"time"
)

// Record is a player's running tally (in-memory only).
type Record struct {
	Battles    int `json:"battles"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	BiggestHit int `json:"biggest_hit"`
}

// Hit is one committed attack.
type Hit struct {
	Attacker string    `json:"attacker"`
	Damage   int       `json:"damage"`
	At       time.Time `json:"at"`
}

// Recorder keeps per-player records keyed by the player's creature name
// and the biggest hit of each UTC day.
type Recorder struct {
	mu       sync.Mutex
	records  map[string]Record
	dailyMax map[string]Hit // by date string YYYY-MM-DD UTC
	now      func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		records:  make(map[string]Record),
		dailyMax: make(map[string]Hit),
		now:      time.Now,
	}
}

func key(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

func (r *Recorder) dateKey() string { return r.now().UTC().Format("2006-01-02") }

// RecordHit keeps the hit if it is the biggest of the day. Ties keep the
// earlier hit.
func (r *Recorder) RecordHit(attacker string, damage int) {
	if damage <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dk := r.dateKey()
	r.pruneDailyLocked(dk)
	if cur, ok := r.dailyMax[dk]; !ok || damage > cur.Damage {
		r.dailyMax[dk] = Hit{Attacker: key(attacker), Damage: damage, At: r.now().UTC()}
	}
	rec := r.records[key(attacker)]
	if damage > rec.BiggestHit {
		rec.BiggestHit = damage
		r.records[key(attacker)] = rec
	}
}

// RecordOutcome tallies a finished battle for the player's creature.
func (r *Recorder) RecordOutcome(player, opponent string, won bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[key(player)]
	rec.Battles++
	if won {
		rec.Wins++
	} else {
		rec.Losses++
	}
	r.records[key(player)] = rec
}

// Get returns the record for name, zero if unknown.
func (r *Recorder) Get(name string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[key(name)]
}

// BiggestHitToday returns today's biggest hit, if any.
func (r *Recorder) BiggestHitToday() (Hit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.dailyMax[r.dateKey()]
	return h, ok
}
