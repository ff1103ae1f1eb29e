// Package engine runs a single duel: battle setup, the attack choreography,
// the opponent's turns and reset. All transitions are serialized under one
// lock and published as immutable models.Battle snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pefman/poke-duel/internal/logging"
	"github.com/pefman/poke-duel/internal/models"
)

var (
	ErrEmptyName     = errors.New("creature name is required")
	ErrNoBattle      = errors.New("no battle in progress")
	ErrNotPlayerTurn = errors.New("not the player's turn")
	ErrBusy          = errors.New("an attack is already resolving")
)

// Provider resolves combatants.
type Provider interface {
	ResolveCreature(ctx context.Context, idOrName string) (models.Creature, error)
	RosterSize() int
}

// Recorder is notified of committed hits and finished battles.
type Recorder interface {
	RecordHit(attacker string, damage int)
	RecordOutcome(player, opponent string, won bool)
}

// Options configure an Engine. Zero values pick production defaults, and
// Timings that fail Validate are replaced by the defaults.
type Options struct {
	Scheduler Scheduler
	Source    Source
	Timings   Timings
	Recorder  Recorder
	// Name tags log lines (typically the session id).
	Name string
}

const subscriberBuffer = 32

type Engine struct {
	provider Provider
	sched    Scheduler
	src      Source
	timings  Timings
	recorder Recorder
	name     string

	mu      sync.Mutex
	state   models.Battle
	gen     uint64
	timers  map[uint64]Timer
	timerID uint64
	aiTimer uint64 // id in timers, 0 if none
	subs    map[int]chan models.Battle
	subID   int
}

func New(p Provider, opts Options) *Engine {
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler{}
	}
	if opts.Source == nil {
		opts.Source = newRNG()
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	} else if err := opts.Timings.Validate(); err != nil {
		logging.Error("invalid timings, using defaults", err, logging.Fields{logging.FieldSession: opts.Name})
		opts.Timings = DefaultTimings()
	}
	return &Engine{
		provider: p,
		sched:    opts.Scheduler,
		src:      opts.Source,
		timings:  opts.Timings,
		recorder: opts.Recorder,
		name:     opts.Name,
		state:    models.Battle{Mode: models.ModeSelecting, Log: []string{}},
		timers:   make(map[uint64]Timer),
		subs:     make(map[int]chan models.Battle),
	}
}

// Snapshot returns the current battle state.
func (e *Engine) Snapshot() models.Battle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe streams every published snapshot, starting with the current
// one. A subscriber that falls behind loses its oldest undelivered
// snapshot. The returned func unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan models.Battle, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan models.Battle, subscriberBuffer)
	e.subID++
	id := e.subID
	e.subs[id] = ch
	ch <- e.state
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		// Close may already have closed it.
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

// StartBattle resolves the chosen creature and a random opponent and
// installs a fresh battle. On error nothing changes.
func (e *Engine) StartBattle(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	player, err := e.provider.ResolveCreature(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve player %q: %w", name, err)
	}
	oppID := RandomID(e.src, e.provider.RosterSize())
	opponent, err := e.provider.ResolveCreature(ctx, fmt.Sprint(oppID))
	if err != nil {
		return fmt.Errorf("resolve opponent #%d: %w", oppID, err)
	}
	player = player.WithHP(player.MaxHP)
	opponent = opponent.WithHP(opponent.MaxHP)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.discardLocked()
	e.commitLocked(models.Battle{
		Mode:     models.ModeBattling,
		Player:   &player,
		Opponent: &opponent,
		Turn:     models.TurnPlayer,
		Log: []string{
			fmt.Sprintf("Wild %s appeared!", opponent.Name),
			fmt.Sprintf("Go! %s!", player.Name),
		},
	})
	logging.Info("battle started", logging.Fields{
		logging.FieldSession:  e.name,
		logging.FieldPlayer:   player.Name,
		logging.FieldOpponent: opponent.Name,
	})
	return nil
}

// AttemptPlayerAttack starts the player's attack. Out-of-turn or
// mid-resolution intents are rejected without touching state.
func (e *Engine) AttemptPlayerAttack() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.state.Mode != models.ModeBattling || e.state.Turn == models.TurnOver:
		return ErrNoBattle
	case e.state.Turn != models.TurnPlayer:
		return ErrNotPlayerTurn
	case e.state.Processing:
		return ErrBusy
	}
	e.resolveAttackLocked(models.SidePlayer)
	return nil
}

// Reset discards the battle and returns to selection. Pending timers are
// cancelled and can no longer touch state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discardLocked()
	e.commitLocked(models.Battle{Mode: models.ModeSelecting, Log: []string{}})
}

// Close resets the engine and closes every subscription. Unsubscribe
// funcs stay safe to call afterwards.
func (e *Engine) Close() {
	e.Reset()
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// resolveAttackLocked runs one attack sequence for side. Damage is rolled
// now; the defender's HP is only committed when the Resolve delay elapses.
func (e *Engine) resolveAttackLocked(side models.Side) {
	attacker := *e.state.Creature(side)
	defender := *e.state.Creature(side.Other())
	damage := ComputeDamage(e.src, attacker.Attack)
	newHP := defender.HP - damage
	if newHP < 0 {
		newHP = 0
	}
	defeated := newHP == 0

	next := e.state
	next.Processing = true
	next.Flags = next.Flags.SetAttacking(side, true)
	e.commitLocked(next)

	e.afterLocked(e.timings.Lunge, func() {
		next := e.state
		next.Flags = next.Flags.SetAttacking(side, false).SetHit(side.Other(), true)
		e.commitLocked(next)
		e.afterLocked(e.timings.Flash, func() {
			next := e.state
			next.Flags = next.Flags.SetHit(side.Other(), false)
			e.commitLocked(next)
		})
	})

	e.afterLocked(e.timings.Resolve, func() {
		next := e.state
		next.Log = appendLog(next.Log, fmt.Sprintf("%s used ATTACK!", attacker.Name))
		hit := e.state.Creature(side.Other()).WithHP(newHP)
		if side == models.SidePlayer {
			next.Opponent = &hit
		} else {
			next.Player = &hit
		}
		if e.recorder != nil {
			e.recorder.RecordHit(attacker.Name, damage)
		}

		if defeated {
			won := side == models.SidePlayer
			next.Turn = models.TurnOver
			next.Log = appendLog(next.Log, fmt.Sprintf("%s fainted!", defender.Name))
			if won {
				next.Outcome = models.OutcomeWin
				next.Log = appendLog(next.Log, "YOU WIN!")
			} else {
				next.Outcome = models.OutcomeLose
				next.Log = appendLog(next.Log, "YOU LOSE!")
			}
			next.Processing = false
			e.commitLocked(next)
			if e.recorder != nil {
				e.recorder.RecordOutcome(next.Player.Name, next.Opponent.Name, won)
			}
			logging.Info("battle over", logging.Fields{
				logging.FieldSession: e.name,
				"outcome":            string(next.Outcome),
			})
			return
		}

		next.Turn = side.Other().Turn()
		// The opponent's turn is driven internally, so input stays locked.
		next.Processing = next.Turn == models.TurnOpponent
		e.commitLocked(next)
		if next.Turn == models.TurnOpponent {
			e.scheduleOpponentLocked()
		}
	})
}

// scheduleOpponentLocked queues the opponent's attack after the thinking
// delay, replacing any attack already queued.
func (e *Engine) scheduleOpponentLocked() {
	if e.aiTimer != 0 {
		e.stopTimerLocked(e.aiTimer)
	}
	var id uint64
	id = e.afterLocked(e.timings.Think, func() {
		if e.aiTimer == id {
			e.aiTimer = 0
		}
		if e.state.Mode != models.ModeBattling || e.state.Turn != models.TurnOpponent {
			return
		}
		e.resolveAttackLocked(models.SideOpponent)
	})
	e.aiTimer = id
}

// afterLocked schedules f to run under the engine lock after d. f is
// dropped if the battle it belongs to has been discarded in the meantime.
func (e *Engine) afterLocked(d time.Duration, f func()) uint64 {
	gen := e.gen
	e.timerID++
	id := e.timerID
	e.timers[id] = e.sched.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.timers[id]; !ok || e.gen != gen {
			return
		}
		delete(e.timers, id)
		f()
	})
	return id
}

func (e *Engine) stopTimerLocked(id uint64) {
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

// discardLocked cancels every timer of the current battle.
func (e *Engine) discardLocked() {
	for id := range e.timers {
		e.stopTimerLocked(id)
	}
	e.aiTimer = 0
	e.gen++
}

// commitLocked installs next as the current snapshot and publishes it.
func (e *Engine) commitLocked(next models.Battle) {
	next.Version = e.state.Version + 1
	e.state = next
	for _, ch := range e.subs {
		publish(ch, next)
	}
}

func publish(ch chan models.Battle, b models.Battle) {
	for {
		select {
		case ch <- b:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// appendLog never writes into a slice shared with a published snapshot.
func appendLog(log []string, line string) []string {
	out := make([]string, len(log), len(log)+1)
	copy(out, log)
	return append(out, line)
}
