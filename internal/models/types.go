package models

// ========================= Domain Models =========================
// Minimal shapes for a duel. Provider responses are mapped into these.

// Creature is a resolved combatant.
type Creature struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	SpriteFront string `json:"sprite_front"`
	SpriteBack  string `json:"sprite_back"`
	MaxHP       int    `json:"max_hp"`
	HP          int    `json:"hp"` // 0..MaxHP
	Attack      int    `json:"attack"`
}

// WithHP returns a copy with HP clamped to [0, MaxHP].
func (c Creature) WithHP(hp int) Creature {
	if hp < 0 {
		hp = 0
	}
	if hp > c.MaxHP {
		hp = c.MaxHP
	}
	c.HP = hp
	return c
}

// Fainted reports whether the creature has no health left.
func (c Creature) Fainted() bool { return c.HP <= 0 }

// RosterEntry is a selectable creature as listed by the provider.
type RosterEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Turn is whoever may act next, or the terminal game-over marker.
type Turn string

const (
	TurnPlayer   Turn = "PLAYER"
	TurnOpponent Turn = "OPPONENT"
	TurnOver     Turn = "GAMEOVER"
)

// Mode is the application mode a shell renders.
type Mode string

const (
	ModeSelecting Mode = "SELECTING"
	ModeBattling  Mode = "BATTLING"
)

type Side int

const (
	SidePlayer Side = iota
	SideOpponent
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SidePlayer {
		return SideOpponent
	}
	return SidePlayer
}

// Turn returns the turn value in which s acts.
func (s Side) Turn() Turn {
	if s == SidePlayer {
		return TurnPlayer
	}
	return TurnOpponent
}

func (s Side) String() string {
	if s == SidePlayer {
		return "player"
	}
	return "opponent"
}

// Flags are cosmetic animation states; they never affect battle logic.
type Flags struct {
	PlayerAttacking   bool `json:"player_attacking"`
	OpponentAttacking bool `json:"opponent_attacking"`
	PlayerHit         bool `json:"player_hit"`
	OpponentHit       bool `json:"opponent_hit"`
}

// SetAttacking sets the animating flag of side s.
func (f Flags) SetAttacking(s Side, v bool) Flags {
	if s == SidePlayer {
		f.PlayerAttacking = v
	} else {
		f.OpponentAttacking = v
	}
	return f
}

// SetHit sets the hit-flash flag of side s.
func (f Flags) SetHit(s Side, v bool) Flags {
	if s == SidePlayer {
		f.PlayerHit = v
	} else {
		f.OpponentHit = v
	}
	return f
}

type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
)

// Battle is an immutable snapshot of one encounter. A new value is built
// for every transition; published snapshots are never written to again.
type Battle struct {
	Mode       Mode      `json:"mode"`
	Player     *Creature `json:"player,omitempty"`
	Opponent   *Creature `json:"opponent,omitempty"`
	Turn       Turn      `json:"turn,omitempty"`
	Log        []string  `json:"log"`
	Processing bool      `json:"processing"`
	Flags      Flags     `json:"flags"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Version    uint64    `json:"version"`
}

// Creature returns the combatant on side s, or nil outside a battle.
func (b Battle) Creature(s Side) *Creature {
	if s == SidePlayer {
		return b.Player
	}
	return b.Opponent
}

// LastLog returns the most recent log line, or "".
func (b Battle) LastLog() string {
	if len(b.Log) == 0 {
		return ""
	}
	return b.Log[len(b.Log)-1]
}

// InProgress reports whether a side may still act.
func (b Battle) InProgress() bool {
	return b.Mode == ModeBattling && (b.Turn == TurnPlayer || b.Turn == TurnOpponent)
}
