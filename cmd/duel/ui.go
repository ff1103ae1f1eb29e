package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nsf/termbox-go"

	"github.com/pefman/poke-duel/internal/api"
	"github.com/pefman/poke-duel/internal/engine"
	"github.com/pefman/poke-duel/internal/models"
	"github.com/pefman/poke-duel/internal/stats"
)

const (
	fg      = termbox.ColorGreen
	bg      = termbox.ColorBlack
	columns = 4
	colW    = 14
	barW    = 20
)

type ui struct {
	eng *engine.Engine
	rec *stats.Recorder

	roster  []models.RosterEntry
	cursor  int
	loading bool
	status  string
	battle  models.Battle
}

type startResult struct{ err error }

func runUI(client *api.Client, eng *engine.Engine, rec *stats.Recorder) error {
	if err := termbox.Init(); err != nil {
		return err
	}
	defer termbox.Close()

	u := &ui{eng: eng, rec: rec, loading: true}
	u.draw()

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()
	rosterCh := make(chan []models.RosterEntry, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		rosterCh <- client.ListRoster(ctx)
	}()
	states, unsubscribe := eng.Subscribe()
	defer unsubscribe()
	started := make(chan startResult, 1)

	for {
		select {
		case r := <-rosterCh:
			u.roster, u.loading = r, false
			if len(r) == 0 {
				u.status = "Could not load the roster. Press q to quit."
			}
		case b := <-states:
			u.battle = b
		case res := <-started:
			u.loading = false
			if res.err != nil {
				u.status = "Error: " + res.err.Error()
			} else {
				u.status = ""
			}
		case ev := <-events:
			if ev.Type == termbox.EventError {
				return ev.Err
			}
			if ev.Type != termbox.EventKey {
				break
			}
			if ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC || ev.Ch == 'q' {
				return nil
			}
			u.handleKey(ev, started)
		}
		u.draw()
	}
}

func (u *ui) handleKey(ev termbox.Event, started chan<- startResult) {
	if u.battle.Mode == models.ModeBattling {
		switch {
		case u.battle.Turn == models.TurnOver && (ev.Ch == 'r' || ev.Key == termbox.KeyEnter):
			u.eng.Reset()
		case ev.Ch == 'a' || ev.Key == termbox.KeyEnter:
			// out-of-turn presses are simply ignored
			_ = u.eng.AttemptPlayerAttack()
		}
		return
	}
	if u.loading || len(u.roster) == 0 {
		return
	}
	switch ev.Key {
	case termbox.KeyArrowLeft:
		u.move(-1)
	case termbox.KeyArrowRight:
		u.move(1)
	case termbox.KeyArrowUp:
		u.move(-columns)
	case termbox.KeyArrowDown:
		u.move(columns)
	case termbox.KeyEnter:
		name := u.roster[u.cursor].Name
		u.loading = true
		u.status = ""
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			started <- startResult{err: u.eng.StartBattle(ctx, name)}
		}()
	}
}

func (u *ui) move(d int) {
	n := u.cursor + d
	if n >= 0 && n < len(u.roster) {
		u.cursor = n
	}
}

func (u *ui) draw() {
	_ = termbox.Clear(fg, bg)
	switch {
	case u.loading:
		text(2, 1, "Loading...", fg|termbox.AttrBold)
	case u.battle.Mode == models.ModeBattling:
		u.drawBattle()
	default:
		u.drawSelect()
	}
	if u.status != "" {
		_, h := termbox.Size()
		text(2, h-1, u.status, fg)
	}
	_ = termbox.Flush()
}

func (u *ui) drawSelect() {
	text(2, 1, "CHOOSE YOUR POKEMON", fg|termbox.AttrBold|termbox.AttrUnderline)
	for i, e := range u.roster {
		x := 2 + (i%columns)*colW
		y := 3 + i/columns
		attr := fg
		if i == u.cursor {
			attr |= termbox.AttrReverse
		}
		text(x, y, strings.ToUpper(e.Name), attr)
	}
}

func (u *ui) drawBattle() {
	b := u.battle
	if b.Opponent != nil {
		drawCard(2, 1, *b.Opponent, b.Flags.OpponentAttacking, b.Flags.OpponentHit)
	}
	if b.Player != nil {
		drawCard(24, 6, *b.Player, b.Flags.PlayerAttacking, b.Flags.PlayerHit)
		r := u.rec.Get(b.Player.Name)
		text(24, 9, fmt.Sprintf("W%d L%d BEST %d", r.Wins, r.Losses, r.BiggestHit), fg)
	}
	text(2, 12, strings.Repeat("-", 44), fg)
	text(2, 13, b.LastLog(), fg|termbox.AttrBold)
	switch {
	case b.Turn == models.TurnOver:
		text(34, 15, "> RESTART", fg|termbox.AttrBold)
	case b.Turn == models.TurnPlayer && !b.Processing:
		text(34, 15, "> FIGHT", fg|termbox.AttrBold)
	default:
		text(34, 15, "  FIGHT", fg)
	}
}

func drawCard(x, y int, c models.Creature, attacking, hit bool) {
	if attacking {
		x += 2
	}
	text(x, y, c.Name, fg|termbox.AttrBold)
	attr := fg
	if hit {
		attr |= termbox.AttrReverse
	}
	text(x, y+1, "HP "+hpBar(c.HP, c.MaxHP, barW), attr)
	text(x, y+2, fmt.Sprintf("%3d/%3d", c.HP, c.MaxHP), fg)
}

func hpBar(hp, maxHP, width int) string {
	if maxHP <= 0 {
		return strings.Repeat(".", width)
	}
	filled := hp * width / maxHP
	if hp > 0 && filled == 0 {
		filled = 1
	}
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

func text(x, y int, s string, attr termbox.Attribute) {
	for _, r := range s {
		termbox.SetCell(x, y, r, attr, bg)
		x++
	}
}
