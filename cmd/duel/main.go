// Command duel is a terminal front end for a single-player duel.
//
//	duel            interactive retro console UI
//	duel -sim NAME  headless battle on a virtual clock, printing the log
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pefman/poke-duel/internal/api"
	"github.com/pefman/poke-duel/internal/config"
	"github.com/pefman/poke-duel/internal/engine"
	"github.com/pefman/poke-duel/internal/logging"
	"github.com/pefman/poke-duel/internal/stats"
)

func main() {
	sim := flag.String("sim", "", "simulate a battle with the named creature and exit")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logging.Fatal("Missing or invalid configuration", err, nil)
	}
	client := api.NewClient(cfg.APIConfig())

	if *sim != "" {
		if err := simulate(os.Stdout, client, cfg.Timings, *sim, *seed); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	rec := stats.NewRecorder()
	eng := engine.New(client, engine.Options{
		Timings:  cfg.Timings,
		Source:   engine.NewSource(*seed),
		Recorder: rec,
		Name:     "console",
	})
	defer eng.Close()
	if err := runUI(client, eng, rec); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// simulate plays one battle to the end, the player attacking whenever it
// may, with virtual time standing in for the animation delays.
func simulate(w io.Writer, p engine.Provider, t engine.Timings, name string, seed int64) error {
	sched := engine.NewManualScheduler()
	eng := engine.New(p, engine.Options{Scheduler: sched, Source: engine.NewSource(seed), Timings: t, Name: "sim"})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.StartBattle(ctx, name); err != nil {
		return err
	}
	const maxTurns = 1000
	for i := 0; eng.Snapshot().InProgress(); i++ {
		if i == maxTurns {
			return fmt.Errorf("no winner after %d turns", maxTurns)
		}
		if err := eng.AttemptPlayerAttack(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
		sched.RunAll(100)
	}
	b := eng.Snapshot()
	for _, line := range b.Log {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%s %d/%d vs %s %d/%d after %s\n",
		b.Player.Name, b.Player.HP, b.Player.MaxHP,
		b.Opponent.Name, b.Opponent.HP, b.Opponent.MaxHP,
		sched.Now())
	return nil
}
