// Command dexserver serves creature data from a local file in the public
// creature API's JSON shape, so the game can run offline.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/pefman/poke-duel/internal/dex"
	"github.com/pefman/poke-duel/internal/logging"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	path := getenv("DEX_FILE", "./data/pokedex.csv")
	addr := ":" + getenv("DEX_PORT", "8082")

	store, err := dex.Open(path)
	if err != nil {
		logging.Fatal("load store", err, logging.Fields{"path": path})
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           store.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Info("dex server started", logging.Fields{logging.FieldAddr: addr, "creatures": store.Len(), "path": path})
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("dex server failed", err, nil)
	}
}
