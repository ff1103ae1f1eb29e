package dex

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

type listResponse struct {
	Count   int         `json:"count"`
	Results []listEntry `json:"results"`
}

type listEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type creatureResponse struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Sprites sprites `json:"sprites"`
	Stats   []stat  `json:"stats"`
}

type sprites struct {
	FrontDefault string  `json:"front_default"`
	BackDefault  *string `json:"back_default"`
}

type stat struct {
	BaseStat int `json:"base_stat"`
	Stat     struct {
		Name string `json:"name"`
	} `json:"stat"`
}

func newStat(name string, v int) stat {
	s := stat{BaseStat: v}
	s.Stat.Name = name
	return s
}

// Handler serves the store under /api/v2.
func (s *Store) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v2").Subrouter()
	api.HandleFunc("/pokemon", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/pokemon/", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/pokemon/{idOrName}", s.handleCreature).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	return withCORS(r)
}

func (s *Store) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	base := baseURL(r)
	entries := s.List(limit)
	out := listResponse{Count: s.Len(), Results: make([]listEntry, 0, len(entries))}
	for _, e := range entries {
		out.Results = append(out.Results, listEntry{Name: e.Name, URL: fmt.Sprintf("%s/api/v2/pokemon/%d/", base, e.ID)})
	}
	writeJSON(w, out)
}

func (s *Store) handleCreature(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["idOrName"]
	e, ok := s.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown creature "+key)
		return
	}
	out := creatureResponse{
		ID:      e.ID,
		Name:    e.Name,
		Sprites: sprites{FrontDefault: e.Front},
		Stats:   []stat{newStat("hp", e.HP), newStat("attack", e.Attack)},
	}
	if e.Back != "" {
		back := e.Back
		out.Sprites.BackDefault = &back
	}
	writeJSON(w, out)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(r.Host, "/")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}

// simple CORS for GET/OPTIONS
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
