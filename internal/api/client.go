package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pefman/poke-duel/internal/logging"
	"github.com/pefman/poke-duel/internal/models"
)

const (
	DefaultBaseURL    = "https://pokeapi.co/api/v2"
	DefaultRosterSize = 151
	placeholderSprite = "https://via.placeholder.com/96"

	fallbackHP     = 100
	fallbackAttack = 50
)

// ErrResolve matches every creature resolution failure.
var ErrResolve = errors.New("creature resolution failed")

// ResolveError describes why a creature could not be resolved.
type ResolveError struct {
	IDOrName string
	Status   int // HTTP status, 0 if the request never completed
	Err      error
}

func (e *ResolveError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("resolve %q: api status %d", e.IDOrName, e.Status)
	}
	return fmt.Sprintf("resolve %q: %v", e.IDOrName, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func (e *ResolveError) Is(target error) bool { return target == ErrResolve }

// Config holds API configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RosterSize int
	CacheTTL   time.Duration
}

type Client struct {
	config Config
	http   *http.Client

	// roster cache to avoid refetching the selection list
	rosterMu   sync.RWMutex
	roster     []models.RosterEntry
	rosterTime time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RosterSize <= 0 {
		cfg.RosterSize = DefaultRosterSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// RosterSize is the number of selectable creatures, ids 1..RosterSize.
func (c *Client) RosterSize() int { return c.config.RosterSize }

// statusError is returned by apiGet for non-200 responses.
type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("api status %d", e.code) }

func (c *Client) apiGet(ctx context.Context, path string, out interface{}) error {
	base := strings.TrimRight(c.config.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError{code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// API response types
type apiList struct {
	Count   int                  `json:"count"`
	Results []models.RosterEntry `json:"results"`
}

type apiCreature struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Sprites struct {
		FrontDefault string  `json:"front_default"`
		BackDefault  *string `json:"back_default"`
	} `json:"sprites"`
	Stats []apiStat `json:"stats"`
}

type apiStat struct {
	BaseStat int `json:"base_stat"`
	Stat     struct {
		Name string `json:"name"`
	} `json:"stat"`
}

// ListRoster returns the selectable creatures. Failures are logged and
// yield an empty list.
func (c *Client) ListRoster(ctx context.Context) []models.RosterEntry {
	c.rosterMu.RLock()
	if time.Since(c.rosterTime) < c.config.CacheTTL && len(c.roster) > 0 {
		out := make([]models.RosterEntry, len(c.roster))
		copy(out, c.roster)
		c.rosterMu.RUnlock()
		return out
	}
	c.rosterMu.RUnlock()

	var res apiList
	if err := c.apiGet(ctx, fmt.Sprintf("/pokemon?limit=%d", c.config.RosterSize), &res); err != nil {
		logging.Error("failed to fetch roster", err, logging.Fields{"base_url": c.config.BaseURL})
		return []models.RosterEntry{}
	}

	c.rosterMu.Lock()
	c.roster = make([]models.RosterEntry, len(res.Results))
	copy(c.roster, res.Results)
	c.rosterTime = time.Now()
	c.rosterMu.Unlock()

	return res.Results
}

// ResolveCreature fetches one creature by numeric id or name. It does not
// retry; every failure is a *ResolveError.
func (c *Client) ResolveCreature(ctx context.Context, idOrName string) (models.Creature, error) {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if key == "" {
		return models.Creature{}, &ResolveError{IDOrName: idOrName, Err: errors.New("empty id or name")}
	}
	var data apiCreature
	if err := c.apiGet(ctx, "/pokemon/"+url.PathEscape(key), &data); err != nil {
		re := &ResolveError{IDOrName: idOrName, Err: err}
		var se statusError
		if errors.As(err, &se) {
			re.Status = se.code
		}
		logging.Error("failed to resolve creature", err, logging.Fields{"id_or_name": idOrName})
		return models.Creature{}, re
	}
	return toCreature(data), nil
}

func toCreature(data apiCreature) models.Creature {
	maxHP, attack := fallbackHP, fallbackAttack
	if s, ok := findStat(data.Stats, "hp"); ok && s > 0 {
		// doubled for longer battles
		maxHP = s * 2
	}
	if s, ok := findStat(data.Stats, "attack"); ok && s > 0 {
		attack = s
	}
	front := data.Sprites.FrontDefault
	if front == "" {
		front = placeholderSprite
	}
	back := front
	if data.Sprites.BackDefault != nil && *data.Sprites.BackDefault != "" {
		back = *data.Sprites.BackDefault
	}
	return models.Creature{
		ID:          data.ID,
		Name:        strings.ToUpper(data.Name),
		SpriteFront: front,
		SpriteBack:  back,
		MaxHP:       maxHP,
		HP:          maxHP,
		Attack:      attack,
	}
}

func findStat(stats []apiStat, name string) (int, bool) {
	for _, s := range stats {
		if s.Stat.Name == name {
			return s.BaseStat, true
		}
	}
	return 0, false
}
