package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pefman/poke-duel/internal/engine"
	"github.com/pefman/poke-duel/internal/models"
	"github.com/pefman/poke-duel/internal/stats"
)

type stubProvider struct{}

var roster = map[string]models.Creature{
	"pikachu": {ID: 1, Name: "PIKACHU", MaxHP: 70, Attack: 55},
	"1":       {ID: 1, Name: "PIKACHU", MaxHP: 70, Attack: 55},
	"2":       {ID: 2, Name: "RATTATA", MaxHP: 60, Attack: 56},
}

func (stubProvider) ResolveCreature(_ context.Context, idOrName string) (models.Creature, error) {
	c, ok := roster[strings.ToLower(idOrName)]
	if !ok {
		return models.Creature{}, errors.New("api status 404")
	}
	return c, nil
}

func (stubProvider) RosterSize() int { return 2 }

func (stubProvider) ListRoster(context.Context) []models.RosterEntry {
	return []models.RosterEntry{{Name: "pikachu"}, {Name: "rattata"}}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *engine.ManualScheduler) {
	t.Helper()
	sched := engine.NewManualScheduler()
	s := New(stubProvider{}, stats.NewRecorder(), engine.Options{Scheduler: sched, Source: engine.NewSource(1)})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts, sched
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	code, body := do(t, http.MethodPost, base+"/api/sessions", "")
	if code != http.StatusCreated {
		t.Fatalf("create session = %d %s", code, body)
	}
	var out struct {
		ID    string        `json:"id"`
		State models.Battle `json:"state"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID == "" || out.State.Mode != models.ModeSelecting {
		t.Fatalf("unexpected session: %s", body)
	}
	return out.ID
}

func decodeBattle(t *testing.T, body []byte) models.Battle {
	t.Helper()
	var b models.Battle
	if err := json.Unmarshal(body, &b); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return b
}

func TestSessionLifecycle(t *testing.T) {
	_, ts, sched := newTestServer(t)
	id := createSession(t, ts.URL)
	base := ts.URL + "/api/sessions/" + id

	code, body := do(t, http.MethodPost, base+"/attack", "")
	if code != http.StatusConflict {
		t.Fatalf("attack before battle = %d %s", code, body)
	}

	code, body = do(t, http.MethodPost, base+"/battle", `{"name":"pikachu"}`)
	if code != http.StatusOK {
		t.Fatalf("start = %d %s", code, body)
	}
	b := decodeBattle(t, body)
	if b.Mode != models.ModeBattling || b.Player.Name != "PIKACHU" || b.Player.HP != 70 || len(b.Log) != 2 {
		t.Fatalf("battle = %s", body)
	}

	code, body = do(t, http.MethodPost, base+"/attack", "")
	if code != http.StatusAccepted || !decodeBattle(t, body).Processing {
		t.Fatalf("attack = %d %s", code, body)
	}
	if code, _ = do(t, http.MethodPost, base+"/attack", ""); code != http.StatusConflict {
		t.Fatalf("second attack = %d, want 409", code)
	}

	sched.Advance(600 * time.Millisecond)
	code, body = do(t, http.MethodGet, base, "")
	if code != http.StatusOK || decodeBattle(t, body).LastLog() != "PIKACHU used ATTACK!" {
		t.Fatalf("get = %d %s", code, body)
	}

	code, body = do(t, http.MethodPost, base+"/reset", "")
	if code != http.StatusOK || decodeBattle(t, body).Mode != models.ModeSelecting {
		t.Fatalf("reset = %d %s", code, body)
	}

	if code, _ = do(t, http.MethodDelete, base, ""); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code, _ = do(t, http.MethodGet, base, ""); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
	if code, _ = do(t, http.MethodDelete, base, ""); code != http.StatusNotFound {
		t.Fatalf("second delete = %d", code)
	}
}

func TestStartBattle_Errors(t *testing.T) {
	_, ts, _ := newTestServer(t)
	base := ts.URL + "/api/sessions/" + createSession(t, ts.URL)

	tests := []struct {
		body string
		want int
	}{
		{"not json", http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"name":"   "}`, http.StatusBadRequest},
		{`{"name":"missingno"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if code, body := do(t, http.MethodPost, base+"/battle", tt.body); code != tt.want {
			t.Errorf("start %s = %d %s, want %d", tt.body, code, body, tt.want)
		}
	}
	code, body := do(t, http.MethodGet, base, "")
	if code != http.StatusOK || decodeBattle(t, body).Mode != models.ModeSelecting {
		t.Fatalf("failed starts should leave the session selecting: %s", body)
	}
}

func TestUnknownSession(t *testing.T) {
	_, ts, _ := newTestServer(t)
	for _, p := range []string{"/battle", "/attack", "/reset"} {
		if code, _ := do(t, http.MethodPost, ts.URL+"/api/sessions/nope"+p, `{"name":"pikachu"}`); code != http.StatusNotFound {
			t.Errorf("POST %s = %d, want 404", p, code)
		}
	}
}

func TestRosterAndStats(t *testing.T) {
	s, ts, sched := newTestServer(t)
	code, body := do(t, http.MethodGet, ts.URL+"/api/roster", "")
	if code != http.StatusOK || !strings.Contains(string(body), "rattata") {
		t.Fatalf("roster = %d %s", code, body)
	}

	if _, body = do(t, http.MethodGet, ts.URL+"/api/stats/today", ""); strings.TrimSpace(string(body)) != "{}" {
		t.Fatalf("stats/today before any hit = %s", body)
	}

	id := createSession(t, ts.URL)
	e, _ := s.Session(id)
	if err := e.StartBattle(context.Background(), "pikachu"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100 && e.Snapshot().InProgress(); i++ {
		if err := e.AttemptPlayerAttack(); err != nil {
			t.Fatal(err)
		}
		sched.RunAll(20)
	}

	code, body = do(t, http.MethodGet, ts.URL+"/api/stats/pikachu", "")
	var rec stats.Record
	_ = json.Unmarshal(body, &rec)
	if code != http.StatusOK || rec.Battles != 1 || rec.Wins+rec.Losses != 1 || rec.BiggestHit == 0 {
		t.Fatalf("stats = %d %s", code, body)
	}

	_, body = do(t, http.MethodGet, ts.URL+"/api/stats/today", "")
	var hit stats.Hit
	if err := json.Unmarshal(body, &hit); err != nil || hit.Damage == 0 {
		t.Fatalf("stats/today = %s", body)
	}
	if code, _ = do(t, http.MethodDelete, ts.URL+"/api/stats/today", ""); code != http.StatusNoContent {
		t.Fatalf("reset today = %d", code)
	}
	if _, body = do(t, http.MethodGet, ts.URL+"/api/stats/today", ""); strings.TrimSpace(string(body)) != "{}" {
		t.Fatalf("stats/today after reset = %s", body)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m.Type, m.Data
}

func TestWebSocket(t *testing.T) {
	_, ts, sched := newTestServer(t)
	id := createSession(t, ts.URL)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, data := readMsg(t, conn)
	if typ != "state" || decodeBattle(t, data).Mode != models.ModeSelecting {
		t.Fatalf("first message = %s %s", typ, data)
	}

	_ = conn.WriteJSON(map[string]string{"type": "attack"})
	typ, data = readMsg(t, conn)
	if typ != "error" || !strings.Contains(string(data), engine.ErrNoBattle.Error()) {
		t.Fatalf("attack without battle = %s %s", typ, data)
	}

	_ = conn.WriteJSON(map[string]any{"type": "start", "data": map[string]string{"name": "pikachu"}})
	typ, data = readMsg(t, conn)
	if typ != "state" || decodeBattle(t, data).Mode != models.ModeBattling {
		t.Fatalf("after start = %s %s", typ, data)
	}

	_ = conn.WriteJSON(map[string]string{"type": "attack"})
	typ, data = readMsg(t, conn)
	if b := decodeBattle(t, data); typ != "state" || !b.Processing || !b.Flags.PlayerAttacking {
		t.Fatalf("after attack = %s %s", typ, data)
	}

	sched.Advance(250 * time.Millisecond)
	_, data = readMsg(t, conn)
	if b := decodeBattle(t, data); !b.Flags.OpponentHit {
		t.Fatalf("after lunge = %s", data)
	}

	_ = conn.WriteJSON(map[string]string{"type": "dance"})
	typ, data = readMsg(t, conn)
	if typ != "error" || !strings.Contains(string(data), "unknown intent") {
		t.Fatalf("unknown intent = %s %s", typ, data)
	}
}

func TestDeleteSessionWithOpenWebSocket(t *testing.T) {
	s, ts, _ := newTestServer(t)
	id := createSession(t, ts.URL)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if typ, _ := readMsg(t, conn); typ != "state" {
		t.Fatalf("first message = %s", typ)
	}

	if code, _ := do(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, ""); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}

	// the server ends the stream; the handler must unwind without panicking
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("read err = %v, want going-away close", err)
			}
			break
		}
	}
	if s.SessionCount() != 0 {
		t.Fatalf("session still registered")
	}
	// the server keeps serving after the connection unwound
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/healthz", ""); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
}

func TestSessionLimit(t *testing.T) {
	s, ts, _ := newTestServer(t)
	s.SetLimits(Limits{MaxSessions: 2, SessionTTL: time.Hour})
	createSession(t, ts.URL)
	createSession(t, ts.URL)
	if code, body := do(t, http.MethodPost, ts.URL+"/api/sessions", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("third session = %d %s, want 503", code, body)
	}
	if s.SessionCount() != 2 {
		t.Fatalf("SessionCount() = %d", s.SessionCount())
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	s, ts, _ := newTestServer(t)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.SetLimits(Limits{MaxSessions: 2, SessionTTL: 10 * time.Minute})

	idle := createSession(t, ts.URL)
	busy := createSession(t, ts.URL)

	clock = clock.Add(9 * time.Minute)
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/sessions/"+busy, ""); code != http.StatusOK {
		t.Fatalf("get busy = %d", code)
	}
	clock = clock.Add(2 * time.Minute)
	fresh := createSession(t, ts.URL)

	if _, ok := s.Session(idle); ok {
		t.Fatalf("idle session should have expired")
	}
	for _, id := range []string{busy, fresh} {
		if _, ok := s.Session(id); !ok {
			t.Fatalf("session %s should be alive", id)
		}
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/sessions/"+idle, ""); code != http.StatusNotFound {
		t.Fatalf("expired session = %d, want 404", code)
	}
}

func TestConnectedSessionDoesNotExpire(t *testing.T) {
	s, ts, _ := newTestServer(t)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.SetLimits(Limits{MaxSessions: 10, SessionTTL: time.Minute})

	id := createSession(t, ts.URL)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readMsg(t, conn)

	clock = clock.Add(time.Hour)
	createSession(t, ts.URL)
	if _, ok := s.Session(id); !ok {
		t.Fatalf("session with an open websocket was expired")
	}
}
