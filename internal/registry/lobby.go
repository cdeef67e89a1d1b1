// internal/registry/lobby.go
package registry

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// Status is the lobby lifecycle state. Waiting lobbies accept joins;
// InProgress lobbies do not.
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "InProgress"
)

// Lobby groups players intending to play together. Players and the whitelist
// hold identities: base64-encoded Ed25519 public keys. The owner is always a
// member. A nil whitelist means unrestricted join (for public lobbies) or
// invite-only (for private ones, where only the whitelist grants discovery).
type Lobby struct {
	ID        uuid.UUID
	Owner     string
	Players   map[string]struct{}
	Status    Status
	IsPrivate bool
	Whitelist map[string]struct{}
}

// clone returns a deep copy so callers can read a snapshot without holding the
// registry lock.
func (l *Lobby) clone() *Lobby {
	out := &Lobby{
		ID:        l.ID,
		Owner:     l.Owner,
		Players:   make(map[string]struct{}, len(l.Players)),
		Status:    l.Status,
		IsPrivate: l.IsPrivate,
	}
	for p := range l.Players {
		out.Players[p] = struct{}{}
	}
	if l.Whitelist != nil {
		out.Whitelist = make(map[string]struct{}, len(l.Whitelist))
		for p := range l.Whitelist {
			out.Whitelist[p] = struct{}{}
		}
	}
	return out
}

// lobbyJSON is the wire shape: players as an array, whitelist omitted when
// absent.
type lobbyJSON struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	Players   []string  `json:"players"`
	Status    Status    `json:"status"`
	IsPrivate bool      `json:"is_private"`
	Whitelist []string  `json:"whitelist,omitempty"`
}

func (l *Lobby) MarshalJSON() ([]byte, error) {
	out := lobbyJSON{
		ID:        l.ID,
		Owner:     l.Owner,
		Players:   sortedKeys(l.Players),
		Status:    l.Status,
		IsPrivate: l.IsPrivate,
	}
	if l.Whitelist != nil {
		out.Whitelist = sortedKeys(l.Whitelist)
	}
	return json.Marshal(out)
}

func (l *Lobby) UnmarshalJSON(data []byte) error {
	var in lobbyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	l.ID = in.ID
	l.Owner = in.Owner
	l.Status = in.Status
	l.IsPrivate = in.IsPrivate
	l.Players = make(map[string]struct{}, len(in.Players))
	for _, p := range in.Players {
		l.Players[p] = struct{}{}
	}
	l.Whitelist = nil
	if in.Whitelist != nil {
		l.Whitelist = make(map[string]struct{}, len(in.Whitelist))
		for _, p := range in.Whitelist {
			l.Whitelist[p] = struct{}{}
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
