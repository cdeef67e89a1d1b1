// internal/registry/registry.go
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sentinel errors for lobby mutations. Handlers map these to HTTP statuses
// exactly once at the boundary.
var (
	ErrAlreadyInLobby = errors.New("already in a lobby")
	ErrLobbyNotFound  = errors.New("lobby not found")
	ErrNotInWhitelist = errors.New("not in whitelist")
	ErrNotOwner       = errors.New("not the lobby owner")
)

// Registry is the in-memory lobby table plus the player-to-lobby index. One
// lock covers both maps so every mutation keeps them consistent: an identity
// appears in playersInLobbies iff it appears in exactly that lobby's player
// set.
type Registry struct {
	mu               sync.RWMutex
	lobbies          map[uuid.UUID]*Lobby
	playersInLobbies map[string]uuid.UUID

	log *logrus.Logger
}

// New returns an empty registry.
func New(log *logrus.Logger) *Registry {
	return &Registry{
		lobbies:          make(map[uuid.UUID]*Lobby),
		playersInLobbies: make(map[string]uuid.UUID),
		log:              log,
	}
}

// Create builds a new Waiting lobby with the owner already in the player set.
// Fails with ErrAlreadyInLobby if the owner belongs to any lobby.
func (r *Registry) Create(owner string, isPrivate bool, whitelist []string) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.playersInLobbies[owner]; ok {
		r.log.WithFields(logrus.Fields{
			"existing_lobby_id": existing,
			"pubkey":            short(owner),
		}).Warn("player attempted to create lobby while already in one")
		return nil, ErrAlreadyInLobby
	}

	lobby := &Lobby{
		ID:        uuid.New(),
		Owner:     owner,
		Players:   map[string]struct{}{owner: {}},
		Status:    StatusWaiting,
		IsPrivate: isPrivate,
	}
	if whitelist != nil {
		lobby.Whitelist = make(map[string]struct{}, len(whitelist))
		for _, p := range whitelist {
			lobby.Whitelist[p] = struct{}{}
		}
	}

	r.lobbies[lobby.ID] = lobby
	r.playersInLobbies[owner] = lobby.ID
	r.log.WithFields(logrus.Fields{
		"lobby_id": lobby.ID,
		"pubkey":   short(owner),
	}).Info("lobby created and owner added")
	return lobby.clone(), nil
}

// Discover returns the lobbies the viewer is allowed to see. An empty viewer
// means unauthenticated, which sees only public Waiting lobbies. Members
// always see their own lobby; private lobbies are also visible to their
// whitelist.
func (r *Registry) Discover(viewer string) []*Lobby {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Lobby, 0, len(r.lobbies))
	for _, lobby := range r.lobbies {
		if r.visibleTo(lobby, viewer) {
			out = append(out, lobby.clone())
		}
	}
	return out
}

func (r *Registry) visibleTo(lobby *Lobby, viewer string) bool {
	if !lobby.IsPrivate && lobby.Status == StatusWaiting {
		return true
	}
	if viewer == "" {
		return false
	}
	if _, ok := lobby.Players[viewer]; ok {
		return true
	}
	if lobby.IsPrivate && lobby.Whitelist != nil {
		_, ok := lobby.Whitelist[viewer]
		return ok
	}
	return false
}

// Join adds a player to a Waiting lobby. Rejoining the lobby the player is
// already in is a no-op success. A non-Waiting lobby is reported as not found:
// joiners cannot distinguish a started lobby from an absent one.
func (r *Registry) Join(lobbyID uuid.UUID, player string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.playersInLobbies[player]; ok {
		if existing == lobbyID {
			r.log.WithFields(logrus.Fields{
				"lobby_id": lobbyID,
				"pubkey":   short(player),
			}).Debug("player already in this lobby")
			return nil
		}
		r.log.WithFields(logrus.Fields{
			"existing_lobby_id":  existing,
			"attempted_lobby_id": lobbyID,
			"pubkey":             short(player),
		}).Warn("player attempted to join lobby while already in another")
		return ErrAlreadyInLobby
	}

	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if lobby.Status != StatusWaiting {
		r.log.WithFields(logrus.Fields{
			"lobby_id": lobbyID,
			"pubkey":   short(player),
		}).Warn("attempt to join lobby that is not waiting")
		return ErrLobbyNotFound
	}
	if lobby.Whitelist != nil {
		if _, ok := lobby.Whitelist[player]; !ok {
			r.log.WithFields(logrus.Fields{
				"lobby_id": lobbyID,
				"pubkey":   short(player),
			}).Warn("player not in whitelist")
			return ErrNotInWhitelist
		}
	}

	lobby.Players[player] = struct{}{}
	r.playersInLobbies[player] = lobbyID
	r.log.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"pubkey":   short(player),
	}).Info("player joined lobby")
	return nil
}

// Leave removes a player's membership. It is a no-op if the player is not a
// member of that lobby, and the owner cannot leave: they delete instead.
func (r *Registry) Leave(lobbyID uuid.UUID, player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(lobbyID, player)
}

func (r *Registry) leaveLocked(lobbyID uuid.UUID, player string) {
	lobby, ok := r.lobbies[lobbyID]
	if !ok || lobby.Owner == player {
		return
	}
	if _, member := lobby.Players[player]; !member {
		return
	}
	delete(lobby.Players, player)
	if existing, ok := r.playersInLobbies[player]; ok && existing == lobbyID {
		delete(r.playersInLobbies, player)
	}
	r.log.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"pubkey":   short(player),
	}).Info("player left lobby")
}

// Delete is polymorphic on ownership: the owner removes the lobby outright and
// purges every index entry pointing at it, while any other caller merely
// leaves.
func (r *Registry) Delete(lobbyID uuid.UUID, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		r.log.WithFields(logrus.Fields{
			"lobby_id": lobbyID,
			"pubkey":   short(caller),
		}).Warn("attempted to delete or leave non-existent lobby")
		return ErrLobbyNotFound
	}

	if lobby.Owner != caller {
		r.leaveLocked(lobbyID, caller)
		return nil
	}

	delete(r.lobbies, lobbyID)
	for player, id := range r.playersInLobbies {
		if id == lobbyID {
			delete(r.playersInLobbies, player)
		}
	}
	r.log.WithFields(logrus.Fields{
		"lobby_id": lobbyID,
		"pubkey":   short(caller),
	}).Info("lobby deleted by owner")
	return nil
}

// Invite adds identities to the lobby whitelist, creating it if absent. Only
// the owner may invite.
func (r *Registry) Invite(lobbyID uuid.UUID, caller string, players []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if lobby.Owner != caller {
		r.log.WithFields(logrus.Fields{
			"lobby_id": lobbyID,
			"pubkey":   short(caller),
		}).Warn("non-owner attempted to invite players")
		return ErrNotOwner
	}

	if lobby.Whitelist == nil {
		lobby.Whitelist = make(map[string]struct{}, len(players))
	}
	for _, p := range players {
		lobby.Whitelist[p] = struct{}{}
	}
	r.log.WithFields(logrus.Fields{
		"lobby_id":      lobbyID,
		"pubkey":        short(caller),
		"invited_count": len(players),
	}).Info("players invited to lobby")
	return nil
}

// Start transitions a Waiting lobby to InProgress. Only the owner may start;
// starting an InProgress lobby is a no-op.
func (r *Registry) Start(lobbyID uuid.UUID, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if lobby.Owner != caller {
		r.log.WithFields(logrus.Fields{
			"lobby_id": lobbyID,
			"pubkey":   short(caller),
		}).Warn("non-owner attempted to start lobby")
		return ErrNotOwner
	}
	if lobby.Status != StatusWaiting {
		return nil
	}
	lobby.Status = StatusInProgress
	r.log.WithField("lobby_id", lobbyID).Info("lobby status set to InProgress")
	return nil
}

// End returns an InProgress lobby to Waiting so it can be reused for another
// round. Ending a Waiting lobby is a no-op.
func (r *Registry) End(lobbyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return ErrLobbyNotFound
	}
	if lobby.Status == StatusWaiting {
		return nil
	}
	lobby.Status = StatusWaiting
	r.log.WithField("lobby_id", lobbyID).Info("lobby status set to Waiting")
	return nil
}

// Get returns a snapshot of a lobby.
func (r *Registry) Get(lobbyID uuid.UUID) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lobby, ok := r.lobbies[lobbyID]
	if !ok {
		return nil, false
	}
	return lobby.clone(), true
}

// LobbyFor returns the lobby id a player belongs to, if any.
func (r *Registry) LobbyFor(player string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playersInLobbies[player]
	return id, ok
}

// short truncates a pubkey for log output; eight characters are enough to
// trace a player without logging the full identity.
func short(pubkey string) string {
	if len(pubkey) > 8 {
		return pubkey[:8]
	}
	return pubkey
}
