// internal/signal/peers.go
package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// peerSendBuffer bounds each peer's outbound queue. A full queue drops the
// frame with a logged error rather than blocking the sender.
const peerSendBuffer = 32

// ErrUnknownPeer is returned when a send targets a handle with no live socket.
var ErrUnknownPeer = errors.New("unknown peer")

// Peer is one live socket, addressable by its handle. The write pump drains
// out; everyone else enqueues through trySend.
type Peer struct {
	ID  uuid.UUID
	out chan []byte
}

func newPeer(id uuid.UUID) *Peer {
	return &Peer{ID: id, out: make(chan []byte, peerSendBuffer)}
}

func (p *Peer) trySend(frame []byte) bool {
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

// PeerRegistry tracks live sockets and the two correlation tables tying them
// to player identities:
//
//	waitingPlayers  client address -> identity, held between upgrade
//	                authorization and handle assignment
//	playersToPeers  identity -> handle, held while the socket is live
//	peers           handle -> live socket
//
// Each table has its own lock; when more than one is taken the order is
// playersToPeers, waitingPlayers, peers.
type PeerRegistry struct {
	playersMu      sync.RWMutex
	playersToPeers map[string]uuid.UUID

	waitingMu      sync.Mutex
	waitingPlayers map[string]string

	peersMu sync.Mutex
	peers   map[uuid.UUID]*Peer

	log *logrus.Logger
}

// NewPeerRegistry returns an empty registry.
func NewPeerRegistry(log *logrus.Logger) *PeerRegistry {
	return &PeerRegistry{
		playersToPeers: make(map[string]uuid.UUID),
		waitingPlayers: make(map[string]string),
		peers:          make(map[uuid.UUID]*Peer),
		log:            log,
	}
}

// AddWaiting records an authorized upgrade that has not yet been assigned a
// handle. The key is the socket's client address.
func (r *PeerRegistry) AddWaiting(clientAddr, playerID string) {
	r.waitingMu.Lock()
	r.waitingPlayers[clientAddr] = playerID
	r.waitingMu.Unlock()
	r.log.WithFields(logrus.Fields{
		"remote": clientAddr,
		"pubkey": short(playerID),
	}).Info("player authorized, awaiting peer assignment")
}

// DropWaiting discards a pending record whose upgrade never completed.
func (r *PeerRegistry) DropWaiting(clientAddr string) {
	r.waitingMu.Lock()
	delete(r.waitingPlayers, clientAddr)
	r.waitingMu.Unlock()
}

// Assign moves a pending connection into playersToPeers under the supplied
// handle. If no pending record exists for the address the event is logged and
// discarded; the caller drops the socket.
func (r *PeerRegistry) Assign(clientAddr string, handle uuid.UUID) bool {
	r.playersMu.Lock()
	defer r.playersMu.Unlock()
	r.waitingMu.Lock()
	defer r.waitingMu.Unlock()

	playerID, ok := r.waitingPlayers[clientAddr]
	if !ok {
		r.log.WithField("remote", clientAddr).Error("no pending player for id assignment")
		return false
	}
	delete(r.waitingPlayers, clientAddr)
	r.playersToPeers[playerID] = handle
	r.log.WithFields(logrus.Fields{
		"remote":  clientAddr,
		"pubkey":  short(playerID),
		"peer_id": handle,
	}).Info("assigned peer handle to player")
	return true
}

// PlayerForPeer recovers the identity that owns a handle by reverse-searching
// playersToPeers. Handles are unique across the map, so at most one identity
// matches.
func (r *PeerRegistry) PlayerForPeer(handle uuid.UUID) (string, bool) {
	r.playersMu.RLock()
	defer r.playersMu.RUnlock()
	for playerID, h := range r.playersToPeers {
		if h == handle {
			return playerID, true
		}
	}
	return "", false
}

// PeerForPlayer returns the handle of a player's live socket, if any.
func (r *PeerRegistry) PeerForPlayer(playerID string) (uuid.UUID, bool) {
	r.playersMu.RLock()
	defer r.playersMu.RUnlock()
	h, ok := r.playersToPeers[playerID]
	return h, ok
}

// AddPeer registers a live socket under its handle.
func (r *PeerRegistry) AddPeer(p *Peer) {
	r.peersMu.Lock()
	r.peers[p.ID] = p
	r.peersMu.Unlock()
}

// TrySend marshals an event and enqueues it for the target peer without
// blocking. A full queue drops the frame; an unknown handle is an error.
func (r *PeerRegistry) TrySend(handle uuid.UUID, ev PeerEvent) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	r.peersMu.Lock()
	p, ok := r.peers[handle]
	r.peersMu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	if !p.trySend(frame) {
		r.log.WithField("peer_id", handle).Error("peer send queue full, dropping frame")
	}
	return nil
}

// RemoveConnection removes the live socket and the playersToPeers entry for a
// player, leaving lobby membership untouched so the player can reconnect into
// the same lobby. The peer registry entry goes first so no new frame can be
// enqueued after the identity mapping disappears.
func (r *PeerRegistry) RemoveConnection(handle uuid.UUID, playerID string) {
	r.peersMu.Lock()
	delete(r.peers, handle)
	r.peersMu.Unlock()

	r.playersMu.Lock()
	delete(r.playersToPeers, playerID)
	r.playersMu.Unlock()

	r.log.WithFields(logrus.Fields{
		"peer_id": handle,
		"pubkey":  short(playerID),
	}).Info("removed connection for player, kept lobby membership")
}

// AnyConnected reports whether any identity in players, other than except,
// still has a live socket.
func (r *PeerRegistry) AnyConnected(players map[string]struct{}, except string) bool {
	r.playersMu.RLock()
	defer r.playersMu.RUnlock()
	for playerID := range players {
		if playerID == except {
			continue
		}
		if _, ok := r.playersToPeers[playerID]; ok {
			return true
		}
	}
	return false
}

func short(pubkey string) string {
	if len(pubkey) > 8 {
		return pubkey[:8]
	}
	return pubkey
}
