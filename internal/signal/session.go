// internal/signal/session.go
package signal

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openlobby/signalserver/internal/registry"
)

// Server runs one signaling session per accepted socket. A session correlates
// the socket with its pre-registered identity, enrolls it into its lobby's
// broadcast set, relays directed signaling frames, and tears down connection
// state on exit without evicting lobby membership.
type Server struct {
	Registry *registry.Registry
	Peers    *PeerRegistry
	Log      *logrus.Logger
}

// Run drives the session state machine for one socket. The caller has already
// authorized the upgrade and recorded the identity under clientAddr in the
// waiting table. Run blocks until the socket closes.
func (s *Server) Run(ctx context.Context, c *websocket.Conn, clientAddr string) {
	handle := uuid.New()
	if !s.Peers.Assign(clientAddr, handle) {
		c.Close(websocket.StatusPolicyViolation, "unknown connection")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	peer := newPeer(handle)
	s.Peers.AddPeer(peer)
	go s.writePump(ctx, c, peer)

	// The first frame a client sees is always its own handle.
	if err := s.Peers.TrySend(handle, EventIDAssigned(handle)); err != nil {
		s.Log.WithField("peer_id", handle).Errorf("failed to queue IdAssigned: %v", err)
	}

	// Correlation: recover the identity behind this handle, then its lobby.
	// Either lookup failing terminates the session without further effects.
	playerID, ok := s.Peers.PlayerForPeer(handle)
	if !ok {
		s.Log.WithField("peer_id", handle).Error("no player id found for peer")
		s.Peers.RemoveConnection(handle, "")
		c.Close(websocket.StatusPolicyViolation, "unknown peer")
		return
	}
	lobbyID, ok := s.Registry.LobbyFor(playerID)
	if !ok {
		s.Log.WithField("pubkey", short(playerID)).Error("no lobby found for connected player")
		s.Peers.RemoveConnection(handle, playerID)
		c.Close(websocket.StatusPolicyViolation, "not in a lobby")
		return
	}
	s.Log.WithFields(logrus.Fields{
		"peer_id":  handle,
		"pubkey":   short(playerID),
		"lobby_id": lobbyID,
	}).Info("peer enrolled in lobby")

	// Enrollment: the owner's arrival starts the lobby, then the rest of the
	// lobby learns about the new peer. The handle is already in
	// playersToPeers, so anyone who sees NewPeer can signal back immediately.
	if lobby, ok := s.Registry.Get(lobbyID); ok && lobby.Owner == playerID && lobby.Status == registry.StatusWaiting {
		if err := s.Registry.Start(lobbyID, playerID); err != nil {
			s.Log.WithField("lobby_id", lobbyID).Warnf("owner start failed: %v", err)
		}
	}
	s.broadcast(lobbyID, playerID, EventNewPeer(handle))

	s.relay(ctx, c, handle)

	// Draining: connection-only removal, in teardown order. The peer leaves
	// the registry and playersToPeers before the end-of-lobby check and the
	// PeerLeft broadcast, so no one can observe PeerLeft and then receive a
	// late Signal from this handle. Lobby membership stays intact.
	s.Peers.RemoveConnection(handle, playerID)
	if lobby, ok := s.Registry.Get(lobbyID); ok {
		if !s.Peers.AnyConnected(lobby.Players, playerID) {
			if err := s.Registry.End(lobbyID); err != nil {
				s.Log.WithField("lobby_id", lobbyID).Warnf("end lobby failed: %v", err)
			}
		}
	}
	s.broadcast(lobbyID, playerID, EventPeerLeft(handle))
	c.Close(websocket.StatusNormalClosure, "")
}

// relay reads client frames and dispatches them until the transport closes.
// Parse failures are logged and skipped; only transport errors and close
// frames end the loop.
func (s *Server) relay(ctx context.Context, c *websocket.Conn, handle uuid.UUID) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.Log.WithField("peer_id", handle).Info("connection closed by peer")
			} else {
				s.Log.WithField("peer_id", handle).Warnf("unrecoverable read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.Log.WithField("peer_id", handle).Warnf("ignoring non-text message type %d", typ)
			continue
		}

		req, err := ParseRequest(data)
		if err != nil {
			s.Log.WithField("peer_id", handle).Warnf("bad request frame: %v", err)
			continue
		}

		switch {
		case req.Signal != nil:
			ev := EventSignal(handle, req.Signal.Data)
			if err := s.Peers.TrySend(req.Signal.Receiver, ev); err != nil {
				s.Log.WithFields(logrus.Fields{
					"peer_id":  handle,
					"receiver": req.Signal.Receiver,
				}).Errorf("relay failed: %v", err)
			}
		case req.KeepAlive:
			// No action.
		}
	}
}

// broadcast fans an event out to every other member of the lobby that
// currently has a live socket. Sends are best-effort.
func (s *Server) broadcast(lobbyID uuid.UUID, except string, ev PeerEvent) {
	lobby, ok := s.Registry.Get(lobbyID)
	if !ok {
		return
	}
	for playerID := range lobby.Players {
		if playerID == except {
			continue
		}
		target, ok := s.Peers.PeerForPlayer(playerID)
		if !ok {
			continue
		}
		if err := s.Peers.TrySend(target, ev); err != nil {
			s.Log.WithField("peer_id", target).Errorf("broadcast send failed: %v", err)
		}
	}
}

// writePump serializes all writes to the socket, draining the peer's outbound
// queue until the session context ends.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, peer *Peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-peer.out:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.Log.WithField("peer_id", peer.ID).Warnf("write failed: %v", err)
				return
			}
		}
	}
}
