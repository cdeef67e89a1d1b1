// internal/signal/protocol.go
package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// The wire protocol is the matchbox text-JSON layout: externally tagged
// unions, with unit variants encoded as bare strings. The server never
// interprets the Data payload; it is relayed verbatim.

// SignalPayload is the body of a server-to-client Signal event.
type SignalPayload struct {
	Sender uuid.UUID       `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

// PeerEvent is a server-to-client frame. Exactly one field is set.
type PeerEvent struct {
	IDAssigned *uuid.UUID     `json:"IdAssigned,omitempty"`
	NewPeer    *uuid.UUID     `json:"NewPeer,omitempty"`
	PeerLeft   *uuid.UUID     `json:"PeerLeft,omitempty"`
	Signal     *SignalPayload `json:"Signal,omitempty"`
}

// EventIDAssigned tells a freshly connected peer its own handle.
func EventIDAssigned(id uuid.UUID) PeerEvent { return PeerEvent{IDAssigned: &id} }

// EventNewPeer announces a newly enrolled peer to the rest of its lobby.
func EventNewPeer(id uuid.UUID) PeerEvent { return PeerEvent{NewPeer: &id} }

// EventPeerLeft announces a disconnected peer to the rest of its lobby.
func EventPeerLeft(id uuid.UUID) PeerEvent { return PeerEvent{PeerLeft: &id} }

// EventSignal wraps a relayed signaling blob with its sender's handle.
func EventSignal(sender uuid.UUID, data json.RawMessage) PeerEvent {
	return PeerEvent{Signal: &SignalPayload{Sender: sender, Data: data}}
}

// SignalRequest is the body of a client-to-server Signal frame.
type SignalRequest struct {
	Receiver uuid.UUID       `json:"receiver"`
	Data     json.RawMessage `json:"data"`
}

// PeerRequest is a parsed client frame: either a directed Signal or a
// KeepAlive.
type PeerRequest struct {
	Signal    *SignalRequest
	KeepAlive bool
}

// ParseRequest decodes a client text frame. KeepAlive arrives as the bare JSON
// string "KeepAlive"; Signal as {"Signal": {"receiver": ..., "data": ...}}.
// All parsers here are total: malformed input yields an error, never a panic.
func ParseRequest(data []byte) (PeerRequest, error) {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		if unit == "KeepAlive" {
			return PeerRequest{KeepAlive: true}, nil
		}
		return PeerRequest{}, fmt.Errorf("unsupported request %q", unit)
	}

	var tagged struct {
		Signal *SignalRequest `json:"Signal"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return PeerRequest{}, err
	}
	if tagged.Signal == nil {
		return PeerRequest{}, errors.New("unsupported request type")
	}
	return PeerRequest{Signal: tagged.Signal}, nil
}
