package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// frameKind is the closed set of inbound frame types. Routing switches on
// it exhaustively; anything outside the set is answered with an error
// frame and touches no state.
type frameKind string

const (
	kindAuthenticate frameKind = "authenticate"
	kindSubscribe    frameKind = "subscribe"
	kindUnsubscribe  frameKind = "unsubscribe"
	kindPing         frameKind = "ping"
	kindGetStats     frameKind = "getStats"
)

// label returns the metric label for the kind. Anything outside the
// closed set collapses to "unknown" so client-supplied type strings
// cannot mint new time series.
func (k frameKind) label() string {
	switch k {
	case kindAuthenticate, kindSubscribe, kindUnsubscribe, kindPing, kindGetStats:
		return string(k)
	default:
		return "unknown"
	}
}

// inboundFrame is the superset of fields a client frame may carry.
type inboundFrame struct {
	Type   frameKind `json:"type"`
	Token  string    `json:"token,omitempty"`
	PollID string    `json:"pollId,omitempty"`
}

var errMissingType = errors.New("frame missing type field")

func parseFrame(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if f.Type == "" {
		return inboundFrame{}, errMissingType
	}
	return f, nil
}

// Outbound frame shapes. Timestamps marshal as RFC 3339.

type connectedFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

type authenticatedFrame struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type authErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type subscribedFrame struct {
	Type    string `json:"type"`
	PollID  string `json:"pollId"`
	Message string `json:"message"`
}

type unsubscribedFrame struct {
	Type    string `json:"type"`
	PollID  string `json:"pollId"`
	Message string `json:"message"`
}

type pollUpdateFrame struct {
	Type      string          `json:"type"`
	PollID    string          `json:"pollId"`
	Poll      json.RawMessage `json:"poll"`
	Timestamp time.Time       `json:"timestamp"`
}

type pongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type statsFrame struct {
	Type string `json:"type"`
	Data Stats  `json:"data"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newConnectedFrame(clientID string) connectedFrame {
	return connectedFrame{Type: "connected", ClientID: clientID, Message: "Connected to poll update stream"}
}

func newAuthenticatedFrame(userID string) authenticatedFrame {
	return authenticatedFrame{Type: "authenticated", UserID: userID, Message: "Authentication successful"}
}

func newAuthErrorFrame(reason string) authErrorFrame {
	return authErrorFrame{Type: "auth_error", Message: reason}
}

func newSubscribedFrame(pollID string) subscribedFrame {
	return subscribedFrame{Type: "subscribed", PollID: pollID, Message: "Subscribed to poll updates"}
}

func newUnsubscribedFrame(pollID string) unsubscribedFrame {
	return unsubscribedFrame{Type: "unsubscribed", PollID: pollID, Message: "Unsubscribed from poll updates"}
}

func newPollUpdateFrame(pollID string, payload json.RawMessage, now time.Time) pollUpdateFrame {
	return pollUpdateFrame{Type: "pollUpdate", PollID: pollID, Poll: payload, Timestamp: now}
}

func newPongFrame(now time.Time) pongFrame {
	return pongFrame{Type: "pong", Timestamp: now}
}

func newStatsFrame(stats Stats) statsFrame {
	return statsFrame{Type: "stats", Data: stats}
}

func newErrorFrame(reason string) errorFrame {
	return errorFrame{Type: "error", Message: reason}
}

// marshalFrame encodes an outbound frame. Frames are plain structs, so a
// marshal failure is a programming error; it is logged and yields nil.
func marshalFrame(frame any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal outbound frame", "frame", fmt.Sprintf("%T", frame), "error", err)
		return nil
	}
	return data
}
