// Package hub tracks live WebSocket connections, their authentication
// state, and their poll subscriptions, and fans out poll updates to
// subscribers. A single goroutine owns all state and processes a command
// channel; transport writes happen on per-connection writer goroutines so
// one stalled client never blocks the hub.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pollstream/pollstream/internal/auth"
	"github.com/pollstream/pollstream/internal/metrics"
)

const (
	commandTimeout   = 5 * time.Second
	authTimeout      = 5 * time.Second
	stopTimeout      = 10 * time.Second
	commandQueueSize = 256
)

// ErrHubBusy is returned when a synchronous command times out because the
// hub goroutine is stuck or overloaded.
var ErrHubBusy = errors.New("hub command timed out")

// ErrHubStopped is returned by synchronous commands once the hub has shut
// down.
var ErrHubStopped = errors.New("hub stopped")

// Options configures hub limits and the liveness sweep.
type Options struct {
	// MaxConnections rejects registrations at capacity.
	MaxConnections int
	// SweepInterval is the liveness sweep period.
	SweepInterval time.Duration
	// InactivityTimeout is the silence threshold beyond which the sweep
	// evicts a connection.
	InactivityTimeout time.Duration
}

// PublishResult reports fan-out outcome counts for observability. Failed
// sends never fail the publish itself.
type PublishResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Stats is the aggregate registry snapshot returned to getStats frames.
type Stats struct {
	TotalClients          int       `json:"totalClients"`
	AuthenticatedClients  int       `json:"authenticatedClients"`
	ActiveClients         int       `json:"activeClients"`
	TotalSubscriptions    int       `json:"totalSubscriptions"`
	ActivePolls           int       `json:"activePolls"`
	AverageConnectionTime float64   `json:"averageConnectionTime"`
	Timestamp             time.Time `json:"timestamp"`
}

// hubCmd is the command interface for the hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	remoteAddr   string
	userAgent    string
	replyChannel chan registerReply
}

type registerReply struct {
	id  uuid.UUID
	err error
}

type unregisterCmd struct {
	baseHubCmd
	id uuid.UUID
}

type frameCmd struct {
	baseHubCmd
	id   uuid.UUID
	data []byte
}

type touchCmd struct {
	baseHubCmd
	id uuid.UUID
}

type authResultCmd struct {
	baseHubCmd
	id     uuid.UUID
	userID string
	err    error
}

type publishCmd struct {
	baseHubCmd
	pollID       string
	payload      json.RawMessage
	replyChannel chan PublishResult
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type statsCmd struct {
	baseHubCmd
	replyChannel chan Stats
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns the connection registry and the subscription index.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	verifier auth.TokenVerifier
	opts     Options

	registry *registry
	subs     *subscriptionIndex

	done chan struct{}
}

// New creates a hub and starts its goroutine.
func New(verifier auth.TokenVerifier, clock clockwork.Clock, opts Options) *Hub {
	h := &Hub{
		cmdCh:    make(chan hubCmd, commandQueueSize),
		clock:    clock,
		verifier: verifier,
		opts:     opts,
		registry: newRegistry(),
		subs:     newSubscriptionIndex(),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// --- Public API ---

// post enqueues a command, reporting false once the hub has stopped.
// Without the done guard a caller racing shutdown would block forever on
// a full channel nobody drains.
func (h *Hub) post(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a connection to the registry and greets it with a
// connected frame. Returns the assigned connection id. At capacity the
// connection is closed and an error returned.
func (h *Hub) Register(conn *websocket.Conn, remoteAddr, userAgent string) (uuid.UUID, error) {
	replyCh := make(chan registerReply, 1)
	if !h.post(registerCmd{connection: conn, remoteAddr: remoteAddr, userAgent: userAgent, replyChannel: replyCh}) {
		_ = conn.Close()
		return uuid.Nil, fmt.Errorf("register: %w", ErrHubStopped)
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.id, reply.err
	case <-h.done:
		return uuid.Nil, fmt.Errorf("register: %w", ErrHubStopped)
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register: %w", ErrHubBusy)
	}
}

// Unregister removes a connection after its read pump ends. Idempotent.
func (h *Hub) Unregister(id uuid.UUID) {
	h.post(unregisterCmd{id: id})
}

// HandleFrame routes one inbound client frame.
func (h *Hub) HandleFrame(id uuid.UUID, data []byte) {
	h.post(frameCmd{id: id, data: data})
}

// Touch refreshes a connection's liveness timestamp. Called from the
// transport pong handler.
func (h *Hub) Touch(id uuid.UUID) {
	h.post(touchCmd{id: id})
}

// Publish fans a payload out to every subscriber of the poll. Individual
// subscriber failures are self-healed, counted, and never returned; the
// only errors are invalid arguments or a stuck hub.
func (h *Hub) Publish(pollID string, payload json.RawMessage) (PublishResult, error) {
	if pollID == "" {
		return PublishResult{}, errors.New("pollID must not be empty")
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return PublishResult{}, errors.New("payload must be valid JSON")
	}

	replyCh := make(chan PublishResult, 1)
	if !h.post(publishCmd{pollID: pollID, payload: payload, replyChannel: replyCh}) {
		return PublishResult{}, fmt.Errorf("publish: %w", ErrHubStopped)
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case result := <-replyCh:
		return result, nil
	case <-h.done:
		return PublishResult{}, fmt.Errorf("publish: %w", ErrHubStopped)
	case <-timer.Chan():
		return PublishResult{}, fmt.Errorf("publish: %w", ErrHubBusy)
	}
}

// ClientCount returns the number of live connections, or -1 on timeout.
// Doubles as a responsiveness probe for readiness checks.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if !h.post(clientCountCmd{replyChannel: replyCh}) {
		return -1
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return -1
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stats returns the aggregate registry snapshot.
func (h *Hub) Stats() (Stats, error) {
	replyCh := make(chan Stats, 1)
	if !h.post(statsCmd{replyChannel: replyCh}) {
		return Stats{}, fmt.Errorf("stats: %w", ErrHubStopped)
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case stats := <-replyCh:
		return stats, nil
	case <-h.done:
		return Stats{}, fmt.Errorf("stats: %w", ErrHubStopped)
	case <-timer.Chan():
		return Stats{}, fmt.Errorf("stats: %w", ErrHubBusy)
	}
}

// Stop closes every client connection and shuts the hub down. Blocks
// until the hub goroutine has exited or the stop timeout is reached.
// Idempotent.
func (h *Hub) Stop() {
	if !h.post(stopCmd{}) {
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
	}
}

// --- Actor loop ---

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("hub failure")
		}
	}()

	sweepTicker := h.clock.NewTicker(h.opts.SweepInterval)
	defer sweepTicker.Stop()
	defer close(h.done)

	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > commandQueueSize*4/5 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case <-sweepTicker.Chan():
			h.handleSweep()

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.id)
			case frameCmd:
				h.handleFrame(c)
			case touchCmd:
				h.handleTouch(c.id)
			case authResultCmd:
				h.handleAuthResult(c)
			case publishCmd:
				c.replyChannel <- h.handlePublish(c.pollID, c.payload)
			case clientCountCmd:
				c.replyChannel <- h.registry.len()
			case statsCmd:
				c.replyChannel <- h.computeStats()
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

// --- Connection lifecycle ---

func (h *Hub) handleRegister(c registerCmd) {
	if h.registry.len() >= h.opts.MaxConnections {
		slog.Warn("Rejecting connection: max connections reached", "max_connections", h.opts.MaxConnections, "remote_addr", c.remoteAddr)
		metrics.HubRejectedConnections.Inc()
		_ = c.connection.Close()
		c.replyChannel <- registerReply{err: fmt.Errorf("max connections (%d) reached", h.opts.MaxConnections)}
		return
	}

	id := uuid.New()
	now := h.clock.Now()
	conn := &connection{
		id:          id,
		remoteAddr:  c.remoteAddr,
		userAgent:   c.userAgent,
		connectedAt: now,
		lastSeen:    now,
		writer:      newClientWriter(c.connection, h.clock, func() { h.Touch(id) }),
	}
	h.registry.add(conn)
	h.updateGauges()

	h.send(conn, newConnectedFrame(id.String()))

	slog.Debug("Client registered", "client_id", id.String(), "remote_addr", c.remoteAddr, "total_clients", h.registry.len())
	c.replyChannel <- registerReply{id: id}
}

func (h *Hub) handleUnregister(id uuid.UUID) {
	conn := h.registry.get(id)
	if conn == nil {
		return
	}

	conn.writer.stop()
	h.registry.remove(id)
	h.subs.unsubscribeAll(id)
	h.updateGauges()

	slog.Debug("Client unregistered", "client_id", id.String(), "remaining_clients", h.registry.len())
}

// evict removes a connection the hub decided is dead or overdue,
// sending a close frame with the given reason when graceful.
func (h *Hub) evict(id uuid.UUID, reason string, graceful bool) {
	conn := h.registry.get(id)
	if conn == nil {
		return
	}

	if graceful {
		conn.writer.stopGraceful(reason)
	} else {
		conn.writer.stop()
	}
	h.registry.remove(id)
	h.subs.unsubscribeAll(id)
	h.updateGauges()
}

func (h *Hub) handleTouch(id uuid.UUID) {
	if conn := h.registry.get(id); conn != nil {
		conn.lastSeen = h.clock.Now()
	}
}

// --- Message routing ---

func (h *Hub) handleFrame(c frameCmd) {
	conn := h.registry.get(c.id)
	if conn == nil {
		return
	}

	// Any inbound frame is evidence of liveness, parseable or not.
	conn.lastSeen = h.clock.Now()

	frame, err := parseFrame(c.data)
	if err != nil {
		metrics.HubFramesTotal.WithLabelValues("malformed").Inc()
		h.send(conn, newErrorFrame("Invalid message format"))
		return
	}

	metrics.HubFramesTotal.WithLabelValues(frame.Type.label()).Inc()

	switch frame.Type {
	case kindAuthenticate:
		h.handleAuthenticate(conn, frame.Token)
	case kindSubscribe:
		h.handleSubscribe(conn, frame.PollID)
	case kindUnsubscribe:
		h.handleUnsubscribe(conn, frame.PollID)
	case kindPing:
		h.send(conn, newPongFrame(h.clock.Now()))
	case kindGetStats:
		h.handleGetStats(conn)
	default:
		h.send(conn, newErrorFrame(fmt.Sprintf("Unknown message type: %s", frame.Type)))
	}
}

func (h *Hub) handleAuthenticate(conn *connection, token string) {
	if token == "" {
		h.send(conn, newAuthErrorFrame("Missing token"))
		return
	}
	if conn.authenticated {
		// One-way latch: repeat authentication confirms the current subject.
		h.send(conn, newAuthenticatedFrame(conn.userID))
		return
	}
	if conn.authPending {
		h.send(conn, newErrorFrame("Authentication already in progress"))
		return
	}

	conn.authPending = true
	id := conn.id

	// The verifier may block on a backend; run it off the hub goroutine
	// and feed the outcome back as a command. A result arriving after
	// shutdown is dropped.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()

		userID, err := h.verifier.Verify(ctx, token)
		h.post(authResultCmd{id: id, userID: userID, err: err})
	}()
}

func (h *Hub) handleAuthResult(c authResultCmd) {
	conn := h.registry.get(c.id)
	if conn == nil {
		return
	}
	conn.authPending = false

	if c.err != nil {
		if errors.Is(c.err, auth.ErrInvalidToken) {
			slog.Info("Authentication rejected", "client_id", c.id.String())
			h.send(conn, newAuthErrorFrame("Invalid or expired token"))
		} else {
			slog.Error("Credential verification failed", "client_id", c.id.String(), "error", c.err)
			h.send(conn, newAuthErrorFrame("Authentication service unavailable"))
		}
		return
	}

	conn.authenticated = true
	conn.userID = c.userID
	h.updateGauges()

	slog.Info("Client authenticated", "client_id", c.id.String(), "user_id", c.userID)
	h.send(conn, newAuthenticatedFrame(c.userID))
}

func (h *Hub) handleSubscribe(conn *connection, pollID string) {
	if !conn.authenticated {
		h.send(conn, newErrorFrame("Authentication required to subscribe to polls"))
		return
	}
	if pollID == "" {
		h.send(conn, newErrorFrame("Missing pollId"))
		return
	}

	h.subs.subscribe(conn.id, pollID)
	h.updateGauges()

	slog.Debug("Client subscribed", "client_id", conn.id.String(), "poll_id", pollID)
	h.send(conn, newSubscribedFrame(pollID))
}

func (h *Hub) handleUnsubscribe(conn *connection, pollID string) {
	if pollID == "" {
		h.send(conn, newErrorFrame("Missing pollId"))
		return
	}

	h.subs.unsubscribe(conn.id, pollID)
	h.updateGauges()

	h.send(conn, newUnsubscribedFrame(pollID))
}

func (h *Hub) handleGetStats(conn *connection) {
	if !conn.authenticated {
		h.send(conn, newErrorFrame("Authentication required"))
		return
	}
	h.send(conn, newStatsFrame(h.computeStats()))
}

// --- Broadcast engine ---

func (h *Hub) handlePublish(pollID string, payload json.RawMessage) PublishResult {
	metrics.HubPublishesTotal.Inc()

	subscribers := h.subs.subscribersOf(pollID)
	if len(subscribers) == 0 {
		return PublishResult{}
	}

	data := marshalFrame(newPollUpdateFrame(pollID, payload, h.clock.Now()))
	if data == nil {
		return PublishResult{Failed: len(subscribers)}
	}

	var result PublishResult
	for _, id := range subscribers {
		conn := h.registry.get(id)
		if conn == nil {
			// Index invariant violation; heal the index and keep going.
			h.subs.unsubscribeAll(id)
			result.Failed++
			continue
		}
		if err := conn.writer.enqueue(data); err != nil {
			// A dead or hopelessly slow subscriber: remove it rather
			// than letting the sweep find it later.
			slog.Warn("Send failed, evicting connection", "client_id", id.String(), "poll_id", pollID, "error", err)
			metrics.HubSendFailures.Inc()
			h.evict(id, "send failure", false)
			result.Failed++
			continue
		}
		result.Delivered++
	}

	metrics.HubMessagesDelivered.Add(float64(result.Delivered))
	return result
}

// --- Liveness sweep ---

func (h *Hub) handleSweep() {
	now := h.clock.Now()
	var expired []uuid.UUID
	for id, conn := range h.registry.conns {
		if now.Sub(conn.lastSeen) > h.opts.InactivityTimeout {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		slog.Info("Evicting inactive connection", "client_id", id.String(), "inactivity_timeout", h.opts.InactivityTimeout)
		metrics.HubSweeperEvictions.Inc()
		h.evict(id, "inactivity timeout", true)
	}
}

// --- Shutdown ---

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", h.registry.len())
	h.closeAllClients("Server shutting down")
}

func (h *Hub) closeAllClients(reason string) {
	for id, conn := range h.registry.conns {
		conn.writer.stopGraceful(reason)
		h.registry.remove(id)
		h.subs.unsubscribeAll(id)
	}
	h.updateGauges()
}

// --- Stats ---

func (h *Hub) computeStats() Stats {
	now := h.clock.Now()

	active := 0
	var totalAge time.Duration
	for _, conn := range h.registry.conns {
		if now.Sub(conn.lastSeen) <= h.opts.InactivityTimeout {
			active++
		}
		totalAge += now.Sub(conn.connectedAt)
	}

	avgSeconds := 0.0
	if n := h.registry.len(); n > 0 {
		avgSeconds = totalAge.Seconds() / float64(n)
	}

	return Stats{
		TotalClients:          h.registry.len(),
		AuthenticatedClients:  h.registry.authenticatedCount(),
		ActiveClients:         active,
		TotalSubscriptions:    h.subs.subscriptionCount(),
		ActivePolls:           h.subs.pollCount(),
		AverageConnectionTime: avgSeconds,
		Timestamp:             now,
	}
}

// send enqueues an outbound frame, self-healing on failure like publish.
func (h *Hub) send(conn *connection, frame any) {
	data := marshalFrame(frame)
	if data == nil {
		return
	}
	if err := conn.writer.enqueue(data); err != nil {
		slog.Warn("Send failed, evicting connection", "client_id", conn.id.String(), "error", err)
		metrics.HubSendFailures.Inc()
		h.evict(conn.id, "send failure", false)
	}
}

func (h *Hub) updateGauges() {
	metrics.HubConnectedClients.Set(float64(h.registry.len()))
	metrics.HubAuthenticatedClients.Set(float64(h.registry.authenticatedCount()))
	metrics.HubActivePolls.Set(float64(h.subs.pollCount()))
	metrics.HubSubscriptions.Set(float64(h.subs.subscriptionCount()))
}
