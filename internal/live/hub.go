// Package live pushes committed bulletin events to connected clients.
//
// A connection is admitted once: the gate turns its credential into a
// principal, the scope resolver turns the principal into agencies, and the
// connection joins one room per agency. Publishing an event sends it to every
// connection in any room named by the event's authorization set, each
// connection at most once.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"apb/internal/bulletin/models"
	identity "apb/internal/identity/models"
	"apb/internal/scope"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

const (
	DefaultQueueSize        = 64
	DefaultAdmissionTimeout = 10 * time.Second
)

// ErrConnectionClosed is returned by Admit when the connection closed before
// it could be registered.
var ErrConnectionClosed = errors.New("live: connection closed")

// Gate authenticates a credential.
type Gate interface {
	Admit(ctx context.Context, credential string) (identity.Principal, error)
}

// ScopeResolver decides which rooms an admitted principal joins.
type ScopeResolver interface {
	ScopesFor(ctx context.Context, principal identity.Principal) (scope.Set, error)
}

type Hub struct {
	gate             Gate
	scopes           ScopeResolver
	logger           *slog.Logger
	metrics          *Metrics
	queueSize        int
	admissionTimeout time.Duration

	mu    sync.RWMutex
	rooms map[id.AgencyID]map[id.ConnectionID]*Conn
	conns map[id.ConnectionID]*Conn
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithQueueSize bounds the frames buffered per connection before it is
// treated as a slow consumer.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithAdmissionTimeout bounds how long a connection may stay unadmitted.
func WithAdmissionTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.admissionTimeout = d
		}
	}
}

func NewHub(gate Gate, scopes ScopeResolver, opts ...Option) *Hub {
	h := &Hub{
		gate:             gate,
		scopes:           scopes,
		logger:           slog.Default(),
		queueSize:        DefaultQueueSize,
		admissionTimeout: DefaultAdmissionTimeout,
		rooms:            make(map[id.AgencyID]map[id.ConnectionID]*Conn),
		conns:            make(map[id.ConnectionID]*Conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AdmissionTimeout is how long a new connection has to present a credential.
func (h *Hub) AdmissionTimeout() time.Duration { return h.admissionTimeout }

// Connect registers a new connection in the Connecting state. It is closed
// with ReasonAdmissionTimeout unless admitted in time.
func (h *Hub) Connect() *Conn {
	c := newConn(h.queueSize, h.remove)

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	timer := time.AfterFunc(h.admissionTimeout, func() {
		if c.State() == StateConnecting {
			h.metrics.admission("timeout")
			h.logger.Info("live connection admission timed out", "connection_id", c.id.String())
			c.Close(ReasonAdmissionTimeout)
		}
	})
	c.mu.Lock()
	c.deadline = timer
	c.mu.Unlock()
	return c
}

// Admit authenticates credential and registers c into the room of every
// agency its principal is scoped to. A rejected connection is closed and
// never joins a room.
func (h *Hub) Admit(ctx context.Context, c *Conn, credential string) (identity.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, h.admissionTimeout)
	defer cancel()

	principal, err := h.gate.Admit(ctx, credential)
	if err != nil {
		h.reject(ctx, c, err)
		return identity.Principal{}, err
	}
	scopes, err := h.scopes.ScopesFor(ctx, principal)
	if err != nil {
		h.reject(ctx, c, err)
		return identity.Principal{}, err
	}

	if !h.register(c, principal, scopes) {
		h.metrics.admission("closed")
		return identity.Principal{}, ErrConnectionClosed
	}
	h.metrics.admission("admitted")
	h.metrics.connected()
	h.logger.InfoContext(ctx, "live connection admitted",
		"connection_id", c.id.String(),
		"user_id", principal.UserID.String(),
		"rooms", scopes.Len(),
	)
	return principal, nil
}

func (h *Hub) reject(ctx context.Context, c *Conn, err error) {
	reason := ReasonAuthFailed
	outcome := "rejected"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ReasonAdmissionTimeout
		outcome = "timeout"
	}
	h.metrics.admission(outcome)
	h.logger.InfoContext(ctx, "live connection rejected",
		"connection_id", c.id.String(),
		"code", string(dErrors.CodeOf(err)),
	)
	c.Close(reason)
}

// register admits c and adds it to its rooms as one step, so a concurrent
// Close either prevents admission or runs remove after the rooms are filled.
func (h *Hub) register(c *Conn, principal identity.Principal, scopes scope.Set) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.admit(principal, scopes) {
		return false
	}
	for _, agencyID := range scopes.IDs() {
		room, ok := h.rooms[agencyID]
		if !ok {
			room = make(map[id.ConnectionID]*Conn)
			h.rooms[agencyID] = room
		}
		room[c.id] = c
	}
	return true
}

// remove runs once per connection, from Close.
func (h *Hub) remove(c *Conn) {
	scopes := c.Scopes()

	h.mu.Lock()
	_, registered := h.conns[c.id]
	delete(h.conns, c.id)
	admitted := false
	for _, agencyID := range scopes.IDs() {
		room, ok := h.rooms[agencyID]
		if !ok {
			continue
		}
		if _, ok := room[c.id]; ok {
			admitted = true
			delete(room, c.id)
		}
		if len(room) == 0 {
			delete(h.rooms, agencyID)
		}
	}
	h.mu.Unlock()

	if admitted {
		h.metrics.disconnected()
	}
	if registered {
		h.logger.Info("live connection closed",
			"connection_id", c.id.String(),
			"reason", string(c.CloseReason()),
		)
	}
}

// Publish delivers evt to every connection in the rooms of its authorization
// set. It never blocks on a connection: one whose queue is full is closed as
// a slow consumer and the rest still receive the event.
func (h *Hub) Publish(ctx context.Context, evt models.Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode live event",
			"event_type", string(evt.Type),
			"bulletin_id", evt.RecordID.String(),
			"error", err,
		)
		return
	}

	targets := h.recipients(evt.AuthorizationSet)
	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		h.metrics.slowConsumer()
		h.logger.WarnContext(ctx, "closing slow live connection",
			"connection_id", c.id.String(),
			"bulletin_id", evt.RecordID.String(),
		)
		c.Close(ReasonSlowConsumer)
	}
	h.metrics.delivered(delivered)
}

// recipients is the union of the rooms named by agencies, each connection
// once.
func (h *Hub) recipients(agencies []id.AgencyID) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[id.ConnectionID]struct{})
	var out []*Conn
	for _, agencyID := range agencies {
		for connID, c := range h.rooms[agencyID] {
			if _, ok := seen[connID]; ok {
				continue
			}
			seen[connID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// RoomSize is the number of connections registered for agencyID.
func (h *Hub) RoomSize(agencyID id.AgencyID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[agencyID])
}

// ConnectionCount counts open connections, admitted or not.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every open connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	open := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		open = append(open, c)
	}
	h.mu.RUnlock()

	for _, c := range open {
		c.Close(ReasonShutdown)
	}
}
