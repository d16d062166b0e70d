package live

import (
	"sync"
	"time"

	identity "apb/internal/identity/models"
	"apb/internal/scope"
	id "apb/pkg/domain"
)

// State is where a connection is in its lifecycle. The only transitions are
// Connecting to Admitted, and either of those to Closed.
type State int32

const (
	StateConnecting State = iota
	StateAdmitted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAdmitted:
		return "admitted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason records why a connection closed.
type CloseReason string

const (
	ReasonClientGone       CloseReason = "client_disconnected"
	ReasonAuthFailed       CloseReason = "authentication_failed"
	ReasonAdmissionTimeout CloseReason = "admission_timeout"
	ReasonSlowConsumer     CloseReason = "slow_consumer"
	ReasonWriteFailed      CloseReason = "write_failed"
	ReasonShutdown         CloseReason = "shutdown"
)

// Conn is one live connection as the hub sees it, independent of transport.
// Transports drain Outbound and stop when Done is closed.
type Conn struct {
	id    id.ConnectionID
	queue chan []byte
	done  chan struct{}

	mu        sync.Mutex
	state     State
	principal identity.Principal
	scopes    scope.Set
	reason    CloseReason
	closeOnce sync.Once
	onClose   func(*Conn)
	deadline  *time.Timer
}

func newConn(queueSize int, onClose func(*Conn)) *Conn {
	return &Conn{
		id:      id.NewConnectionID(),
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
		state:   StateConnecting,
		onClose: onClose,
	}
}

func (c *Conn) ID() id.ConnectionID { return c.id }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Principal is the admitted principal; zero before admission.
func (c *Conn) Principal() identity.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

// Scopes are the rooms the connection was registered into at admission.
// They never change afterwards.
func (c *Conn) Scopes() scope.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopes
}

// CloseReason is empty until the connection closes.
func (c *Conn) CloseReason() CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Outbound yields encoded frames in delivery order.
func (c *Conn) Outbound() <-chan []byte { return c.queue }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// admit moves Connecting to Admitted. It fails if the connection already
// closed or was admitted before.
func (c *Conn) admit(p identity.Principal, scopes scope.Set) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateAdmitted
	c.principal = p
	c.scopes = scopes
	if c.deadline != nil {
		c.deadline.Stop()
	}
	return true
}

// enqueue hands a frame to the transport without blocking. It returns false
// only when an open connection's queue is full.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

// Close moves the connection to Closed and removes it from every room. It is
// safe to call any number of times from any goroutine; only the first call
// has an effect.
func (c *Conn) Close(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.reason = reason
		if c.deadline != nil {
			c.deadline.Stop()
		}
		c.mu.Unlock()
		close(c.done)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
