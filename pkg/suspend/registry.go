package suspend

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/timer"
)

// DelayClient is a subsystem that must acknowledge readiness before suspend
// proceeds.
type DelayClient struct {
	ID          uuid.UUID     `json:"id"`
	Description string        `json:"description"`
	Timeout     time.Duration `json:"timeout"`

	acknowledged bool
}

// NegotiationResult is delivered exactly once per attempt.
type NegotiationResult struct {
	Sequence uint64
	// TimedOut is true when the deadline fired before all clients
	// acknowledged. This is a deliberate fallback, not an error.
	TimedOut bool
}

// DelayRegistry tracks registered delay clients and runs the readiness
// negotiation for one suspend attempt at a time. All acknowledgment paths
// funnel through Ack; stale or unknown acknowledgments are logged and
// dropped.
type DelayRegistry struct {
	ceiling  time.Duration
	deadline timer.Alarm

	mu          sync.Mutex
	clients     map[uuid.UUID]*DelayClient
	seq         uint64
	active      bool
	outstanding int
	pending     map[uuid.UUID]struct{}
	ready       chan NegotiationResult
	stopWait    chan struct{}
}

// NewDelayRegistry creates a registry. ceiling is the hard upper bound on
// any negotiation, regardless of client timeouts.
func NewDelayRegistry(f timer.Factory, ceiling time.Duration) *DelayRegistry {
	return &DelayRegistry{
		ceiling:  ceiling,
		deadline: f.NewAlarm("suspend-delay-deadline"),
		clients:  make(map[uuid.UUID]*DelayClient),
	}
}

// Register adds a delay client and returns its ID. Registration while a
// negotiation is in flight is accepted but only honored by the next attempt;
// it never extends an in-flight deadline.
func (r *DelayRegistry) Register(description string, timeout time.Duration) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.clients[id] = &DelayClient{
		ID:          id,
		Description: description,
		Timeout:     timeout,
	}

	logrus.WithFields(logrus.Fields{
		"client":      id,
		"description": description,
		"timeout":     timeout.String(),
	}).Info("registered suspend delay client")

	return id
}

// Unregister removes a delay client, e.g. on explicit request or transport
// disconnect. A client that vanishes mid-negotiation no longer blocks it.
func (r *DelayRegistry) Unregister(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return false
	}
	delete(r.clients, id)

	logrus.WithFields(logrus.Fields{
		"client":      id,
		"description": c.Description,
	}).Info("unregistered suspend delay client")

	if _, part := r.pending[id]; r.active && part && !c.acknowledged {
		delete(r.pending, id)
		r.outstanding--
		if r.outstanding == 0 {
			r.signalLocked(false)
		}
	}
	return true
}

// Clients returns a snapshot of the registered clients.
func (r *DelayRegistry) Clients() []DelayClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DelayClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	return out
}

// BeginNegotiation starts a new attempt and returns it together with the
// channel the single readiness signal is delivered on. wakeupCount may be
// nil when the kernel count could not be read; the negotiation still
// proceeds. Any previous unfinished negotiation is canceled first.
func (r *DelayRegistry) BeginNegotiation(wakeupCount *uint64, requested time.Duration) (Attempt, <-chan NegotiationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		logrus.Warn("previous negotiation still in flight, canceling it")
		r.cancelLocked()
	}

	r.seq++
	r.pending = make(map[uuid.UUID]struct{}, len(r.clients))
	maxTimeout := time.Duration(0)
	for id, c := range r.clients {
		c.acknowledged = false
		r.pending[id] = struct{}{}
		if c.Timeout > maxTimeout {
			maxTimeout = c.Timeout
		}
	}
	r.outstanding = len(r.pending)
	r.ready = make(chan NegotiationResult, 1)
	r.active = true

	attempt := Attempt{
		Sequence:          r.seq,
		WakeupCount:       wakeupCount,
		RequestedDuration: requested,
	}

	logrus.WithFields(logrus.Fields{
		"sequence":    attempt.Sequence,
		"outstanding": r.outstanding,
		"requested":   requested.String(),
	}).Debug("suspend negotiation started")

	if r.outstanding == 0 {
		r.signalLocked(false)
		return attempt, r.ready
	}

	deadline := maxTimeout
	if deadline > r.ceiling || deadline <= 0 {
		deadline = r.ceiling
	}
	r.deadline.Start(deadline)
	r.stopWait = make(chan struct{})
	go r.waitDeadline(r.seq, r.stopWait)

	return attempt, r.ready
}

func (r *DelayRegistry) waitDeadline(seq uint64, stop chan struct{}) {
	select {
	case <-r.deadline.Fired():
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.active || r.seq != seq {
			return
		}
		logrus.WithFields(logrus.Fields{
			"sequence": seq,
			"unacked":  r.unackedLocked(),
		}).Info("suspend delay deadline reached, proceeding without remaining acknowledgments")
		r.signalLocked(true)
	case <-stop:
	}
}

func (r *DelayRegistry) unackedLocked() []string {
	var out []string
	for id := range r.pending {
		if c, ok := r.clients[id]; ok && !c.acknowledged {
			out = append(out, c.Description)
		}
	}
	return out
}

// Ack records a client acknowledgment for the given attempt sequence.
// Out-of-sequence or unknown acknowledgments are dropped.
func (r *DelayRegistry) Ack(id uuid.UUID, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || seq != r.seq {
		logrus.WithFields(logrus.Fields{
			"client":   id,
			"sequence": seq,
			"current":  r.seq,
		}).Debug("ignoring stale suspend readiness ack")
		return
	}

	c, ok := r.clients[id]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"client":   id,
			"sequence": seq,
		}).Debug("ignoring ack from unregistered client")
		return
	}
	if _, part := r.pending[id]; !part {
		logrus.WithFields(logrus.Fields{
			"client":      id,
			"description": c.Description,
		}).Debug("ignoring ack from client registered after negotiation start")
		return
	}
	if c.acknowledged {
		return
	}

	c.acknowledged = true
	r.outstanding--

	logrus.WithFields(logrus.Fields{
		"client":      id,
		"description": c.Description,
		"outstanding": r.outstanding,
	}).Debug("suspend readiness acknowledged")

	if r.outstanding == 0 {
		r.signalLocked(false)
	}
}

// Cancel aborts the in-flight negotiation, if any. Safe to call repeatedly.
func (r *DelayRegistry) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
}

func (r *DelayRegistry) cancelLocked() {
	if !r.active {
		return
	}
	logrus.WithField("sequence", r.seq).Debug("suspend negotiation canceled")
	r.active = false
	r.outstanding = 0
	r.stopDeadlineLocked()
}

// signalLocked delivers the single readiness result and ends the attempt.
func (r *DelayRegistry) signalLocked(timedOut bool) {
	r.active = false
	r.outstanding = 0
	r.stopDeadlineLocked()
	r.ready <- NegotiationResult{Sequence: r.seq, TimedOut: timedOut}
}

func (r *DelayRegistry) stopDeadlineLocked() {
	r.deadline.Stop()
	if r.stopWait != nil {
		close(r.stopWait)
		r.stopWait = nil
	}
}
