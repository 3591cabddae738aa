package engine

import (
	"sync"

	"github.com/cuemby/firestash/pkg/listen"
)

// ListenResponse carries one target's event, tagged with the target id
// that produced it, matching a duplex-stream shape where
// TargetChange/DocumentChange/DocumentDelete responses are keyed by target.
type ListenResponse struct {
	TargetID  int64
	DocChange *listen.DocChange
	Control   *listen.TargetChange
}

// ListenSession is one client's duplex listen stream: AddTarget/RemoveTarget
// requests in, a single merged ListenResponse channel out.
type ListenSession struct {
	reactor *listen.Reactor

	mu      sync.Mutex
	targets map[int64]*listen.Target
	out     chan ListenResponse
	done    chan struct{}
	closed  bool
}

// NewListenSession opens a new duplex listen session against the engine's
// reactor.
func (e *Engine) NewListenSession() (*ListenSession, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return &ListenSession{
		reactor: e.reactor,
		targets: make(map[int64]*listen.Target),
		out:     make(chan ListenResponse, 256),
		done:    make(chan struct{}),
	}, nil
}

// AddTarget registers spec and begins pumping its events into
// s.Responses().
func (s *ListenSession) AddTarget(spec listen.Spec) (int64, error) {
	t, err := s.reactor.Listen(spec)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.targets[t.ID()] = t
	s.mu.Unlock()
	go s.pump(t)
	return t.ID(), nil
}

func (s *ListenSession) pump(t *listen.Target) {
	for ev := range t.Events() {
		resp := ListenResponse{TargetID: t.ID(), DocChange: ev.Doc, Control: ev.Control}
		select {
		case s.out <- resp:
		case <-s.done:
			return
		}
	}
}

// RemoveTarget detaches targetID. Events already queued for it before
// detachment are still delivered.
func (s *ListenSession) RemoveTarget(targetID int64) {
	s.mu.Lock()
	t, ok := s.targets[targetID]
	if ok {
		delete(s.targets, targetID)
	}
	s.mu.Unlock()
	if ok {
		s.reactor.Detach(t)
	}
}

// Responses returns the session's merged event stream.
func (s *ListenSession) Responses() <-chan ListenResponse { return s.out }

// Close detaches every target this session registered.
func (s *ListenSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.targets {
		s.reactor.Detach(t)
		delete(s.targets, id)
	}
	close(s.done)
}
