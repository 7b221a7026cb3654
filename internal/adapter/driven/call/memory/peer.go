package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
)

var sessionSeq atomic.Uint64

// PeerFactory builds sessions that skip the network entirely. The remote
// stream mirrors the local one and shows up once both descriptions are in.
type PeerFactory struct {
	mu sync.Mutex
	// Err, when set, fails every new session.
	Err      error
	sessions []*Session
}

func NewPeerFactory() *PeerFactory {
	return &PeerFactory{}
}

func (f *PeerFactory) NewCaller(ctx context.Context, local port.LocalStream, h port.PeerHandlers) (port.PeerSession, domain.Signal, error) {
	s, err := f.open(ctx, local, h)
	if err != nil {
		return nil, domain.Signal{}, err
	}
	return s, domain.NewSignal(domain.SignalOffer, s.describe()), nil
}

func (f *PeerFactory) NewReceiver(ctx context.Context, offer domain.Signal, local port.LocalStream, h port.PeerHandlers) (port.PeerSession, domain.Signal, error) {
	if err := offer.Validate(domain.SignalOffer); err != nil {
		return nil, domain.Signal{}, err
	}
	s, err := f.open(ctx, local, h)
	if err != nil {
		return nil, domain.Signal{}, err
	}
	s.connect()
	return s, domain.NewSignal(domain.SignalAnswer, s.describe()), nil
}

func (f *PeerFactory) open(ctx context.Context, local port.LocalStream, h port.PeerHandlers) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	failure := f.Err
	f.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	s := &Session{
		seq:      sessionSeq.Add(1),
		local:    local,
		handlers: h,
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Sessions returns every session built so far.
func (f *PeerFactory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}

// Live counts sessions that have not been destroyed.
func (f *PeerFactory) Live() int {
	n := 0
	for _, s := range f.Sessions() {
		if !s.Destroyed() {
			n++
		}
	}
	return n
}

type Session struct {
	seq      uint64
	local    port.LocalStream
	handlers port.PeerHandlers

	mu        sync.Mutex
	answered  bool
	destroyed bool
	remote    port.RemoteStream
	closeOnce sync.Once
}

func (s *Session) describe() string {
	return fmt.Sprintf("v=0\r\no=- %d 1 IN IP4 127.0.0.1\r\ns=memory\r\n", s.seq)
}

func (s *Session) ApplyAnswer(answer domain.Signal) error {
	if err := answer.Validate(domain.SignalAnswer); err != nil {
		return err
	}
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errors.New("session destroyed")
	}
	if s.answered {
		s.mu.Unlock()
		return errors.New("answer already applied")
	}
	s.answered = true
	s.mu.Unlock()

	s.connect()
	return nil
}

func (s *Session) connect() {
	var infos []domain.TrackInfo
	for _, t := range s.local.Tracks() {
		infos = append(infos, domain.TrackInfo{
			ID:       "remote-" + t.ID(),
			StreamID: "remote-" + s.local.ID(),
			Kind:     t.Kind(),
			Enabled:  true,
		})
	}
	rs := staticStream(infos)

	s.mu.Lock()
	s.remote = rs
	s.mu.Unlock()

	if s.handlers.OnRemoteStream != nil {
		go s.handlers.OnRemoteStream(rs)
	}
}

func (s *Session) RemoteStream() port.RemoteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// Fail simulates the connection dropping.
func (s *Session) Fail(err error) {
	s.closeOnce.Do(func() {
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(err)
		}
	})
}

func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.remote = nil
	s.mu.Unlock()

	// No close callback after a local destroy.
	s.closeOnce.Do(func() {})
	for _, t := range s.local.Tracks() {
		t.Stop()
	}
}

func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

type staticStream []domain.TrackInfo

func (r staticStream) Tracks() []domain.TrackInfo {
	return append([]domain.TrackInfo(nil), r...)
}
