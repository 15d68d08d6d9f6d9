package capture

import (
	"context"
	"sync"
)

// Mock is a scripted Device for tests. Every chunk in Chunks is delivered
// once the device is opened; the stream then stays open until closed, like
// a microphone that is still listening.
type Mock struct {
	Chunks [][]byte
	MIME   string

	// Deny makes Open fail with ErrPermissionDenied.
	Deny bool

	mu     sync.Mutex
	opens  int
	closes int
}

// NewMock returns a device that yields chunks.
func NewMock(chunks ...[]byte) *Mock {
	return &Mock{Chunks: chunks}
}

// Open implements Device.
func (m *Mock) Open(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Deny {
		return nil, ErrPermissionDenied
	}
	m.opens++

	s := &mockStream{
		owner: m,
		mime:  m.MIME,
		ch:    make(chan []byte),
		stop:  make(chan struct{}),
	}
	go s.run(m.Chunks)
	return s, nil
}

// Opens reports how many times the device was acquired.
func (m *Mock) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes reports how many times the device was released.
func (m *Mock) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type mockStream struct {
	owner *Mock
	mime  string
	ch    chan []byte
	stop  chan struct{}
	once  sync.Once
}

func (s *mockStream) run(chunks [][]byte) {
	defer close(s.ch)
	for _, c := range chunks {
		s.ch <- c
	}
	<-s.stop
}

func (s *mockStream) Chunks() <-chan []byte { return s.ch }

func (s *mockStream) MIMEType() string { return s.mime }

func (s *mockStream) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.owner.mu.Lock()
		s.owner.closes++
		s.owner.mu.Unlock()
	})
	return nil
}
