package bufferpolicy

import (
	"context"
	"sync"

	"github.com/panthuncia/openrendergraph/upload"
)

// Client binds one Policy to the destination it flushes into, so the
// Service can drive BeginFrame/Flush without the caller re-supplying
// the target and upload service each frame.
type Client struct {
	Policy  *Policy
	Target  upload.Target
	Service *upload.Service
}

// BeginFrame forwards to the wrapped Policy's no-op BeginFrame.
func (c *Client) BeginFrame() { c.Policy.BeginFrame() }

// Flush forwards to the wrapped Policy's FlushToUploadService.
func (c *Client) Flush(ctx context.Context) error {
	return c.Policy.FlushToUploadService(ctx, c.Target, c.Service)
}

// ServiceStats mirrors the Upload Policy Service's get_stats view.
type ServiceStats struct {
	BeginFrameCalls   int64
	FlushCalls        int64
	RegisteredClients int
}

// Service is the Upload Policy Service: a mutex-guarded set of
// Clients. register/unregister may be called from any thread, and
// BeginFrame/FlushAll snapshot the client set under the mutex then
// invoke callbacks without holding it, avoiding re-entrancy deadlocks
// if a client's callback registers or
// unregisters another client.
type Service struct {
	mu      sync.Mutex
	clients map[*Client]struct{}

	beginFrameCalls int64
	flushCalls      int64
}

// NewService creates an empty Service.
func NewService() *Service {
	return &Service{clients: make(map[*Client]struct{})}
}

// RegisterClient adds client to the set driven by BeginFrame/FlushAll.
func (s *Service) RegisterClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = struct{}{}
}

// UnregisterClient removes client from the set.
func (s *Service) UnregisterClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client)
}

// BeginFrame calls BeginFrame on every registered client.
func (s *Service) BeginFrame() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.beginFrameCalls++
	s.mu.Unlock()

	for _, c := range snapshot {
		c.BeginFrame()
	}
}

// FlushAll calls Flush on every registered client, returning the
// first error encountered (remaining clients still flush).
func (s *Service) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.flushCalls++
	s.mu.Unlock()

	var firstErr error
	for _, c := range snapshot {
		if err := c.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetStats returns the service's call counters and current client
// count.
func (s *Service) GetStats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServiceStats{
		BeginFrameCalls:   s.beginFrameCalls,
		FlushCalls:        s.flushCalls,
		RegisteredClients: len(s.clients),
	}
}

func (s *Service) snapshotLocked() []*Client {
	snapshot := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		snapshot = append(snapshot, c)
	}
	return snapshot
}
