package httpapi

import (
	"context"
	"sync"

	"sentinel.org/internal/api"
)

type stubCaller struct {
	mu        sync.Mutex
	calls     []api.Request
	responses map[string]api.Response
}

func newStubCaller() *stubCaller {
	return &stubCaller{responses: map[string]api.Response{}}
}

func (s *stubCaller) Call(_ context.Context, req api.Request) api.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if resp, ok := s.responses[req.Service+"."+req.Method]; ok {
		return resp
	}
	return api.Response{Result: true}
}

func (s *stubCaller) last() api.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return api.Request{}
	}
	return s.calls[len(s.calls)-1]
}

func (s *stubCaller) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func authValue(req api.Request) string {
	if req.Auth == nil {
		return "<nil>"
	}
	return *req.Auth
}
