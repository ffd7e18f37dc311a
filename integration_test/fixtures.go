package integration_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"wapool/internal/service"
)

// graphResponse is one scripted reply of the fake Graph API.
type graphResponse struct {
	status int
	body   string
}

func graphOK(body string) graphResponse {
	return graphResponse{status: http.StatusOK, body: body}
}

func graphError(status, code int, message string) graphResponse {
	return graphResponse{
		status: status,
		body:   fmt.Sprintf(`{"error":{"message":%q,"type":"OAuthException","code":%d}}`, message, code),
	}
}

func sentMessage(id string) graphResponse {
	return graphOK(`{"messaging_product":"whatsapp","contacts":[{"input":"5511999990000","wa_id":"5511999990000"}],"messages":[{"id":"` + id + `"}]}`)
}

func phoneNode(id, quality string) graphResponse {
	return graphOK(fmt.Sprintf(`{"id":%q,"display_phone_number":"+55 11 99999-0001","verified_name":"Acme","quality_rating":%q,"code_verification_status":"VERIFIED"}`, id, quality))
}

// FakeGraphAPI replays scripted responses per Graph node. The last scripted
// response for a node repeats once the script runs out.
type FakeGraphAPI struct {
	mu       sync.Mutex
	scripts  map[string][]graphResponse
	requests map[string]int
	tokens   []string
	server   *httptest.Server
}

func NewFakeGraphAPI(t *testing.T) *FakeGraphAPI {
	g := &FakeGraphAPI{
		scripts:  make(map[string][]graphResponse),
		requests: make(map[string]int),
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.server.Close)
	return g
}

func (g *FakeGraphAPI) URL() string {
	return g.server.URL
}

// Script queues responses for a node such as "pn-1" or "pn-1/messages".
func (g *FakeGraphAPI) Script(node string, responses ...graphResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[node] = append(g.scripts[node], responses...)
}

func (g *FakeGraphAPI) Requests(node string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[node]
}

func (g *FakeGraphAPI) serve(w http.ResponseWriter, r *http.Request) {
	node := strings.TrimPrefix(r.URL.Path, "/v21.0/")

	g.mu.Lock()
	g.requests[node]++
	g.tokens = append(g.tokens, r.Header.Get("Authorization"))
	script := g.scripts[node]
	var resp graphResponse
	switch {
	case len(script) == 0:
		resp = graphError(http.StatusBadRequest, 100, "Unsupported request for "+node)
	case len(script) == 1:
		resp = script[0]
	default:
		resp = script[0]
		g.scripts[node] = script[1:]
	}
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

// WebhookSink records notifications posted by the webhook notifier.
type WebhookSink struct {
	mu       sync.Mutex
	received []service.Notification
	status   int
	server   *httptest.Server
}

func NewWebhookSink(t *testing.T) *WebhookSink {
	s := &WebhookSink{status: http.StatusOK}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n service.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.received = append(s.received, n)
		status := s.status
		s.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *WebhookSink) URL() string {
	return s.server.URL
}

func (s *WebhookSink) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, 0, len(s.received))
	for _, n := range s.received {
		titles = append(titles, n.Title)
	}
	return titles
}

func (s *WebhookSink) Received() []service.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.Notification(nil), s.received...)
}
