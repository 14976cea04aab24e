package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// BridgeRequest is one request received by a FakeBridge.
type BridgeRequest struct {
	Path string
	// Raw is the body exactly as sent.
	Raw []byte
	// Body is Raw decoded into a generic map; nil when Raw is not a JSON object.
	Body map[string]any
}

// Verb returns the "command" field of a /atk/connect request.
func (r BridgeRequest) Verb() string {
	s, _ := r.Body["command"].(string)
	return s
}

// FakeBridge is an in-process stand-in for the ATK HTTP bridge. It records
// every request and answers /atk/connect with scripted events keyed by the
// command verb.
type FakeBridge struct {
	Server *httptest.Server

	mu            sync.Mutex
	requests      []BridgeRequest
	status        map[string]int
	delay         map[string]time.Duration
	events        map[string][]string
	defaultEvents []string
	raw           map[string]string
}

// NewFakeBridge starts a FakeBridge that is shut down when the test ends.
// By default every endpoint answers 200 and /atk/connect returns no events.
func NewFakeBridge(t testing.TB) *FakeBridge {
	t.Helper()

	gin.SetMode(gin.TestMode)

	fb := &FakeBridge{
		status: make(map[string]int),
		delay:  make(map[string]time.Duration),
		events: make(map[string][]string),
		raw:    make(map[string]string),
	}

	router := gin.New()
	router.POST("/atk/open", fb.handleStatusOnly)
	router.POST("/atk/close", fb.handleStatusOnly)
	router.POST("/atk/connect", fb.handleConnect)

	fb.Server = httptest.NewServer(router)
	t.Cleanup(fb.Server.Close)

	return fb
}

// URL returns the base URL of the fake bridge.
func (fb *FakeBridge) URL() string {
	return fb.Server.URL
}

// SetStatus makes path answer with code.
func (fb *FakeBridge) SetStatus(path string, code int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.status[path] = code
}

// SetDelay makes path wait d before answering, or until the client gives up.
func (fb *FakeBridge) SetDelay(path string, d time.Duration) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.delay[path] = d
}

// SetEvents scripts the events returned for verb (matched case-insensitively).
func (fb *FakeBridge) SetEvents(verb string, events ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.events[strings.ToLower(verb)] = events
}

// SetDefaultEvents scripts the events returned for verbs without their own.
func (fb *FakeBridge) SetDefaultEvents(events ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.defaultEvents = events
}

// SetRawResponse makes /atk/connect answer verb with body verbatim.
func (fb *FakeBridge) SetRawResponse(verb, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.raw[strings.ToLower(verb)] = body
}

// Requests returns a copy of every request received so far, in order.
func (fb *FakeBridge) Requests() []BridgeRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]BridgeRequest, len(fb.requests))
	copy(out, fb.requests)
	return out
}

// RequestsTo returns the requests received on path.
func (fb *FakeBridge) RequestsTo(path string) []BridgeRequest {
	var out []BridgeRequest
	for _, r := range fb.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Paths returns the request paths in arrival order.
func (fb *FakeBridge) Paths() []string {
	reqs := fb.Requests()
	paths := make([]string, len(reqs))
	for i, r := range reqs {
		paths[i] = r.Path
	}
	return paths
}

func (fb *FakeBridge) record(c *gin.Context) BridgeRequest {
	raw, _ := c.GetRawData()

	req := BridgeRequest{Path: c.FullPath(), Raw: raw}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		req.Body = body
	}

	fb.mu.Lock()
	fb.requests = append(fb.requests, req)
	fb.mu.Unlock()

	return req
}

// settings returns the status and delay configured for path.
func (fb *FakeBridge) settings(path string) (int, time.Duration) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	code, ok := fb.status[path]
	if !ok {
		code = http.StatusOK
	}
	return code, fb.delay[path]
}

// wait sleeps for d; false means the client went away first.
func wait(c *gin.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-c.Request.Context().Done():
		return false
	}
}

func (fb *FakeBridge) handleStatusOnly(c *gin.Context) {
	req := fb.record(c)
	code, delay := fb.settings(req.Path)
	if !wait(c, delay) {
		return
	}

	if code >= 300 {
		c.JSON(code, gin.H{"error": http.StatusText(code)})
		return
	}
	c.JSON(code, gin.H{"ok": true})
}

func (fb *FakeBridge) handleConnect(c *gin.Context) {
	req := fb.record(c)
	code, delay := fb.settings(req.Path)
	if !wait(c, delay) {
		return
	}

	if code >= 300 {
		c.String(code, "bridge failure")
		return
	}

	verb := strings.ToLower(req.Verb())

	fb.mu.Lock()
	raw, hasRaw := fb.raw[verb]
	events, hasEvents := fb.events[verb]
	if !hasEvents {
		events = fb.defaultEvents
	}
	fb.mu.Unlock()

	if hasRaw {
		c.Data(code, "application/json", []byte(raw))
		return
	}
	if events == nil {
		events = []string{}
	}
	c.JSON(code, gin.H{"events": events})
}
