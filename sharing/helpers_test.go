package sharing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeGeolocator lets a test drive the active watch by hand.
type fakeGeolocator struct {
	mu       sync.Mutex
	calls    int
	cleared  int
	opts     WatchOptions
	active   WatchID
	onOK     func(Position)
	onFailed func(*PositionError)
}

func (g *fakeGeolocator) WatchPosition(onSuccess func(Position), onError func(*PositionError), opts WatchOptions) (WatchID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.opts = opts
	g.active = WatchID(uuid.NewString())
	g.onOK = onSuccess
	g.onFailed = onError
	return g.active, nil
}

func (g *fakeGeolocator) ClearWatch(id WatchID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == g.active {
		g.active = ""
		g.cleared++
	}
}

func (g *fakeGeolocator) watchCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGeolocator) isWatching() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active != ""
}

// emit delivers a fix on the most recent watch, even after it was cleared.
func (g *fakeGeolocator) emit(lat, lng, accuracy float64) {
	g.mu.Lock()
	fn := g.onOK
	g.mu.Unlock()
	fn(Position{Lat: lat, Lng: lng, Accuracy: &accuracy, Timestamp: time.Now()})
}

func (g *fakeGeolocator) fail(code PositionErrorCode, msg string) {
	g.mu.Lock()
	fn := g.onFailed
	g.mu.Unlock()
	fn(&PositionError{Code: code, Message: msg})
}

// fakeAPIServer records requests to the live location endpoints.
type fakeAPIServer struct {
	*httptest.Server

	mu          sync.Mutex
	posts       []map[string]any
	deletes     int
	gets        int
	getPaths    []string
	cookies     []string
	postStatus  int
	postBody    string
	getResponse string
}

func newFakeAPIServer(t *testing.T) *fakeAPIServer {
	t.Helper()
	f := &fakeAPIServer{postStatus: http.StatusOK, postBody: `{}`, getResponse: "null"}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPIServer) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, err := r.Cookie("snapnow_session"); err == nil {
		f.cookies = append(f.cookies, c.Value)
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		f.posts = append(f.posts, body)
		w.WriteHeader(f.postStatus)
		_, _ = io.WriteString(w, f.postBody)
	case http.MethodDelete:
		f.deletes++
		_, _ = io.WriteString(w, `{"message":"Location sharing stopped"}`)
	case http.MethodGet:
		f.gets++
		f.getPaths = append(f.getPaths, r.URL.Path)
		_, _ = io.WriteString(w, f.getResponse)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeAPIServer) setPostResponse(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postStatus = status
	f.postBody = body
}

func (f *fakeAPIServer) setGetResponse(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getResponse = body
}

func (f *fakeAPIServer) counts() (posts, deletes, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts), f.deletes, f.gets
}

func (f *fakeAPIServer) lastPost() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posts) == 0 {
		return nil
	}
	return f.posts[len(f.posts)-1]
}

func (f *fakeAPIServer) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(f.URL, WithSessionCookie("snapnow_session", "token-1"), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recorder collects callback invocations.
type recorder struct {
	mu       sync.Mutex
	own      []*Position
	other    []*CounterpartyLocation
	statuses []Status
}

func (r *recorder) onOwn(p *Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.own = append(r.own, p)
}

func (r *recorder) onOther(l *CounterpartyLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.other = append(r.other, l)
}

func (r *recorder) onState(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) snapshot() (own []*Position, other []*CounterpartyLocation, statuses []Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Position(nil), r.own...), append([]*CounterpartyLocation(nil), r.other...), append([]Status(nil), r.statuses...)
}

func stateNames(statuses []Status) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.State.String()
	}
	return strings.Join(names, ",")
}
