package sharing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestPublishLocationDecodesRejection(t *testing.T) {
	f := newFakeAPIServer(t)
	f.setPostResponse(http.StatusForbidden, `{"error":"too early","minutesUntilAvailable":12}`)
	c := f.client(t)

	acc := 4.0
	err := c.PublishLocation(context.Background(), "b-1", LocationPayload{Latitude: 1, Longitude: 2, Accuracy: &acc, UserType: RolePhotographer})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if subErr.Status != http.StatusForbidden || subErr.Message != "too early" || subErr.MinutesUntilAvailable == nil || *subErr.MinutesUntilAvailable != 12 {
		t.Fatalf("unexpected error %+v", subErr)
	}
	if body := f.lastPost(); body["userType"] != RolePhotographer || body["accuracy"] != 4.0 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPublishLocationOmitsMissingAccuracy(t *testing.T) {
	f := newFakeAPIServer(t)
	if err := f.client(t).PublishLocation(context.Background(), "b-1", LocationPayload{Latitude: 1, Longitude: 2, UserType: RoleCustomer}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := f.lastPost()["accuracy"]; ok {
		t.Fatalf("accuracy must be omitted when unknown")
	}
}

func TestPublishLocationNonJSONError(t *testing.T) {
	f := newFakeAPIServer(t)
	f.setPostResponse(http.StatusBadGateway, "<html>bad gateway</html>")

	err := f.client(t).PublishLocation(context.Background(), "b-1", LocationPayload{UserType: RoleCustomer})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) || subErr.Message != "Bad Gateway" || subErr.MinutesUntilAvailable != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDecodeCounterparty(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    *CounterpartyLocation
		wantErr bool
	}{
		{"strings", `{"latitude":"51.5","longitude":"-0.12","updatedAt":"2026-10-16T13:51:00Z"}`,
			&CounterpartyLocation{Lat: 51.5, Lng: -0.12, UpdatedAt: time.Date(2026, 10, 16, 13, 51, 0, 0, time.UTC)}, false},
		{"numbers", `{"latitude":51.5,"longitude":-0.12,"updatedAt":"2026-10-16T13:51:00Z"}`,
			&CounterpartyLocation{Lat: 51.5, Lng: -0.12, UpdatedAt: time.Date(2026, 10, 16, 13, 51, 0, 0, time.UTC)}, false},
		{"null", `null`, nil, false},
		{"empty", ``, nil, false},
		{"garbage coordinate", `{"latitude":"north","longitude":"0"}`, nil, true},
	}
	for _, tc := range cases {
		got, err := decodeCounterparty([]byte(tc.body))
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want == nil {
			if got != nil {
				t.Fatalf("%s: expected nil, got %+v", tc.name, got)
			}
			continue
		}
		if got == nil || got.Lat != tc.want.Lat || got.Lng != tc.want.Lng || !got.UpdatedAt.Equal(tc.want.UpdatedAt) {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestFetchCounterpartyFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c, _ := NewClient(srv.URL)

	if loc, err := c.FetchCounterparty(context.Background(), "b-1", RoleCustomer); err == nil || loc != nil {
		t.Fatalf("expected error, got %+v %v", loc, err)
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, _ := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	start := time.Now()
	if err := c.ClearLocation(context.Background(), "b-1"); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("ftp://example.com"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestDialCounterpartyStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	cookies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("snapnow_session"); err == nil {
			cookies <- c.Value
		}
		if !strings.HasSuffix(r.URL.Path, "/api/bookings/b-1/live-location/ws") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"bookingId": "b-1", "userType": "photographer", "location": nil})
		_ = conn.WriteJSON(map[string]any{"bookingId": "b-1", "userType": "photographer",
			"location": map[string]any{"latitude": "51.49", "longitude": "-0.11", "updatedAt": "2026-10-16T13:51:00Z"}})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, WithSessionCookie("snapnow_session", "token-9"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := c.DialCounterpartyStream(ctx, "b-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer stream.Close()

	first, err := stream.Next()
	if err != nil || first != nil {
		t.Fatalf("expected nil first frame, got %+v %v", first, err)
	}
	second, err := stream.Next()
	if err != nil || second == nil || second.Lat != 51.49 {
		t.Fatalf("unexpected second frame %+v %v", second, err)
	}
	select {
	case cookie := <-cookies:
		if cookie != "token-9" {
			t.Fatalf("expected session cookie on the handshake, got %q", cookie)
		}
	default:
		t.Fatalf("expected session cookie on the handshake")
	}

	cancel()
	if _, err := stream.Next(); err == nil {
		t.Fatalf("expected read error after cancel")
	}
}
