package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"snapnow/config"
	bookingRepo "snapnow/database/repository/booking"
	locationRepo "snapnow/database/repository/location"
	"snapnow/models"
	"snapnow/services/livelocation"
	"snapnow/services/window"
	"snapnow/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBookings map[string]*models.Booking

func (s stubBookings) GetByID(_ context.Context, id string) (*models.Booking, error) {
	if b, ok := s[id]; ok {
		return b, nil
	}
	return nil, bookingRepo.ErrBookingNotFound
}

type testServer struct {
	router *gin.Engine
	clock  *clock.Mock
}

func newTestServer(t *testing.T, policy window.ClosePolicy) testServer {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 16, 13, 52, 0, 0, time.UTC))

	svc := &livelocation.DefaultLiveLocationService{
		Bookings: stubBookings{
			"b-1": {
				ID: "b-1", CustomerID: "cust", PhotographerID: "photo",
				ScheduledDate: "2026-10-16", ScheduledTime: "2:00 PM", Status: models.BookingConfirmed,
				MeetingPoint: &models.MeetingPoint{Name: "Fountain", Latitude: 51.5, Longitude: -0.12},
			},
			"b-pending": {ID: "b-pending", CustomerID: "cust", PhotographerID: "photo", ScheduledDate: "2026-10-16", ScheduledTime: "2:00 PM", Status: models.BookingPending},
			"b-bad":     {ID: "b-bad", CustomerID: "cust", PhotographerID: "photo", ScheduledDate: "someday", ScheduledTime: "2:00 PM", Status: models.BookingConfirmed},
		},
		Locations:   locationRepo.NewRedisLocationRepo(client, nil),
		Clock:       mock,
		Zone:        time.UTC,
		TTL:         30 * time.Minute,
		ClosePolicy: policy,
	}

	hb := NewHandlerBundle(NewLiveLocationHandler(svc))
	r := gin.New()
	group := r.Group("/api/bookings/:id", func(c *gin.Context) {
		c.Set(utils.ContextUserID, c.GetHeader("X-Test-User"))
		c.Next()
	})
	group.POST("/live-location", hb.PublishLocation)
	group.DELETE("/live-location", hb.StopSharing)
	group.GET("/live-location", hb.GetCounterpartyLocation)
	group.GET("/live-location/ws", hb.StreamCounterpartyLocation)
	group.GET("/photographer-location", hb.GetPhotographerLocation)
	group.GET("/meeting-point", hb.GetMeetingStatus)
	return testServer{router: r, clock: mock}
}

func (s testServer) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

const customerBody = `{"latitude":51.501,"longitude":-0.1246,"accuracy":8,"userType":"customer"}`

func TestPublishThenCounterpartyReadsStrings(t *testing.T) {
	s := newTestServer(t, window.CloseNever)

	rec := s.do(http.MethodPost, "/api/bookings/b-1/live-location", "cust", customerBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var echo map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &echo); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if echo["latitude"] != 51.501 {
		t.Fatalf("expected numeric latitude echo, got %#v", echo["latitude"])
	}

	rec = s.do(http.MethodGet, "/api/bookings/b-1/live-location", "photo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got models.LiveLocationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Latitude != "51.501" || got.Longitude != "-0.1246" || got.UserType != models.UserTypeCustomer {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestCounterpartyNotSharingIsNull(t *testing.T) {
	s := newTestServer(t, window.CloseNever)

	for _, path := range []string{"/api/bookings/b-1/live-location", "/api/bookings/b-1/photographer-location"} {
		rec := s.do(http.MethodGet, path, "cust", "")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
			t.Fatalf("%s: expected 200 null, got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestPublishTooEarlyReturnsMinutesUntilAvailable(t *testing.T) {
	s := newTestServer(t, window.CloseNever)
	s.clock.Set(time.Date(2026, 10, 16, 13, 30, 0, 0, time.UTC))

	rec := s.do(http.MethodPost, "/api/bookings/b-1/live-location", "cust", customerBody)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body utils.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.MinutesUntilAvailable == nil || *body.MinutesUntilAvailable != 20 {
		t.Fatalf("expected minutesUntilAvailable 20, got %+v", body)
	}
}

func TestPublishErrorStatuses(t *testing.T) {
	s := newTestServer(t, window.CloseAfter(time.Hour))

	cases := []struct {
		name string
		path string
		user string
		body string
		want int
	}{
		{"malformed body", "/api/bookings/b-1/live-location", "cust", `{"latitude":"north"}`, http.StatusBadRequest},
		{"missing coordinates", "/api/bookings/b-1/live-location", "cust", `{"userType":"customer"}`, http.StatusBadRequest},
		{"out of range", "/api/bookings/b-1/live-location", "cust", `{"latitude":95,"longitude":0,"userType":"customer"}`, http.StatusBadRequest},
		{"unknown booking", "/api/bookings/nope/live-location", "cust", customerBody, http.StatusNotFound},
		{"stranger", "/api/bookings/b-1/live-location", "eve", customerBody, http.StatusForbidden},
		{"wrong role", "/api/bookings/b-1/live-location", "photo", customerBody, http.StatusForbidden},
		{"not confirmed", "/api/bookings/b-pending/live-location", "cust", customerBody, http.StatusConflict},
		{"bad schedule", "/api/bookings/b-bad/live-location", "cust", customerBody, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		if rec := s.do(http.MethodPost, tc.path, tc.user, tc.body); rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}

	s.clock.Set(time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC))
	if rec := s.do(http.MethodPost, "/api/bookings/b-1/live-location", "cust", customerBody); rec.Code != http.StatusGone {
		t.Fatalf("expected 410 after the window ended, got %d", rec.Code)
	}
}

func TestStopSharingClearsLocation(t *testing.T) {
	s := newTestServer(t, window.CloseNever)
	photoBody := `{"latitude":51.49,"longitude":-0.11,"userType":"photographer"}`

	if rec := s.do(http.MethodPost, "/api/bookings/b-1/live-location", "photo", photoBody); rec.Code != http.StatusOK {
		t.Fatalf("publish: %d %s", rec.Code, rec.Body.String())
	}
	rec := s.do(http.MethodGet, "/api/bookings/b-1/photographer-location", "cust", "")
	if strings.TrimSpace(rec.Body.String()) == "null" {
		t.Fatalf("expected photographer location before stop")
	}

	if rec := s.do(http.MethodDelete, "/api/bookings/b-1/live-location", "photo", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	// A second stop is harmless.
	if rec := s.do(http.MethodDelete, "/api/bookings/b-1/live-location", "photo", ""); rec.Code != http.StatusOK {
		t.Fatalf("second delete: %d", rec.Code)
	}
	rec = s.do(http.MethodGet, "/api/bookings/b-1/photographer-location", "cust", "")
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("expected null after stop, got %s", rec.Body.String())
	}
}

func TestMeetingStatusDistances(t *testing.T) {
	s := newTestServer(t, window.CloseNever)
	body := `{"latitude":51.5,"longitude":-0.12,"userType":"customer"}`
	if rec := s.do(http.MethodPost, "/api/bookings/b-1/live-location", "cust", body); rec.Code != http.StatusOK {
		t.Fatalf("publish: %d", rec.Code)
	}

	rec := s.do(http.MethodGet, "/api/bookings/b-1/meeting-point", "photo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status livelocation.MeetingStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Customer.DistanceMeters == nil || *status.Customer.DistanceMeters != 0 {
		t.Fatalf("expected customer at the meeting point, got %+v", status.Customer)
	}
	if status.Photographer.Location != nil || status.Photographer.DistanceMeters != nil {
		t.Fatalf("expected no photographer data, got %+v", status.Photographer)
	}
}

func TestStreamPushesCounterpartyUpdates(t *testing.T) {
	s := newTestServer(t, window.CloseNever)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	header := http.Header{}
	header.Set("X-Test-User", "cust")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/bookings/b-1/live-location/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first models.LiveLocationEvent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.UserType != models.UserTypePhotographer || first.Location != nil {
		t.Fatalf("unexpected initial frame %+v", first)
	}

	photoBody := `{"latitude":51.49,"longitude":-0.11,"userType":"photographer"}`
	if rec := s.do(http.MethodPost, "/api/bookings/b-1/live-location", "photo", photoBody); rec.Code != http.StatusOK {
		t.Fatalf("publish: %d", rec.Code)
	}

	var next models.LiveLocationEvent
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Location == nil || next.Location.Latitude != "51.49" {
		t.Fatalf("unexpected update %+v", next)
	}
}

func TestStreamRejectsStranger(t *testing.T) {
	s := newTestServer(t, window.CloseNever)
	rec := s.do(http.MethodGet, "/api/bookings/b-1/live-location/ws", "eve", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before upgrade, got %d", rec.Code)
	}
}

func TestStreamChecksOrigin(t *testing.T) {
	prev := config.AppConfig.AllowedOrigins
	t.Cleanup(func() { config.AppConfig.AllowedOrigins = prev })
	config.AppConfig.AllowedOrigins = []string{"https://app.snapnow.example"}

	s := newTestServer(t, window.CloseNever)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/bookings/b-1/live-location/ws"

	header := http.Header{}
	header.Set("X-Test-User", "cust")
	header.Set("Origin", "https://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake from unlisted origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}

	header.Set("Origin", "https://app.snapnow.example")
	conn, _, err = websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}
