package sharing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds every API call the client makes.
const DefaultRequestTimeout = 10 * time.Second

// LocationPayload is the body of a publish request.
type LocationPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	UserType  string   `json:"userType"`
}

// CounterpartyLocation is the other party's last-known position.
type CounterpartyLocation struct {
	Lat       float64
	Lng       float64
	UpdatedAt time.Time
}

// SubmissionError is a rejected publish. MinutesUntilAvailable is set when
// the server considers the sharing window not yet open.
type SubmissionError struct {
	Status                int
	Message               string
	MinutesUntilAvailable *int
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("live location rejected (%d): %s", e.Status, e.Message)
}

// Client talks to the live location endpoints with the caller's session cookie.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
		c.dialer.HandshakeTimeout = d
	}
}

// WithSessionCookie seeds the cookie jar with the session cookie.
func WithSessionCookie(name, value string) ClientOption {
	return func(c *Client) {
		c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar, Timeout: DefaultRequestTimeout},
		dialer:  &websocket.Dialer{Jar: jar, HandshakeTimeout: DefaultRequestTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) bookingURL(bookingID, suffix string) string {
	return c.baseURL.String() + "/api/bookings/" + url.PathEscape(bookingID) + suffix
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

// PublishLocation submits one sample for bookingID.
func (c *Client) PublishLocation(ctx context.Context, bookingID string, p LocationPayload) error {
	resp, err := c.do(ctx, http.MethodPost, c.bookingURL(bookingID, "/live-location"), p)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeSubmissionError(resp)
}

func decodeSubmissionError(resp *http.Response) error {
	subErr := &SubmissionError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error                 string `json:"error"`
		MinutesUntilAvailable *int   `json:"minutesUntilAvailable"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			subErr.Message = body.Error
		}
		subErr.MinutesUntilAvailable = body.MinutesUntilAvailable
	}
	return subErr
}

// ClearLocation removes the caller's last-known location for bookingID.
func (c *Client) ClearLocation(ctx context.Context, bookingID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.bookingURL(bookingID, "/live-location"), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clear live location: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// counterpartyPath is the endpoint a role reads the other party from.
func counterpartyPath(role string) string {
	if role == RoleCustomer {
		return "/photographer-location"
	}
	return "/live-location"
}

// FetchCounterparty reads the other party's location. A nil location with
// a nil error means the other party is not sharing.
func (c *Client) FetchCounterparty(ctx context.Context, bookingID, role string) (*CounterpartyLocation, error) {
	resp, err := c.do(ctx, http.MethodGet, c.bookingURL(bookingID, counterpartyPath(role)), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch counterparty location: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	return decodeCounterparty(raw)
}

// wireLocation accepts coordinates as JSON strings or numbers.
type wireLocation struct {
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w *wireLocation) toCounterparty() *CounterpartyLocation {
	if w == nil {
		return nil
	}
	return &CounterpartyLocation{Lat: float64(w.Latitude), Lng: float64(w.Longitude), UpdatedAt: w.UpdatedAt}
}

func decodeCounterparty(raw []byte) (*CounterpartyLocation, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var loc *wireLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, fmt.Errorf("decode counterparty location: %w", err)
	}
	return loc.toCounterparty(), nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return errors.New("coordinate is null")
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("coordinate %s: %w", string(b), err)
	}
	*f = flexFloat(v)
	return nil
}

// CounterpartyStream delivers pushed counterparty updates.
type CounterpartyStream interface {
	// Next blocks for the next update. A nil location means the other
	// party stopped sharing.
	Next() (*CounterpartyLocation, error)
	Close() error
}

// DialCounterpartyStream opens the push channel for bookingID. The stream
// is closed when ctx is done.
func (c *Client) DialCounterpartyStream(ctx context.Context, bookingID string) (CounterpartyStream, error) {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/bookings/" + url.PathEscape(bookingID) + "/live-location/ws"

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial counterparty stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial counterparty stream: %w", err)
	}
	c.logger.Debug("Counterparty stream connected", zap.String("bookingID", bookingID))
	s := &wsStream{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

type wsStream struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

func (s *wsStream) Next() (*CounterpartyLocation, error) {
	var frame struct {
		UserType string        `json:"userType"`
		Location *wireLocation `json:"location"`
	}
	if err := s.conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return frame.Location.toCounterparty(), nil
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
