package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func okResponse() (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func TestCanReachSourceMemoizes(t *testing.T) {
	t.Cleanup(func() {
		Reset()
		HTTPClient = &http.Client{Timeout: Timeout}
	})
	Reset()

	calls := 0
	HTTPClient = doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return okResponse()
	})

	ctx := context.Background()
	if !CanReachSource(ctx) {
		t.Fatal("CanReachSource() = false, want true")
	}
	if !CanReachSource(ctx) {
		t.Fatal("second CanReachSource() = false, want true")
	}
	if calls != 1 {
		t.Errorf("probe ran %d times, want 1", calls)
	}
}

func TestCanReachSourceFallsBackToDial(t *testing.T) {
	t.Cleanup(func() {
		Reset()
		HTTPClient = &http.Client{Timeout: Timeout}
		Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: Timeout}
			return d.DialContext(ctx, network, addr)
		}
	})
	Reset()

	HTTPClient = doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("tls intercepted")
	})

	dialed := false
	Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = true
		if addr != "www.youtube.com:443" {
			t.Errorf("dialed %q, want www.youtube.com:443", addr)
		}
		c, s := net.Pipe()
		s.Close()
		return c, nil
	}

	if !CanReachSource(context.Background()) {
		t.Fatal("CanReachSource() = false, want true via dial fallback")
	}
	if !dialed {
		t.Error("dial fallback never ran")
	}

	// Unreachable once both paths fail.
	Reset()
	Dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("no route")
	}
	if CanReachSource(context.Background()) {
		t.Fatal("CanReachSource() = true, want false")
	}
}
