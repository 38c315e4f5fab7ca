package probe

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	SourceHost = "www.youtube.com"
	Timeout    = 5 * time.Second
)

// Overridable for tests.
var (
	HTTPClient interface {
		Do(*http.Request) (*http.Response, error)
	} = &http.Client{Timeout: Timeout}

	Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: Timeout}
		return d.DialContext(ctx, network, addr)
	}
)

var (
	once   sync.Once
	result bool
)

// CanReachSource reports whether the primary content host is reachable from
// this process. The first call probes, every later call returns the cached
// answer: the strategy ordering is fixed for the process lifetime on purpose,
// repeated probing is not worth the cost. A transient failure at startup
// therefore sticks until restart.
func CanReachSource(ctx context.Context) bool {
	once.Do(func() {
		result = probe(ctx)
		if result {
			log.Printf("[INFO]: %s reachable, preferring direct strategies", SourceHost)
		} else {
			log.Printf("[INFO]: %s not reachable, using remote strategies", SourceHost)
		}
	})
	return result
}

// Reset clears the cached probe result. Tests only.
func Reset() {
	once = sync.Once{}
	result = false
}

func probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+SourceHost, nil)
	if err == nil {
		if res, err := HTTPClient.Do(req); err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				return true
			}
		}
	}

	// Some environments fail the HTTPS request but still have a usable path,
	// a raw connect is the tie breaker.
	conn, err := Dial(ctx, "tcp", net.JoinHostPort(SourceHost, "443"))
	if err != nil {
		log.Printf("[WARN]: reachability probe failed: %v", err)
		return false
	}
	conn.Close()
	return true
}
