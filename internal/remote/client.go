package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/localsession"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// requests are the incoming events bound to Monitor.Handle.
var requests = []string{"undo", "redo", "pause", "step", "reset", "command"}

// Config selects the monitor endpoint.
type Config struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// Client is a connected monitor.
type Client struct {
	io      *socket.Socket
	monitor *Monitor
}

// Connect dials cfg.URL and attaches a Monitor for sess once connected.
func Connect(ctx context.Context, sess *localsession.Session, cfg Config) (*Client, error) {
	ctx, logger := ctxlog.With(ctx, "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	c := &Client{io: io, monitor: NewMonitor(ctx, sess, io)}
	for _, ev := range requests {
		ev := ev
		io.On(types.EventName(ev), func(args ...any) {
			_ = c.monitor.Handle(ev, args...)
		})
	}

	connected := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Connected to monitor.", "sid", io.Id())
		c.monitor.Sync()
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(timeout):
		c.Close()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Close detaches from the session and disconnects.
func (c *Client) Close() {
	c.monitor.Close()
	c.io.Disconnect()
}
