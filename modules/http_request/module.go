// Package http_request provides an asynchronous node that performs an HTTP
// request whenever a value arrives on "trigger".
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/flowgridgo/internal/connector"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/param"
	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/internal/token"
	"github.com/vk/flowgridgo/internal/worker"
	"github.com/zclconf/go-cty/cty"
)

const TypeName = "http_request"

// Module implements the registry.Module interface for this package. Every
// node of the type shares Client; nil uses a pooled client built on Register.
type Module struct {
	Client *http.Client
}

// Register registers the http_request node type.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = newClient()
	}
	r.Register(&registry.NodeType{
		Name:        TypeName,
		Description: "Requests \"url\" on every trigger and publishes the status code and body.",
		New:         func() worker.Node { return &Node{client: client} },
	})
}

func newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Node performs one request per trigger. Failed requests fire "failed" and
// set the node's error.
type Node struct {
	trigger *connector.Input
	status  *connector.Output
	body    *connector.Output
	failed  *connector.Output

	url     *param.Parameter
	method  *param.Parameter
	timeout *param.Parameter

	client *http.Client
}

func (n *Node) Setup(s *worker.Setup) error {
	n.trigger = s.AddInput("trigger", token.Any)
	n.status = s.AddOutput("status", cty.Number, false)
	n.body = s.AddOutput("body", cty.String, false)
	n.failed = s.AddEvent("failed")

	var err error
	if n.url, err = s.AddParameter("url", cty.StringVal(""), param.WithDescription("request URL")); err != nil {
		return err
	}
	if n.method, err = s.AddParameter("method", cty.StringVal(http.MethodGet)); err != nil {
		return err
	}
	n.timeout, err = s.AddParameter("timeout_ms", cty.NumberIntVal(10000), param.WithDescription("request timeout in milliseconds, 0 for none"))
	return err
}

// Process is unused; the worker prefers ProcessAsync.
func (n *Node) Process(ctx context.Context) error {
	errc := make(chan error, 1)
	n.ProcessAsync(ctx, func(err error) { errc <- err })
	return <-errc
}

func (n *Node) ProcessAsync(ctx context.Context, done func(error)) {
	if _, ok := n.trigger.Value(); !ok {
		done(nil)
		return
	}
	url := stringParam(n.url)
	method := strings.ToUpper(stringParam(n.method))
	if method == "" {
		method = http.MethodGet
	}
	var timeout time.Duration
	if v := n.timeout.Value(); !v.IsNull() && v.Type() == cty.Number {
		ms, _ := v.AsBigFloat().Float64()
		timeout = time.Duration(ms * float64(time.Millisecond))
	}

	go func() {
		status, body, err := n.do(ctx, method, url, timeout)
		if err != nil {
			n.failed.Trigger()
			done(err)
			return
		}
		n.status.Publish(cty.NumberIntVal(int64(status)))
		n.body.Publish(cty.StringVal(body))
		done(nil)
	}()
}

func (n *Node) do(ctx context.Context, method, url string, timeout time.Duration) (int, string, error) {
	logger := ctxlog.FromContext(ctx)
	if url == "" {
		return 0, "", fmt.Errorf("url parameter is empty")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("Making HTTP request.", "method", method, "url", url)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response body: %w", err)
	}
	logger.Debug("Received HTTP response.", "status", resp.Status)
	return resp.StatusCode, string(bodyBytes), nil
}

func stringParam(p *param.Parameter) string {
	if v := p.Value(); !v.IsNull() && v.Type() == cty.String {
		return v.AsString()
	}
	return ""
}
