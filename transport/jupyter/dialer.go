// Package jupyter attaches to kernels managed by a Jupyter server.
//
// Kernel lifecycle (start, inspect, interrupt, restart, shut down) goes over
// the server's REST API; messages go over the kernel's websocket channels
// endpoint as JSON envelopes tagged with their channel. The server handles
// ZMQ framing and signing.
//
//	d := jupyter.NewDialer(jupyter.DefaultConfig())
//	t, err := d.Dial(ctx, []string{"--kernel", "python3"})
package jupyter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/tailored-agentic-units/ipybridge/observability"
	"github.com/tailored-agentic-units/ipybridge/transport"
)

// latestKernel is the --existing value used when the flag has no argument.
const latestKernel = "latest"

// ErrNoKernel is returned when --existing finds no running kernel.
var ErrNoKernel = errors.New("no running kernel")

// Option configures a Dialer.
type Option func(*Dialer)

// WithObserver sets the observer for connection events.
func WithObserver(o observability.Observer) Option {
	return func(d *Dialer) { d.observer = o }
}

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) { d.httpClient = c }
}

type Dialer struct {
	config     Config
	observer   observability.Observer
	httpClient *http.Client
}

func NewDialer(cfg Config, opts ...Option) *Dialer {
	d := &Dialer{
		config:   cfg,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// connectArgs is the parsed form of a connect argv.
type connectArgs struct {
	url      string
	token    string
	kernel   string
	existing string
}

func (d *Dialer) parse(argv []string) (connectArgs, error) {
	var args connectArgs

	fs := pflag.NewFlagSet("connect", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&args.url, "url", d.config.URL, "Jupyter server URL")
	fs.StringVar(&args.token, "token", d.config.Token, "Jupyter server token")
	fs.StringVar(&args.kernel, "kernel", d.config.Kernel, "kernel spec to start")
	fs.StringVar(&args.existing, "existing", "", "attach to a running kernel by id")
	fs.Lookup("existing").NoOptDefVal = latestKernel

	if err := fs.Parse(argv); err != nil {
		return args, fmt.Errorf("invalid connect arguments: %w", err)
	}
	if fs.NArg() > 0 {
		return args, fmt.Errorf("invalid connect arguments: unexpected %q", fs.Args())
	}
	if _, err := url.ParseRequestURI(args.url); err != nil {
		return args, fmt.Errorf("invalid server url %q: %w", args.url, err)
	}
	return args, nil
}

// Dial starts a kernel (or attaches to one with --existing) and opens its
// channels.
func (d *Dialer) Dial(ctx context.Context, argv []string) (transport.Transport, error) {
	args, err := d.parse(argv)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	if d.httpClient != nil {
		client = resty.NewWithClient(d.httpClient)
	}
	client.
		SetBaseURL(strings.TrimRight(args.url, "/")).
		SetTimeout(d.config.RequestTimeout.Std()).
		SetHeader("Accept", "application/json")
	if args.token != "" {
		client.SetAuthScheme("token").SetAuthToken(args.token)
	}

	model, err := d.kernel(ctx, client, args)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.Must(uuid.NewV7()).String()
	wsURL, err := channelsURL(args.url, model.ID, sessionID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if args.token != "" {
		header.Set("Authorization", "token "+args.token)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.config.RequestTimeout.Std(),
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open kernel channels: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open kernel channels: %w", err)
	}

	t := newTransport(conn, client, model.ID, sessionID, d.config, d.observer)
	d.observer.OnEvent(ctx, observability.NewEvent(
		EventConnected,
		observability.LevelInfo,
		"jupyter.Dial",
		map[string]any{"kernel_id": model.ID, "kernel": model.Name, "session": sessionID},
	))
	return t, nil
}

func (d *Dialer) kernel(ctx context.Context, client *resty.Client, args connectArgs) (*kernelModel, error) {
	switch args.existing {
	case "":
		var model kernelModel
		resp, err := client.R().
			SetContext(ctx).
			SetBody(map[string]string{"name": args.kernel}).
			SetResult(&model).
			Post("/api/kernels")
		if err := restError("start kernel", resp, err); err != nil {
			return nil, err
		}
		d.observer.OnEvent(ctx, observability.NewEvent(
			EventKernelStarted,
			observability.LevelInfo,
			"jupyter.Dial",
			map[string]any{"kernel_id": model.ID, "kernel": model.Name},
		))
		return &model, nil

	case latestKernel:
		var models []kernelModel
		resp, err := client.R().SetContext(ctx).SetResult(&models).Get("/api/kernels")
		if err := restError("list kernels", resp, err); err != nil {
			return nil, err
		}
		if len(models) == 0 {
			return nil, ErrNoKernel
		}
		latest := models[0]
		for _, m := range models[1:] {
			// ISO 8601 timestamps order lexically
			if m.LastActivity > latest.LastActivity {
				latest = m
			}
		}
		return &latest, nil

	default:
		var model kernelModel
		resp, err := client.R().SetContext(ctx).SetResult(&model).Get("/api/kernels/" + url.PathEscape(args.existing))
		if resp != nil && resp.StatusCode() == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNoKernel, args.existing)
		}
		if err := restError("get kernel", resp, err); err != nil {
			return nil, err
		}
		return &model, nil
	}
}

func channelsURL(base, kernelID, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/kernels/" + url.PathEscape(kernelID) + "/channels"
	u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()
	return u.String(), nil
}

func restError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("failed to %s: %w", op, transport.ErrKernelGone)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to %s: %s", op, resp.Status())
	}
	return nil
}
