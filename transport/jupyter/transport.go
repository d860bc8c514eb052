package jupyter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/observability"
	"github.com/tailored-agentic-units/ipybridge/transport"
)

const writeWait = 10 * time.Second

// Transport is a connection to one kernel's websocket channels.
type Transport struct {
	id        string
	sessionID string

	conn    *websocket.Conn
	writeMu sync.Mutex
	client  *resty.Client

	replies    *transport.Stream[*messaging.Reply]
	broadcasts *transport.Stream[*messaging.Broadcast]
	inputs     *transport.Stream[*messaging.InputRequest]

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	observer observability.Observer

	closing atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func newTransport(conn *websocket.Conn, client *resty.Client, kernelID, sessionID string, cfg Config, observer observability.Observer) *Transport {
	size := cfg.BufferSize
	if size <= 0 {
		size = transport.DefaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		id:                kernelID,
		sessionID:         sessionID,
		conn:              conn,
		client:            client,
		replies:           transport.NewStream[*messaging.Reply](size),
		broadcasts:        transport.NewStream[*messaging.Broadcast](size),
		inputs:            transport.NewStream[*messaging.InputRequest](size),
		heartbeatInterval: cfg.HeartbeatInterval.Std(),
		heartbeatTimeout:  cfg.HeartbeatTimeout.Std(),
		observer:          observer,
		cancel:            cancel,
		done:              make(chan struct{}),
	}

	if t.heartbeatInterval > 0 {
		if t.heartbeatTimeout <= t.heartbeatInterval {
			t.heartbeatTimeout = 3 * t.heartbeatInterval
		}
		conn.SetReadDeadline(time.Now().Add(t.heartbeatTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.heartbeatTimeout))
		})
		go t.pingLoop(ctx)
	}

	go t.readLoop(ctx)
	return t
}

func (t *Transport) ID() string {
	return t.id
}

// SessionID is the client session the server tags our messages with.
func (t *Transport) SessionID() string {
	return t.sessionID
}

func (t *Transport) Send(ctx context.Context, req *messaging.Request) (string, error) {
	if t.replies.IsClosed() {
		return "", transport.ErrDisconnected
	}

	env, err := encode(req, t.sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", req.Kind, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(env); err != nil {
		return "", fmt.Errorf("%w: %w", transport.ErrDisconnected, err)
	}
	return req.ID, nil
}

func (t *Transport) Replies() *transport.Stream[*messaging.Reply] {
	return t.replies
}

func (t *Transport) Broadcasts() *transport.Stream[*messaging.Broadcast] {
	return t.broadcasts
}

func (t *Transport) Inputs() *transport.Stream[*messaging.InputRequest] {
	return t.inputs
}

// Alive asks the server for the kernel's state. A missing kernel, a dead
// kernel or an unreachable server all report false.
func (t *Transport) Alive(ctx context.Context) bool {
	var model kernelModel
	resp, err := t.client.R().SetContext(ctx).SetResult(&model).Get(t.kernelPath(""))
	if err != nil || resp.IsError() {
		return false
	}
	return model.ExecutionState != "dead"
}

func (t *Transport) Interrupt(ctx context.Context) error {
	resp, err := t.client.R().SetContext(ctx).Post(t.kernelPath("/interrupt"))
	return restError("interrupt kernel", resp, err)
}

func (t *Transport) Restart(ctx context.Context) error {
	resp, err := t.client.R().SetContext(ctx).Post(t.kernelPath("/restart"))
	return restError("restart kernel", resp, err)
}

func (t *Transport) Shutdown(ctx context.Context) error {
	resp, err := t.client.R().SetContext(ctx).Delete(t.kernelPath(""))
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return restError("shut down kernel", resp, err)
}

// Close closes the websocket and waits for the reader to finish. The kernel
// keeps running.
func (t *Transport) Close() error {
	t.once.Do(func() {
		t.closing.Store(true)
		t.cancel()

		t.writeMu.Lock()
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		t.conn.Close()
	})
	<-t.done
	return nil
}

func (t *Transport) kernelPath(suffix string) string {
	return "/api/kernels/" + url.PathEscape(t.id) + suffix
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)
	defer func() {
		t.replies.Close()
		t.broadcasts.Close()
		t.inputs.Close()
	}()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.disconnected(ctx, err)
			return
		}
		if t.heartbeatInterval > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.heartbeatTimeout))
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.dropped(ctx, "malformed envelope", err)
			continue
		}
		if err := t.route(ctx, &env); err != nil {
			t.disconnected(ctx, err)
			return
		}
	}
}

func (t *Transport) route(ctx context.Context, env *envelope) error {
	switch env.Channel {
	case messaging.ChannelShell, messaging.ChannelControl:
		return t.replies.Send(ctx, &messaging.Reply{
			ParentID: env.ParentHeader.MsgID,
			Type:     env.Header.MsgType,
			Content:  env.Content,
		})

	case messaging.ChannelIOPub:
		return t.broadcasts.Send(ctx, &messaging.Broadcast{
			Type:     messaging.ParseBroadcastType(env.Header.MsgType),
			RawType:  env.Header.MsgType,
			ParentID: env.ParentHeader.MsgID,
			Content:  env.Content,
		})

	case messaging.ChannelStdin:
		if env.Header.MsgType != "input_request" {
			t.dropped(ctx, "unhandled stdin message "+env.Header.MsgType, nil)
			return nil
		}
		var c inputRequestContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			t.dropped(ctx, "malformed input_request", err)
			return nil
		}
		return t.inputs.Send(ctx, &messaging.InputRequest{
			ID:       env.Header.MsgID,
			ParentID: env.ParentHeader.MsgID,
			Prompt:   c.Prompt,
			Password: c.Password,
		})

	default:
		t.dropped(ctx, "unknown channel "+env.Channel, nil)
		return nil
	}
}

func (t *Transport) disconnected(ctx context.Context, err error) {
	var netErr net.Error
	if !t.closing.Load() && errors.As(err, &netErr) && netErr.Timeout() {
		t.observer.OnEvent(ctx, observability.NewEvent(
			EventHeartbeatLost,
			observability.LevelWarning,
			"jupyter.readLoop",
			map[string]any{"kernel_id": t.id, "timeout": t.heartbeatTimeout.String()},
		))
		// the broadcast stream is still open; consumers drain it before
		// seeing the close
		sendCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		t.broadcasts.Send(sendCtx, messaging.HeartbeatLost())
		cancel()
	}

	level := observability.LevelWarning
	if t.closing.Load() {
		level = observability.LevelInfo
	}
	t.observer.OnEvent(ctx, observability.NewEvent(
		EventDisconnected,
		level,
		"jupyter.readLoop",
		map[string]any{"kernel_id": t.id, "error": err},
	))
}

func (t *Transport) dropped(ctx context.Context, reason string, err error) {
	data := map[string]any{"kernel_id": t.id, "reason": reason}
	if err != nil {
		data["error"] = err
	}
	t.observer.OnEvent(ctx, observability.NewEvent(
		EventMessageDropped,
		observability.LevelVerbose,
		"jupyter.readLoop",
		data,
	))
}

func (t *Transport) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
