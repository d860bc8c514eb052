package surface

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/ipybridge/bridge"
	"github.com/tailored-agentic-units/ipybridge/display"
	"github.com/tailored-agentic-units/ipybridge/messaging"
)

// Client calls a remote BridgeService.
type Client struct {
	connect   *connect.Client[structpb.Struct, structpb.Struct]
	run       *connect.Client[structpb.Struct, structpb.Struct]
	complete  *connect.Client[structpb.Struct, structpb.Struct]
	inspect   *connect.Client[structpb.Struct, structpb.Struct]
	interrupt *connect.Client[structpb.Struct, structpb.Struct]
	terminate *connect.Client[structpb.Struct, structpb.Struct]
	restart   *connect.Client[structpb.Struct, structpb.Struct]
	write     *connect.Client[structpb.Struct, structpb.Struct]
	output    *connect.Client[structpb.Struct, structpb.Struct]
	status    *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the service at baseURL, for example
// http://127.0.0.1:8970.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	newClient := func(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
		return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return &Client{
		connect:   newClient(ConnectProcedure),
		run:       newClient(RunProcedure),
		complete:  newClient(CompleteProcedure),
		inspect:   newClient(InspectProcedure),
		interrupt: newClient(InterruptProcedure),
		terminate: newClient(TerminateProcedure),
		restart:   newClient(RestartProcedure),
		write:     newClient(WriteProcedure),
		output:    newClient(OutputProcedure),
		status:    newClient(StatusProcedure),
	}
}

func (c *Client) Connect(ctx context.Context, argv []string) (*messaging.KernelInfo, error) {
	var info messaging.KernelInfo
	if err := call(ctx, c.connect, connectRequest{Argv: argv}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Run executes code remotely. The reply is empty for silent runs.
func (c *Client) Run(ctx context.Context, code string, silent bool) (*messaging.ExecuteReply, error) {
	var reply messaging.ExecuteReply
	if err := call(ctx, c.run, runRequest{Code: code, Silent: silent}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) RunAsync(ctx context.Context, code string) error {
	return call(ctx, c.run, runRequest{Code: code, Async: true}, nil)
}

func (c *Client) Complete(ctx context.Context, line string, col int) (*bridge.Completion, error) {
	var out bridge.Completion
	if err := call(ctx, c.complete, completeRequest{Line: line, Col: col}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Inspect(ctx context.Context, word string, level int) error {
	return call(ctx, c.inspect, inspectRequest{Word: word, Level: level}, nil)
}

func (c *Client) Interrupt(ctx context.Context) error {
	return call(ctx, c.interrupt, empty{}, nil)
}

func (c *Client) Terminate(ctx context.Context) error {
	return call(ctx, c.terminate, empty{}, nil)
}

func (c *Client) Restart(ctx context.Context) error {
	return call(ctx, c.restart, empty{}, nil)
}

func (c *Client) Write(ctx context.Context, text string) error {
	return call(ctx, c.write, writeRequest{Text: text}, nil)
}

// Output fetches scrollback lines [from, to); a to of -1 means the end. It
// also returns the total line count, which is the next from when polling.
func (c *Client) Output(ctx context.Context, from, to int) ([]display.Line, int, error) {
	req := outputRequest{From: from}
	if to >= 0 {
		req.To = &to
	}
	var out outputResponse
	if err := call(ctx, c.output, req, &out); err != nil {
		return nil, 0, err
	}
	return out.Lines, out.Total, nil
}

func (c *Client) Status(ctx context.Context) (*bridge.Status, error) {
	var st bridge.Status
	if err := call(ctx, c.status, empty{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func call(ctx context.Context, client *connect.Client[structpb.Struct, structpb.Struct], in, out any) error {
	msg, err := toStruct(in)
	if err != nil {
		return err
	}
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(res.Msg, out)
}
