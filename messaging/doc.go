// Package messaging defines the kernel messages that cross the transport
// boundary: outbound requests, shell replies, iopub broadcasts and stdin
// input requests, plus the content shapes the bridge reads out of them.
//
// Requests carry a UUIDv7 identifier minted at construction, so a caller can
// register interest in the reply before the request reaches the wire:
//
//	req := messaging.NewExecute("1+1", false)
//	table.Register(req.ID, correlate.Continuation(ch))
//	transport.Send(ctx, req)
//
// Broadcast types are classified into a closed set by ParseBroadcastType.
// Legacy IPython names (pyin, pyout, pyerr) map onto their modern
// counterparts; anything unrecognized is BroadcastUnknown.
package messaging
