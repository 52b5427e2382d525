package client

import (
	"context"

	"github.com/creachadair/taskgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/thread"
)

// Action identifies the mutation carried by a ListenEvent.
type Action = api.ListenAction

const (
	ActionAll    = api.ListenAll
	ActionCreate = api.ListenCreate
	ActionSave   = api.ListenSave
	ActionDelete = api.ListenDelete
)

// ListenFilter narrows a subscription. Zero fields match everything.
type ListenFilter = api.ListenFilter

// ListenEvent is one mutation pushed by the server. A non-nil Err means the
// stream failed; the channel is closed right after.
type ListenEvent struct {
	Collection string
	InstanceID string
	Action     Action
	Instance   []byte
	Err        error
}

// Listen subscribes to mutations on a database. Events arrive in commit
// order. Canceling ctx ends the subscription and closes the channel.
func (c *Client) Listen(ctx context.Context, dbID thread.ID, filters ...ListenFilter) (<-chan ListenEvent, error) {
	req := &api.ListenRequest{DBID: dbID.Bytes()}
	for i := range filters {
		req.Filters = append(req.Filters, &filters[i])
	}
	stream, err := c.rpc.Listen(c.outgoing(ctx), req)
	if err != nil {
		return nil, rpcError("listen", err)
	}
	ch := make(chan ListenEvent)
	g := taskgroup.New(nil)
	g.Go(func() error {
		defer close(ch)
		for {
			rep, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return nil
				}
				select {
				case ch <- ListenEvent{Err: rpcError("listen", err)}:
				case <-ctx.Done():
				}
				return nil
			}
			ev := ListenEvent{
				Collection: rep.CollectionName,
				InstanceID: rep.InstanceID,
				Action:     rep.Action,
				Instance:   rep.Instance,
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	})
	return ch, nil
}
