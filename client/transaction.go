package client

import (
	"context"
	"sync"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/query"
	"xdao.co/threaddb/thread"
)

func txnError(msg string) error {
	if msg == "" {
		return nil
	}
	return newError(KindProtocol, msg)
}

// ReadTransaction batches lookups against one collection over a single
// stream. Operations run strictly one at a time between Start and End; the
// context passed to Start bounds the whole transaction.
type ReadTransaction struct {
	client         *Client
	dbID           thread.ID
	collectionName string

	mu      sync.Mutex
	stream  api.API_ReadTransactionClient
	cancel  context.CancelFunc
	started bool
	ended   bool
}

// ReadTransaction prepares a read transaction on a collection. Nothing is
// sent until Start.
func (c *Client) ReadTransaction(dbID thread.ID, collectionName string) *ReadTransaction {
	return &ReadTransaction{client: c, dbID: dbID, collectionName: collectionName}
}

func (t *ReadTransaction) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return newError(KindUsage, "transaction already started")
	}
	ctx, cancel := context.WithCancel(t.client.outgoing(ctx))
	stream, err := t.client.rpc.ReadTransaction(ctx)
	if err != nil {
		cancel()
		return rpcError("start transaction", err)
	}
	if err := stream.Send(&api.ReadTransactionRequest{
		StartTransactionRequest: &api.StartTransactionRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
		},
	}); err != nil {
		cancel()
		return rpcError("start transaction", err)
	}
	t.stream = stream
	t.cancel = cancel
	t.started = true
	return nil
}

func (t *ReadTransaction) checkStarted() error {
	if !t.started {
		return newError(KindUsage, "transaction not started")
	}
	if t.ended {
		return newError(KindUsage, "transaction already ended")
	}
	return nil
}

func (t *ReadTransaction) roundTrip(req *api.ReadTransactionRequest) (*api.ReadTransactionReply, error) {
	if err := t.stream.Send(req); err != nil {
		return nil, rpcError("transaction send", err)
	}
	rep, err := t.stream.Recv()
	if err != nil {
		return nil, rpcError("transaction receive", err)
	}
	return rep, nil
}

// Has reports whether all the given instances exist.
func (t *ReadTransaction) Has(instanceIDs ...string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return false, err
	}
	rep, err := t.roundTrip(&api.ReadTransactionRequest{
		HasRequest: &api.HasRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			InstanceIDs:    instanceIDs,
		},
	})
	if err != nil {
		return false, err
	}
	if rep.HasReply == nil {
		return false, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.HasReply.TransactionError); err != nil {
		return false, err
	}
	return rep.HasReply.Exists, nil
}

// Find returns the instances matching q. A nil q matches everything.
func (t *ReadTransaction) Find(q *query.Query) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return nil, err
	}
	var qb []byte
	if q != nil {
		var err error
		if qb, err = q.Bytes(); err != nil {
			return nil, wrapError(KindUsage, "marshal query", err)
		}
	}
	rep, err := t.roundTrip(&api.ReadTransactionRequest{
		FindRequest: &api.FindRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			QueryJSON:      qb,
		},
	})
	if err != nil {
		return nil, err
	}
	if rep.FindReply == nil {
		return nil, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.FindReply.TransactionError); err != nil {
		return nil, err
	}
	return rep.FindReply.Instances, nil
}

// FindByID returns one instance as a raw JSON document.
func (t *ReadTransaction) FindByID(instanceID string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return nil, err
	}
	rep, err := t.roundTrip(&api.ReadTransactionRequest{
		FindByIDRequest: &api.FindByIDRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			InstanceID:     instanceID,
		},
	})
	if err != nil {
		return nil, err
	}
	if rep.FindByIDReply == nil {
		return nil, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.FindByIDReply.TransactionError); err != nil {
		return nil, err
	}
	return rep.FindByIDReply.Instance, nil
}

// End closes the transaction. The stream is torn down whether or not the
// server reports an error.
func (t *ReadTransaction) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return err
	}
	t.ended = true
	defer t.cancel()
	rep, err := t.roundTrip(&api.ReadTransactionRequest{
		EndTransactionRequest: &api.EndTransactionRequest{},
	})
	if err != nil {
		return err
	}
	if rep.EndTransactionReply == nil {
		return newError(KindProtocol, "unexpected transaction reply")
	}
	endErr := txnError(rep.EndTransactionReply.TransactionError)
	if err := t.stream.CloseSend(); err != nil && endErr == nil {
		endErr = rpcError("transaction close", err)
	}
	drainRead(t.stream)
	return endErr
}

func drainRead(s api.API_ReadTransactionClient) {
	for {
		if _, err := s.Recv(); err != nil {
			return
		}
	}
}

// WriteTransaction batches reads and mutations against one collection.
// Mutations are staged server-side and only become visible, and observable
// through Listen, when End commits them. Discard voids the commit and makes
// End report it.
type WriteTransaction struct {
	client         *Client
	dbID           thread.ID
	collectionName string

	mu      sync.Mutex
	stream  api.API_WriteTransactionClient
	cancel  context.CancelFunc
	started bool
	ended   bool
}

// WriteTransaction prepares a write transaction on a collection. Nothing is
// sent until Start.
func (c *Client) WriteTransaction(dbID thread.ID, collectionName string) *WriteTransaction {
	return &WriteTransaction{client: c, dbID: dbID, collectionName: collectionName}
}

func (t *WriteTransaction) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return newError(KindUsage, "transaction already started")
	}
	ctx, cancel := context.WithCancel(t.client.outgoing(ctx))
	stream, err := t.client.rpc.WriteTransaction(ctx)
	if err != nil {
		cancel()
		return rpcError("start transaction", err)
	}
	if err := stream.Send(&api.WriteTransactionRequest{
		StartTransactionRequest: &api.StartTransactionRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
		},
	}); err != nil {
		cancel()
		return rpcError("start transaction", err)
	}
	t.stream = stream
	t.cancel = cancel
	t.started = true
	return nil
}

func (t *WriteTransaction) checkStarted() error {
	if !t.started {
		return newError(KindUsage, "transaction not started")
	}
	if t.ended {
		return newError(KindUsage, "transaction already ended")
	}
	return nil
}

func (t *WriteTransaction) roundTrip(req *api.WriteTransactionRequest) (*api.WriteTransactionReply, error) {
	if err := t.stream.Send(req); err != nil {
		return nil, rpcError("transaction send", err)
	}
	rep, err := t.stream.Recv()
	if err != nil {
		return nil, rpcError("transaction receive", err)
	}
	return rep, nil
}

// Has reports whether all the given instances exist in the staged state.
func (t *WriteTransaction) Has(instanceIDs ...string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return false, err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		HasRequest: &api.HasRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			InstanceIDs:    instanceIDs,
		},
	})
	if err != nil {
		return false, err
	}
	if rep.HasReply == nil {
		return false, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.HasReply.TransactionError); err != nil {
		return false, err
	}
	return rep.HasReply.Exists, nil
}

// Find returns the staged instances matching q.
func (t *WriteTransaction) Find(q *query.Query) ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return nil, err
	}
	var qb []byte
	if q != nil {
		var err error
		if qb, err = q.Bytes(); err != nil {
			return nil, wrapError(KindUsage, "marshal query", err)
		}
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		FindRequest: &api.FindRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			QueryJSON:      qb,
		},
	})
	if err != nil {
		return nil, err
	}
	if rep.FindReply == nil {
		return nil, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.FindReply.TransactionError); err != nil {
		return nil, err
	}
	return rep.FindReply.Instances, nil
}

// FindByID returns one staged instance as a raw JSON document.
func (t *WriteTransaction) FindByID(instanceID string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return nil, err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		FindByIDRequest: &api.FindByIDRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			InstanceID:     instanceID,
		},
	})
	if err != nil {
		return nil, err
	}
	if rep.FindByIDReply == nil {
		return nil, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.FindByIDReply.TransactionError); err != nil {
		return nil, err
	}
	return rep.FindByIDReply.Instance, nil
}

// Create stages new instances and returns their IDs.
func (t *WriteTransaction) Create(instances Instances) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return nil, err
	}
	data, err := marshalInstances(instances)
	if err != nil {
		return nil, err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		CreateRequest: &api.CreateRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			Instances:      data,
		},
	})
	if err != nil {
		return nil, err
	}
	if rep.CreateReply == nil {
		return nil, newError(KindProtocol, "unexpected transaction reply")
	}
	if err := txnError(rep.CreateReply.TransactionError); err != nil {
		return nil, err
	}
	return rep.CreateReply.InstanceIDs, nil
}

// Save stages upserts. Every instance must carry an _id.
func (t *WriteTransaction) Save(instances Instances) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return err
	}
	data, err := marshalInstances(instances)
	if err != nil {
		return err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		SaveRequest: &api.SaveRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			Instances:      data,
		},
	})
	if err != nil {
		return err
	}
	if rep.SaveReply == nil {
		return newError(KindProtocol, "unexpected transaction reply")
	}
	return txnError(rep.SaveReply.TransactionError)
}

// Delete stages removals by ID.
func (t *WriteTransaction) Delete(instanceIDs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		DeleteRequest: &api.DeleteRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			InstanceIDs:    instanceIDs,
		},
	})
	if err != nil {
		return err
	}
	if rep.DeleteReply == nil {
		return newError(KindProtocol, "unexpected transaction reply")
	}
	return txnError(rep.DeleteReply.TransactionError)
}

// Verify checks instances against the collection's write rules without
// staging them.
func (t *WriteTransaction) Verify(instances Instances) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return err
	}
	data, err := marshalInstances(instances)
	if err != nil {
		return err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		VerifyRequest: &api.VerifyRequest{
			DBID:           t.dbID.Bytes(),
			CollectionName: t.collectionName,
			Instances:      data,
		},
	})
	if err != nil {
		return err
	}
	if rep.VerifyReply == nil {
		return newError(KindProtocol, "unexpected transaction reply")
	}
	return txnError(rep.VerifyReply.TransactionError)
}

// Discard voids the staged mutations. The transaction must still be ended;
// End will report the discard.
func (t *WriteTransaction) Discard() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return err
	}
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		DiscardRequest: &api.DiscardRequest{},
	})
	if err != nil {
		return err
	}
	if rep.DiscardReply == nil {
		return newError(KindProtocol, "unexpected transaction reply")
	}
	return nil
}

// End commits the staged mutations, or reports why it could not. The stream
// is torn down either way.
func (t *WriteTransaction) End() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkStarted(); err != nil {
		return err
	}
	t.ended = true
	defer t.cancel()
	rep, err := t.roundTrip(&api.WriteTransactionRequest{
		EndTransactionRequest: &api.EndTransactionRequest{},
	})
	if err != nil {
		return err
	}
	if rep.EndTransactionReply == nil {
		return newError(KindProtocol, "unexpected transaction reply")
	}
	endErr := txnError(rep.EndTransactionReply.TransactionError)
	if err := t.stream.CloseSend(); err != nil && endErr == nil {
		endErr = rpcError("transaction close", err)
	}
	drainWrite(t.stream)
	return endErr
}

func drainWrite(s api.API_WriteTransactionClient) {
	for {
		if _, err := s.Recv(); err != nil {
			return
		}
	}
}
