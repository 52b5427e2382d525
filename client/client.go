// Package client is the Go client for a remote threaddb service. It speaks
// the gRPC API defined in the api package, attaching call credentials from a
// threadctx.Context and normalizing failures into structured errors.
package client

import (
	"context"
	"encoding/json"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"pkt.systems/pslog"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/query"
	"xdao.co/threaddb/thread"
	"xdao.co/threaddb/threadctx"
)

// CollectionConfig declares a collection: name, JSON schema, indexes and
// optional validator/filter hooks.
type CollectionConfig = api.CollectionConfig

// Index describes a single-field collection index.
type Index = api.Index

// Instances is a batch of documents for Create, Save and Verify. Elements
// are marshaled to JSON; anything json.Marshal accepts works.
type Instances []any

// Info describes a database: its name, dial addresses and key.
type Info struct {
	Name  string
	Addrs []ma.Multiaddr
	Key   thread.Key
}

// Client wraps a connection to a threaddb service.
type Client struct {
	cc  *grpc.ClientConn
	rpc api.APIClient

	logger        pslog.Logger
	timeout       time.Duration
	tokenDeadline time.Duration
	tc            *threadctx.Context
	dialOpts      []grpc.DialOption
}

// Option configures a Client.
type Option func(*Client)

// WithLogger supplies a logger for client diagnostics.
// Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			c.logger = pslog.NoopLogger()
			return
		}
		c.logger = logger
	}
}

// WithTimeout applies a per-call timeout when the caller's context carries
// no deadline of its own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTokenDeadline bounds the GetToken handshake. Defaults to 5s.
func WithTokenDeadline(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.tokenDeadline = d
		}
	}
}

// WithThreadContext seeds the call context attached to every RPC.
func WithThreadContext(tc *threadctx.Context) Option {
	return func(c *Client) {
		if tc != nil {
			c.tc = tc
		}
	}
}

// WithDialOptions appends extra gRPC dial options, e.g. a bufconn dialer or
// transport credentials.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// Dial connects to a threaddb service. The connection is insecure unless
// credentials are supplied through WithDialOptions.
func Dial(target string, opts ...Option) (*Client, error) {
	c := &Client{
		logger:        pslog.NoopLogger(),
		tokenDeadline: 5 * time.Second,
		tc:            threadctx.New(),
	}
	for _, o := range opts {
		o(c)
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, c.dialOpts...)
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, wrapError(KindProtocol, "dial "+target, err)
	}
	c.cc = cc
	c.rpc = api.NewAPIClient(cc)
	return c, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// ThreadContext returns the call context attached to every RPC. Mutating it
// affects subsequent calls.
func (c *Client) ThreadContext() *threadctx.Context { return c.tc }

// outgoing attaches the thread context metadata to ctx.
func (c *Client) outgoing(ctx context.Context) context.Context {
	md := c.tc.Metadata()
	if existing, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(existing, md)
	}
	if len(md) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// callCtx derives the context for one RPC: thread context metadata plus the
// default timeout when the caller brought no deadline.
func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	cancel := func() {}
	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
		}
	}
	return c.outgoing(ctx), cancel
}

// NewDBOption configures NewDB and NewDBFromAddr.
type NewDBOption func(*newDBOptions)

type newDBOptions struct {
	name        string
	collections []*api.CollectionConfig
}

// WithName names the database.
func WithName(name string) NewDBOption {
	return func(o *newDBOptions) { o.name = name }
}

// WithCollections registers collections at creation time.
func WithCollections(configs ...CollectionConfig) NewDBOption {
	return func(o *newDBOptions) {
		for i := range configs {
			o.collections = append(o.collections, &configs[i])
		}
	}
}

// NewDB creates a database for the given thread ID.
func (c *Client) NewDB(ctx context.Context, dbID thread.ID, opts ...NewDBOption) error {
	var o newDBOptions
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	if o.name != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, threadctx.ThreadNameKey, o.name)
	}
	_, err := c.rpc.NewDB(ctx, &api.NewDBRequest{
		DBID:        dbID.Bytes(),
		Name:        o.name,
		Collections: o.collections,
	})
	if err != nil {
		return rpcError("new db", err)
	}
	c.logger.Debug("db created", "db", dbID.String())
	return nil
}

// NewDBFromAddr joins a database that already exists at addr, using its key.
func (c *Client) NewDBFromAddr(ctx context.Context, addr ma.Multiaddr, key thread.Key, opts ...NewDBOption) error {
	var o newDBOptions
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err := c.rpc.NewDBFromAddr(ctx, &api.NewDBFromAddrRequest{
		Addr:        addr.Bytes(),
		Key:         key.Bytes(),
		Collections: o.collections,
	})
	if err != nil {
		return rpcError("new db from addr", err)
	}
	return nil
}

// ListDBs returns all databases visible to the caller.
func (c *Client) ListDBs(ctx context.Context) (map[thread.ID]Info, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.ListDBs(ctx, &api.ListDBsRequest{})
	if err != nil {
		return nil, rpcError("list dbs", err)
	}
	dbs := make(map[thread.ID]Info, len(rep.DBs))
	for _, e := range rep.DBs {
		id, err := thread.FromBytes(e.DBID)
		if err != nil {
			return nil, wrapError(KindDecode, "db id", err)
		}
		info, err := decodeInfo(e.Info)
		if err != nil {
			return nil, err
		}
		dbs[id] = info
	}
	return dbs, nil
}

// GetDBInfo returns the addresses and key of a database.
func (c *Client) GetDBInfo(ctx context.Context, dbID thread.ID) (Info, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.GetDBInfo(ctx, &api.GetDBInfoRequest{DBID: dbID.Bytes()})
	if err != nil {
		return Info{}, rpcError("get db info", err)
	}
	return decodeInfo(rep)
}

func decodeInfo(rep *api.GetDBInfoReply) (Info, error) {
	if rep == nil {
		return Info{}, newError(KindDecode, "missing db info")
	}
	info := Info{Name: rep.Name}
	for _, b := range rep.Addrs {
		addr, err := ma.NewMultiaddrBytes(b)
		if err != nil {
			return Info{}, wrapError(KindDecode, "db addr", err)
		}
		info.Addrs = append(info.Addrs, addr)
	}
	if len(rep.Key) > 0 {
		key, err := thread.KeyFromBytes(rep.Key)
		if err != nil {
			return Info{}, wrapError(KindDecode, "db key", err)
		}
		info.Key = key
	}
	return info, nil
}

// DeleteDB removes a database and everything in it.
func (c *Client) DeleteDB(ctx context.Context, dbID thread.ID) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	if _, err := c.rpc.DeleteDB(ctx, &api.DeleteDBRequest{DBID: dbID.Bytes()}); err != nil {
		return rpcError("delete db", err)
	}
	return nil
}

// NewCollection registers a collection in a database.
func (c *Client) NewCollection(ctx context.Context, dbID thread.ID, config CollectionConfig) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err := c.rpc.NewCollection(ctx, &api.NewCollectionRequest{DBID: dbID.Bytes(), Config: &config})
	if err != nil {
		return rpcError("new collection", err)
	}
	return nil
}

// UpdateCollection replaces a collection's schema, indexes and hooks.
func (c *Client) UpdateCollection(ctx context.Context, dbID thread.ID, config CollectionConfig) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err := c.rpc.UpdateCollection(ctx, &api.UpdateCollectionRequest{DBID: dbID.Bytes(), Config: &config})
	if err != nil {
		return rpcError("update collection", err)
	}
	return nil
}

// DeleteCollection removes a collection and its instances.
func (c *Client) DeleteCollection(ctx context.Context, dbID thread.ID, name string) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err := c.rpc.DeleteCollection(ctx, &api.DeleteCollectionRequest{DBID: dbID.Bytes(), Name: name})
	if err != nil {
		return rpcError("delete collection", err)
	}
	return nil
}

// GetCollectionInfo returns a collection's full configuration.
func (c *Client) GetCollectionInfo(ctx context.Context, dbID thread.ID, name string) (CollectionConfig, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.GetCollectionInfo(ctx, &api.GetCollectionInfoRequest{DBID: dbID.Bytes(), Name: name})
	if err != nil {
		return CollectionConfig{}, rpcError("get collection info", err)
	}
	return CollectionConfig{
		Name:           rep.Name,
		Schema:         rep.Schema,
		Indexes:        rep.Indexes,
		WriteValidator: rep.WriteValidator,
		ReadFilter:     rep.ReadFilter,
	}, nil
}

// GetCollectionIndexes returns a collection's indexes.
func (c *Client) GetCollectionIndexes(ctx context.Context, dbID thread.ID, name string) ([]*Index, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.GetCollectionIndexes(ctx, &api.GetCollectionIndexesRequest{DBID: dbID.Bytes(), Name: name})
	if err != nil {
		return nil, rpcError("get collection indexes", err)
	}
	return rep.Indexes, nil
}

// ListCollections returns the configurations of every collection in a
// database, sorted by name.
func (c *Client) ListCollections(ctx context.Context, dbID thread.ID) ([]CollectionConfig, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.ListCollections(ctx, &api.ListCollectionsRequest{DBID: dbID.Bytes()})
	if err != nil {
		return nil, rpcError("list collections", err)
	}
	configs := make([]CollectionConfig, 0, len(rep.Collections))
	for _, ci := range rep.Collections {
		configs = append(configs, CollectionConfig{
			Name:           ci.Name,
			Schema:         ci.Schema,
			Indexes:        ci.Indexes,
			WriteValidator: ci.WriteValidator,
			ReadFilter:     ci.ReadFilter,
		})
	}
	return configs, nil
}

func marshalInstances(instances Instances) ([][]byte, error) {
	out := make([][]byte, 0, len(instances))
	for _, in := range instances {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, wrapError(KindUsage, "marshal instance", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Create stores new instances and returns their IDs. Instances without an
// _id field are assigned one by the server.
func (c *Client) Create(ctx context.Context, dbID thread.ID, collectionName string, instances Instances) ([]string, error) {
	data, err := marshalInstances(instances)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.Create(ctx, &api.CreateRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		Instances:      data,
	})
	if err != nil {
		return nil, rpcError("create", err)
	}
	return rep.InstanceIDs, nil
}

// Save upserts instances. Every instance must carry an _id.
func (c *Client) Save(ctx context.Context, dbID thread.ID, collectionName string, instances Instances) error {
	data, err := marshalInstances(instances)
	if err != nil {
		return err
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err = c.rpc.Save(ctx, &api.SaveRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		Instances:      data,
	})
	if err != nil {
		return rpcError("save", err)
	}
	return nil
}

// Delete removes instances by ID.
func (c *Client) Delete(ctx context.Context, dbID thread.ID, collectionName string, instanceIDs []string) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err := c.rpc.Delete(ctx, &api.DeleteRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		InstanceIDs:    instanceIDs,
	})
	if err != nil {
		return rpcError("delete", err)
	}
	return nil
}

// Has reports whether all the given instances exist.
func (c *Client) Has(ctx context.Context, dbID thread.ID, collectionName string, instanceIDs []string) (bool, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.Has(ctx, &api.HasRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		InstanceIDs:    instanceIDs,
	})
	if err != nil {
		return false, rpcError("has", err)
	}
	return rep.Exists, nil
}

// Find returns the instances matching q as raw JSON documents. A nil q
// matches everything. Use DecodeInstances to unmarshal the result.
func (c *Client) Find(ctx context.Context, dbID thread.ID, collectionName string, q *query.Query) ([][]byte, error) {
	var qb []byte
	if q != nil {
		var err error
		if qb, err = q.Bytes(); err != nil {
			return nil, wrapError(KindUsage, "marshal query", err)
		}
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.Find(ctx, &api.FindRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		QueryJSON:      qb,
	})
	if err != nil {
		return nil, rpcError("find", err)
	}
	return rep.Instances, nil
}

// FindByID returns one instance as a raw JSON document.
func (c *Client) FindByID(ctx context.Context, dbID thread.ID, collectionName, instanceID string) ([]byte, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	rep, err := c.rpc.FindByID(ctx, &api.FindByIDRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		InstanceID:     instanceID,
	})
	if err != nil {
		return nil, rpcError("find by id", err)
	}
	return rep.Instance, nil
}

// Verify checks instances against the collection's write rules without
// storing them.
func (c *Client) Verify(ctx context.Context, dbID thread.ID, collectionName string, instances Instances) error {
	data, err := marshalInstances(instances)
	if err != nil {
		return err
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err = c.rpc.Verify(ctx, &api.VerifyRequest{
		DBID:           dbID.Bytes(),
		CollectionName: collectionName,
		Instances:      data,
	})
	if err != nil {
		return rpcError("verify", err)
	}
	return nil
}

// DecodeInstance unmarshals one raw instance.
func DecodeInstance[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, wrapError(KindDecode, "decode instance", err)
	}
	return v, nil
}

// DecodeInstances unmarshals a batch of raw instances.
func DecodeInstances[T any](data [][]byte) ([]T, error) {
	out := make([]T, 0, len(data))
	for _, b := range data {
		v, err := DecodeInstance[T](b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
