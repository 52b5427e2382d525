// Package apitest provides an in-memory threaddb service for exercising
// clients over bufconn. Databases, collections and instances live in maps,
// tokens are issued through the real challenge handshake, and listen
// subscribers receive events in commit order.
package apitest

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"pkt.systems/pslog"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/keys"
	"xdao.co/threaddb/query"
	"xdao.co/threaddb/thread"
	"xdao.co/threaddb/threadctx"
)

const discardedError = "transaction discarded"

// Server implements api.APIServer in memory.
type Server struct {
	api.UnimplementedAPIServer

	logger       pslog.Logger
	requireToken bool
	host         ma.Multiaddr

	mu     sync.Mutex
	tokens map[string]string
	dbs    map[thread.ID]*db
	subs   map[*subscriber]struct{}
}

type db struct {
	name        string
	key         thread.Key
	collections map[string]*collection
}

type collection struct {
	config    api.CollectionConfig
	order     []string
	instances map[string][]byte
}

type subscriber struct {
	id      thread.ID
	filters []*api.ListenFilter
	ch      chan *api.ListenReply
}

// Option configures a Server.
type Option func(*Server)

// WithRequireToken makes every call outside GetToken demand a bearer token
// previously issued by GetToken.
func WithRequireToken() Option {
	return func(s *Server) { s.requireToken = true }
}

// WithLogger supplies a logger for server diagnostics.
func WithLogger(logger pslog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHostAddr sets the host address reported by GetDBInfo.
func WithHostAddr(addr ma.Multiaddr) Option {
	return func(s *Server) { s.host = addr }
}

// NewServer returns an empty in-memory server.
func NewServer(opts ...Option) *Server {
	host, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4006")
	if err != nil {
		panic(err)
	}
	s := &Server{
		logger: pslog.NoopLogger(),
		host:   host,
		tokens: make(map[string]string),
		dbs:    make(map[thread.ID]*db),
		subs:   make(map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) authorize(ctx context.Context) error {
	if !s.requireToken {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get(threadctx.AuthorizationKey) {
		tok, ok := strings.CutPrefix(v, "bearer ")
		if !ok {
			continue
		}
		s.mu.Lock()
		_, issued := s.tokens[tok]
		s.mu.Unlock()
		if issued {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "token required")
}

// GetToken runs the challenge handshake: key in, challenge out, signature
// in, token out.
func (s *Server) GetToken(stream api.API_GetTokenServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}
	if req.Key == "" {
		return status.Error(codes.InvalidArgument, "public key required")
	}
	pub, err := keys.PublicKeyFromString(req.Key)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid public key: %v", err)
	}
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return status.Errorf(codes.Internal, "challenge: %v", err)
	}
	if err := stream.Send(&api.GetTokenReply{Challenge: challenge}); err != nil {
		return err
	}
	sig, err := stream.Recv()
	if err != nil {
		return err
	}
	if !pub.Verify(challenge, sig.Signature) {
		return status.Error(codes.Unauthenticated, "challenge verification failed")
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = req.Key
	s.mu.Unlock()
	s.logger.Debug("token issued", "key", req.Key)
	return stream.Send(&api.GetTokenReply{Token: token})
}

func (s *Server) dbLocked(dbID []byte) (thread.ID, *db, error) {
	id, err := thread.FromBytes(dbID)
	if err != nil {
		return thread.Undef, nil, status.Errorf(codes.InvalidArgument, "invalid db id: %v", err)
	}
	d, ok := s.dbs[id]
	if !ok {
		return thread.Undef, nil, status.Error(codes.NotFound, "db not found")
	}
	return id, d, nil
}

func (d *db) collection(name string) (*collection, error) {
	c, ok := d.collections[name]
	if !ok {
		return nil, status.Error(codes.NotFound, "collection not found")
	}
	return c, nil
}

func (s *Server) NewDB(ctx context.Context, req *api.NewDBRequest) (*api.NewDBReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	id, err := thread.FromBytes(req.DBID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid db id: %v", err)
	}
	key, err := thread.NewRandomKey(true)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "key: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[id]; ok {
		return nil, status.Error(codes.AlreadyExists, "db already exists")
	}
	d := &db{name: req.Name, key: key, collections: make(map[string]*collection)}
	for _, cfg := range req.Collections {
		if cfg == nil || cfg.Name == "" {
			return nil, status.Error(codes.InvalidArgument, "collection requires a name")
		}
		d.collections[cfg.Name] = newCollection(cfg)
	}
	s.dbs[id] = d
	s.logger.Debug("db created", "db", id.String(), "name", req.Name)
	return &api.NewDBReply{}, nil
}

func (s *Server) NewDBFromAddr(ctx context.Context, req *api.NewDBFromAddrRequest) (*api.NewDBReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	addr, err := ma.NewMultiaddrBytes(req.Addr)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid addr: %v", err)
	}
	id, err := thread.FromAddr(addr)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid addr: %v", err)
	}
	key, err := thread.KeyFromBytes(req.Key)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid key: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[id]; ok {
		return nil, status.Error(codes.AlreadyExists, "db already exists")
	}
	d := &db{key: key, collections: make(map[string]*collection)}
	for _, cfg := range req.Collections {
		if cfg == nil || cfg.Name == "" {
			return nil, status.Error(codes.InvalidArgument, "collection requires a name")
		}
		d.collections[cfg.Name] = newCollection(cfg)
	}
	s.dbs[id] = d
	return &api.NewDBReply{}, nil
}

func (s *Server) ListDBs(ctx context.Context, _ *api.ListDBsRequest) (*api.ListDBsReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rep := &api.ListDBsReply{}
	for id, d := range s.dbs {
		info, err := s.dbInfoLocked(id, d)
		if err != nil {
			return nil, err
		}
		rep.DBs = append(rep.DBs, &api.DBListing{DBID: id.Bytes(), Info: info})
	}
	sort.Slice(rep.DBs, func(i, j int) bool {
		return string(rep.DBs[i].DBID) < string(rep.DBs[j].DBID)
	})
	return rep, nil
}

func (s *Server) dbInfoLocked(id thread.ID, d *db) (*api.GetDBInfoReply, error) {
	addr, err := id.Addr(s.host)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "addr: %v", err)
	}
	return &api.GetDBInfoReply{
		Addrs: [][]byte{addr.Bytes()},
		Key:   d.key.Bytes(),
		Name:  d.name,
	}, nil
}

func (s *Server) GetDBInfo(ctx context.Context, req *api.GetDBInfoRequest) (*api.GetDBInfoReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	return s.dbInfoLocked(id, d)
}

func (s *Server) DeleteDB(ctx context.Context, req *api.DeleteDBRequest) (*api.DeleteDBReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	delete(s.dbs, id)
	return &api.DeleteDBReply{}, nil
}

func newCollection(cfg *api.CollectionConfig) *collection {
	return &collection{config: *cfg, instances: make(map[string][]byte)}
}

func (s *Server) NewCollection(ctx context.Context, req *api.NewCollectionRequest) (*api.NewCollectionReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if req.Config == nil || req.Config.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "collection requires a name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	if _, ok := d.collections[req.Config.Name]; ok {
		return nil, status.Error(codes.AlreadyExists, "collection already exists")
	}
	d.collections[req.Config.Name] = newCollection(req.Config)
	return &api.NewCollectionReply{}, nil
}

func (s *Server) UpdateCollection(ctx context.Context, req *api.UpdateCollectionRequest) (*api.UpdateCollectionReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if req.Config == nil || req.Config.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "collection requires a name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	c, err := d.collection(req.Config.Name)
	if err != nil {
		return nil, err
	}
	c.config = *req.Config
	return &api.UpdateCollectionReply{}, nil
}

func (s *Server) DeleteCollection(ctx context.Context, req *api.DeleteCollectionRequest) (*api.DeleteCollectionReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	if _, err := d.collection(req.Name); err != nil {
		return nil, err
	}
	delete(d.collections, req.Name)
	return &api.DeleteCollectionReply{}, nil
}

func collectionInfo(c *collection) *api.GetCollectionInfoReply {
	return &api.GetCollectionInfoReply{
		Name:           c.config.Name,
		Schema:         c.config.Schema,
		Indexes:        c.config.Indexes,
		WriteValidator: c.config.WriteValidator,
		ReadFilter:     c.config.ReadFilter,
	}
}

func (s *Server) GetCollectionInfo(ctx context.Context, req *api.GetCollectionInfoRequest) (*api.GetCollectionInfoReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	c, err := d.collection(req.Name)
	if err != nil {
		return nil, err
	}
	return collectionInfo(c), nil
}

func (s *Server) GetCollectionIndexes(ctx context.Context, req *api.GetCollectionIndexesRequest) (*api.GetCollectionIndexesReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	c, err := d.collection(req.Name)
	if err != nil {
		return nil, err
	}
	return &api.GetCollectionIndexesReply{Indexes: c.config.Indexes}, nil
}

func (s *Server) ListCollections(ctx context.Context, req *api.ListCollectionsRequest) (*api.ListCollectionsReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d, err := s.dbLocked(req.DBID)
	if err != nil {
		return nil, err
	}
	rep := &api.ListCollectionsReply{}
	for _, c := range d.collections {
		rep.Collections = append(rep.Collections, collectionInfo(c))
	}
	sort.Slice(rep.Collections, func(i, j int) bool {
		return rep.Collections[i].Name < rep.Collections[j].Name
	})
	return rep, nil
}

// Instance operations. The core logic lives on collection so the same code
// serves both the unary path and staged transactions.

func instanceID(instance []byte) (string, map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(instance, &doc); err != nil {
		return "", nil, status.Errorf(codes.InvalidArgument, "invalid instance: %v", err)
	}
	id, _ := doc["_id"].(string)
	return id, doc, nil
}

// create validates the whole batch before touching the collection so a
// failure anywhere leaves no partial state behind.
func (c *collection) create(instances [][]byte) ([]string, []*api.ListenReply, error) {
	ids := make([]string, 0, len(instances))
	docs := make([][]byte, 0, len(instances))
	batch := make(map[string]struct{}, len(instances))
	for _, in := range instances {
		id, doc, err := instanceID(in)
		if err != nil {
			return nil, nil, err
		}
		if id == "" {
			id = uuid.NewString()
			doc["_id"] = id
			if in, err = json.Marshal(doc); err != nil {
				return nil, nil, status.Errorf(codes.Internal, "instance: %v", err)
			}
		}
		if _, ok := c.instances[id]; ok {
			return nil, nil, status.Error(codes.AlreadyExists, "instance already exists")
		}
		if _, ok := batch[id]; ok {
			return nil, nil, status.Error(codes.AlreadyExists, "instance already exists")
		}
		batch[id] = struct{}{}
		ids = append(ids, id)
		docs = append(docs, in)
	}
	events := make([]*api.ListenReply, 0, len(ids))
	for i, id := range ids {
		c.instances[id] = docs[i]
		c.order = append(c.order, id)
		events = append(events, &api.ListenReply{
			CollectionName: c.config.Name,
			InstanceID:     id,
			Action:         api.ListenCreate,
			Instance:       docs[i],
		})
	}
	return ids, events, nil
}

// save applies the batch only after every instance validates.
func (c *collection) save(instances [][]byte) ([]*api.ListenReply, error) {
	ids := make([]string, 0, len(instances))
	for _, in := range instances {
		id, _, err := instanceID(in)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, status.Error(codes.InvalidArgument, "instance requires an _id")
		}
		ids = append(ids, id)
	}
	events := make([]*api.ListenReply, 0, len(instances))
	for i, id := range ids {
		if _, ok := c.instances[id]; !ok {
			c.order = append(c.order, id)
		}
		c.instances[id] = instances[i]
		events = append(events, &api.ListenReply{
			CollectionName: c.config.Name,
			InstanceID:     id,
			Action:         api.ListenSave,
			Instance:       instances[i],
		})
	}
	return events, nil
}

// remove checks every id before deleting any of them.
func (c *collection) remove(ids []string) ([]*api.ListenReply, error) {
	for _, id := range ids {
		if _, ok := c.instances[id]; !ok {
			return nil, status.Error(codes.NotFound, "instance not found")
		}
	}
	events := make([]*api.ListenReply, 0, len(ids))
	for _, id := range ids {
		delete(c.instances, id)
		for i, o := range c.order {
			if o == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		events = append(events, &api.ListenReply{
			CollectionName: c.config.Name,
			InstanceID:     id,
			Action:         api.ListenDelete,
		})
	}
	return events, nil
}

func (c *collection) has(ids []string) bool {
	for _, id := range ids {
		if _, ok := c.instances[id]; !ok {
			return false
		}
	}
	return true
}

func (c *collection) find(queryJSON []byte) ([][]byte, error) {
	all := make([][]byte, 0, len(c.order))
	for _, id := range c.order {
		all = append(all, c.instances[id])
	}
	if len(queryJSON) == 0 {
		return all, nil
	}
	q, err := query.FromBytes(queryJSON)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid query: %v", err)
	}
	res, err := q.Apply(all)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "query: %v", err)
	}
	return res, nil
}

func (c *collection) findByID(id string) ([]byte, error) {
	in, ok := c.instances[id]
	if !ok {
		return nil, status.Error(codes.NotFound, "instance not found")
	}
	return in, nil
}

func (c *collection) verify(instances [][]byte) error {
	for _, in := range instances {
		id, _, err := instanceID(in)
		if err != nil {
			return err
		}
		if id == "" {
			return status.Error(codes.InvalidArgument, "instance requires an _id")
		}
		if _, ok := c.instances[id]; !ok {
			return status.Error(codes.NotFound, "instance not found")
		}
	}
	return nil
}

func (c *collection) clone() *collection {
	n := &collection{
		config:    c.config,
		order:     append([]string(nil), c.order...),
		instances: make(map[string][]byte, len(c.instances)),
	}
	for k, v := range c.instances {
		n.instances[k] = v
	}
	return n
}

// lookup resolves a db and collection under the lock.
func (s *Server) lookup(dbID []byte, name string) (thread.ID, *collection, error) {
	id, d, err := s.dbLocked(dbID)
	if err != nil {
		return thread.Undef, nil, err
	}
	c, err := d.collection(name)
	if err != nil {
		return thread.Undef, nil, err
	}
	return id, c, nil
}

func (s *Server) Create(ctx context.Context, req *api.CreateRequest) (*api.CreateReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	ids, events, err := c.create(req.Instances)
	if err != nil {
		return nil, err
	}
	s.publishLocked(id, events)
	return &api.CreateReply{InstanceIDs: ids}, nil
}

func (s *Server) Save(ctx context.Context, req *api.SaveRequest) (*api.SaveReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	events, err := c.save(req.Instances)
	if err != nil {
		return nil, err
	}
	s.publishLocked(id, events)
	return &api.SaveReply{}, nil
}

func (s *Server) Delete(ctx context.Context, req *api.DeleteRequest) (*api.DeleteReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	events, err := c.remove(req.InstanceIDs)
	if err != nil {
		return nil, err
	}
	s.publishLocked(id, events)
	return &api.DeleteReply{}, nil
}

func (s *Server) Has(ctx context.Context, req *api.HasRequest) (*api.HasReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	return &api.HasReply{Exists: c.has(req.InstanceIDs)}, nil
}

func (s *Server) Find(ctx context.Context, req *api.FindRequest) (*api.FindReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	res, err := c.find(req.QueryJSON)
	if err != nil {
		return nil, err
	}
	return &api.FindReply{Instances: res}, nil
}

func (s *Server) FindByID(ctx context.Context, req *api.FindByIDRequest) (*api.FindByIDReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	in, err := c.findByID(req.InstanceID)
	if err != nil {
		return nil, err
	}
	return &api.FindByIDReply{Instance: in}, nil
}

func (s *Server) Verify(ctx context.Context, req *api.VerifyRequest) (*api.VerifyReply, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, err := s.lookup(req.DBID, req.CollectionName)
	if err != nil {
		return nil, err
	}
	if err := c.verify(req.Instances); err != nil {
		return nil, err
	}
	return &api.VerifyReply{}, nil
}

// ReadTransaction serves lookups against the committed state, one reply per
// request, until EndTransaction or stream close.
func (s *Server) ReadTransaction(stream api.API_ReadTransactionServer) error {
	if err := s.authorize(stream.Context()); err != nil {
		return err
	}
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	start := first.StartTransactionRequest
	if start == nil {
		return status.Error(codes.FailedPrecondition, "transaction not started")
	}
	s.mu.Lock()
	_, _, err = s.lookup(start.DBID, start.CollectionName)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var rep api.ReadTransactionReply
		s.mu.Lock()
		_, c, err := s.lookup(start.DBID, start.CollectionName)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		switch {
		case req.HasRequest != nil:
			rep.HasReply = &api.HasReply{Exists: c.has(req.HasRequest.InstanceIDs)}
		case req.FindRequest != nil:
			res, err := c.find(req.FindRequest.QueryJSON)
			rep.FindReply = &api.FindReply{Instances: res, TransactionError: errText(err)}
		case req.FindByIDRequest != nil:
			in, err := c.findByID(req.FindByIDRequest.InstanceID)
			rep.FindByIDReply = &api.FindByIDReply{Instance: in, TransactionError: errText(err)}
		case req.EndTransactionRequest != nil:
			rep.EndTransactionReply = &api.EndTransactionReply{}
			s.mu.Unlock()
			return stream.Send(&rep)
		default:
			s.mu.Unlock()
			return status.Error(codes.InvalidArgument, "empty transaction request")
		}
		s.mu.Unlock()
		if err := stream.Send(&rep); err != nil {
			return err
		}
	}
}

// WriteTransaction stages mutations on a copy of the collection. End commits
// the staged state and publishes the buffered events; Discard voids the
// commit and makes End report the discard.
func (s *Server) WriteTransaction(stream api.API_WriteTransactionServer) error {
	if err := s.authorize(stream.Context()); err != nil {
		return err
	}
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	start := first.StartTransactionRequest
	if start == nil {
		return status.Error(codes.FailedPrecondition, "transaction not started")
	}
	s.mu.Lock()
	id, c, err := s.lookup(start.DBID, start.CollectionName)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	staged := c.clone()
	s.mu.Unlock()

	var events []*api.ListenReply
	discarded := false
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var rep api.WriteTransactionReply
		switch {
		case req.HasRequest != nil:
			rep.HasReply = &api.HasReply{Exists: staged.has(req.HasRequest.InstanceIDs)}
		case req.FindRequest != nil:
			res, err := staged.find(req.FindRequest.QueryJSON)
			rep.FindReply = &api.FindReply{Instances: res, TransactionError: errText(err)}
		case req.FindByIDRequest != nil:
			in, err := staged.findByID(req.FindByIDRequest.InstanceID)
			rep.FindByIDReply = &api.FindByIDReply{Instance: in, TransactionError: errText(err)}
		case req.CreateRequest != nil:
			rep.CreateReply = &api.CreateReply{}
			if discarded {
				rep.CreateReply.TransactionError = discardedError
				break
			}
			ids, evs, err := staged.create(req.CreateRequest.Instances)
			rep.CreateReply.InstanceIDs = ids
			rep.CreateReply.TransactionError = errText(err)
			events = append(events, evs...)
		case req.SaveRequest != nil:
			rep.SaveReply = &api.SaveReply{}
			if discarded {
				rep.SaveReply.TransactionError = discardedError
				break
			}
			evs, err := staged.save(req.SaveRequest.Instances)
			rep.SaveReply.TransactionError = errText(err)
			events = append(events, evs...)
		case req.DeleteRequest != nil:
			rep.DeleteReply = &api.DeleteReply{}
			if discarded {
				rep.DeleteReply.TransactionError = discardedError
				break
			}
			evs, err := staged.remove(req.DeleteRequest.InstanceIDs)
			rep.DeleteReply.TransactionError = errText(err)
			events = append(events, evs...)
		case req.VerifyRequest != nil:
			rep.VerifyReply = &api.VerifyReply{TransactionError: errText(staged.verify(req.VerifyRequest.Instances))}
		case req.DiscardRequest != nil:
			discarded = true
			rep.DiscardReply = &api.DiscardReply{}
		case req.EndTransactionRequest != nil:
			rep.EndTransactionReply = &api.EndTransactionReply{}
			if discarded {
				rep.EndTransactionReply.TransactionError = discardedError
				return stream.Send(&rep)
			}
			s.mu.Lock()
			_, live, err := s.lookup(start.DBID, start.CollectionName)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			live.order = staged.order
			live.instances = staged.instances
			s.publishLocked(id, events)
			s.mu.Unlock()
			return stream.Send(&rep)
		default:
			return status.Error(codes.InvalidArgument, "empty transaction request")
		}
		if err := stream.Send(&rep); err != nil {
			return err
		}
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return status.Convert(err).Message()
}

// Listen pushes mutation events for one db until the client goes away.
func (s *Server) Listen(req *api.ListenRequest, stream api.API_ListenServer) error {
	if err := s.authorize(stream.Context()); err != nil {
		return err
	}
	s.mu.Lock()
	id, _, err := s.dbLocked(req.DBID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	sub := &subscriber{id: id, filters: req.Filters, ch: make(chan *api.ListenReply, 256)}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub.ch:
			if err := stream.Send(ev); err != nil {
				return err
			}
		}
	}
}

// Subscribers reports the number of active listen subscribers. Tests use it
// to wait for a subscription to land before mutating.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) publishLocked(id thread.ID, events []*api.ListenReply) {
	for sub := range s.subs {
		if sub.id != id {
			continue
		}
		for _, ev := range events {
			if !matches(sub.filters, ev) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				s.logger.Warn("listen subscriber overflow", "db", id.String())
			}
		}
	}
}

func matches(filters []*api.ListenFilter, ev *api.ListenReply) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.CollectionName != "" && f.CollectionName != ev.CollectionName {
			continue
		}
		if f.InstanceID != "" && f.InstanceID != ev.InstanceID {
			continue
		}
		if f.Action != api.ListenAll && f.Action != ev.Action {
			continue
		}
		return true
	}
	return false
}
