package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/api/apitest"
	"xdao.co/threaddb/keys"
	"xdao.co/threaddb/query"
	"xdao.co/threaddb/thread"
)

type person struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func newTestClient(t *testing.T, serverOpts []apitest.Option, clientOpts ...Option) (*Client, *apitest.Server) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	impl := apitest.NewServer(serverOpts...)
	srv := grpc.NewServer()
	api.RegisterAPIServer(srv, impl)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }
	opts := append([]Option{WithDialOptions(grpc.WithContextDialer(dialer))}, clientOpts...)
	c, err := Dial("passthrough:///bufnet", opts...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, impl
}

func newDB(t *testing.T, c *Client, collections ...CollectionConfig) thread.ID {
	t.Helper()
	id := thread.New()
	if err := c.NewDB(context.Background(), id, WithCollections(collections...)); err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	return id
}

func personCollection() CollectionConfig {
	return CollectionConfig{
		Name:    "Person",
		Indexes: []*Index{{Path: "name"}},
	}
}

func TestGetToken(t *testing.T) {
	c, _ := newTestClient(t, []apitest.Option{apitest.WithRequireToken()})
	ctx := context.Background()

	err := c.NewDB(ctx, thread.New())
	if err == nil {
		t.Fatal("NewDB without token: expected error")
	}
	if !IsKind(err, KindAuth) {
		t.Fatalf("NewDB without token: kind = %v, want Auth", err)
	}

	identity, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	token, err := c.GetToken(ctx, identity)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if token == "" {
		t.Fatal("GetToken: empty token")
	}
	if err := c.NewDB(ctx, thread.New()); err != nil {
		t.Fatalf("NewDB with token: %v", err)
	}
}

func TestGetTokenChallengeExternalSigner(t *testing.T) {
	c, _ := newTestClient(t, nil)
	identity, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	var signed []byte
	token, err := c.GetTokenChallenge(context.Background(), identity.Public(),
		func(_ context.Context, challenge []byte) ([]byte, error) {
			signed = challenge
			return identity.Sign(challenge), nil
		})
	if err != nil {
		t.Fatalf("GetTokenChallenge: %v", err)
	}
	if token == "" || len(signed) == 0 {
		t.Fatalf("token = %q, challenge length = %d", token, len(signed))
	}
}

func TestGetTokenWrongKey(t *testing.T) {
	c, _ := newTestClient(t, nil)
	identity, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	other, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	_, err = c.GetTokenChallenge(context.Background(), identity.Public(),
		func(_ context.Context, challenge []byte) ([]byte, error) {
			return other.Sign(challenge), nil
		})
	if !IsKind(err, KindAuth) {
		t.Fatalf("wrong signer: kind = %v, want Auth", err)
	}
}

// tokenOnlyAPI issues a token as soon as the key arrives, without ever
// challenging the caller.
type tokenOnlyAPI struct {
	api.UnimplementedAPIServer
	token string
}

func (s *tokenOnlyAPI) GetToken(stream api.API_GetTokenServer) error {
	if _, err := stream.Recv(); err != nil {
		return err
	}
	return stream.Send(&api.GetTokenReply{Token: s.token})
}

func TestGetTokenWithoutChallenge(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	api.RegisterAPIServer(srv, &tokenOnlyAPI{token: "pre-issued"})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }
	c, err := Dial("passthrough:///bufnet", WithDialOptions(grpc.WithContextDialer(dialer)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	identity, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	token, err := c.GetToken(context.Background(), identity)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if token != "pre-issued" {
		t.Fatalf("token = %q, want pre-issued", token)
	}
}

func TestDBLifecycle(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	id := thread.New()
	if err := c.NewDB(ctx, id, WithName("test-db")); err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if err := c.NewDB(ctx, id); err == nil {
		t.Fatal("duplicate NewDB: expected error")
	}

	info, err := c.GetDBInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetDBInfo: %v", err)
	}
	if info.Name != "test-db" {
		t.Fatalf("name = %q, want %q", info.Name, "test-db")
	}
	if !info.Key.Defined() || !info.Key.CanRead() {
		t.Fatal("expected full db key")
	}
	if len(info.Addrs) != 1 {
		t.Fatalf("addrs = %d, want 1", len(info.Addrs))
	}
	got, err := thread.FromAddr(info.Addrs[0])
	if err != nil {
		t.Fatalf("FromAddr: %v", err)
	}
	if got != id {
		t.Fatalf("addr id = %v, want %v", got, id)
	}

	dbs, err := c.ListDBs(ctx)
	if err != nil {
		t.Fatalf("ListDBs: %v", err)
	}
	if _, ok := dbs[id]; !ok {
		t.Fatalf("ListDBs: %v missing", id)
	}

	if err := c.DeleteDB(ctx, id); err != nil {
		t.Fatalf("DeleteDB: %v", err)
	}
	if _, err := c.GetDBInfo(ctx, id); err == nil {
		t.Fatal("GetDBInfo after delete: expected error")
	}
}

func TestNewDBFromAddr(t *testing.T) {
	origin, _ := newTestClient(t, nil)
	joiner, _ := newTestClient(t, nil)
	ctx := context.Background()

	id := newDB(t, origin, personCollection())
	info, err := origin.GetDBInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetDBInfo: %v", err)
	}
	err = joiner.NewDBFromAddr(ctx, info.Addrs[0], info.Key,
		WithCollections(personCollection()))
	if err != nil {
		t.Fatalf("NewDBFromAddr: %v", err)
	}
	joined, err := joiner.GetDBInfo(ctx, id)
	if err != nil {
		t.Fatalf("GetDBInfo on joiner: %v", err)
	}
	if string(joined.Key.Bytes()) != string(info.Key.Bytes()) {
		t.Fatal("joined db key mismatch")
	}
}

func TestCollections(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c)

	cfg := personCollection()
	if err := c.NewCollection(ctx, id, cfg); err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	if err := c.NewCollection(ctx, id, cfg); err == nil {
		t.Fatal("duplicate NewCollection: expected error")
	}

	got, err := c.GetCollectionInfo(ctx, id, "Person")
	if err != nil {
		t.Fatalf("GetCollectionInfo: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("collection config mismatch (-want +got):\n%s", diff)
	}

	cfg.Indexes = append(cfg.Indexes, &Index{Path: "age", Unique: false})
	if err := c.UpdateCollection(ctx, id, cfg); err != nil {
		t.Fatalf("UpdateCollection: %v", err)
	}
	idx, err := c.GetCollectionIndexes(ctx, id, "Person")
	if err != nil {
		t.Fatalf("GetCollectionIndexes: %v", err)
	}
	if len(idx) != 2 {
		t.Fatalf("indexes = %d, want 2", len(idx))
	}

	all, err := c.ListCollections(ctx, id)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(all) != 1 || all[0].Name != "Person" {
		t.Fatalf("collections = %+v", all)
	}

	if err := c.DeleteCollection(ctx, id, "Person"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if _, err := c.GetCollectionInfo(ctx, id, "Person"); err == nil {
		t.Fatal("GetCollectionInfo after delete: expected error")
	}
}

func TestInstanceCRUD(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	ids, err := c.Create(ctx, id, "Person", Instances{
		person{Name: "ada", Age: 36},
		person{ID: "grace", Name: "grace", Age: 45},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(ids) != 2 || ids[0] == "" || ids[1] != "grace" {
		t.Fatalf("instance ids = %v", ids)
	}

	exists, err := c.Has(ctx, id, "Person", ids)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !exists {
		t.Fatal("Has: expected true")
	}

	if err := c.Save(ctx, id, "Person", Instances{person{ID: "grace", Name: "grace", Age: 46}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := c.FindByID(ctx, id, "Person", "grace")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	got, err := DecodeInstance[person](raw)
	if err != nil {
		t.Fatalf("DecodeInstance: %v", err)
	}
	want := person{ID: "grace", Name: "grace", Age: 46}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("instance mismatch (-want +got):\n%s", diff)
	}

	if err := c.Verify(ctx, id, "Person", Instances{want}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := c.Verify(ctx, id, "Person", Instances{person{ID: "nobody"}}); err == nil {
		t.Fatal("Verify unknown instance: expected error")
	}

	if err := c.Delete(ctx, id, "Person", []string{"grace"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.FindByID(ctx, id, "Person", "grace"); err == nil {
		t.Fatal("FindByID after delete: expected error")
	}
}

func TestBatchFailureLeavesNoPartialState(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	_, err := c.Create(ctx, id, "Person", Instances{
		person{ID: "x", Name: "ada"},
		person{ID: "x", Name: "grace"},
	})
	if err == nil {
		t.Fatal("Create with duplicate ids: expected error")
	}
	exists, err := c.Has(ctx, id, "Person", []string{"x"})
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if exists {
		t.Fatal("failed create batch persisted an instance")
	}

	if _, err := c.Create(ctx, id, "Person", Instances{person{ID: "a", Name: "ada"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Delete(ctx, id, "Person", []string{"a", "missing"}); err == nil {
		t.Fatal("Delete with unknown id: expected error")
	}
	exists, err = c.Has(ctx, id, "Person", []string{"a"})
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !exists {
		t.Fatal("failed delete batch removed an instance")
	}
}

func TestFindWithQuery(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	_, err := c.Create(ctx, id, "Person", Instances{
		person{ID: "a", Name: "ada", Age: 36},
		person{ID: "b", Name: "grace", Age: 45},
		person{ID: "c", Name: "edsger", Age: 72},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	q, err := query.Where("age").Gt(40)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	raw, err := c.Find(ctx, id, "Person", q.OrderByDesc("age"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	people, err := DecodeInstances[person](raw)
	if err != nil {
		t.Fatalf("DecodeInstances: %v", err)
	}
	want := []person{
		{ID: "c", Name: "edsger", Age: 72},
		{ID: "b", Name: "grace", Age: 45},
	}
	if diff := cmp.Diff(want, people); diff != "" {
		t.Fatalf("find result mismatch (-want +got):\n%s", diff)
	}

	all, err := c.Find(ctx, id, "Person", nil)
	if err != nil {
		t.Fatalf("Find all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("find all = %d, want 3", len(all))
	}
}

func TestReadTransaction(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())
	if _, err := c.Create(ctx, id, "Person", Instances{person{ID: "a", Name: "ada", Age: 36}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	txn := c.ReadTransaction(id, "Person")
	if _, err := txn.Has("a"); !IsKind(err, KindUsage) {
		t.Fatalf("op before Start: kind = %v, want Usage", err)
	}
	if err := txn.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := txn.Start(ctx); !IsKind(err, KindUsage) {
		t.Fatalf("double Start: kind = %v, want Usage", err)
	}

	exists, err := txn.Has("a")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !exists {
		t.Fatal("Has: expected true")
	}
	raw, err := txn.FindByID("a")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	got, err := DecodeInstance[person](raw)
	if err != nil {
		t.Fatalf("DecodeInstance: %v", err)
	}
	if got.Name != "ada" {
		t.Fatalf("name = %q, want ada", got.Name)
	}
	q, err := query.Where("name").Eq("ada")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	res, err := txn.Find(q)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("find = %d, want 1", len(res))
	}

	if err := txn.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := txn.Has("a"); !IsKind(err, KindUsage) {
		t.Fatalf("op after End: kind = %v, want Usage", err)
	}
}

func TestWriteTransactionCommit(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	txn := c.WriteTransaction(id, "Person")
	if err := txn.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ids, err := txn.Create(Instances{person{Name: "ada", Age: 36}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v", ids)
	}

	// Staged writes are visible inside the transaction but not outside it.
	raw, err := txn.FindByID(ids[0])
	if err != nil {
		t.Fatalf("FindByID in txn: %v", err)
	}
	got, err := DecodeInstance[person](raw)
	if err != nil {
		t.Fatalf("DecodeInstance: %v", err)
	}
	want := person{ID: ids[0], Name: "ada", Age: 36}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("staged instance mismatch (-want +got):\n%s", diff)
	}
	if _, err := c.FindByID(ctx, id, "Person", ids[0]); err == nil {
		t.Fatal("uncommitted instance visible outside transaction")
	}

	if err := txn.Save(Instances{person{ID: ids[0], Name: "ada", Age: 37}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := txn.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	raw, err = c.FindByID(ctx, id, "Person", ids[0])
	if err != nil {
		t.Fatalf("FindByID after commit: %v", err)
	}
	got, err = DecodeInstance[person](raw)
	if err != nil {
		t.Fatalf("DecodeInstance: %v", err)
	}
	if got.Age != 37 {
		t.Fatalf("age = %d, want 37", got.Age)
	}
}

func TestWriteTransactionDiscard(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	txn := c.WriteTransaction(id, "Person")
	if err := txn.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ids, err := txn.Create(Instances{person{Name: "ada", Age: 36}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := txn.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := txn.Save(Instances{person{ID: ids[0], Name: "ada", Age: 99}}); err == nil {
		t.Fatal("Save after Discard: expected error")
	}
	if err := txn.End(); err == nil {
		t.Fatal("End after Discard: expected error")
	}

	if _, err := c.FindByID(ctx, id, "Person", ids[0]); err == nil {
		t.Fatal("discarded instance visible after End")
	}
}

func TestListen(t *testing.T) {
	c, impl := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	// Warm the transport before the leak snapshot so only the listen
	// goroutines are measured.
	if _, err := c.Create(ctx, id, "Person", Instances{person{ID: "warm"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	check := leaktest.CheckTimeout(t, 10*time.Second)

	lctx, cancel := context.WithCancel(ctx)
	events, err := c.Listen(lctx, id, ListenFilter{CollectionName: "Person"})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for impl.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := c.Create(ctx, id, "Person", Instances{person{ID: "a", Name: "ada"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Save(ctx, id, "Person", Instances{person{ID: "a", Name: "ada", Age: 36}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	wantActions := []Action{ActionCreate, ActionSave}
	for i, want := range wantActions {
		select {
		case ev := <-events:
			if ev.Err != nil {
				t.Fatalf("event %d: %v", i, ev.Err)
			}
			if ev.Action != want || ev.InstanceID != "a" || ev.Collection != "Person" {
				t.Fatalf("event %d = %+v, want action %v on Person/a", i, ev, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	for range events {
	}
	check()
}

func TestListenActionFilter(t *testing.T) {
	c, impl := newTestClient(t, nil)
	ctx := context.Background()
	id := newDB(t, c, personCollection())

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := c.Listen(lctx, id, ListenFilter{Action: ActionDelete})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for impl.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := c.Create(ctx, id, "Person", Instances{person{ID: "a"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Delete(ctx, id, "Person", []string{"a"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("event: %v", ev.Err)
		}
		if ev.Action != ActionDelete || ev.InstanceID != "a" {
			t.Fatalf("event = %+v, want delete of a", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}
