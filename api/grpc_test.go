package api

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestJSONCodecEnvelope(t *testing.T) {
	in := &WriteTransactionRequest{
		SaveRequest: &SaveRequest{
			CollectionName: "Person",
			Instances:      [][]byte{[]byte(`{"_id":"a"}`)},
		},
	}
	b, err := jsonCodec{}.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out WriteTransactionRequest
	if err := (jsonCodec{}).Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.SaveRequest == nil {
		t.Fatal("SaveRequest variant lost")
	}
	if out.SaveRequest.CollectionName != "Person" || len(out.SaveRequest.Instances) != 1 {
		t.Fatalf("save request = %+v", out.SaveRequest)
	}
	if out.StartTransactionRequest != nil || out.CreateRequest != nil ||
		out.DeleteRequest != nil || out.EndTransactionRequest != nil {
		t.Fatal("envelope carries more than one variant")
	}
}

type infoServer struct {
	UnimplementedAPIServer
}

func (infoServer) GetDBInfo(_ context.Context, req *GetDBInfoRequest) (*GetDBInfoReply, error) {
	return &GetDBInfoReply{Name: "db-" + string(req.DBID)}, nil
}

func TestService_RoundTrip(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterAPIServer(srv, infoServer{})

	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cc.Close()

	client := NewAPIClient(cc)
	rep, err := client.GetDBInfo(context.Background(), &GetDBInfoRequest{DBID: []byte("x")})
	if err != nil {
		t.Fatalf("GetDBInfo: %v", err)
	}
	if rep.Name != "db-x" {
		t.Fatalf("name = %q, want db-x", rep.Name)
	}

	_, err = client.ListDBs(context.Background(), &ListDBsRequest{})
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("ListDBs on unimplemented server: code = %v, want Unimplemented", status.Code(err))
	}
}
