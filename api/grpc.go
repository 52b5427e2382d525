package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "threaddb.api.v1.API"

func methodPath(method string) string { return "/" + ServiceName + "/" + method }

// APIServer is the server API for the threaddb service.
//
// Messages travel through the JSON codec registered in this package, so
// neither side needs a protoc/codegen toolchain.
type APIServer interface {
	GetToken(API_GetTokenServer) error

	NewDB(context.Context, *NewDBRequest) (*NewDBReply, error)
	NewDBFromAddr(context.Context, *NewDBFromAddrRequest) (*NewDBReply, error)
	ListDBs(context.Context, *ListDBsRequest) (*ListDBsReply, error)
	GetDBInfo(context.Context, *GetDBInfoRequest) (*GetDBInfoReply, error)
	DeleteDB(context.Context, *DeleteDBRequest) (*DeleteDBReply, error)

	NewCollection(context.Context, *NewCollectionRequest) (*NewCollectionReply, error)
	UpdateCollection(context.Context, *UpdateCollectionRequest) (*UpdateCollectionReply, error)
	DeleteCollection(context.Context, *DeleteCollectionRequest) (*DeleteCollectionReply, error)
	GetCollectionInfo(context.Context, *GetCollectionInfoRequest) (*GetCollectionInfoReply, error)
	GetCollectionIndexes(context.Context, *GetCollectionIndexesRequest) (*GetCollectionIndexesReply, error)
	ListCollections(context.Context, *ListCollectionsRequest) (*ListCollectionsReply, error)

	Create(context.Context, *CreateRequest) (*CreateReply, error)
	Save(context.Context, *SaveRequest) (*SaveReply, error)
	Delete(context.Context, *DeleteRequest) (*DeleteReply, error)
	Has(context.Context, *HasRequest) (*HasReply, error)
	Find(context.Context, *FindRequest) (*FindReply, error)
	FindByID(context.Context, *FindByIDRequest) (*FindByIDReply, error)
	Verify(context.Context, *VerifyRequest) (*VerifyReply, error)

	ReadTransaction(API_ReadTransactionServer) error
	WriteTransaction(API_WriteTransactionServer) error
	Listen(*ListenRequest, API_ListenServer) error
}

// UnimplementedAPIServer can be embedded to have forward compatible implementations.
type UnimplementedAPIServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedAPIServer) GetToken(API_GetTokenServer) error { return unimplemented("GetToken") }
func (UnimplementedAPIServer) NewDB(context.Context, *NewDBRequest) (*NewDBReply, error) {
	return nil, unimplemented("NewDB")
}
func (UnimplementedAPIServer) NewDBFromAddr(context.Context, *NewDBFromAddrRequest) (*NewDBReply, error) {
	return nil, unimplemented("NewDBFromAddr")
}
func (UnimplementedAPIServer) ListDBs(context.Context, *ListDBsRequest) (*ListDBsReply, error) {
	return nil, unimplemented("ListDBs")
}
func (UnimplementedAPIServer) GetDBInfo(context.Context, *GetDBInfoRequest) (*GetDBInfoReply, error) {
	return nil, unimplemented("GetDBInfo")
}
func (UnimplementedAPIServer) DeleteDB(context.Context, *DeleteDBRequest) (*DeleteDBReply, error) {
	return nil, unimplemented("DeleteDB")
}
func (UnimplementedAPIServer) NewCollection(context.Context, *NewCollectionRequest) (*NewCollectionReply, error) {
	return nil, unimplemented("NewCollection")
}
func (UnimplementedAPIServer) UpdateCollection(context.Context, *UpdateCollectionRequest) (*UpdateCollectionReply, error) {
	return nil, unimplemented("UpdateCollection")
}
func (UnimplementedAPIServer) DeleteCollection(context.Context, *DeleteCollectionRequest) (*DeleteCollectionReply, error) {
	return nil, unimplemented("DeleteCollection")
}
func (UnimplementedAPIServer) GetCollectionInfo(context.Context, *GetCollectionInfoRequest) (*GetCollectionInfoReply, error) {
	return nil, unimplemented("GetCollectionInfo")
}
func (UnimplementedAPIServer) GetCollectionIndexes(context.Context, *GetCollectionIndexesRequest) (*GetCollectionIndexesReply, error) {
	return nil, unimplemented("GetCollectionIndexes")
}
func (UnimplementedAPIServer) ListCollections(context.Context, *ListCollectionsRequest) (*ListCollectionsReply, error) {
	return nil, unimplemented("ListCollections")
}
func (UnimplementedAPIServer) Create(context.Context, *CreateRequest) (*CreateReply, error) {
	return nil, unimplemented("Create")
}
func (UnimplementedAPIServer) Save(context.Context, *SaveRequest) (*SaveReply, error) {
	return nil, unimplemented("Save")
}
func (UnimplementedAPIServer) Delete(context.Context, *DeleteRequest) (*DeleteReply, error) {
	return nil, unimplemented("Delete")
}
func (UnimplementedAPIServer) Has(context.Context, *HasRequest) (*HasReply, error) {
	return nil, unimplemented("Has")
}
func (UnimplementedAPIServer) Find(context.Context, *FindRequest) (*FindReply, error) {
	return nil, unimplemented("Find")
}
func (UnimplementedAPIServer) FindByID(context.Context, *FindByIDRequest) (*FindByIDReply, error) {
	return nil, unimplemented("FindByID")
}
func (UnimplementedAPIServer) Verify(context.Context, *VerifyRequest) (*VerifyReply, error) {
	return nil, unimplemented("Verify")
}
func (UnimplementedAPIServer) ReadTransaction(API_ReadTransactionServer) error {
	return unimplemented("ReadTransaction")
}
func (UnimplementedAPIServer) WriteTransaction(API_WriteTransactionServer) error {
	return unimplemented("WriteTransaction")
}
func (UnimplementedAPIServer) Listen(*ListenRequest, API_ListenServer) error {
	return unimplemented("Listen")
}

// RegisterAPIServer registers the threaddb service on a gRPC server.
func RegisterAPIServer(s grpc.ServiceRegistrar, srv APIServer) {
	s.RegisterService(&API_ServiceDesc, srv)
}

// APIClient is the client API for the threaddb service.
type APIClient interface {
	GetToken(ctx context.Context, opts ...grpc.CallOption) (API_GetTokenClient, error)

	NewDB(ctx context.Context, in *NewDBRequest, opts ...grpc.CallOption) (*NewDBReply, error)
	NewDBFromAddr(ctx context.Context, in *NewDBFromAddrRequest, opts ...grpc.CallOption) (*NewDBReply, error)
	ListDBs(ctx context.Context, in *ListDBsRequest, opts ...grpc.CallOption) (*ListDBsReply, error)
	GetDBInfo(ctx context.Context, in *GetDBInfoRequest, opts ...grpc.CallOption) (*GetDBInfoReply, error)
	DeleteDB(ctx context.Context, in *DeleteDBRequest, opts ...grpc.CallOption) (*DeleteDBReply, error)

	NewCollection(ctx context.Context, in *NewCollectionRequest, opts ...grpc.CallOption) (*NewCollectionReply, error)
	UpdateCollection(ctx context.Context, in *UpdateCollectionRequest, opts ...grpc.CallOption) (*UpdateCollectionReply, error)
	DeleteCollection(ctx context.Context, in *DeleteCollectionRequest, opts ...grpc.CallOption) (*DeleteCollectionReply, error)
	GetCollectionInfo(ctx context.Context, in *GetCollectionInfoRequest, opts ...grpc.CallOption) (*GetCollectionInfoReply, error)
	GetCollectionIndexes(ctx context.Context, in *GetCollectionIndexesRequest, opts ...grpc.CallOption) (*GetCollectionIndexesReply, error)
	ListCollections(ctx context.Context, in *ListCollectionsRequest, opts ...grpc.CallOption) (*ListCollectionsReply, error)

	Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*CreateReply, error)
	Save(ctx context.Context, in *SaveRequest, opts ...grpc.CallOption) (*SaveReply, error)
	Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteReply, error)
	Has(ctx context.Context, in *HasRequest, opts ...grpc.CallOption) (*HasReply, error)
	Find(ctx context.Context, in *FindRequest, opts ...grpc.CallOption) (*FindReply, error)
	FindByID(ctx context.Context, in *FindByIDRequest, opts ...grpc.CallOption) (*FindByIDReply, error)
	Verify(ctx context.Context, in *VerifyRequest, opts ...grpc.CallOption) (*VerifyReply, error)

	ReadTransaction(ctx context.Context, opts ...grpc.CallOption) (API_ReadTransactionClient, error)
	WriteTransaction(ctx context.Context, opts ...grpc.CallOption) (API_WriteTransactionClient, error)
	Listen(ctx context.Context, in *ListenRequest, opts ...grpc.CallOption) (API_ListenClient, error)
}

type apiClient struct{ cc grpc.ClientConnInterface }

func NewAPIClient(cc grpc.ClientConnInterface) APIClient { return &apiClient{cc: cc} }

func invoke[Req, Rep any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Rep, error) {
	out := new(Rep)
	if err := cc.Invoke(ctx, methodPath(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) NewDB(ctx context.Context, in *NewDBRequest, opts ...grpc.CallOption) (*NewDBReply, error) {
	return invoke[NewDBRequest, NewDBReply](ctx, c.cc, "NewDB", in, opts)
}
func (c *apiClient) NewDBFromAddr(ctx context.Context, in *NewDBFromAddrRequest, opts ...grpc.CallOption) (*NewDBReply, error) {
	return invoke[NewDBFromAddrRequest, NewDBReply](ctx, c.cc, "NewDBFromAddr", in, opts)
}
func (c *apiClient) ListDBs(ctx context.Context, in *ListDBsRequest, opts ...grpc.CallOption) (*ListDBsReply, error) {
	return invoke[ListDBsRequest, ListDBsReply](ctx, c.cc, "ListDBs", in, opts)
}
func (c *apiClient) GetDBInfo(ctx context.Context, in *GetDBInfoRequest, opts ...grpc.CallOption) (*GetDBInfoReply, error) {
	return invoke[GetDBInfoRequest, GetDBInfoReply](ctx, c.cc, "GetDBInfo", in, opts)
}
func (c *apiClient) DeleteDB(ctx context.Context, in *DeleteDBRequest, opts ...grpc.CallOption) (*DeleteDBReply, error) {
	return invoke[DeleteDBRequest, DeleteDBReply](ctx, c.cc, "DeleteDB", in, opts)
}
func (c *apiClient) NewCollection(ctx context.Context, in *NewCollectionRequest, opts ...grpc.CallOption) (*NewCollectionReply, error) {
	return invoke[NewCollectionRequest, NewCollectionReply](ctx, c.cc, "NewCollection", in, opts)
}
func (c *apiClient) UpdateCollection(ctx context.Context, in *UpdateCollectionRequest, opts ...grpc.CallOption) (*UpdateCollectionReply, error) {
	return invoke[UpdateCollectionRequest, UpdateCollectionReply](ctx, c.cc, "UpdateCollection", in, opts)
}
func (c *apiClient) DeleteCollection(ctx context.Context, in *DeleteCollectionRequest, opts ...grpc.CallOption) (*DeleteCollectionReply, error) {
	return invoke[DeleteCollectionRequest, DeleteCollectionReply](ctx, c.cc, "DeleteCollection", in, opts)
}
func (c *apiClient) GetCollectionInfo(ctx context.Context, in *GetCollectionInfoRequest, opts ...grpc.CallOption) (*GetCollectionInfoReply, error) {
	return invoke[GetCollectionInfoRequest, GetCollectionInfoReply](ctx, c.cc, "GetCollectionInfo", in, opts)
}
func (c *apiClient) GetCollectionIndexes(ctx context.Context, in *GetCollectionIndexesRequest, opts ...grpc.CallOption) (*GetCollectionIndexesReply, error) {
	return invoke[GetCollectionIndexesRequest, GetCollectionIndexesReply](ctx, c.cc, "GetCollectionIndexes", in, opts)
}
func (c *apiClient) ListCollections(ctx context.Context, in *ListCollectionsRequest, opts ...grpc.CallOption) (*ListCollectionsReply, error) {
	return invoke[ListCollectionsRequest, ListCollectionsReply](ctx, c.cc, "ListCollections", in, opts)
}
func (c *apiClient) Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*CreateReply, error) {
	return invoke[CreateRequest, CreateReply](ctx, c.cc, "Create", in, opts)
}
func (c *apiClient) Save(ctx context.Context, in *SaveRequest, opts ...grpc.CallOption) (*SaveReply, error) {
	return invoke[SaveRequest, SaveReply](ctx, c.cc, "Save", in, opts)
}
func (c *apiClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteReply, error) {
	return invoke[DeleteRequest, DeleteReply](ctx, c.cc, "Delete", in, opts)
}
func (c *apiClient) Has(ctx context.Context, in *HasRequest, opts ...grpc.CallOption) (*HasReply, error) {
	return invoke[HasRequest, HasReply](ctx, c.cc, "Has", in, opts)
}
func (c *apiClient) Find(ctx context.Context, in *FindRequest, opts ...grpc.CallOption) (*FindReply, error) {
	return invoke[FindRequest, FindReply](ctx, c.cc, "Find", in, opts)
}
func (c *apiClient) FindByID(ctx context.Context, in *FindByIDRequest, opts ...grpc.CallOption) (*FindByIDReply, error) {
	return invoke[FindByIDRequest, FindByIDReply](ctx, c.cc, "FindByID", in, opts)
}
func (c *apiClient) Verify(ctx context.Context, in *VerifyRequest, opts ...grpc.CallOption) (*VerifyReply, error) {
	return invoke[VerifyRequest, VerifyReply](ctx, c.cc, "Verify", in, opts)
}

// Stream interfaces follow the generated-code naming convention so the call
// sites read the same as they would against a protoc service.

type API_GetTokenClient interface {
	Send(*GetTokenRequest) error
	Recv() (*GetTokenReply, error)
	grpc.ClientStream
}

type API_GetTokenServer interface {
	Send(*GetTokenReply) error
	Recv() (*GetTokenRequest, error)
	grpc.ServerStream
}

type API_ReadTransactionClient interface {
	Send(*ReadTransactionRequest) error
	Recv() (*ReadTransactionReply, error)
	grpc.ClientStream
}

type API_ReadTransactionServer interface {
	Send(*ReadTransactionReply) error
	Recv() (*ReadTransactionRequest, error)
	grpc.ServerStream
}

type API_WriteTransactionClient interface {
	Send(*WriteTransactionRequest) error
	Recv() (*WriteTransactionReply, error)
	grpc.ClientStream
}

type API_WriteTransactionServer interface {
	Send(*WriteTransactionReply) error
	Recv() (*WriteTransactionRequest, error)
	grpc.ServerStream
}

type API_ListenClient interface {
	Recv() (*ListenReply, error)
	grpc.ClientStream
}

type API_ListenServer interface {
	Send(*ListenReply) error
	grpc.ServerStream
}

type clientStream[Req, Rep any] struct{ grpc.ClientStream }

func (s *clientStream[Req, Rep]) Send(m *Req) error { return s.SendMsg(m) }

func (s *clientStream[Req, Rep]) Recv() (*Rep, error) {
	m := new(Rep)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type serverStream[Req, Rep any] struct{ grpc.ServerStream }

func (s *serverStream[Req, Rep]) Send(m *Rep) error { return s.SendMsg(m) }

func (s *serverStream[Req, Rep]) Recv() (*Req, error) {
	m := new(Req)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *apiClient) GetToken(ctx context.Context, opts ...grpc.CallOption) (API_GetTokenClient, error) {
	s, err := c.cc.NewStream(ctx, &API_ServiceDesc.Streams[0], methodPath("GetToken"), opts...)
	if err != nil {
		return nil, err
	}
	return &clientStream[GetTokenRequest, GetTokenReply]{s}, nil
}

func (c *apiClient) ReadTransaction(ctx context.Context, opts ...grpc.CallOption) (API_ReadTransactionClient, error) {
	s, err := c.cc.NewStream(ctx, &API_ServiceDesc.Streams[1], methodPath("ReadTransaction"), opts...)
	if err != nil {
		return nil, err
	}
	return &clientStream[ReadTransactionRequest, ReadTransactionReply]{s}, nil
}

func (c *apiClient) WriteTransaction(ctx context.Context, opts ...grpc.CallOption) (API_WriteTransactionClient, error) {
	s, err := c.cc.NewStream(ctx, &API_ServiceDesc.Streams[2], methodPath("WriteTransaction"), opts...)
	if err != nil {
		return nil, err
	}
	return &clientStream[WriteTransactionRequest, WriteTransactionReply]{s}, nil
}

func (c *apiClient) Listen(ctx context.Context, in *ListenRequest, opts ...grpc.CallOption) (API_ListenClient, error) {
	s, err := c.cc.NewStream(ctx, &API_ServiceDesc.Streams[3], methodPath("Listen"), opts...)
	if err != nil {
		return nil, err
	}
	if err := s.SendMsg(in); err != nil {
		return nil, err
	}
	if err := s.CloseSend(); err != nil {
		return nil, err
	}
	return &clientStream[ListenRequest, ListenReply]{s}, nil
}

func unaryHandler[Req any](method string, call func(APIServer, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(APIServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath(method)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(APIServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func _API_GetToken_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(APIServer).GetToken(&serverStream[GetTokenRequest, GetTokenReply]{stream})
}

func _API_ReadTransaction_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(APIServer).ReadTransaction(&serverStream[ReadTransactionRequest, ReadTransactionReply]{stream})
}

func _API_WriteTransaction_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(APIServer).WriteTransaction(&serverStream[WriteTransactionRequest, WriteTransactionReply]{stream})
}

func _API_Listen_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(ListenRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(APIServer).Listen(m, &serverStream[ListenRequest, ListenReply]{stream})
}

// API_ServiceDesc is the grpc.ServiceDesc for the threaddb service.
var API_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*APIServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("NewDB", func(s APIServer, ctx context.Context, in *NewDBRequest) (interface{}, error) {
			return s.NewDB(ctx, in)
		}),
		unaryHandler("NewDBFromAddr", func(s APIServer, ctx context.Context, in *NewDBFromAddrRequest) (interface{}, error) {
			return s.NewDBFromAddr(ctx, in)
		}),
		unaryHandler("ListDBs", func(s APIServer, ctx context.Context, in *ListDBsRequest) (interface{}, error) {
			return s.ListDBs(ctx, in)
		}),
		unaryHandler("GetDBInfo", func(s APIServer, ctx context.Context, in *GetDBInfoRequest) (interface{}, error) {
			return s.GetDBInfo(ctx, in)
		}),
		unaryHandler("DeleteDB", func(s APIServer, ctx context.Context, in *DeleteDBRequest) (interface{}, error) {
			return s.DeleteDB(ctx, in)
		}),
		unaryHandler("NewCollection", func(s APIServer, ctx context.Context, in *NewCollectionRequest) (interface{}, error) {
			return s.NewCollection(ctx, in)
		}),
		unaryHandler("UpdateCollection", func(s APIServer, ctx context.Context, in *UpdateCollectionRequest) (interface{}, error) {
			return s.UpdateCollection(ctx, in)
		}),
		unaryHandler("DeleteCollection", func(s APIServer, ctx context.Context, in *DeleteCollectionRequest) (interface{}, error) {
			return s.DeleteCollection(ctx, in)
		}),
		unaryHandler("GetCollectionInfo", func(s APIServer, ctx context.Context, in *GetCollectionInfoRequest) (interface{}, error) {
			return s.GetCollectionInfo(ctx, in)
		}),
		unaryHandler("GetCollectionIndexes", func(s APIServer, ctx context.Context, in *GetCollectionIndexesRequest) (interface{}, error) {
			return s.GetCollectionIndexes(ctx, in)
		}),
		unaryHandler("ListCollections", func(s APIServer, ctx context.Context, in *ListCollectionsRequest) (interface{}, error) {
			return s.ListCollections(ctx, in)
		}),
		unaryHandler("Create", func(s APIServer, ctx context.Context, in *CreateRequest) (interface{}, error) {
			return s.Create(ctx, in)
		}),
		unaryHandler("Save", func(s APIServer, ctx context.Context, in *SaveRequest) (interface{}, error) {
			return s.Save(ctx, in)
		}),
		unaryHandler("Delete", func(s APIServer, ctx context.Context, in *DeleteRequest) (interface{}, error) {
			return s.Delete(ctx, in)
		}),
		unaryHandler("Has", func(s APIServer, ctx context.Context, in *HasRequest) (interface{}, error) {
			return s.Has(ctx, in)
		}),
		unaryHandler("Find", func(s APIServer, ctx context.Context, in *FindRequest) (interface{}, error) {
			return s.Find(ctx, in)
		}),
		unaryHandler("FindByID", func(s APIServer, ctx context.Context, in *FindByIDRequest) (interface{}, error) {
			return s.FindByID(ctx, in)
		}),
		unaryHandler("Verify", func(s APIServer, ctx context.Context, in *VerifyRequest) (interface{}, error) {
			return s.Verify(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetToken", Handler: _API_GetToken_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "ReadTransaction", Handler: _API_ReadTransaction_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "WriteTransaction", Handler: _API_WriteTransaction_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "Listen", Handler: _API_Listen_Handler, ServerStreams: true},
	},
}
