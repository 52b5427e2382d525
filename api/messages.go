// Package api defines the threaddb service surface: the wire messages for
// every RPC, the codec that carries them, and a hand-written gRPC service
// descriptor so the package needs no protoc/codegen toolchain.
package api

import "encoding/json"

// GetTokenRequest carries one leg of the token handshake: the public key in
// the opening message, the challenge signature in the closing one.
type GetTokenRequest struct {
	Key       string `json:"key,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// GetTokenReply carries either a challenge to sign or the issued token.
type GetTokenReply struct {
	Challenge []byte `json:"challenge,omitempty"`
	Token     string `json:"token,omitempty"`
}

type NewDBRequest struct {
	DBID        []byte              `json:"dbID"`
	Name        string              `json:"name,omitempty"`
	Collections []*CollectionConfig `json:"collections,omitempty"`
}

type NewDBReply struct{}

type NewDBFromAddrRequest struct {
	Addr        []byte              `json:"addr"`
	Key         []byte              `json:"key"`
	Collections []*CollectionConfig `json:"collections,omitempty"`
}

type ListDBsRequest struct{}

type ListDBsReply struct {
	DBs []*DBListing `json:"dbs,omitempty"`
}

type DBListing struct {
	DBID []byte          `json:"dbID"`
	Info *GetDBInfoReply `json:"info"`
}

type GetDBInfoRequest struct {
	DBID []byte `json:"dbID"`
}

type GetDBInfoReply struct {
	Addrs [][]byte `json:"addrs,omitempty"`
	Key   []byte   `json:"key,omitempty"`
	Name  string   `json:"name,omitempty"`
}

type DeleteDBRequest struct {
	DBID []byte `json:"dbID"`
}

type DeleteDBReply struct{}

// Index describes a single-field collection index.
type Index struct {
	Path   string `json:"path"`
	Unique bool   `json:"unique,omitempty"`
}

// CollectionConfig declares a collection: its name, JSON schema, indexes and
// optional validator/filter hooks (JavaScript source evaluated server-side).
type CollectionConfig struct {
	Name           string          `json:"name"`
	Schema         json.RawMessage `json:"schema,omitempty"`
	Indexes        []*Index        `json:"indexes,omitempty"`
	WriteValidator string          `json:"writeValidator,omitempty"`
	ReadFilter     string          `json:"readFilter,omitempty"`
}

type NewCollectionRequest struct {
	DBID   []byte            `json:"dbID"`
	Config *CollectionConfig `json:"config"`
}

type NewCollectionReply struct{}

type UpdateCollectionRequest struct {
	DBID   []byte            `json:"dbID"`
	Config *CollectionConfig `json:"config"`
}

type UpdateCollectionReply struct{}

type DeleteCollectionRequest struct {
	DBID []byte `json:"dbID"`
	Name string `json:"name"`
}

type DeleteCollectionReply struct{}

type GetCollectionInfoRequest struct {
	DBID []byte `json:"dbID"`
	Name string `json:"name"`
}

type GetCollectionInfoReply struct {
	Name           string          `json:"name"`
	Schema         json.RawMessage `json:"schema,omitempty"`
	Indexes        []*Index        `json:"indexes,omitempty"`
	WriteValidator string          `json:"writeValidator,omitempty"`
	ReadFilter     string          `json:"readFilter,omitempty"`
}

type GetCollectionIndexesRequest struct {
	DBID []byte `json:"dbID"`
	Name string `json:"name"`
}

type GetCollectionIndexesReply struct {
	Indexes []*Index `json:"indexes,omitempty"`
}

type ListCollectionsRequest struct {
	DBID []byte `json:"dbID"`
}

type ListCollectionsReply struct {
	Collections []*GetCollectionInfoReply `json:"collections,omitempty"`
}

// Instance payloads are opaque JSON documents; this layer never inspects
// them beyond the conventional _id field.

type CreateRequest struct {
	DBID           []byte   `json:"dbID"`
	CollectionName string   `json:"collectionName"`
	Instances      [][]byte `json:"instances"`
}

type CreateReply struct {
	InstanceIDs      []string `json:"instanceIDs,omitempty"`
	TransactionError string   `json:"transactionError,omitempty"`
}

type SaveRequest struct {
	DBID           []byte   `json:"dbID"`
	CollectionName string   `json:"collectionName"`
	Instances      [][]byte `json:"instances"`
}

type SaveReply struct {
	TransactionError string `json:"transactionError,omitempty"`
}

type DeleteRequest struct {
	DBID           []byte   `json:"dbID"`
	CollectionName string   `json:"collectionName"`
	InstanceIDs    []string `json:"instanceIDs"`
}

type DeleteReply struct {
	TransactionError string `json:"transactionError,omitempty"`
}

type HasRequest struct {
	DBID           []byte   `json:"dbID"`
	CollectionName string   `json:"collectionName"`
	InstanceIDs    []string `json:"instanceIDs"`
}

type HasReply struct {
	Exists           bool   `json:"exists"`
	TransactionError string `json:"transactionError,omitempty"`
}

type FindRequest struct {
	DBID           []byte `json:"dbID"`
	CollectionName string `json:"collectionName"`
	QueryJSON      []byte `json:"queryJSON,omitempty"`
}

type FindReply struct {
	Instances        [][]byte `json:"instances,omitempty"`
	TransactionError string   `json:"transactionError,omitempty"`
}

type FindByIDRequest struct {
	DBID           []byte `json:"dbID"`
	CollectionName string `json:"collectionName"`
	InstanceID     string `json:"instanceID"`
}

type FindByIDReply struct {
	Instance         []byte `json:"instance,omitempty"`
	TransactionError string `json:"transactionError,omitempty"`
}

type VerifyRequest struct {
	DBID           []byte   `json:"dbID"`
	CollectionName string   `json:"collectionName"`
	Instances      [][]byte `json:"instances"`
}

type VerifyReply struct {
	TransactionError string `json:"transactionError,omitempty"`
}

type StartTransactionRequest struct {
	DBID           []byte `json:"dbID"`
	CollectionName string `json:"collectionName"`
}

type DiscardRequest struct{}

type DiscardReply struct{}

type EndTransactionRequest struct{}

type EndTransactionReply struct {
	TransactionError string `json:"transactionError,omitempty"`
}

// ReadTransactionRequest is a tagged envelope: exactly one variant is
// populated per message.
type ReadTransactionRequest struct {
	StartTransactionRequest *StartTransactionRequest `json:"startTransactionRequest,omitempty"`
	HasRequest              *HasRequest              `json:"hasRequest,omitempty"`
	FindRequest             *FindRequest             `json:"findRequest,omitempty"`
	FindByIDRequest         *FindByIDRequest         `json:"findByIDRequest,omitempty"`
	EndTransactionRequest   *EndTransactionRequest   `json:"endTransactionRequest,omitempty"`
}

// ReadTransactionReply mirrors ReadTransactionRequest: one variant per
// message, in the order the requests arrived.
type ReadTransactionReply struct {
	HasReply            *HasReply            `json:"hasReply,omitempty"`
	FindReply           *FindReply           `json:"findReply,omitempty"`
	FindByIDReply       *FindByIDReply       `json:"findByIDReply,omitempty"`
	EndTransactionReply *EndTransactionReply `json:"endTransactionReply,omitempty"`
}

// WriteTransactionRequest is the read envelope extended with mutations.
type WriteTransactionRequest struct {
	StartTransactionRequest *StartTransactionRequest `json:"startTransactionRequest,omitempty"`
	HasRequest              *HasRequest              `json:"hasRequest,omitempty"`
	FindRequest             *FindRequest             `json:"findRequest,omitempty"`
	FindByIDRequest         *FindByIDRequest         `json:"findByIDRequest,omitempty"`
	CreateRequest           *CreateRequest           `json:"createRequest,omitempty"`
	SaveRequest             *SaveRequest             `json:"saveRequest,omitempty"`
	DeleteRequest           *DeleteRequest           `json:"deleteRequest,omitempty"`
	VerifyRequest           *VerifyRequest           `json:"verifyRequest,omitempty"`
	DiscardRequest          *DiscardRequest          `json:"discardRequest,omitempty"`
	EndTransactionRequest   *EndTransactionRequest   `json:"endTransactionRequest,omitempty"`
}

type WriteTransactionReply struct {
	HasReply            *HasReply            `json:"hasReply,omitempty"`
	FindReply           *FindReply           `json:"findReply,omitempty"`
	FindByIDReply       *FindByIDReply       `json:"findByIDReply,omitempty"`
	CreateReply         *CreateReply         `json:"createReply,omitempty"`
	SaveReply           *SaveReply           `json:"saveReply,omitempty"`
	DeleteReply         *DeleteReply         `json:"deleteReply,omitempty"`
	VerifyReply         *VerifyReply         `json:"verifyReply,omitempty"`
	DiscardReply        *DiscardReply        `json:"discardReply,omitempty"`
	EndTransactionReply *EndTransactionReply `json:"endTransactionReply,omitempty"`
}

// ListenAction selects which mutations a listen filter admits.
type ListenAction int32

const (
	ListenAll ListenAction = iota
	ListenCreate
	ListenSave
	ListenDelete
)

// ListenFilter narrows a subscription to a collection, an instance, an
// action kind, or any combination.
type ListenFilter struct {
	CollectionName string       `json:"collectionName,omitempty"`
	InstanceID     string       `json:"instanceID,omitempty"`
	Action         ListenAction `json:"action,omitempty"`
}

type ListenRequest struct {
	DBID    []byte          `json:"dbID"`
	Filters []*ListenFilter `json:"filters,omitempty"`
}

// ListenReply is one mutation event pushed by the server.
type ListenReply struct {
	CollectionName string       `json:"collectionName"`
	InstanceID     string       `json:"instanceID"`
	Action         ListenAction `json:"action"`
	Instance       []byte       `json:"instance,omitempty"`
}
