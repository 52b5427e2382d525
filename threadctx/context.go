// Package threadctx carries the per-session metadata attached to every
// threaddb RPC: session, thread, organization, API credential, and bearer
// token headers. One Context is shared by all calls in a logical session;
// mutators are builder-style and safe for concurrent use.
package threadctx

import (
	"sync"
	"time"

	"google.golang.org/grpc/metadata"

	"xdao.co/threaddb/security"
)

// Header keys written by this package.
const (
	ThreadNameKey    = "x-threaddb-thread-name"
	ThreadIDKey      = "x-threaddb-thread"
	SessionKey       = "x-threaddb-session"
	OrganizationKey  = "x-threaddb-org"
	APIKeyKey        = "x-threaddb-api-key"
	APISigKey        = "x-threaddb-api-sig"
	APISigMessageKey = "x-threaddb-api-sig-msg"
	AuthorizationKey = "authorization"
)

const authorizationScheme = "bearer "

// KeyInfo is an API key with its optional shared secret. A key without a
// secret identifies the caller; the secret additionally signs requests.
type KeyInfo struct {
	Key    string
	Secret string
}

// Context is a mutable header bag. Each With* method upserts its entry under
// a single lock and returns the same Context for chaining. Metadata returns
// a snapshot, so one Context may back any number of concurrent RPCs.
type Context struct {
	mu sync.Mutex
	md metadata.MD
}

// New returns an empty Context.
func New() *Context {
	return &Context{md: metadata.MD{}}
}

// WithSession sets the session header. Empty values are skipped.
func (c *Context) WithSession(session string) *Context {
	return c.withEntry(SessionKey, session)
}

// WithThread sets the thread-ID header. Empty values are skipped.
func (c *Context) WithThread(threadID string) *Context {
	return c.withEntry(ThreadIDKey, threadID)
}

// WithThreadName sets the thread-name header. Empty values are skipped.
func (c *Context) WithThreadName(name string) *Context {
	return c.withEntry(ThreadNameKey, name)
}

// WithOrganization sets the organization header. Empty values are skipped.
func (c *Context) WithOrganization(org string) *Context {
	return c.withEntry(OrganizationKey, org)
}

// WithAPIKey sets the API-key header. Empty values are skipped.
func (c *Context) WithAPIKey(key string) *Context {
	return c.withEntry(APIKeyKey, key)
}

// WithAPISig sets the signature and signature-message headers as a unit.
func (c *Context) WithAPISig(sig security.APISig) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(APISigKey, sig.Sig)
	c.setLocked(APISigMessageKey, sig.Msg)
	return c
}

// WithToken sets the authorization header to a bearer token. Empty values
// are skipped.
func (c *Context) WithToken(token string) *Context {
	if token == "" {
		return c
	}
	return c.withEntry(AuthorizationKey, authorizationScheme+token)
}

// WithKeyInfo sets the API-key header and, when the key carries a secret,
// computes and merges the signed credential for the given expiry date. A
// zero date uses the default validity window.
func (c *Context) WithKeyInfo(info KeyInfo, date time.Time) (*Context, error) {
	c.WithAPIKey(info.Key)
	if info.Secret == "" {
		return c, nil
	}
	sig, err := security.CreateAPISig(info.Secret, date)
	if err != nil {
		return c, err
	}
	return c.WithAPISig(sig), nil
}

// WithContext merges the other context's entries into this one, the other
// side winning on key collisions. The entry set is replaced atomically.
func (c *Context) WithContext(other *Context) *Context {
	if other == nil || other == c {
		return c
	}
	theirs := other.Metadata()
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := c.md.Copy()
	for k, v := range theirs {
		merged[k] = v
	}
	c.md = merged
	return c
}

// Metadata returns a snapshot of the current entries.
func (c *Context) Metadata() metadata.MD {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.md.Copy()
}

func (c *Context) withEntry(key, value string) *Context {
	if value == "" {
		return c
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
	return c
}

// setLocked replaces any previous values for key. Callers hold c.mu.
func (c *Context) setLocked(key, value string) {
	if value == "" {
		return
	}
	c.md.Set(key, value)
}
