package client

import (
	"context"
	"io"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/keys"
)

// GetToken runs the challenge handshake with a local identity and attaches
// the issued token to the client's thread context.
func (c *Client) GetToken(ctx context.Context, identity keys.Identity) (string, error) {
	return c.GetTokenChallenge(ctx, identity.Public(), func(_ context.Context, challenge []byte) ([]byte, error) {
		return identity.Sign(challenge), nil
	})
}

// GetTokenChallenge runs the challenge handshake with an external signer,
// for callers whose private key lives elsewhere (a wallet, an HSM). The
// whole exchange is bounded by the client's token deadline.
func (c *Client) GetTokenChallenge(ctx context.Context, key keys.PublicKey, sign func(context.Context, []byte) ([]byte, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.tokenDeadline)
	defer cancel()
	stream, err := c.rpc.GetToken(c.outgoing(ctx))
	if err != nil {
		return "", rpcError("get token", err)
	}
	if err := stream.Send(&api.GetTokenRequest{Key: key.String()}); err != nil {
		return "", rpcError("send key", err)
	}
	// The server either challenges the caller or, once satisfied, sends the
	// token outright. Answer each challenge as it arrives and keep reading
	// until the server closes the stream.
	var token string
	for {
		rep, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", rpcError("receive handshake reply", err)
		}
		if len(rep.Challenge) > 0 {
			sig, err := sign(ctx, rep.Challenge)
			if err != nil {
				return "", wrapError(KindAuth, "sign challenge", err)
			}
			if err := stream.Send(&api.GetTokenRequest{Signature: sig}); err != nil {
				return "", rpcError("send signature", err)
			}
			// No further challenges follow a signature; half-close so the
			// server can finish the stream.
			if err := stream.CloseSend(); err != nil {
				return "", rpcError("close stream", err)
			}
		}
		if rep.Token != "" {
			token = rep.Token
		}
	}
	if token == "" {
		return "", newError(KindAuth, "handshake ended without a token")
	}
	c.tc.WithToken(token)
	c.logger.Debug("token acquired", "key", key.String())
	return token, nil
}
