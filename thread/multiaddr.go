package thread

import (
	ma "github.com/multiformats/go-multiaddr"
)

// Multiaddr protocol for addressing a database on a host, e.g.
// /ip4/127.0.0.1/tcp/4006/thread/<id>.
const (
	ProtocolName = "thread"
	ProtocolCode = 406
)

var transcoder = ma.NewTranscoderFromFunctions(threadStB, threadBtS, nil)

func threadStB(s string) ([]byte, error) {
	id, err := FromString(s)
	if err != nil {
		return nil, err
	}
	return id.Bytes(), nil
}

func threadBtS(b []byte) (string, error) {
	id, err := FromBytes(b)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func init() {
	if err := ma.AddProtocol(ma.Protocol{
		Name:       ProtocolName,
		Code:       ProtocolCode,
		VCode:      ma.CodeToVarint(ProtocolCode),
		Size:       ma.LengthPrefixedVarSize,
		Transcoder: transcoder,
	}); err != nil {
		panic(err)
	}
}

// FromAddr extracts the ID from a multiaddr carrying a /thread component.
func FromAddr(addr ma.Multiaddr) (ID, error) {
	s, err := addr.ValueForProtocol(ProtocolCode)
	if err != nil {
		return Undef, err
	}
	return FromString(s)
}

// Addr appends the ID as a /thread component to a host address.
func (i ID) Addr(host ma.Multiaddr) (ma.Multiaddr, error) {
	comp, err := ma.NewComponent(ProtocolName, i.String())
	if err != nil {
		return nil, err
	}
	return host.Encapsulate(comp), nil
}
