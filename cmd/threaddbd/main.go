// Command threaddbd serves the in-memory threaddb API over TCP. It exists
// for development and integration testing; state is lost on exit.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/grpc"
	"pkt.systems/pslog"

	"xdao.co/threaddb/api"
	"xdao.co/threaddb/api/apitest"
)

func main() {
	fs := flag.NewFlagSet("threaddbd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:4006", "listen address")
	requireToken := fs.Bool("require-token", false, "demand a GetToken bearer token on every call")
	hostAddr := fs.String("host-addr", "", "multiaddr reported by GetDBInfo (defaults to the listen address)")

	_ = fs.Parse(os.Args[1:])

	logger := pslog.NewStructured(os.Stderr)

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	opts := []apitest.Option{apitest.WithLogger(logger)}
	if *requireToken {
		opts = append(opts, apitest.WithRequireToken())
	}
	host := *hostAddr
	if host == "" {
		tcp := lis.Addr().(*net.TCPAddr)
		host = fmt.Sprintf("/ip4/%s/tcp/%d", tcp.IP.String(), tcp.Port)
	}
	addr, err := ma.NewMultiaddr(host)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts = append(opts, apitest.WithHostAddr(addr))

	s := grpc.NewServer()
	api.RegisterAPIServer(s, apitest.NewServer(opts...))

	logger.Info("threaddbd listening", "addr", lis.Addr().String(), "require_token", *requireToken)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
