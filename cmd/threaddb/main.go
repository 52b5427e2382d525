// Command threaddb is a minimal client CLI for a threaddb service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"xdao.co/threaddb/client"
	"xdao.co/threaddb/keys"
	"xdao.co/threaddb/query"
	"xdao.co/threaddb/thread"
	"xdao.co/threaddb/threadctx"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "token":
		return cmdToken(args[1:], out, errOut)
	case "db":
		return cmdDB(args[1:], out, errOut)
	case "create":
		return cmdCreate(args[1:], out, errOut)
	case "find":
		return cmdFind(args[1:], out, errOut)
	case "listen":
		return cmdListen(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "threaddb: minimum threaddb client CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  threaddb key new")
	fmt.Fprintln(w, "  threaddb token --addr <host:port> --key <private-key>")
	fmt.Fprintln(w, "  threaddb db new --addr <host:port> [--name <name>] [--collection <name>]")
	fmt.Fprintln(w, "  threaddb db list --addr <host:port>")
	fmt.Fprintln(w, "  threaddb create --addr <host:port> --db <id> --collection <name> <json> [<json> ...]")
	fmt.Fprintln(w, "  threaddb find --addr <host:port> --db <id> --collection <name> [--where <field> --eq <value>]")
	fmt.Fprintln(w, "  threaddb listen --addr <host:port> --db <id> [--collection <name>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys and db ids are multibase base32 strings")
	fmt.Fprintln(w, "  - set --token <token> on any command that talks to a token-guarded service")
}

func dial(fs *flag.FlagSet, errOut io.Writer) (*client.Client, func(), bool) {
	addr := fs.Lookup("addr").Value.String()
	if addr == "" {
		fmt.Fprintln(errOut, "missing --addr")
		return nil, nil, false
	}
	opts := []client.Option{client.WithTimeout(10 * time.Second)}
	if tok := fs.Lookup("token").Value.String(); tok != "" {
		opts = append(opts, client.WithThreadContext(threadctx.New().WithToken(tok)))
	}
	c, err := client.Dial(addr, opts...)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return nil, nil, false
	}
	return c, func() { _ = c.Close() }, true
}

func connFlags(fs *flag.FlagSet) {
	fs.String("addr", "", "service address host:port")
	fs.String("token", "", "bearer token")
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 || fs.Arg(0) != "new" {
		fmt.Fprintln(errOut, "usage: threaddb key new")
		return 2
	}
	priv, err := keys.NewPrivateKey()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "private\t%s\n", priv.String())
	fmt.Fprintf(out, "public\t%s\n", priv.Public().String())
	return 0
}

func cmdToken(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	connFlags(fs)
	keyStr := fs.String("key", "", "private key (multibase)")
	_ = fs.Parse(args)
	if *keyStr == "" {
		fmt.Fprintln(errOut, "missing --key")
		return 2
	}
	priv, err := keys.PrivateKeyFromString(*keyStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	c, done, ok := dial(fs, errOut)
	if !ok {
		return 2
	}
	defer done()
	token, err := c.GetToken(context.Background(), priv)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, token)
	return 0
}

func cmdDB(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: threaddb db <new|list>")
		return 2
	}
	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("db "+sub, flag.ExitOnError)
	connFlags(fs)
	name := fs.String("name", "", "db name")
	collection := fs.String("collection", "", "create this collection too")
	_ = fs.Parse(rest)
	c, done, ok := dial(fs, errOut)
	if !ok {
		return 2
	}
	defer done()
	ctx := context.Background()

	switch sub {
	case "new":
		id := thread.New()
		var opts []client.NewDBOption
		if *name != "" {
			opts = append(opts, client.WithName(*name))
		}
		if *collection != "" {
			opts = append(opts, client.WithCollections(client.CollectionConfig{Name: *collection}))
		}
		if err := c.NewDB(ctx, id, opts...); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintln(out, id.String())
		return 0
	case "list":
		dbs, err := c.ListDBs(ctx)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		for id, info := range dbs {
			fmt.Fprintf(out, "%s\t%s\n", id.String(), info.Name)
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown db command: %s\n", sub)
		return 2
	}
}

func parseDB(fs *flag.FlagSet, errOut io.Writer) (thread.ID, bool) {
	raw := fs.Lookup("db").Value.String()
	id, err := thread.FromString(raw)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --db: %v\n", err)
		return thread.Undef, false
	}
	return id, true
}

func cmdCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	connFlags(fs)
	fs.String("db", "", "db id")
	collection := fs.String("collection", "", "collection name")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "missing instance JSON")
		return 2
	}
	instances := make(client.Instances, 0, fs.NArg())
	for _, arg := range fs.Args() {
		instances = append(instances, json.RawMessage(arg))
	}
	id, ok := parseDB(fs, errOut)
	if !ok {
		return 2
	}
	c, done, ok := dial(fs, errOut)
	if !ok {
		return 2
	}
	defer done()
	ids, err := c.Create(context.Background(), id, *collection, instances)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, iid := range ids {
		fmt.Fprintln(out, iid)
	}
	return 0
}

func cmdFind(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	connFlags(fs)
	fs.String("db", "", "db id")
	collection := fs.String("collection", "", "collection name")
	where := fs.String("where", "", "field path to compare")
	eq := fs.String("eq", "", "value the field must equal")
	_ = fs.Parse(args)
	id, ok := parseDB(fs, errOut)
	if !ok {
		return 2
	}
	var q *query.Query
	if *where != "" {
		var err error
		if q, err = query.Where(*where).Eq(*eq); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	c, done, ok := dial(fs, errOut)
	if !ok {
		return 2
	}
	defer done()
	res, err := c.Find(context.Background(), id, *collection, q)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, in := range res {
		fmt.Fprintf(out, "%s\n", in)
	}
	return 0
}

func cmdListen(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	connFlags(fs)
	fs.String("db", "", "db id")
	collection := fs.String("collection", "", "restrict to one collection")
	_ = fs.Parse(args)
	id, ok := parseDB(fs, errOut)
	if !ok {
		return 2
	}
	c, done, ok := dial(fs, errOut)
	if !ok {
		return 2
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	var filters []client.ListenFilter
	if *collection != "" {
		filters = append(filters, client.ListenFilter{CollectionName: *collection})
	}
	events, err := c.Listen(ctx, id, filters...)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for ev := range events {
		if ev.Err != nil {
			fmt.Fprintln(errOut, ev.Err)
			return 1
		}
		fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", ev.Collection, ev.InstanceID, ev.Action, ev.Instance)
	}
	return 0
}
