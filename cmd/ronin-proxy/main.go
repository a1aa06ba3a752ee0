// Command ronin-proxy runs the caching forward proxy. It takes a single
// positional argument, the listen port.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ronin-proxy/ronin/internal/admission"
	"github.com/ronin-proxy/ronin/internal/cachestore"
	"github.com/ronin-proxy/ronin/internal/handler"
	"github.com/ronin-proxy/ronin/internal/metrics"
	"github.com/ronin-proxy/ronin/internal/resolver"
	"github.com/ronin-proxy/ronin/internal/ronlog"
	"github.com/ronin-proxy/ronin/internal/server"
	"github.com/ronin-proxy/ronin/internal/upstream"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Too few arguments")
		return 1
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[0], err)
		return 1
	}

	cache := cachestore.New(
		cachestore.MaxTotalBytes(cachestore.DefaultMaxTotalBytes),
		cachestore.MaxEntryBytes(cachestore.DefaultMaxEntryBytes),
	)
	up := upstream.New(resolver.System{})
	sem := admission.New(admission.DefaultMaxClients)
	rec := metrics.New()
	h := handler.New(cache, up, sem, rec)

	srv, err := server.Listen(port, h)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer srv.Close()

	ronlog.Infof("listening on %s", srv.Addr())

	if err := srv.Serve(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}
