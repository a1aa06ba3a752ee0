// Package upstream resolves the origin, opens a TCP connection, writes
// the rewritten request, and relays the response back to the client in
// fixed-size chunks while accumulating it for the cache.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mailgun/multibuf"
	"golang.org/x/net/http/httpguts"

	"github.com/ronin-proxy/ronin/internal/reqparse"
	"github.com/ronin-proxy/ronin/internal/resolver"
)

// RelayChunk is the fixed unit of read-from-upstream and write-to-client.
const RelayChunk = 4096

// defaultPort is used when the parsed request carried no explicit port.
const defaultPort = "80"

// accumulator buffering thresholds: keep small responses entirely in
// memory, spill larger ones to a temp file rather than grow the worker's
// heap without bound while a possibly-oversize response is relayed.
const (
	accumulatorMemBytes = 1 << 20 // 1 MiB
	accumulatorMaxBytes = -1      // unlimited: the cache enforces its own per-entry limit
)

// ErrUpstream wraps any resolve/connect/send failure, and a failure of the
// response accumulator.
var ErrUpstream = errors.New("upstream: failed")

// DialFunc opens a TCP connection to addr; overridable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client dials origins and relays their responses. The zero value is not
// usable; use New.
type Client struct {
	Resolver resolver.Resolver
	Dial     DialFunc
}

// New returns a Client that resolves via r and dials with net.Dialer.
func New(r resolver.Resolver) *Client {
	d := &net.Dialer{Timeout: 30 * time.Second}
	return &Client{
		Resolver: r,
		Dial:     d.DialContext,
	}
}

// Relay rewrites req, resolves and dials the origin, sends the request,
// and streams the response back to client as it arrives. It returns the
// full accumulated response body for the caller to offer to the cache.
// A partial relay (client write or upstream read failed after some bytes
// were delivered) is not an error: only resolve/connect/send failures and
// accumulator failures are.
func (c *Client) Relay(ctx context.Context, client io.Writer, req *reqparse.Request, raw []byte) ([]byte, error) {
	normalizeHeaders(req)
	buf := buildRequest(req)

	host := req.Host
	ip, err := c.Resolver.ResolveIPv4(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrUpstream, host, err)
	}

	port := req.Port
	if port == "" {
		port = defaultPort
	}
	addr := net.JoinHostPort(ip.String(), port)

	conn, err := c.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %v", ErrUpstream, addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(buf); err != nil {
		return nil, fmt.Errorf("%w: send: %v", ErrUpstream, err)
	}

	return relayResponse(conn, client)
}

// buildRequest assembles "GET <path> <version>\r\n", the serialized
// headers, and the terminating blank line. Header serialization overflow
// is tolerated: whatever fits is sent.
func buildRequest(req *reqparse.Request) []byte {
	line := fmt.Sprintf("GET %s %s\r\n", req.Path, req.Version)
	buf := append([]byte(nil), line...)

	out, err := reqparse.Unparse(req, buf, 64*1024)
	if err != nil && !errors.Is(err, reqparse.ErrOverflow) {
		out = buf
	}
	return append(out, "\r\n"...)
}

// normalizeHeaders overwrites Connection to close (the proxy never keeps
// upstream connections alive), fills in Host if the client omitted it,
// and drops any header whose name or value would not be valid to put on
// the wire (golang.org/x/net/http/httpguts, the same validation net/http
// itself performs).
func normalizeHeaders(req *reqparse.Request) {
	_ = reqparse.HeaderSet(req, "Connection", "close")
	if _, ok := reqparse.HeaderGet(req, "Host"); !ok {
		_ = reqparse.HeaderSet(req, "Host", req.Host)
	}

	for _, h := range reqparse.Headers(req) {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			reqparse.DeleteHeader(req, h.Name)
		}
	}
}

// relayResponse reads from upstream in RelayChunk-sized chunks, forwards
// each chunk to client immediately, and accumulates the full body (via a
// disk-spilling multibuf.WriterOnce) for the cache. It returns whatever
// was accumulated even if a read or client-write error cut the loop
// short: a partial transfer still reached the client, so it is not a
// relay failure.
func relayResponse(upstream io.Reader, client io.Writer) ([]byte, error) {
	acc, err := multibuf.NewWriterOnce(
		multibuf.MaxBytes(accumulatorMaxBytes),
		multibuf.MemBytes(accumulatorMemBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: accumulator: %v", ErrUpstream, err)
	}

	var total int
	chunk := make([]byte, RelayChunk)
	for {
		n, readErr := upstream.Read(chunk)
		if n > 0 {
			if _, writeErr := client.Write(chunk[:n]); writeErr != nil {
				break
			}
			if _, writeErr := acc.Write(chunk[:n]); writeErr != nil {
				break
			}
			total += n
		}
		if readErr != nil {
			break
		}
	}

	// An origin that closes before producing any bytes still yields an
	// empty body for the caller to cache.
	if total == 0 {
		acc.Close()
		return []byte{}, nil
	}

	reader, err := acc.Reader()
	if err != nil {
		acc.Close()
		return nil, fmt.Errorf("%w: accumulator read: %v", ErrUpstream, err)
	}
	body, err := io.ReadAll(reader)
	reader.Close()
	acc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: accumulator drain: %v", ErrUpstream, err)
	}
	return body, nil
}
