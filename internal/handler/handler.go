// Package handler implements the per-connection request state machine:
// read the request, serve from cache or relay from the origin, record
// the result, and tear the connection down on every exit path.
package handler

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ronin-proxy/ronin/internal/admission"
	"github.com/ronin-proxy/ronin/internal/cachestore"
	"github.com/ronin-proxy/ronin/internal/metrics"
	"github.com/ronin-proxy/ronin/internal/reqparse"
	"github.com/ronin-proxy/ronin/internal/respond"
	"github.com/ronin-proxy/ronin/internal/ronlog"
	"github.com/ronin-proxy/ronin/internal/upstream"
)

// ReqBuffer bounds the request read. A request whose headers never
// complete within this many bytes is rejected with 400 rather than
// growing the buffer without bound.
const ReqBuffer = 4096

// errBufferOverflow means the request grew past ReqBuffer without the
// end-of-headers marker appearing.
var errBufferOverflow = errors.New("handler: request exceeds buffer without end of headers")

var terminator = []byte("\r\n\r\n")

// Handler holds the process-wide collaborators a connection needs. One
// Handler is shared by every worker goroutine; all of its fields are
// themselves safe for concurrent use.
type Handler struct {
	Cache     *cachestore.Store
	Upstream  *upstream.Client
	Admission *admission.Semaphore
	Metrics   *metrics.Recorder
}

// New builds a Handler from its collaborators.
func New(cache *cachestore.Store, up *upstream.Client, sem *admission.Semaphore, m *metrics.Recorder) *Handler {
	return &Handler{Cache: cache, Upstream: up, Admission: sem, Metrics: m}
}

// Handle runs the full per-connection protocol. It always returns after
// closing conn and releasing the admission permit, regardless of which
// exit path was taken.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	h.Admission.Acquire()
	defer h.Admission.Release()
	defer conn.Close()

	log := ronlog.WithField("peer", conn.RemoteAddr())

	raw, err := readRequest(conn)
	if err != nil {
		if errors.Is(err, errBufferOverflow) {
			respond.Write(conn, 400)
			log.Warnf("request exceeded %d bytes without end of headers", ReqBuffer)
		} else {
			log.Debugf("reading request: %v", err)
		}
		return
	}

	if body, hit := h.Cache.Find(raw); hit {
		start := time.Now()
		writeExact(conn, body)
		h.Metrics.ObserveCacheHit(time.Since(start))
		return
	}
	h.Metrics.ObserveCacheMiss()

	req := reqparse.New()
	defer reqparse.Destroy(req)
	if parseErr := reqparse.Parse(req, raw); parseErr != nil {
		// Malformed requests are logged and closed, not answered.
		log.Debugf("parse failed: %v", parseErr)
		return
	}

	if req.Method != "GET" {
		log.Debugf("unsupported method %q", req.Method)
		return
	}

	if !supportedVersion(req.Version) || req.Host == "" || req.Path == "" {
		respond.Write(conn, 500)
		log.Warnf("unsupported version or missing host/path: version=%q host=%q path=%q", req.Version, req.Host, req.Path)
		return
	}

	start := time.Now()
	body, relayErr := h.Upstream.Relay(ctx, conn, req, raw)
	h.Metrics.ObserveRelay(time.Since(start))
	if relayErr != nil {
		respond.Write(conn, 500)
		log.Warnf("upstream relay failed: %v", relayErr)
		return
	}

	if res := h.Cache.Insert(raw, body); res == cachestore.TooLarge {
		log.Debugf("response too large to cache (%d bytes)", len(body))
	}
}

// readRequest reads from conn into a ReqBuffer-sized buffer until
// "\r\n\r\n" appears, returning the bytes up to and including the
// terminator. It never grows the buffer past ReqBuffer.
func readRequest(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, ReqBuffer)
	chunk := make([]byte, ReqBuffer)

	for {
		if idx := indexTerminator(buf); idx >= 0 {
			return buf[:idx+len(terminator)], nil
		}
		if len(buf) >= ReqBuffer {
			return nil, errBufferOverflow
		}

		n, err := conn.Read(chunk[:minInt(len(chunk), ReqBuffer-len(buf))])
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if idx := indexTerminator(buf); idx >= 0 {
				return buf[:idx+len(terminator)], nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func indexTerminator(buf []byte) int {
	n := len(buf)
	m := len(terminator)
	if n < m {
		return -1
	}
	for i := 0; i <= n-m; i++ {
		if string(buf[i:i+m]) == string(terminator) {
			return i
		}
	}
	return -1
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func supportedVersion(v string) bool {
	return v == "HTTP/1.0" || v == "HTTP/1.1"
}

// writeExact replays exactly len(body) bytes to conn, never padding the
// final chunk.
func writeExact(conn net.Conn, body []byte) {
	_, _ = conn.Write(body)
}
