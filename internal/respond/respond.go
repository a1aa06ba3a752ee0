// Package respond formats a fixed set of HTTP error pages and writes one
// to a client socket in a single, unretried write.
package respond

import (
	"fmt"
	"io"
	"time"
)

// Server is the literal Server header value every response carries.
const Server = "RONIN/14785"

// dateFormat mirrors net/http.TimeFormat: RFC1123 with a literal "GMT"
// zone rather than whatever time.RFC1123 would render for UTC.
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type template struct {
	reason string
	body   string
}

// The bodies are carried over verbatim, quirks included, so responses
// stay byte-compatible with earlier deployments.
var templates = map[int]template{
	400: {"Bad Request", "<HTML><HEAD><TITLE>400 Bad Request</TITLE></HEAD>\n<BODY><H1>400 Bad Rqeuest</H1>\n</BODY></HTML>"},
	403: {"Forbidden", "<HTML><HEAD><TITLE>403 Forbidden</TITLE></HEAD>\n<BODY><H1>403 Forbidden</H1><br>Permission Denied\n</BODY></HTML>"},
	404: {"Not Found", "<HTML><HEAD><TITLE>404 Not Found</TITLE></HEAD>\n<BODY><H1>404 Not Found</H1>\n</BODY></HTML>"},
	500: {"Internal Server Error", "<HTML><HEAD><TITLE>500 Internal Server Error</TITLE></HEAD>\n<BODY><H1>500 Internal Server Error</H1>\n</BODY></HTML>"},
	501: {"Not Implemented", "<HTML><HEAD><TITLE>404 Not Implemented</TITLE></HEAD>\n<BODY><H1>501 Not Implemented</H1>\n</BODY></HTML>"},
	505: {"HTTP Version Not Supported", "<HTML><HEAD><TITLE>505 HTTP Version Not Supported</TITLE></HEAD>\n<BODY><H1>505 HTTP Version Not Supported</H1>\n</BODY></HTML>"},
}

// Result reports whether a code was recognized and written.
type Result int

const (
	// Sent means code is known and its complete response was passed to one
	// write call; a failed write is reported through the returned error.
	Sent Result = iota
	// Unknown means code is not one of the fixed set; no bytes were sent.
	Unknown
)

// Write formats and writes a complete response for code in a single call.
// Short writes are not retried: by the time an error response is being
// sent, the connection is being torn down regardless of whether it lands.
func Write(w io.Writer, code int) (Result, error) {
	tpl, ok := templates[code]
	if !ok {
		return Unknown, nil
	}

	msg := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\n"+
			"Content-Length: %d\r\n"+
			"Content-Type: text/html\r\n"+
			"Connection: keep-alive\r\n"+
			"Date: %s\r\n"+
			"Server: %s\r\n"+
			"\r\n"+
			"%s",
		code, tpl.reason,
		len(tpl.body),
		time.Now().UTC().Format(dateFormat),
		Server,
		tpl.body,
	)

	_, err := io.WriteString(w, msg)
	if err != nil {
		return Sent, err
	}
	return Sent, nil
}
