package respond

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteKnownCodes(t *testing.T) {
	for _, code := range []int{400, 403, 404, 500, 501, 505} {
		var buf bytes.Buffer
		res, err := Write(&buf, code)
		require.NoError(t, err)
		assert.Equal(t, Sent, res)

		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "HTTP/1.1 "+strconv.Itoa(code)+" "))
		assert.Contains(t, out, "Content-Type: text/html")
		assert.Contains(t, out, "Connection: keep-alive")
		assert.Contains(t, out, "Server: "+Server)
		assert.Contains(t, out, "\r\n\r\n")

		headers, body, _ := strings.Cut(out, "\r\n\r\n")
		assert.Contains(t, headers, "Content-Length: "+strconv.Itoa(len(body)))
	}
}

func TestWriteUnknownCode(t *testing.T) {
	var buf bytes.Buffer
	res, err := Write(&buf, 999)
	require.NoError(t, err)
	assert.Equal(t, Unknown, res)
	assert.Equal(t, 0, buf.Len())
}
