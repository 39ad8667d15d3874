package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ferronweb/ferron/internal/config"
)

// SCGIModule forwards a request to an SCGI backend (e.g. a Python
// application server) over a persistent-process socket, one of the
// CGI-family adapters. SCGI's wire format is a netstring-encoded header
// block (no CGI-style per-process spawn), so this is a small, self-
// contained client rather than a reuse of CGIModule's process model.
type SCGIModule struct{}

func NewSCGIModule() *SCGIModule { return &SCGIModule{} }

func (m *SCGIModule) Name() string { return "scgi" }

func (m *SCGIModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if len(directive.Args) == 0 {
		return next(ctx, w, r)
	}
	addr := directive.Args[0]

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	defer conn.Close()

	var body bytes.Buffer
	if r.Body != nil {
		io.Copy(&body, r.Body)
	}

	headerBlock := scgiHeaderBlock(r, body.Len())
	if _, err := conn.Write(headerBlock); err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	if _, err := conn.Write(body.Bytes()); err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}

	return writeCGIResponse(w, bufio.NewReader(conn))
}

// scgiHeaderBlock encodes name\x00value\x00 pairs as an SCGI netstring:
// "<length>:<payload>,".
func scgiHeaderBlock(r *http.Request, contentLength int) []byte {
	var payload bytes.Buffer
	write := func(k, v string) { payload.WriteString(k); payload.WriteByte(0); payload.WriteString(v); payload.WriteByte(0) }

	write("CONTENT_LENGTH", strconv.Itoa(contentLength))
	write("SCGI", "1")
	write("REQUEST_METHOD", r.Method)
	write("REQUEST_URI", r.URL.RequestURI())
	write("QUERY_STRING", r.URL.RawQuery)
	write("SERVER_PROTOCOL", r.Proto)
	for k, vs := range r.Header {
		write("HTTP_"+strings.ToUpper(strings.ReplaceAll(k, "-", "_")), strings.Join(vs, ","))
	}

	return []byte(fmt.Sprintf("%d:%s,", payload.Len(), payload.String()))
}
