package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ferronweb/ferron/internal/config"
)

// FastCGIModule speaks the binary FastCGI record protocol (RFC-less but
// widely implemented, e.g. php-fpm) to an upstream process manager. Like
// SCGIModule, there is no FastCGI client library in the example pack
// (net/http/fcgi is a server-side implementation only), so this is a
// minimal client covering the single-request path Ferron needs: BEGIN_
// REQUEST, one PARAMS stream, one STDIN stream, reading STDOUT/STDERR/
// END_REQUEST back.
type FastCGIModule struct{}

func NewFastCGIModule() *FastCGIModule { return &FastCGIModule{} }

func (m *FastCGIModule) Name() string { return "fastcgi" }

const (
	fcgiVersion1     = 1
	fcgiBeginRequest = 1
	fcgiParams       = 4
	fcgiStdin        = 5
	fcgiStdout       = 6
	fcgiStderr       = 7
	fcgiEndRequest   = 3
	fcgiResponder    = 1
	fcgiRequestID    = 1
)

func (m *FastCGIModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
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

	if err := fcgiWriteBeginRequest(conn); err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	if err := fcgiWriteParams(conn, fcgiParamsFor(r, body.Len())); err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}
	if err := fcgiWriteStream(conn, fcgiStdin, body.Bytes()); err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}

	stdout, _, err := fcgiReadResponse(conn)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}

	return writeCGIResponse(w, bytes.NewReader(stdout))
}

func fcgiParamsFor(r *http.Request, contentLength int) map[string]string {
	p := map[string]string{
		"REQUEST_METHOD":  r.Method,
		"REQUEST_URI":     r.URL.RequestURI(),
		"QUERY_STRING":    r.URL.RawQuery,
		"SERVER_PROTOCOL": r.Proto,
		"CONTENT_LENGTH":  strconv.Itoa(contentLength),
		"CONTENT_TYPE":    r.Header.Get("Content-Type"),
	}
	for k, vs := range r.Header {
		p["HTTP_"+strings.ToUpper(strings.ReplaceAll(k, "-", "_"))] = strings.Join(vs, ",")
	}
	return p
}

type fcgiHeader struct {
	Version       uint8
	Type          uint8
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

func fcgiWriteBeginRequest(w io.Writer) error {
	body := make([]byte, 8)
	binary.BigEndian.PutUint16(body[0:2], fcgiResponder)
	h := fcgiHeader{Version: fcgiVersion1, Type: fcgiBeginRequest, RequestID: fcgiRequestID, ContentLength: 8}
	if err := binary.Write(w, binary.BigEndian, h); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func fcgiWriteParams(w io.Writer, params map[string]string) error {
	var buf bytes.Buffer
	for k, v := range params {
		writeFcgiLen(&buf, len(k))
		writeFcgiLen(&buf, len(v))
		buf.WriteString(k)
		buf.WriteString(v)
	}
	if err := fcgiWriteStream(w, fcgiParams, buf.Bytes()); err != nil {
		return err
	}
	return fcgiWriteStream(w, fcgiParams, nil) // empty record terminates the stream
}

func writeFcgiLen(buf *bytes.Buffer, n int) {
	if n < 128 {
		buf.WriteByte(byte(n))
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n)|0x80000000)
	buf.Write(b[:])
}

func fcgiWriteStream(w io.Writer, recType uint8, content []byte) error {
	for {
		chunk := content
		if len(chunk) > 65535 {
			chunk = chunk[:65535]
		}
		h := fcgiHeader{Version: fcgiVersion1, Type: recType, RequestID: fcgiRequestID, ContentLength: uint16(len(chunk))}
		if err := binary.Write(w, binary.BigEndian, h); err != nil {
			return err
		}
		if len(chunk) > 0 {
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
		content = content[len(chunk):]
		if len(content) == 0 {
			return nil
		}
	}
}

func fcgiReadResponse(r io.Reader) (stdout, stderr []byte, err error) {
	var outBuf, errBuf bytes.Buffer
	for {
		var h fcgiHeader
		if err := binary.Read(r, binary.BigEndian, &h); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}
		content := make([]byte, h.ContentLength)
		if h.ContentLength > 0 {
			if _, err := io.ReadFull(r, content); err != nil {
				return nil, nil, err
			}
		}
		if h.PaddingLength > 0 {
			pad := make([]byte, h.PaddingLength)
			io.ReadFull(r, pad)
		}
		switch h.Type {
		case fcgiStdout:
			outBuf.Write(content)
		case fcgiStderr:
			errBuf.Write(content)
		case fcgiEndRequest:
			return outBuf.Bytes(), errBuf.Bytes(), nil
		}
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}
