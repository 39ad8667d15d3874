package listener

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

type fakeConn struct {
	net.Conn
	r *bytes.Reader
}

func (f *fakeConn) Read(p []byte) (int, error)   { return f.r.Read(p) }
func (f *fakeConn) RemoteAddr() net.Addr         { return &net.TCPAddr{IP: net.ParseIP("9.9.9.9"), Port: 1} }
func (f *fakeConn) Close() error                 { return nil }

func TestWrapProxyProtocolV1(t *testing.T) {
	raw := "PROXY TCP4 203.0.113.1 198.51.100.2 12345 443\r\nGET / HTTP/1.1\r\n"
	conn := &fakeConn{r: bytes.NewReader([]byte(raw))}

	wrapped, err := wrapProxyProtocol(conn, ProxyProtocolOptional)
	if err != nil {
		t.Fatalf("wrapProxyProtocol: %v", err)
	}
	addr, ok := wrapped.RemoteAddr().(*net.TCPAddr)
	if !ok || addr.IP.String() != "203.0.113.1" || addr.Port != 12345 {
		t.Fatalf("unexpected remote addr: %+v", wrapped.RemoteAddr())
	}

	rest := make([]byte, 4)
	if _, err := wrapped.Read(rest); err != nil {
		t.Fatalf("read remaining bytes: %v", err)
	}
	if string(rest) != "GET " {
		t.Fatalf("expected remaining body to start with 'GET ', got %q", rest)
	}
}

func TestWrapProxyProtocolV2(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(v2Sig)
	buf.WriteByte(0x21) // version 2, command PROXY
	buf.WriteByte(0x11) // AF_INET, STREAM
	addrBlock := make([]byte, 12)
	copy(addrBlock[0:4], net.ParseIP("198.51.100.7").To4())
	copy(addrBlock[4:8], net.ParseIP("198.51.100.8").To4())
	binary.BigEndian.PutUint16(addrBlock[8:10], 5555)
	binary.BigEndian.PutUint16(addrBlock[10:12], 443)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(addrBlock)))
	buf.Write(lenBuf[:])
	buf.Write(addrBlock)
	buf.WriteString("payload")

	conn := &fakeConn{r: bytes.NewReader(buf.Bytes())}
	wrapped, err := wrapProxyProtocol(conn, ProxyProtocolRequired)
	if err != nil {
		t.Fatalf("wrapProxyProtocol: %v", err)
	}
	addr, ok := wrapped.RemoteAddr().(*net.TCPAddr)
	if !ok || addr.IP.String() != "198.51.100.7" || addr.Port != 5555 {
		t.Fatalf("unexpected remote addr: %+v", wrapped.RemoteAddr())
	}
}

func TestWrapProxyProtocolRequiredRejectsPlain(t *testing.T) {
	conn := &fakeConn{r: bytes.NewReader([]byte("GET / HTTP/1.1\r\n"))}
	if _, err := wrapProxyProtocol(conn, ProxyProtocolRequired); err != ErrProxyProtocolRequired {
		t.Fatalf("expected ErrProxyProtocolRequired, got %v", err)
	}
}
