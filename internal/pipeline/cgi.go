package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ferronweb/ferron/internal/config"
)

// CGIModule executes an external script per request, classic CGI/1.1: one
// process per request, request metadata passed via environment variables,
// the request body on stdin, and a header block followed by the body read
// back from stdout. No CGI client library exists anywhere in the example
// pack (net/http/cgi only goes the other direction — exposing a Go handler
// as a CGI script), so this is a direct os/exec implementation, justified
// in the project's design ledger.
type CGIModule struct{}

func NewCGIModule() *CGIModule { return &CGIModule{} }

func (m *CGIModule) Name() string { return "cgi" }

func (m *CGIModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	if len(directive.Args) == 0 {
		return next(ctx, w, r)
	}
	scriptPath := directive.Args[0]

	cmd := exec.CommandContext(ctx, scriptPath)
	cmd.Env = append(os.Environ(), cgiEnv(r, policy, scriptPath)...)
	cmd.Stdin = r.Body

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if sinks.Log != nil {
			sinks.Log.WithError(err).WithField("stderr", stderr.String()).Error("cgi script failed")
		}
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}

	return writeCGIResponse(w, &stdout)
}

func cgiEnv(r *http.Request, policy *config.EffectivePolicy, scriptPath string) []string {
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=" + r.Proto,
		"REQUEST_METHOD=" + r.Method,
		"SCRIPT_FILENAME=" + scriptPath,
		"SCRIPT_NAME=" + scriptPath,
		"REQUEST_URI=" + r.URL.RequestURI(),
		"QUERY_STRING=" + r.URL.RawQuery,
		"CONTENT_LENGTH=" + strconv.FormatInt(r.ContentLength, 10),
		"CONTENT_TYPE=" + r.Header.Get("Content-Type"),
		"REMOTE_ADDR=" + r.RemoteAddr,
	}
	for k, vs := range r.Header {
		name := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		env = append(env, name+"="+strings.Join(vs, ","))
	}
	return env
}

// writeCGIResponse parses the CGI header block ("Status:"/header lines
// followed by a blank line) off out and forwards the rest as the body.
func writeCGIResponse(w http.ResponseWriter, out io.Reader) error {
	tp := textproto.NewReader(bufio.NewReader(out))
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return nil
	}

	status := http.StatusOK
	if s := hdr.Get("Status"); s != "" {
		if n, err := strconv.Atoi(strings.Fields(s)[0]); err == nil {
			status = n
		}
		hdr.Del("Status")
	}
	for k, vs := range hdr {
		w.Header()[k] = vs
	}
	w.WriteHeader(status)
	_, err = io.Copy(w, tp.R)
	return err
}
