package logging

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AccessLogEntry carries the fields access log template placeholders draw
// from. One is built per request regardless of which protocol layer
// served it.
type AccessLogEntry struct {
	RequestID     string
	ClientIP      string
	Method        string
	PathAndQuery  string
	ProtoVersion  string
	StatusCode    int
	ContentLength int64
	Timestamp     time.Time
	Headers       map[string][]string
}

// AccessLogFormatter renders an AccessLogEntry using a template containing
// the placeholders {request_id}, {client_ip}, {method}, {path_and_query},
// {version}, {status_code}, {content_length}, {timestamp}, and
// {header:Name}.
type AccessLogFormatter struct {
	template string
}

func NewAccessLogFormatter(template string) *AccessLogFormatter {
	if template == "" {
		template = "{client_ip} - [{timestamp}] \"{method} {path_and_query} {version}\" {status_code} {content_length}"
	}
	return &AccessLogFormatter{template: template}
}

var placeholder = struct {
	requestID, clientIP, method, path, version, status, length, ts string
}{"{request_id}", "{client_ip}", "{method}", "{path_and_query}", "{version}", "{status_code}", "{content_length}", "{timestamp}"}

// Format substitutes every known placeholder, then scans for "{header:Name}"
// tokens and substitutes those against e.Headers (first value, or "-").
func (f *AccessLogFormatter) Format(e AccessLogEntry) string {
	out := f.template
	out = strings.ReplaceAll(out, placeholder.requestID, e.RequestID)
	out = strings.ReplaceAll(out, placeholder.clientIP, e.ClientIP)
	out = strings.ReplaceAll(out, placeholder.method, e.Method)
	out = strings.ReplaceAll(out, placeholder.path, e.PathAndQuery)
	out = strings.ReplaceAll(out, placeholder.version, e.ProtoVersion)
	out = strings.ReplaceAll(out, placeholder.status, strconv.Itoa(e.StatusCode))
	out = strings.ReplaceAll(out, placeholder.length, strconv.FormatInt(e.ContentLength, 10))
	out = strings.ReplaceAll(out, placeholder.ts, e.Timestamp.Format(time.RFC3339))

	for {
		start := strings.Index(out, "{header:")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "}")
		if end < 0 {
			break
		}
		end += start
		name := out[start+len("{header:") : end]
		value := "-"
		if vs, ok := e.Headers[name]; ok && len(vs) > 0 {
			value = vs[0]
		}
		out = out[:start] + value + out[end+1:]
	}

	return out
}

// String implements a convenience direct render for ad hoc log lines.
func (e AccessLogEntry) String() string {
	return fmt.Sprintf("%s %s %s -> %d (%d bytes)", e.Method, e.PathAndQuery, e.ProtoVersion, e.StatusCode, e.ContentLength)
}
