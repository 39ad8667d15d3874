package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ferronweb/ferron/internal/config"
)

// StaticFileModule serves files from a configured root, honoring
// precompressed siblings and content negotiation.
type StaticFileModule struct{}

func NewStaticFileModule() *StaticFileModule { return &StaticFileModule{} }

func (m *StaticFileModule) Name() string { return "static_file" }

func (m *StaticFileModule) Handle(ctx context.Context, w http.ResponseWriter, r *http.Request, directive *config.Directive, policy *config.EffectivePolicy, sinks Sinks, next Next) error {
	root := "."
	if rootDir, ok := policy.Get("root"); ok && len(rootDir.Args) > 0 {
		root = rootDir.Args[0]
	}

	rel := filepath.Clean(policy.EffectivePath)
	full := filepath.Join(root, rel)

	if served := m.serveWithPrecompressed(w, r, full); served {
		return nil
	}

	info, err := os.Stat(full)
	if err != nil {
		return next(ctx, w, r)
	}
	if info.IsDir() {
		full = filepath.Join(full, "index.html")
		if _, err := os.Stat(full); err != nil {
			return next(ctx, w, r)
		}
	}

	f, err := os.Open(full)
	if err != nil {
		return next(ctx, w, r)
	}
	defer f.Close()

	stat, _ := f.Stat()
	etag := fileETag(full, stat.Size(), stat.ModTime().Unix())
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	http.ServeContent(w, r, full, stat.ModTime(), f)
	return nil
}

// serveWithPrecompressed checks for .gz/.br/.zst/.deflate siblings of path
// and serves one directly when the client's Accept-Encoding allows it,
// avoiding dynamic compression work entirely.
func (m *StaticFileModule) serveWithPrecompressed(w http.ResponseWriter, r *http.Request, path string) bool {
	accept := r.Header.Get("Accept-Encoding")
	candidates := []struct {
		ext, encoding string
	}{
		{".br", "br"},
		{".zst", "zstd"},
		{".gz", "gzip"},
		{".deflate", "deflate"},
	}
	for _, c := range candidates {
		if !strings.Contains(accept, c.encoding) {
			continue
		}
		sibling := path + c.ext
		info, err := os.Stat(sibling)
		if err != nil || info.IsDir() {
			continue
		}
		f, err := os.Open(sibling)
		if err != nil {
			continue
		}
		defer f.Close()
		w.Header().Set("Content-Encoding", c.encoding)
		w.Header().Set("Vary", "Accept-Encoding")
		http.ServeContent(w, r, path, info.ModTime(), f)
		return true
	}
	return false
}

func fileETag(path string, size int64, mtime int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", path, size, mtime)))
	return `"` + hex.EncodeToString(h[:8]) + `"`
}
