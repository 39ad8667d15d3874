// Package logging wraps logrus behind a small indirection so the rest of
// the tree depends on an interface, not a concrete logger, and so
// fields/level can be reconfigured on reload without re-threading a
// logger through every constructor.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger is the subset of *logrus.Entry the rest of the tree depends on.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	Trace(args ...interface{})
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

type entry struct{ e *logrus.Entry }

func (l *entry) WithField(k string, v interface{}) Logger  { return &entry{l.e.WithField(k, v)} }
func (l *entry) WithFields(f map[string]interface{}) Logger {
	return &entry{l.e.WithFields(logrus.Fields(f))}
}
func (l *entry) WithError(err error) Logger { return &entry{l.e.WithError(err)} }
func (l *entry) Trace(args ...interface{})  { l.e.Trace(args...) }
func (l *entry) Debug(args ...interface{})  { l.e.Debug(args...) }
func (l *entry) Info(args ...interface{})   { l.e.Info(args...) }
func (l *entry) Warn(args ...interface{})   { l.e.Warn(args...) }
func (l *entry) Error(args ...interface{})  { l.e.Error(args...) }

// Options configures the root logger. Format and Level are the two knobs a
// config reload is allowed to change at runtime.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // "text" or "json"
	Output io.Writer
}

var root = logrus.New()

// Configure (re)applies Options to the package-wide root logger. Safe to
// call again on every config reload; logrus itself is safe for concurrent
// use while entries drawn from it are in flight.
func Configure(o Options) {
	lvl, err := logrus.ParseLevel(strings.ToLower(o.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	root.SetLevel(lvl)

	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	root.SetOutput(out)

	switch o.Format {
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   color.NoColor == false && isatty.IsTerminal(os.Stderr.Fd()),
		})
	}
}

func init() {
	Configure(Options{Level: "info", Format: "text"})
}

// Root returns a Logger rooted at the package-wide logrus instance, tagged
// with a "component" field so log lines can be filtered per subsystem
// (listener, acme, proxy, supervisor, ...).
func Root(component string) Logger {
	return &entry{root.WithField("component", component)}
}
