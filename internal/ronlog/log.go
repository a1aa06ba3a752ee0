// Package ronlog is the process-wide diagnostic logger: a thin
// level-keyed surface over a single *logrus.Logger. Stderr is written
// without coordination; interleaved lines from concurrent workers are
// tolerated.
package ronlog

import (
	"io"
	"io/ioutil"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.Out = os.Stderr
	std.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	std.SetNoLock()
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(lvl logrus.Level) {
	std.SetLevel(lvl)
}

// SetOutput redirects log output, used by tests to capture or silence it.
func SetOutput(w io.Writer) {
	std.Out = w
}

// Disable silences all output.
func Disable() {
	std.Out = ioutil.Discard
}

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// WithField returns an entry carrying one piece of structured context, e.g.
// the peer address of a connection currently being handled.
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}

// WithFields returns an entry carrying several pieces of structured context.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return std.WithFields(fields)
}
