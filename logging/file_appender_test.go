package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k4a.log")
	appender := NewFileAppender(path, 1, 1)

	logger := NewBlankLogger("probe")
	logger.AddAppender(appender)
	logger.Sublogger("k4a").Warnw("failed to release capture", "seq", 7)
	logger.Debug("opened")
	test.That(t, appender.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	test.That(t, len(lines), test.ShouldEqual, 2)

	parts := strings.Split(lines[0], "\t")
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[2], test.ShouldEqual, "probe.k4a")
	test.That(t, parts[4], test.ShouldEqual, "failed to release capture")
	test.That(t, parts[5], test.ShouldEqual, `{"seq":7}`)
	test.That(t, lines[1], test.ShouldEndWith, "\topened")
}
