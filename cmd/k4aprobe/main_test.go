package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/kinect/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}

func runProbe(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"k4aprobe", "--fake"}, args...))
	test.That(t, err, test.ShouldBeNil)
	return out.String()
}

func TestProbeFake(t *testing.T) {
	out := runProbe(t, "--frames", "3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	test.That(t, len(lines), test.ShouldEqual, 4)
	test.That(t, lines[0], test.ShouldStartWith, "serial: ")
	test.That(t, lines[1], test.ShouldStartWith, "capture 1: 512x512 depth")
	test.That(t, lines[3], test.ShouldStartWith, "capture 3: 512x512 depth")
}

func TestProbeTracking(t *testing.T) {
	out := runProbe(t, "--frames", "2", "--tracking")
	test.That(t, out, test.ShouldContainSubstring, "body 1 at 0,0,1001 (medium)")
	test.That(t, out, test.ShouldContainSubstring, "body 1 at 0,0,1002 (medium)")
}

func TestProbeConfigAndPNG(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "k4a.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{"fps": 15, "depth_mode": "nfov_2x2binned"}`), 0o600), test.ShouldBeNil)
	pngPath := filepath.Join(dir, "depth.png")

	logPath := filepath.Join(dir, "k4aprobe.log")

	out := runProbe(t, "--frames", "1", "--config", cfgPath, "--depth-png", pngPath, "--log-file", logPath)
	test.That(t, out, test.ShouldContainSubstring, "capture 1: 320x288 depth")

	logs, err := os.ReadFile(logPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logs), test.ShouldContainSubstring, "opened device")

	info, err := os.Stat(pngPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}
