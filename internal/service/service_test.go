package service

import (
	"os"
	"strings"
	"testing"
)

func TestWriteLaunchd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := writeFor("darwin", Params{
		Label:  Label,
		Binary: "/usr/local/bin/mivta",
		Config: "/tmp/mivta.toml",
		Log:    "/tmp/mivta.log",
		Env:    map[string]string{"MIVTA_LOG_LEVEL": "debug"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(path, "Library/LaunchAgents/com.mivta.agent.plist") {
		t.Fatalf("unexpected path %s", path)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{"<string>serve</string>", "/tmp/mivta.toml", "<key>MIVTA_LOG_LEVEL</key><string>debug</string>"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("plist missing %q:\n%s", want, data)
		}
	}
}

func TestWriteSystemd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := writeFor("linux", Params{
		Label:  Label,
		Binary: "/usr/bin/mivta",
		Config: "/etc/mivta.toml",
		Log:    "/tmp/mivta.log",
		Env:    map[string]string{"MIVTA_THRESHOLD": "0.8"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(path, ".config/systemd/user/com.mivta.agent.service") {
		t.Fatalf("unexpected path %s", path)
	}
	data, _ := os.ReadFile(path)
	for _, want := range []string{"ExecStart=/usr/bin/mivta serve --config /etc/mivta.toml", "Environment=MIVTA_THRESHOLD=0.8"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("unit missing %q:\n%s", want, data)
		}
	}
}
