// Package service writes per-user service definitions for the daemon:
// a launchd plist on macOS and a systemd user unit elsewhere.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// Label is the launchd label and systemd unit name of the daemon.
const Label = "com.mivta.agent"

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=mivta pronunciation correction daemon

[Service]
ExecStart={{.Binary}} serve --config {{.Config}}
Restart=on-failure
{{- range $k, $v := .Env }}
Environment={{$k}}={{$v}}
{{- end }}
StandardOutput=append:{{.Log}}
StandardError=append:{{.Log}}

[Install]
WantedBy=default.target
`

type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Path returns the service definition path for label on this platform.
func Path(label string) string {
	return pathFor(runtime.GOOS, label)
}

func pathFor(goos, label string) string {
	home := os.Getenv("HOME")
	if goos == "darwin" {
		return filepath.Join(home, "Library", "LaunchAgents", fmt.Sprintf("%s.plist", label))
	}
	return filepath.Join(home, ".config", "systemd", "user", fmt.Sprintf("%s.service", label))
}

// Write renders the service definition for this platform.
func Write(params Params) (string, error) {
	return writeFor(runtime.GOOS, params)
}

func writeFor(goos string, params Params) (string, error) {
	path := pathFor(goos, params.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	src := systemdTemplate
	if goos == "darwin" {
		src = launchdTemplate
	}
	tpl := template.Must(template.New("service").Parse(src))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := tpl.Execute(f, params); err != nil {
		return "", err
	}
	return path, nil
}
