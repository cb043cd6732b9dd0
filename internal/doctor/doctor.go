package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mivta/internal/config"
	"mivta/internal/syllables"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkConfig(cfg),
		checkWritableDir("state dir", cfg.Paths.StateDir),
		checkWritableDir("syllables", cfg.Paths.SyllablesDir),
		checkCatalog(),
	}
	for i := range cfg.Hooks {
		results = append(results, checkHookExecutable(fmt.Sprintf("hook[%d]", i), cfg.Hooks[i].Command))
	}
	results = append(results, checkPortAudioPkgConfig(), checkPortAudio())
	return results
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkConfig(cfg *config.Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Name: "config", Pass: false, Detail: err.Error()}
	}
	return Result{Name: "config", Pass: true, Detail: fmt.Sprintf("%d Hz, threshold %.2f", cfg.Audio.SampleRate, cfg.Model.SimilarityThreshold)}
}

func checkWritableDir(label, dir string) Result {
	if dir == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Result{Name: label, Pass: true, Detail: filepath.Clean(dir)}
}

func checkCatalog() Result {
	for _, s := range syllables.All() {
		if syllables.Category(s.Text) == "other" {
			return Result{Name: "catalog", Pass: false, Detail: fmt.Sprintf("unclassifiable entry %q", s.Text)}
		}
	}
	return Result{Name: "catalog", Pass: true, Detail: fmt.Sprintf("%d syllables", syllables.Count())}
}

func checkHookExecutable(label, cmd string) Result {
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "command not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}
