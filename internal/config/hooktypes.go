package config

// Hook trigger outcomes.
const (
	HookOnCorrected = "corrected" // at least one segment was replaced
	HookOnClean     = "clean"     // nothing needed replacing
	HookOnAny       = "any"
)

// HookConfig defines a post-correction hook invocation entry.
type HookConfig struct {
	On          string            `toml:"on"` // corrected, clean, any
	Command     string            `toml:"command"`
	Args        []string          `toml:"args"`
	ArgsLine    string            `toml:"args_line"` // shell-style alternative to args
	CooldownSec float64           `toml:"cooldown_sec"`
	TimeoutSec  float64           `toml:"timeout_sec"`
	Env         map[string]string `toml:"env"`
}
