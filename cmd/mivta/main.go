package main

import (
	"fmt"
	"os"

	"mivta/internal/control"
	"mivta/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "mivta",
		Short: "mivta: Hebrew syllable pronunciation checker and corrector",
		Long: `mivta splits a Hebrew reading into syllables, scores each one against your own
clean reference recordings, and splices the reference over syllables that fall
below the similarity threshold.

Key commands:
  train status|next|add|record|reset   Build per-syllable references
  model fit|show|reset                  Embedding model
  analyze <wav>                         Score every syllable
  correct <wav> [--out] [--daemon]      Write a corrected copy
  record [--seconds] [--correct]        Microphone take (portaudio builds)
  start|stop|restart|status|reload      Daemon lifecycle

Env overrides: MIVTA_THRESHOLD, MIVTA_SAMPLE_RATE, MIVTA_METRICS_ADDR,
               MIVTA_LOG_LEVEL/FORMAT/STDOUT`,
		Example: `  mivta train next
  mivta train add בְּ be-1.wav be-2.wav
  mivta model fit
  mivta correct reading.wav --out fixed.wav
  mivta start --metrics-addr 127.0.0.1:9318
  mivta correct reading.wav --daemon --threshold 0.8`,
		DisableFlagsInUseLine: true,
	}

	root.Version = version
	root.SetVersionTemplate("mivta v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/mivta/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewReloadCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewAnalyzeCmd(cfgPath))
	root.AddCommand(control.NewCorrectCmd(cfgPath))
	root.AddCommand(control.NewRecordCmd(cfgPath))
	root.AddCommand(control.NewTrainCmd(cfgPath))
	root.AddCommand(control.NewModelCmd(cfgPath))
	root.AddCommand(control.NewSyllablesCmd())
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%smivta%s: Hebrew syllable pronunciation checker %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sScores each syllable against your references and splices in clean takes.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  mivta [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  train status|next|add|record|reset  build per-syllable references")
		writeln("  model fit|show|reset         embedding model")
		writeln("  analyze <wav>                score every syllable")
		writeln("  correct <wav>                write a corrected copy (--daemon to queue)")
		writeln("  record                       microphone take (-tags portaudio)")
		writeln("  syllables                    list the catalog")
		writeln("  start|stop|restart           daemon lifecycle")
		writeln("  status|health|reload         talk to the daemon")
		writeln("  mic list|set                 select input device")
		writeln("  doctor|setup                 check deps / create state")
		writeln("  service install|uninstall|status manage launchd plist (macOS)")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  -c, --config <path>     config file (default ~/.config/mivta/config.toml)")
		writeln("  Env: MIVTA_THRESHOLD=0.8, MIVTA_METRICS_ADDR=host:port,")
		writeln("       MIVTA_LOG_LEVEL=debug, MIVTA_LOG_FORMAT=json, MIVTA_LOG_STDOUT=1")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  mivta train next")
		writeln("  mivta train add בְּ be-1.wav be-2.wav")
		writeln("  mivta model fit")
		writeln("  mivta correct reading.wav --out fixed.wav")
		writeln("  mivta start --metrics-addr 127.0.0.1:9318")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
