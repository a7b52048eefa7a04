package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"snipping-tool/src/config"
)

type mainOptions struct {
	envPath string
	mode    string
	dataDir string
}

func (o *mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		EnvPathOverride:     o.envPath,
		CaptureModeOverride: o.mode,
		DataDirOverride:     o.dataDir,
	}
}

func main() {
	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"snip"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "snip",
		Short:         "Region screenshots from the tray, a hotkey or the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envPath, "env", "", "Path to a .env file (overrides the default lookup)")
	flags.StringVar(&opts.mode, "mode", "", "Capture mode: preview or relay")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory for preferences and the directory grant")

	cmd.AddCommand(
		newDelegateCmd(opts, "capture", "Start a selection in the running instance"),
		newDelegateCmd(opts, "save", "Save the pending capture in the running instance"),
		newDelegateCmd(opts, "discard", "Discard the pending capture in the running instance"),
		newStatusCmd(opts),
		newFolderCmd(opts),
		newGrantCmd(opts),
		newRevokeCmd(opts),
		newIconsCmd(),
	)
	return cmd
}

// normalizeLegacyArgs maps single-dash long flags (-data-dir) to the
// double-dash form cobra expects.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		name := strings.TrimPrefix(arg, "-")
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		switch name {
		case "env", "mode", "data-dir":
			normalized[i] = "-" + arg
		}
	}
	return normalized
}
