package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"snipping-tool/src/config"
	"snipping-tool/src/fsaccess"
	"snipping-tool/src/handlestore"
	"snipping-tool/src/runtimeinit"
	"snipping-tool/src/screenshot"
	"snipping-tool/src/settings"
	"snipping-tool/src/singleinstance"
)

var errNoResident = errors.New("no running instance found; start snip first")

type delegateClient interface {
	Delegate(ctx context.Context, command string) (bool, string, error)
}

func newDelegateCmd(opts *mainOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env early so SINGLEINSTANCE_PORT_* apply to the scan.
			cfg, _ := config.LoadWithOptions(opts.loadOptions())
			if cfg != nil {
				setupLogging(cfg)
			}
			return runDelegated(cmd.Context(), singleinstance.NewClient(), strings.ToUpper(name), cmd.OutOrStdout())
		},
	}
}

// runDelegated forwards command to the resident and prints its answer.
// There is no standalone fallback: selections need the resident's input hook.
func runDelegated(ctx context.Context, client delegateClient, command string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delegated, text, err := client.Delegate(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", strings.ToLower(command), err)
	}
	if !delegated {
		return errNoResident
	}
	log.Printf("Delegated %s to resident", command)
	if text != "" {
		fmt.Fprintln(out, text)
	}
	return nil
}

func newStatusCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether an instance is running and the state of its actors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = config.LoadWithOptions(opts.loadOptions())
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return reportStatus(ctx, singleinstance.DetectResidentPort, singleinstance.NewClient(), cmd.OutOrStdout())
		},
	}
}

func reportStatus(ctx context.Context, detect func(context.Context) (int, bool), client delegateClient, out io.Writer) error {
	port, ok := detect(ctx)
	if !ok {
		fmt.Fprintln(out, "not running")
		return nil
	}
	fmt.Fprintf(out, "running on port %d\n", port)

	delegated, text, err := client.Delegate(ctx, singleinstance.CommandStatus)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if delegated && text != "" {
		for _, pair := range strings.Fields(text) {
			fmt.Fprintf(out, "  %s\n", strings.Replace(pair, "=", ": ", 1))
		}
	}
	return nil
}

func openStores(opts *mainOptions) (*settings.Store, *handlestore.Store, error) {
	cfg, err := config.LoadWithOptions(opts.loadOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg)
	return runtimeinit.LoadStores(cfg)
}

func newFolderCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Show the folder label captures are saved under",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, handles, err := openStores(opts)
			if err != nil {
				return err
			}
			defer handles.Close()
			fmt.Fprintln(cmd.OutOrStdout(), describeDestination(prefs.Snapshot()))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <label>",
		Short: "Set the folder label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, handles, err := openStores(opts)
			if err != nil {
				return err
			}
			defer handles.Close()
			label, err := prefs.SetSaveFolder(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Folder set to %s\n", label)
			return nil
		},
	}, &cobra.Command{
		Use:   "reset",
		Short: "Restore the default folder label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, handles, err := openStores(opts)
			if err != nil {
				return err
			}
			defer handles.Close()
			if err := prefs.ResetSaveFolder(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Folder reset to default")
			return nil
		},
	})
	return cmd
}

func describeDestination(p settings.Preferences) string {
	if p.UseDirectory {
		return fmt.Sprintf("%s (granted directory)", p.SaveFolder)
	}
	return fmt.Sprintf("%s (downloads)", p.SaveFolder)
}

func newGrantCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <dir>",
		Short: "Save captures directly into dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, handles, err := openStores(opts)
			if err != nil {
				return err
			}
			defer handles.Close()
			handle, err := grantDirectory(cmd.Context(), prefs, handles, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saving to %s\n", handle.Path)
			return nil
		},
	}
}

func grantDirectory(ctx context.Context, prefs *settings.Store, handles *handlestore.Store, dir string) (fsaccess.Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	handle, err := fsaccess.Grant(dir)
	if err != nil {
		return fsaccess.Handle{}, err
	}
	if err := handles.SaveDirectoryHandle(ctx, handle); err != nil {
		return fsaccess.Handle{}, err
	}
	if err := prefs.SetUseDirectory(true, handle.Name); err != nil {
		return fsaccess.Handle{}, err
	}
	return handle, nil
}

func newRevokeCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Forget the granted directory and use downloads again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, handles, err := openStores(opts)
			if err != nil {
				return err
			}
			defer handles.Close()
			if err := revokeDirectory(cmd.Context(), prefs, handles); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Directory access revoked")
			return nil
		},
	}
}

func revokeDirectory(ctx context.Context, prefs *settings.Store, handles *handlestore.Store) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := handles.ClearDirectoryHandle(ctx); err != nil {
		return err
	}
	return prefs.SetUseDirectory(false, "")
}

func newIconsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "icons <input> <outdir>",
		Short: "Write icon16/48/128 PNGs resized from input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := screenshot.ResizeIcons(args[0], args[1])
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", filepath.Base(p))
			}
			return nil
		},
	}
}
