package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"snipping-tool/src/singleinstance"
)

type stressOptions struct {
	n        int
	command  string
	deadline time.Duration
}

type tally struct {
	ok, rejected, missing, failed int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	return newRootCmd(opts).Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-delegate",
		Short:         "Fire concurrent delegated commands at the running snip instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, elapsed := runWithOptions(*opts, singleinstance.NewClient)
			fmt.Fprintf(cmd.OutOrStdout(), "n=%d command=%s ok=%d rejected=%d missing=%d failed=%d elapsed=%s\n",
				opts.n, strings.ToUpper(opts.command), t.ok, t.rejected, t.missing, t.failed, elapsed.Truncate(time.Millisecond))
			if t.missing == int32(opts.n) {
				return fmt.Errorf("no running instance answered")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent clients")
	cmd.Flags().StringVar(&opts.command, "command", singleinstance.CommandDiscard, "CAPTURE|SAVE|DISCARD")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

// runWithOptions launches opts.n clients at once and counts how the resident
// answered. A "rejected" answer is an ERROR reply such as "No capture to save".
func runWithOptions(opts stressOptions, newClient func() singleinstance.Client) (tally, time.Duration) {
	var wg sync.WaitGroup
	var t tally
	command := strings.ToUpper(opts.command)

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()

			delegated, _, err := newClient().Delegate(ctx, command)
			switch {
			case !delegated:
				atomic.AddInt32(&t.missing, 1)
			case err == nil:
				atomic.AddInt32(&t.ok, 1)
			case isTransport(err):
				atomic.AddInt32(&t.failed, 1)
			default:
				atomic.AddInt32(&t.rejected, 1)
			}
		}()
	}
	wg.Wait()
	return t, time.Since(start)
}

func isTransport(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof")
}
