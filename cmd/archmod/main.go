// Command archmod inspects the entries of jar, tar, eStargz and directory
// archives through a cached archmod.Module.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

type options struct {
	cacheKind     string
	cacheDir      string
	cacheMaxBytes int64
	workers       int
	verbose       bool
	cpuProfile    string

	logger         *slog.Logger
	stopCPUProfile func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "archmod:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "archmod",
		Short:         "Inspect archive entries through a decompressed-content cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
			return opts.startCPUProfile()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.stopCPUProfile != nil {
				opts.stopCPUProfile()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cacheKind, "cache", cacheWeak, "cache: none, weak, lru, disk")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "cache directory (disk cache only, default under the user cache dir)")
	flags.Int64Var(&opts.cacheMaxBytes, "cache-max-bytes", 0, "byte budget for lru and disk caches (0 uses the cache default)")
	flags.IntVar(&opts.workers, "workers", 0, "prefetch workers (0 uses the default)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")
	flags.StringVar(&opts.cpuProfile, "cpuprofile", "", "write CPU profile to file")

	root.AddCommand(
		newLsCmd(opts),
		newCatCmd(opts),
		newSumCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

func (o *options) startCPUProfile() error {
	if o.cpuProfile == "" {
		return nil
	}
	f, err := os.Create(o.cpuProfile)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return err
	}
	o.stopCPUProfile = func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}
	return nil
}
