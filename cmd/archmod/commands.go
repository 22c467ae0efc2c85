package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
)

func newLsCmd(opts *options) *cobra.Command {
	var classesOnly bool
	cmd := &cobra.Command{
		Use:   "ls ARCHIVE",
		Short: "List the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openModule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			names := m.EntryNames()
			slices.Sort(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				if classesOnly && !strings.HasSuffix(name, ".class") {
					continue
				}
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&classesOnly, "classes", false, "list only .class entries")
	return cmd
}

func newCatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cat ARCHIVE ENTRY",
		Short: "Write the decompressed content of an entry to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openModule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			content, err := m.Content(args[1])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
}

func newSumCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sum ARCHIVE",
		Short: "Print the sha256 digest of every entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openModule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			if opts.retains() {
				if err := m.Prefetch(cmd.Context()); err != nil {
					return err
				}
			}

			names := m.EntryNames()
			slices.Sort(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				content, err := m.Content(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s\n", digest.FromBytes(content), name)
			}
			return nil
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	var passes int
	cmd := &cobra.Command{
		Use:   "stats ARCHIVE",
		Short: "Read every entry and report cache activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passes < 1 {
				return fmt.Errorf("--passes must be >= 1, got %d", passes)
			}
			m, closeFn, err := opts.openModule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			names := m.EntryNames()
			for range passes {
				for _, name := range names {
					if err := cmd.Context().Err(); err != nil {
						return err
					}
					if _, err := m.Content(name); err != nil {
						return err
					}
				}
			}

			s := m.Stats()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "module\t%s\n", m.Location())
			fmt.Fprintf(tw, "entries\t%d\n", len(names))
			fmt.Fprintf(tw, "hits\t%d\n", s.Hits)
			fmt.Fprintf(tw, "misses\t%d\n", s.Misses)
			fmt.Fprintf(tw, "decompressed bytes\t%d\n", s.DecompressedBytes)
			fmt.Fprintf(tw, "store failures\t%d\n", s.StoreFailures)
			fmt.Fprintf(tw, "cached entries\t%d\n", s.CachedEntries)
			fmt.Fprintf(tw, "cached bytes\t%d\n", s.CachedBytes)
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&passes, "passes", 2, "number of passes over the entries")
	return cmd
}
