package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"devotional/internal/app"
	"devotional/internal/cache"
	"devotional/internal/core"
)

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and edit the devotional cache",
	}
	cmd.AddCommand(newCacheListCmd(opts))
	cmd.AddCommand(newCacheShowCmd(opts))
	cmd.AddCommand(newCacheEvictCmd(opts))
	cmd.AddCommand(newCacheClearCmd(opts))
	return cmd
}

// withCache opens the configured store without touching remote services.
func withCache(cmd *cobra.Command, opts *options, fn func(*cache.Manager) error) error {
	store, mgr, err := app.OpenCache(cmd.Context(), opts.cfg)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = store.Close() }()
	return fail(fn(mgr))
}

func newCacheListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, func(m *cache.Manager) error {
				entries, err := m.Entries(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "REFERENCE\tCACHED AT\tSTATUS")
				for _, e := range entries {
					status := "valid"
					if e.Expired {
						status = "expired"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, e.CachedAt.Local().Format(time.DateTime), status)
				}
				return tw.Flush()
			})
		},
	}
}

func newCacheShowCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "show <reference>",
		Short:   "Show a cached devotional, even an expired one",
		Example: `  devotional cache show "Psalms 23:1"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, func(m *cache.Manager) error {
				entry, ok := m.Peek(cmd.Context(), args[0])
				if !ok {
					return core.NewNotFoundError("no cached devotional for " + args[0])
				}
				d := &core.Devotional{Key: args[0], Record: entry.Record, Provenance: core.Cached(entry.CachedAt)}
				if asJSON {
					data, err := json.MarshalIndent(d, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDevotional(d))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the entry as JSON")
	return cmd
}

func newCacheEvictCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <reference>",
		Short: "Remove one cached devotional",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, func(m *cache.Manager) error {
				if err := m.Evict(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Evicted %s.\n", args[0])
				return nil
			})
		},
	}
}

func newCacheClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached devotional",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, func(m *cache.Manager) error {
				if err := m.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			})
		},
	}
}
