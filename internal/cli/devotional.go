package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"devotional/internal/app"
	"devotional/internal/core"
)

func newRandomCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Generate the devotional for a random verse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				d, err := a.Service().Random(cmd.Context())
				if err != nil {
					return err
				}
				return printDevotional(cmd, d, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the devotional as JSON")
	return cmd
}

func newFetchCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch <book> <chapter> <verse> [text...]",
		Short: "Generate the devotional for a given verse",
		Example: `  devotional fetch Psalms 23 1 "The LORD is my shepherd; I shall not want."
  devotional fetch "1 John" 4 8`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			verse, err := parseVerse(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				d, err := a.Service().Fetch(cmd.Context(), verse)
				if err != nil {
					return err
				}
				return printDevotional(cmd, d, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the devotional as JSON")
	return cmd
}

// parseVerse turns "<book> <chapter> <verse> [text...]" into a verse.
func parseVerse(args []string) (core.Verse, error) {
	chapter, err := strconv.Atoi(args[1])
	if err != nil {
		return core.Verse{}, fmt.Errorf("invalid chapter %q", args[1])
	}
	verse, err := strconv.Atoi(args[2])
	if err != nil {
		return core.Verse{}, fmt.Errorf("invalid verse %q", args[2])
	}
	v := core.Verse{
		Reference: core.NewScriptureReference(args[0], chapter, verse),
		Text:      strings.Join(args[3:], " "),
	}
	if err := v.Reference.Validate(); err != nil {
		return core.Verse{}, err
	}
	return v, nil
}

func withApp(ctx context.Context, opts *options, fn func(*app.App) error) error {
	a, err := app.New(ctx, app.Config{AppConfig: opts.cfg, Factory: opts.factory})
	if err != nil {
		return fail(err)
	}
	defer func() { _ = a.Shutdown(context.Background()) }()
	return fail(fn(a))
}

func printDevotional(cmd *cobra.Command, d *core.Devotional, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	_, err := fmt.Fprint(out, renderDevotional(d))
	return err
}
