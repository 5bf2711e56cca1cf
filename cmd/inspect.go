package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
	"github.com/xkilldash9x/ceqfill/internal/observability"
	"github.com/xkilldash9x/ceqfill/internal/reporting"
	"github.com/xkilldash9x/ceqfill/internal/survey"
)

const inspectConcurrency = 4

// inspection is what the resolver and classifier make of one snapshot.
type inspection struct {
	Path        string
	Title       string
	EntryPoints []string
	Submit      string
	Groups      []groupSummary
	Filled      *survey.FillCounts
	Forced      int
}

type groupSummary struct {
	Kind survey.ControlKind
	Key  string
	Size int
}

func newInspectCmd() *cobra.Command {
	var fill bool
	inspectCmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Analyse saved HTML pages of the questionnaire site offline",
		Long: `Loads saved copies of the listing or survey pages and reports the
entry points, the submit control and the question groups that a run would
find on them. With --fill the filler and checker run against each copy too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			results, err := inspectFiles(cmd.Context(), cfg, args, fill, observability.GetLogger())
			if err != nil {
				return err
			}
			renderInspections(cmd.OutOrStdout(), results)
			return nil
		},
	}
	inspectCmd.Flags().BoolVar(&fill, "fill", false, "Also fill and check each page and print the counts")
	return inspectCmd
}

// inspectFiles analyses every path concurrently. Each snapshot is its own
// document, so they share nothing but the configuration.
func inspectFiles(ctx context.Context, cfg *config.Config, paths []string, fill bool, logger *zap.Logger) ([]inspection, error) {
	// Snapshots do not load anything; waiting would only slow the report down.
	offline := *cfg
	offline.Timing = config.TimingConfig{Speed: 1}

	results := make([]inspection, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			res, err := inspectFile(gctx, &offline, path, fill, logger.With(zap.String("file", path)))
			if err != nil {
				return fmt.Errorf("inspect %s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func inspectFile(ctx context.Context, cfg *config.Config, path string, fill bool, logger *zap.Logger) (inspection, error) {
	res := inspection{Path: path}
	markup, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return res, err
	}
	page, err := dom.NewStaticPage("file://"+filepath.ToSlash(abs), string(markup))
	if err != nil {
		return res, err
	}
	if loc, err := page.Location(ctx); err == nil {
		res.Title = loc.Title
	}

	comps := survey.NewComponents(cfg, logger)
	entries, err := comps.Resolver.Resolve(ctx, page, survey.TargetEntryPoints)
	if err != nil {
		return res, err
	}
	for _, el := range entries {
		info, err := el.Describe(ctx)
		if err != nil {
			return res, err
		}
		res.EntryPoints = append(res.EntryPoints, info.Label())
	}

	submit, err := comps.Resolver.First(ctx, page, survey.TargetSubmitControl)
	if err != nil {
		return res, err
	}
	if submit != nil {
		info, err := submit.Describe(ctx)
		if err != nil {
			return res, err
		}
		res.Submit = fmt.Sprintf("<%s> %s", info.Tag, info.Label())
	}

	groups, err := survey.ScanGroups(ctx, page, logger)
	if err != nil {
		return res, err
	}
	for _, g := range groups {
		res.Groups = append(res.Groups, groupSummary{Kind: g.Kind, Key: g.Key, Size: len(g.Elements)})
	}

	if fill {
		counts, err := comps.Filler.FillOpenSurvey(ctx, page)
		if err != nil {
			return res, err
		}
		res.Filled = &counts
		if res.Forced, err = comps.Checker.EnforceRequiredFilled(ctx, page); err != nil {
			return res, err
		}
	}
	return res, nil
}

func renderInspections(w io.Writer, results []inspection) {
	for _, res := range results {
		t := reporting.NewTable(w)
		title := res.Path
		if res.Title != "" {
			title += " (" + res.Title + ")"
		}
		t.SetTitle(title)
		t.AppendHeader(table.Row{"Item", "Detail", "Count"})

		t.AppendRow(table.Row{"Entry points", firstOr(res.EntryPoints, "-"), len(res.EntryPoints)})
		submit := res.Submit
		if submit == "" {
			submit = "none"
		}
		t.AppendRow(table.Row{"Submit control", submit, ""})
		t.AppendSeparator()
		for _, g := range res.Groups {
			t.AppendRow(table.Row{g.Kind.String(), g.Key, g.Size})
		}
		if res.Filled != nil {
			t.AppendSeparator()
			t.AppendRow(table.Row{"Filled", fmt.Sprintf("single %d, multi %d, drop-down %d, text %d",
				res.Filled.SingleChoice, res.Filled.MultiChoice, res.Filled.DropDown, res.Filled.FreeText), res.Filled.Total()})
			t.AppendRow(table.Row{"Forced by checker", "", res.Forced})
		}
		t.Render()
	}
}

func firstOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return items[0]
}
