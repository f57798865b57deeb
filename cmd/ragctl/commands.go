package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/app"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/retrieval"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

const probeText = "Connectivity check for the analytics embedding provider."

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Chunk, embed and store analytics sources from a JSON file",
		ArgsUsage: "FILE (JSON array or JSON lines; - for stdin)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Disable the progress bar",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.ShowSubcommandHelp(c)
			}
			entries, err := readSourcesFile(c.Args().First())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No sources to ingest.")
				return nil
			}

			now := time.Now()
			sources := make([]retrieval.Source, len(entries))
			for i, entry := range entries {
				sources[i] = entry.toSource(now)
			}

			return withApp(c, func(a *app.App) error {
				return runIngest(c.Context, a, sources, !c.Bool("no-progress"), os.Stdout)
			})
		},
	}
}

func runIngest(ctx context.Context, a *app.App, sources []retrieval.Source, progress bool, out io.Writer) error {
	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.NewOptions(len(sources),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Ingesting"),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}

	orch, err := retrieval.New(a.Client, a.Store,
		retrieval.WithLogger(a.Logger),
		retrieval.WithPoolSize(a.Config.Retrieval.IngestWorkers),
		retrieval.WithSourceDone(func(index int, result *types.IngestResult, err error) {
			if err != nil {
				a.Logger.Warn("source failed", "index", index, "err", err)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer orch.Release()

	start := time.Now()
	results, ingestErr := orch.IngestAll(ctx, sources)

	var total types.IngestResult
	failedSources := 0
	for _, r := range results {
		if r == nil {
			failedSources++
			continue
		}
		total.Chunks += r.Chunks
		total.Success += r.Success
		total.Failed += r.Failed
		total.Skipped += r.Skipped
	}

	fmt.Fprintf(out, "Sources:  %d (%d failed)\n", len(sources), failedSources)
	fmt.Fprintf(out, "Chunks:   %d\n", total.Chunks)
	fmt.Fprintf(out, "Stored:   %d\n", total.Success)
	fmt.Fprintf(out, "Failed:   %d\n", total.Failed)
	fmt.Fprintf(out, "Skipped:  %d\n", total.Skipped)
	fmt.Fprintf(out, "Duration: %s\n", time.Since(start).Round(time.Millisecond))
	if !a.Client.Available() {
		fmt.Fprintln(out, "Embedding provider credentials are not configured; nothing was embedded.")
	}
	return ingestErr
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Retrieve the stored chunks most similar to a question",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"k"}, Usage: "Maximum results (default: configured top-K)"},
			&cli.Float64Flag{Name: "min-similarity", Usage: "Similarity floor (default: configured threshold)"},
			&cli.StringFlag{Name: "type", Usage: "Restrict to website or contract records"},
			&cli.StringSliceFlag{Name: "site", Usage: "Restrict to site ID (repeatable)"},
			&cli.StringSliceFlag{Name: "contract", Usage: "Restrict to contract ID (repeatable)"},
			&cli.StringFlag{Name: "category", Usage: "Restrict to a data category"},
			&cli.TimestampFlag{Name: "from", Usage: "Earliest analytics timestamp", Layout: time.RFC3339},
			&cli.TimestampFlag{Name: "to", Usage: "Latest analytics timestamp", Layout: time.RFC3339},
			&cli.BoolFlag{Name: "json", Usage: "Print results as JSON"},
		},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return cli.ShowSubcommandHelp(c)
			}

			filter := &types.Filter{
				Type:         types.RecordType(c.String("type")),
				SiteIDs:      c.StringSlice("site"),
				ContractIDs:  c.StringSlice("contract"),
				DataCategory: types.DataCategory(c.String("category")),
			}
			if ts := c.Timestamp("from"); ts != nil {
				filter.From = *ts
			}
			if ts := c.Timestamp("to"); ts != nil {
				filter.To = *ts
			}

			return withApp(c, func(a *app.App) error {
				topK, threshold := a.Orchestrator.Defaults()
				if c.IsSet("limit") {
					topK = c.Int("limit")
				}
				if c.IsSet("min-similarity") {
					threshold = c.Float64("min-similarity")
				}

				results, err := a.Orchestrator.Query(c.Context, text, filter, topK, threshold)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(os.Stdout, results)
				}
				printResults(os.Stdout, results)
				return nil
			})
		},
	}
}

func printResults(w io.Writer, results []types.SimilarityResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching records.")
		return
	}
	for i, r := range results {
		m := r.Metadata
		subject := m.SiteID
		if m.Type == types.TypeContract {
			subject = m.ContractID
		}
		fmt.Fprintf(w, "%d. [%.4f] %s %s/%s %s\n", i+1, r.Similarity, m.Type, subject, m.DataCategory,
			m.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(w, "   %s\n", r.Text)
	}
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Apply the retention policy, or delete records of given sites or contracts",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "site", Usage: "Delete records of this site ID (repeatable)"},
			&cli.StringSliceFlag{Name: "contract", Usage: "Delete records of this contract ID (repeatable)"},
			&cli.DurationFlag{Name: "older-than", Usage: "Only delete records stored longer ago than this"},
		},
		Action: func(c *cli.Context) error {
			criteria := types.DeleteCriteria{
				SiteIDs:     c.StringSlice("site"),
				ContractIDs: c.StringSlice("contract"),
			}
			if d := c.Duration("older-than"); d > 0 {
				criteria.OlderThan = time.Now().Add(-d)
			}

			return withApp(c, func(a *app.App) error {
				var (
					deleted int
					err     error
				)
				if criteria.Empty() {
					if a.Orchestrator.MaxAge() == 0 {
						fmt.Println("No retention period configured; nothing to purge.")
						return nil
					}
					deleted, err = a.Orchestrator.Purge(c.Context, time.Now())
				} else {
					deleted, err = a.Orchestrator.PurgeMatching(c.Context, criteria)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d records.\n", deleted)
				return nil
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show store statistics and embedding provider status",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print statistics as JSON"},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				status, err := a.Orchestrator.Status(c.Context)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(os.Stdout, status)
				}
				printStatus(os.Stdout, status)
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, status *retrieval.Status) {
	s := status.Store
	fmt.Fprintf(w, "Backend:     %s (native search: %v)\n", s.Backend, s.NativeSearch)
	fmt.Fprintf(w, "Dimension:   %d\n", s.Dimension)
	fmt.Fprintf(w, "Records:     %d\n", s.Total)
	fmt.Fprintf(w, "Sites:       %d\n", s.Sites)
	fmt.Fprintf(w, "Contracts:   %d\n", s.Contracts)
	if !s.Oldest.IsZero() {
		fmt.Fprintf(w, "Oldest:      %s\n", s.Oldest.Format(time.RFC3339))
		fmt.Fprintf(w, "Newest:      %s\n", s.Newest.Format(time.RFC3339))
	}

	categories := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(w, "  %-18s %d\n", c, s.ByCategory[types.DataCategory(c)])
	}

	e := status.Embedding
	provider := e.Provider
	if e.Degraded {
		provider += " (no credentials)"
	}
	fmt.Fprintf(w, "Provider:    %s %s\n", provider, e.Model)
	fmt.Fprintf(w, "Retention:   %s\n", status.MaxAge)
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Embed a test sentence to check provider credentials and latency",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				start := time.Now()
				vec, err := a.Client.EmbedOne(c.Context, probeText)
				if errors.Is(err, types.ErrMissingCredentials) {
					return fmt.Errorf("%s has no API key configured: %w", a.Client.Provider(), err)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Provider:  %s\n", a.Client.Provider())
				fmt.Printf("Model:     %s\n", a.Client.Model())
				fmt.Printf("Dimension: %d\n", len(vec))
				fmt.Printf("Latency:   %s\n", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
