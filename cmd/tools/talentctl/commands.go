package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talent-match/internal/cv"
	"talent-match/internal/index"
	"talent-match/internal/ingest"
	"talent-match/internal/matching"
	"talent-match/internal/reindex"
	"talent-match/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest resume files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		if source != ingest.SourceUpload && source != ingest.SourceImport && source != ingest.SourceAPI {
			return fmt.Errorf("invalid source %q", source)
		}

		ctx := cmd.Context()
		a, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		results := make([]*ingest.Result, 0, len(args))
		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Error("reading file", zap.String("path", path), zap.Error(err))
				failed++
				continue
			}
			res, err := a.Pipeline.Ingest(ctx, ingest.Document{
				Filename: filepath.Base(path),
				FileKind: cv.KindFromFilename(path),
				Data:     data,
				Source:   source,
			})
			if err != nil {
				log.Error("ingest failed", zap.String("path", path), zap.Error(err))
				failed++
				continue
			}
			results = append(results, res)
		}

		// Nothing drains the queue in a one-shot process.
		if a.Config.Ingest.IndexMode == ingest.ModeAsync {
			if _, err := a.Scheduler.ReindexAll(ctx, reindex.Selection{}); err != nil {
				return err
			}
		}

		if err := printJSON(results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild embeddings for stale, selected or recently updated candidates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ids, _ := cmd.Flags().GetStringSlice("ids")
		since, _ := cmd.Flags().GetString("since")

		sel := reindex.Selection{IDs: ids}
		if since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("--since must be RFC3339: %w", err)
			}
			sel.UpdatedSince = &t
		}

		ctx := cmd.Context()
		a, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Scheduler.ReindexAll(ctx, sel)
		if res != nil {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d candidates failed", len(res.Failed))
		}
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <job description>",
	Short: "Rank candidates against a job description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")
		explain, _ := cmd.Flags().GetBool("explain")
		status, _ := cmd.Flags().GetString("status")
		location, _ := cmd.Flags().GetString("location")
		skills, _ := cmd.Flags().GetStringSlice("skills")

		jd := strings.Join(args, " ")
		if jd == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			jd = string(data)
		}

		ctx := cmd.Context()
		a, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		matches, err := a.Engine.Match(ctx, matching.MatchRequest{
			JD:      jd,
			TopK:    topK,
			Explain: explain,
			Filters: index.Filters{
				Status:         storage.CandidateStatus(status),
				Location:       location,
				RequiredSkills: skills,
			},
		})
		if err != nil {
			return err
		}
		return printJSON(matches)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Keyword search over candidate profiles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		ctx := cmd.Context()
		a, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		hits, err := a.Engine.Search(ctx, strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		return printJSON(hits)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store and index counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, _, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Store.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"total_candidates":   st.TotalCandidates,
			"total_resumes":      st.TotalResumes,
			"active_candidates":  st.ActiveCandidates,
			"indexed_candidates": a.Index.Count(),
			"embedding_version":  a.Embedder.ModelVersion(),
		})
	},
}

func init() {
	ingestCmd.Flags().String("source", ingest.SourceImport, "source channel recorded in the audit trail (upload, import, api)")

	reindexCmd.Flags().StringSlice("ids", nil, "candidate ids to reindex")
	reindexCmd.Flags().String("since", "", "reindex candidates updated since this RFC3339 time")

	matchCmd.Flags().IntP("top-k", "k", matching.DefaultTopK, "number of results")
	matchCmd.Flags().Bool("explain", false, "include match evidence")
	matchCmd.Flags().String("status", "", "only candidates with this status")
	matchCmd.Flags().String("location", "", "only candidates in this location (exact, case insensitive)")
	matchCmd.Flags().StringSlice("skills", nil, "required skills")

	searchCmd.Flags().IntP("top-k", "k", matching.DefaultSearchTopK, "number of results")

	rootCmd.AddCommand(ingestCmd, reindexCmd, matchCmd, searchCmd, statsCmd)
}
