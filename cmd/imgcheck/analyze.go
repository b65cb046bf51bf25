package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
	"github.com/anime-shed/profile-image-analyzer/internal/config"
	"github.com/anime-shed/profile-image-analyzer/internal/factory"
	"github.com/anime-shed/profile-image-analyzer/internal/repository"
	"github.com/anime-shed/profile-image-analyzer/internal/strategy"

	"github.com/disintegration/imaging"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileResult pairs an input with its analysis.
type fileResult struct {
	Input  string          `json:"input"`
	Result analyzer.Result `json:"result"`
}

// AnalyzeHandler runs the analyze command
func AnalyzeHandler(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "table" && format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}

	opts, err := optionsFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	components := factory.NewComponentFactory(cfg, nil)
	a := components.AnalyzerFactory.CreateAnalyzer()
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sources, fetchErrs, err := buildSources(ctx, components.StorageFactory, cfg.MaxImagePixels, args)
	if err != nil {
		return err
	}

	workers, _ := cmd.Flags().GetInt("workers")
	results := analyzeFetched(ctx, a, sources, fetchErrs, opts, workers)

	out := make([]fileResult, len(args))
	failed := 0
	for i, r := range results {
		out[i] = fileResult{Input: args[i], Result: r}
		if r.Failed() {
			failed++
		}
	}

	w := cmd.OutOrStdout()
	switch format {
	case "json":
		err = writeJSON(w, out)
	case "yaml":
		err = writeYAML(w, out)
	default:
		writeTable(w, out)
	}
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("export-crops"); dir != "" {
		n, err := exportCrops(dir, args, sources, results)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d crops to %s\n", n, dir)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be analyzed", failed, len(results))
	}
	return nil
}

func optionsFromFlags(cmd *cobra.Command) (analyzer.Options, error) {
	mode, _ := cmd.Flags().GetString("mode")
	s, err := strategy.Lookup(mode)
	if err != nil {
		return analyzer.Options{}, err
	}
	opts := s.Options()

	if v, _ := cmd.Flags().GetBool("no-quality"); v {
		opts = opts.WithoutQuality()
	}
	if v, _ := cmd.Flags().GetBool("no-crops"); v {
		opts = opts.WithoutCrops()
	}
	if v, _ := cmd.Flags().GetBool("no-nsfw"); v {
		opts = opts.WithoutContentDetection()
	}
	return opts, nil
}

// buildSources maps local paths to PathSource and fetchable references to
// BytesSource. A failed fetch leaves a nil source and its error at the same
// index.
func buildSources(ctx context.Context, storages factory.StorageFactory, maxPixels int64, args []string) ([]analyzer.Source, []error, error) {
	var repo *repository.RoutingImageRepository
	sources := make([]analyzer.Source, len(args))
	fetchErrs := make([]error, len(args))

	for i, arg := range args {
		if !isReference(arg) {
			sources[i] = analyzer.PathSource{Path: arg, MaxPixels: maxPixels}
			continue
		}
		if repo == nil {
			var err error
			if repo, err = storages.CreateRepository(); err != nil {
				return nil, nil, err
			}
		}
		if err := repo.ValidateImageURL(arg); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", displayName(arg), err)
		}
		data, err := repo.FetchBytes(ctx, arg)
		if err != nil {
			fetchErrs[i] = err
			continue
		}
		sources[i] = analyzer.BytesSource{Data: data, MaxPixels: maxPixels}
	}
	return sources, fetchErrs, nil
}

// analyzeFetched analyzes every source that was fetched and reports the fetch
// error for the rest.
func analyzeFetched(ctx context.Context, a *analyzer.Analyzer, sources []analyzer.Source, fetchErrs []error, opts analyzer.Options, workers int) []analyzer.Result {
	results := make([]analyzer.Result, len(sources))
	var pending []analyzer.Source
	var index []int
	for i, src := range sources {
		if fetchErrs[i] != nil {
			results[i] = analyzer.Result{Error: "fetch failed: " + fetchErrs[i].Error()}
			continue
		}
		pending = append(pending, src)
		index = append(index, i)
	}
	if len(pending) == 0 {
		return results
	}
	for j, r := range a.AnalyzeBatch(ctx, pending, opts, workers) {
		results[index[j]] = r
	}
	return results
}

func isReference(arg string) bool {
	for _, prefix := range []string{"http://", "https://", "azblob://", "data:"} {
		if strings.HasPrefix(strings.ToLower(arg), prefix) {
			return true
		}
	}
	return false
}

func writeJSON(w io.Writer, out []fileResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeYAML goes through JSON so the output keeps the JSON field names and
// crop encoding.
func writeYAML(w io.Writer, out []fileResult) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func writeTable(w io.Writer, out []fileResult) {
	var data [][]string
	for _, fr := range out {
		name := displayName(fr.Input)
		r := fr.Result
		if r.Failed() {
			data = append(data, []string{name, "-", "-", "-", "-", "error: " + r.Error})
			continue
		}

		size := fmt.Sprintf("%dx%d", r.OriginalSize[0], r.OriginalSize[1])
		score, high := "-", "-"
		if r.Quality != nil {
			score = strconv.FormatFloat(r.Quality.QualityScore, 'f', 3, 64)
			high = strconv.FormatBool(r.Quality.IsHighQuality)
		}
		nsfw := "-"
		if c := r.InappropriateContent; c != nil {
			nsfw = fmt.Sprintf("%.3f (%s)", c.NsfwProbability, c.ModelUsed)
		}
		data = append(data, []string{name, size, score, high, nsfw, cropSummary(r.SuggestedCrops)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"IMAGE", "SIZE", "SCORE", "HIGH QUALITY", "NSFW", "CROPS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.AppendBulk(data)
	table.Render()
}

func cropSummary(crops map[string]analyzer.CropSuggestion) string {
	if len(crops) == 0 {
		return "-"
	}
	names := make([]string, 0, len(crops))
	for name := range crops {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		c := crops[name]
		if c.AlreadyGood {
			parts = append(parts, name+"=ok")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%dx%d", name, c.Width, c.Height))
	}
	return strings.Join(parts, " ")
}

func displayName(input string) string {
	if strings.HasPrefix(input, "data:") && len(input) > 24 {
		return input[:24] + "..."
	}
	return input
}

// exportCrops writes <dir>/<base>_<target>.png for every crop suggestion.
func exportCrops(dir string, args []string, sources []analyzer.Source, results []analyzer.Result) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}

	n := 0
	for i, r := range results {
		if r.Failed() || sources[i] == nil || len(r.SuggestedCrops) == 0 {
			continue
		}
		img, err := analyzer.Load(sources[i])
		if err != nil {
			return n, err
		}
		base := exportBase(args[i], i)
		for name, s := range r.SuggestedCrops {
			cropped, err := analyzer.ApplyCrop(img, s)
			if err != nil {
				return n, fmt.Errorf("%s %s: %w", args[i], name, err)
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", base, name))
			if err := imaging.Save(cropped, path); err != nil {
				return n, fmt.Errorf("save %s: %w", path, err)
			}
			n++
		}
	}
	return n, nil
}

func exportBase(input string, i int) string {
	if isReference(input) {
		return fmt.Sprintf("image%d", i+1)
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
