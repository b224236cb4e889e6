package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	divisions "github.com/armindomatias/go-divisions"
)

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	var (
		listingPath string
		resume      bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify every gallery photo of a listing",
		Long: `Classify sends each gallery photo to the vision model and writes:

  <out>/<listing id>/classifications.jsonl             one record per photo, appended as it completes
  <out>/<listing id>/classifications_aggregated.json   records grouped by room type

Each run starts a new log unless --resume is given.`,
		Example: `  divisions classify --listing data/scraped_data/listing_34458598.json
  divisions classify --listing listing.json --concurrency 3 --model gpt-4.1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			listing, err := divisions.ReadListingFile(listingPath)
			if err != nil {
				return err
			}
			items := divisions.ValidateGallery(listing.Gallery)
			logPath := filepath.Join(a.listingDir(listing.ID), "classifications.jsonl")

			var logged []divisions.ClassificationRecord
			if resume {
				if logged, err = readLog(logPath); err != nil {
					return err
				}
				items = pendingItems(items, logged)
			}

			sink, err := openLog(logPath, resume)
			if err != nil {
				return err
			}
			defer sink.Close()
			a.engine.Sink = sink

			fresh := map[string][]divisions.ClassificationRecord{}
			if len(items) > 0 || len(logged) == 0 {
				fresh, err = a.engine.ClassifyGallery(ctx, items, a.cfg.Classify.MaxConcurrency, a.cfg.Model)
				if err != nil {
					return err
				}
			}
			byType := divisions.GroupByRoomType(logged)
			for roomType, recs := range fresh {
				byType[roomType] = append(byType[roomType], recs...)
			}

			out := filepath.Join(a.listingDir(listing.ID), "classifications_aggregated.json")
			if err := divisions.WriteClassifications(out, byType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "classified %d photos into %d room types: %s\n", countRecords(byType), len(byType), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&listingPath, "listing", "", "scraped listing JSON file")
	cmd.Flags().BoolVar(&resume, "resume", false, "keep classifications.jsonl and only classify photos it does not cover yet")
	_ = cmd.MarkFlagRequired("listing")
	return cmd
}

func newDedupCmd(flags *globalFlags) *cobra.Command {
	var listingPath, classificationsPath string

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Cluster classified photos into one record per room",
		Long: `Dedup reads classifications (the aggregated JSON mapping or the JSONL log) and
writes <out>/<listing id>/divisions.json. The listing supplies gallery order and
the bedroom/bathroom counts used to cap the number of divisions.`,
		Example: `  divisions dedup --listing listing.json --classifications data/image_analysis/34458598/classifications.jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			listing, err := divisions.ReadListingFile(listingPath)
			if err != nil {
				return err
			}
			byType, err := readClassifications(classificationsPath)
			if err != nil {
				return err
			}

			result, err := a.engine.Deduplicate(ctx, byType, listing.GalleryOrder(), listing.RoomCounts())
			if err != nil {
				return err
			}
			path, err := a.saveDivisions(ctx, listing.ID, result)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d divisions: %s\n", countDivisions(result), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&listingPath, "listing", "", "scraped listing JSON file")
	cmd.Flags().StringVar(&classificationsPath, "classifications", "", "classifications file (.json mapping or .jsonl log)")
	_ = cmd.MarkFlagRequired("listing")
	_ = cmd.MarkFlagRequired("classifications")
	return cmd
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var listingPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify and deduplicate a listing in one pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			listing, err := divisions.ReadListingFile(listingPath)
			if err != nil {
				return err
			}

			sink, err := divisions.CreateJSONL(filepath.Join(a.listingDir(listing.ID), "classifications.jsonl"))
			if err != nil {
				return err
			}
			defer sink.Close()
			a.engine.Sink = sink

			analysis, err := a.engine.Analyze(ctx, listing, a.cfg.Classify.MaxConcurrency, a.cfg.Model)
			if err != nil {
				return err
			}
			if err := divisions.WriteClassifications(
				filepath.Join(a.listingDir(listing.ID), "classifications_aggregated.json"),
				analysis.Classifications,
			); err != nil {
				return err
			}
			path, err := a.saveDivisions(ctx, listing.ID, analysis.Divisions)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d divisions (%s): %s\n", analysis.NumDivisions(), analysis.Counts, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&listingPath, "listing", "", "scraped listing JSON file")
	_ = cmd.MarkFlagRequired("listing")
	return cmd
}

// openLog starts a new classification log, discarding an earlier batch, or
// appends to the existing one when resuming.
func openLog(path string, resume bool) (*divisions.JSONLWriter, error) {
	if resume {
		return divisions.OpenJSONL(path)
	}
	return divisions.CreateJSONL(path)
}

// readLog loads an existing classification log. A missing log is empty.
func readLog(path string) ([]divisions.ClassificationRecord, error) {
	records, err := divisions.ReadJSONL(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return records, err
}

// pendingItems drops the items whose photo already has a logged record.
func pendingItems(items []divisions.GalleryItem, logged []divisions.ClassificationRecord) []divisions.GalleryItem {
	done := make(map[string]bool, len(logged))
	for _, rec := range logged {
		done[rec.RoomURL] = true
	}
	var out []divisions.GalleryItem
	for _, item := range items {
		if !done[item.URL] {
			out = append(out, item)
		}
	}
	return out
}

func readClassifications(path string) (map[string][]divisions.ClassificationRecord, error) {
	if strings.HasSuffix(path, ".jsonl") {
		records, err := divisions.ReadJSONL(path)
		if err != nil {
			return nil, err
		}
		return divisions.GroupByRoomType(records), nil
	}
	return divisions.ReadClassifications(path)
}

func countRecords(byType map[string][]divisions.ClassificationRecord) int {
	n := 0
	for _, recs := range byType {
		n += len(recs)
	}
	return n
}

func countDivisions(byType map[string][]divisions.DivisionRecord) int {
	n := 0
	for _, d := range byType {
		n += len(d)
	}
	return n
}
