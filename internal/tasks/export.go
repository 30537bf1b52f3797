package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunelink/internal/formatter"
)

// ExportOpts contains configuration for bulk playlist exports.
type ExportOpts struct {
	Format     formatter.Format // Export format: csv, markdown or text
	OutputDir  string           // Base output directory (default: tunelink_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 4, max: 10)
	Refresh    bool             // Re-sync track listings before writing
	RateLimit  float64          // Playlists started per second when refreshing (default: 2)
}

// ExportResult is the outcome for one playlist.
type ExportResult struct {
	PlaylistID   string `json:"playlist_id"`
	PlaylistName string `json:"playlist_name"`
	Path         string `json:"path,omitempty"`
	Tracks       int    `json:"tracks"`
	Error        string `json:"error,omitempty"`
}

// Success reports whether the playlist was written.
func (r ExportResult) Success() bool { return r.Error == "" }

// BulkExportResult summarizes a bulk export.
type BulkExportResult struct {
	TotalPlaylists    int            `json:"total_playlists"`
	SuccessfulExports int            `json:"successful_exports"`
	FailedExports     int            `json:"failed_exports"`
	OutputDirectory   string         `json:"output_directory"`
	ManifestPath      string         `json:"-"`
	Results           []ExportResult `json:"results"`
}

// BulkExport writes the playlists in ids to files with a worker pool.
//
// The same visibility rule as [Syncer.SyncPlaylistDetail] applies per playlist. Failures are recorded
// per playlist and do not stop the others. An export_manifest.json summarizing the run is written to
// the output directory.
func (s *Syncer) BulkExport(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	viewerID string,
	ids []string,
	opts ExportOpts,
) (*BulkExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("tunelink_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	if opts.Format == "" {
		opts.Format = formatter.Text
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]ExportResult, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan string, len(ids))
	results := make(chan ExportResult, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- s.exportOne(ctx, viewerID, id, opts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			if opts.Refresh {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- id:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		result.Results = append(result.Results, res)
		step := len(result.Results)
		if res.Success() {
			result.SuccessfulExports++
			sendProgress(progress, exportCompletedUpdate(step, len(ids), res.PlaylistName, res.Path))
		} else {
			result.FailedExports++
			sendProgress(progress, exportFailedUpdate(step, len(ids), res.PlaylistName, fmt.Errorf("%s", res.Error)))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return result, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func (s *Syncer) exportOne(ctx context.Context, viewerID, playlistID string, opts ExportOpts) ExportResult {
	res := ExportResult{PlaylistID: playlistID, PlaylistName: fmt.Sprintf("Unknown (%s)", playlistID)}

	var (
		detail *PlaylistDetail
		err    error
	)
	if opts.Refresh {
		detail, err = s.SyncPlaylistDetail(ctx, viewerID, playlistID, nil)
	} else {
		detail, err = s.StoredPlaylistDetail(ctx, viewerID, playlistID)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.PlaylistName = detail.Playlist.Name
	res.Tracks = len(detail.Items)

	name := fmt.Sprintf("%s_%s%s", detail.Playlist.Platform, detail.Playlist.ExternalID, opts.Format.Extension())
	path, err := formatter.WriteExport(opts.Format, detail.Playlist, detail.Items, filepath.Join(opts.OutputDir, name))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Path = path
	return res
}
