// package formatter renders mirrored playlists for humans: duration and artist strings,
// and CSV, Markdown or plain text exports
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

// Format selects an export encoding.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// ParseFormat accepts csv, markdown (or md) and text (or txt).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "text", "txt", "":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension is the file suffix for the format.
func (f Format) Extension() string {
	switch f {
	case CSV:
		return ".csv"
	case Markdown:
		return ".md"
	default:
		return ".txt"
	}
}

// Image is one rendition of a cover image.
type Image struct {
	URL    string
	Width  int
	Height int
}

// LargestImage picks the URL of the widest rendition, or the first when sizes are unknown.
func LargestImage(images []Image) string {
	if len(images) == 0 {
		return ""
	}
	best := images[0]
	for _, img := range images[1:] {
		if img.Width > best.Width {
			best = img
		}
	}
	return best.URL
}

// JoinArtists flattens credited artists into one display string, skipping blanks.
func JoinArtists(names []string) string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return strings.Join(out, ", ")
}

// Visibility renders the public flag.
func Visibility(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

// ExportToCSV writes one row per item: Position, Title, Artist, Album, Duration, Track ID, URL
func ExportToCSV(p *models.Playlist, items []*models.PlaylistItem) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "Artist", "Album", "Duration", "Track ID", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		t := trackOf(item)
		record := []string{
			strconv.Itoa(item.Position + 1),
			t.Title,
			t.Artist,
			t.Album,
			t.DurationDisplay,
			t.PlatformTrackID,
			t.ExternalURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a heading, a metadata block and a numbered track list.
func ExportToMarkdown(p *models.Playlist, items []*models.PlaylistItem) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.Name)
	fmt.Fprintf(&buf, "**Platform**: %s\n", p.Platform.Title())
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(items))
	fmt.Fprintf(&buf, "**Visibility**: %s\n", Visibility(p.IsPublic))
	if p.TracksSyncedAt != nil {
		fmt.Fprintf(&buf, "**Synced**: %s\n", p.TracksSyncedAt.Format("2006-01-02 15:04 MST"))
	}
	buf.WriteString("\n## Tracks\n\n")

	for _, item := range items {
		t := trackOf(item)
		album := ""
		if t.Album != "" {
			album = fmt.Sprintf(" (%s)", t.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", item.Position+1, t.Artist, t.Title, album, t.DurationDisplay)
	}

	return buf.Bytes(), nil
}

// ExportToText renders the playlist name and an artist - title line per item.
func ExportToText(p *models.Playlist, items []*models.PlaylistItem) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", p.Name)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(items))

	for _, item := range items {
		t := trackOf(item)
		fmt.Fprintf(&buf, "%d. %s - %s\n", item.Position+1, t.Artist, t.Title)
	}

	return buf.Bytes(), nil
}

// Export renders in the given format.
func Export(f Format, p *models.Playlist, items []*models.PlaylistItem) ([]byte, error) {
	switch f {
	case CSV:
		return ExportToCSV(p, items)
	case Markdown:
		return ExportToMarkdown(p, items)
	default:
		return ExportToText(p, items)
	}
}

// WriteExport renders and writes an export, returning the path written.
//
// An empty path defaults to {playlist.ExternalID}{extension} in the working directory.
func WriteExport(f Format, p *models.Playlist, items []*models.PlaylistItem, path string) (string, error) {
	if path == "" {
		path = p.ExternalID + f.Extension()
	}

	data, err := Export(f, p, items)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

func trackOf(item *models.PlaylistItem) models.Track {
	if item.Track == nil {
		return models.Track{DurationDisplay: shared.FormatDuration(0)}
	}
	return *item.Track
}
