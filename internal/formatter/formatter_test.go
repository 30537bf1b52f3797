package formatter

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
	th "github.com/desertthunder/tunelink/internal/testing"
)

func fixture() (*models.Playlist, []*models.PlaylistItem) {
	synced := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	p := &models.Playlist{
		ID: "p1", ExternalID: "ext1", Name: "Test Playlist", IsPublic: true,
		Platform: models.Spotify, TracksSyncedAt: &synced,
	}
	items := []*models.PlaylistItem{
		{Position: 0, Track: &models.Track{
			PlatformTrackID: "track1", Title: "Song One", Artist: "Artist One", Album: "Album One",
			DurationMS: 180_000, DurationDisplay: "3:00", ExternalURL: "https://open.spotify.com/track/track1",
		}},
		{Position: 1, Track: &models.Track{
			PlatformTrackID: "track2", Title: "Song, Two", Artist: "Artist Two, Artist Three",
			DurationMS: 245_000, DurationDisplay: "4:05",
		}},
	}
	return p, items
}

func TestHelpers(t *testing.T) {
	t.Run("JoinArtists", func(t *testing.T) {
		got := JoinArtists([]string{"A", " ", "B ", ""})
		if got != "A, B" {
			t.Errorf("JoinArtists = %q, want %q", got, "A, B")
		}
		if JoinArtists(nil) != "" {
			t.Error("expected empty string for no artists")
		}
	})

	t.Run("LargestImage", func(t *testing.T) {
		images := []Image{{URL: "s", Width: 64}, {URL: "l", Width: 640}, {URL: "m", Width: 300}}
		if got := LargestImage(images); got != "l" {
			t.Errorf("LargestImage = %q, want l", got)
		}
		if LargestImage(nil) != "" {
			t.Error("expected empty URL for no images")
		}
	})

	t.Run("ParseFormat", func(t *testing.T) {
		tc := map[string]Format{"csv": CSV, "MD": Markdown, "markdown": Markdown, "txt": Text, "": Text}
		for in, want := range tc {
			got, err := ParseFormat(in)
			if err != nil || got != want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
			}
		}
		if _, err := ParseFormat("pdf"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		p, items := fixture()
		data, err := ExportToCSV(p, items)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Position,Title,Artist,Album,Duration,Track ID,URL") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "1,Song One,Artist One,Album One,3:00,track1,") {
			t.Errorf("CSV missing first row, got: %s", output)
		}
		if !strings.Contains(output, `"Song, Two","Artist Two, Artist Three"`) {
			t.Errorf("CSV should quote fields with commas, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		p, items := fixture()
		data, err := ExportToMarkdown(p, items)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Test Playlist",
			"**Platform**: Spotify",
			"**Tracks**: 2",
			"**Visibility**: public",
			"1. Artist One - Song One (Album One) [3:00]",
			"2. Artist Two, Artist Three - Song, Two [4:05]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		p, items := fixture()
		data, err := ExportToText(p, items)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		if !strings.HasPrefix(string(data), "Playlist: Test Playlist\nTracks: 2\n") {
			t.Errorf("unexpected text export:\n%s", data)
		}
	})

	t.Run("item without track", func(t *testing.T) {
		p, _ := fixture()
		data, err := ExportToText(p, []*models.PlaylistItem{{Position: 0}})
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		if !strings.Contains(string(data), "1.  - ") {
			t.Errorf("expected blank line entry, got:\n%s", data)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("default filename", func(t *testing.T) {
		dir := t.TempDir()
		wd := th.MustGetwd(t)
		th.MustChdir(t, dir)
		defer th.MustChdir(t, wd)

		p, items := fixture()
		path, err := WriteExport(CSV, p, items, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if path != "ext1.csv" {
			t.Errorf("expected ext1.csv, got %s", path)
		}
		th.AssertFileExists(t, filepath.Join(dir, "ext1.csv"))
	})

	t.Run("nested path", func(t *testing.T) {
		p, items := fixture()
		path := filepath.Join(t.TempDir(), "exports", "mix.md")

		got, err := WriteExport(Markdown, p, items, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		th.AssertDirExists(t, filepath.Dir(path))

		content := th.MustReadFile(t, got)
		if !strings.HasPrefix(content, "# Test Playlist") {
			t.Errorf("unexpected file content:\n%s", content)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		p, items := fixture()
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		if _, err := WriteExport(Text, p, items, filepath.Join(blocker, "out.txt")); err == nil {
			t.Error("expected error writing beneath a regular file")
		}
	})
}
