// Package music holds the catalog data model shared by the gateway, the
// selector and the subsonic layer: release groups, torrents (releases),
// audio files and the codec-derived estimates hung off them.
package music

import (
	"path"
	"strings"
)

// Format is the normalized codec label of a torrent, collapsing the
// tracker's (format, encoding) pair into the handful of values the
// selection policy can be configured with.
type Format string

const (
	FormatFLAC     Format = "FLAC"
	FormatMP3320   Format = "MP3 320"
	FormatMP3V0    Format = "MP3 V0"
	FormatMP3V2    Format = "MP3 V2"
	FormatMP3Other Format = "MP3 Other"
	FormatOther    Format = "Other"
)

// ParseFormat maps a tracker (format, encoding) pair onto a Format.
func ParseFormat(format, encoding string) Format {
	if format == "FLAC" {
		return FormatFLAC
	}
	if format == "MP3" {
		switch encoding {
		case "320":
			return FormatMP3320
		case "V0", "V0 (VBR)":
			return FormatMP3V0
		case "V2", "V2 (VBR)":
			return FormatMP3V2
		default:
			return FormatMP3Other
		}
	}
	return FormatOther
}

// File is a single file inside a torrent, name is the path within the
// torrent.
type File struct {
	Name string
	Size int64
}

// Torrent is one concrete release of a group: one encoding, one file
// list. Files holds only audio files, in stable sorted order.
type Torrent struct {
	ID       int
	Size     int64
	Format   Format
	Media    string
	Year     int
	Snatches int
	Seeders  int
	Leechers int
	Files    []File
}

// ArtistRef is the lightweight artist reference carried by a group.
type ArtistRef struct {
	ID   int
	Name string
}

// GroupSummary is what a catalog search result knows about a group.
// Search responses don't carry enough torrent detail to select a
// release, so summaries carry none.
type GroupSummary struct {
	ID         int
	Name       string
	Year       int
	ArtistName string
}

// Group is a fully fetched release group. Torrent is the release picked
// by the selection policy; Torrents are all candidates, kept so songs
// addressed by a specific torrent id stay resolvable even when the
// policy would pick a different release today.
type Group struct {
	GroupSummary
	ImageURL string
	Artist   ArtistRef
	Torrent  Torrent
	Torrents []Torrent
}

// ArtistGroup is one album row of an artist page. TrackCount is an
// estimate taken from the largest torrent's file count.
type ArtistGroup struct {
	ID         int
	Name       string
	Year       int
	TrackCount int
}

// Artist is a fully fetched artist with its release groups.
type Artist struct {
	ID       int
	Name     string
	ImageURL string
	Groups   []ArtistGroup
}

// ContentTypeFor returns the MIME type served for an audio file name,
// or "" when the name is not a recognized audio file.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".aac":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	}
	return ""
}

// IsAudio reports whether the file name is one the bridge exposes as a
// song. Must stay in sync with ContentTypeFor, song ids index into the
// list this predicate produces.
func IsAudio(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".flac", ".aac":
		return true
	}
	return false
}

// BitrateKbps is a per-format bit rate estimate. Clients use it for
// display and seek math only, so a rough number per codec beats the
// placeholder constants the tracker can't provide.
func (f Format) BitrateKbps() int {
	switch f {
	case FormatFLAC:
		return 1000
	case FormatMP3320:
		return 320
	case FormatMP3V0:
		return 245
	case FormatMP3V2:
		return 190
	case FormatMP3Other:
		return 192
	default:
		return 128
	}
}

// EstimateDuration returns the estimated play time in seconds of a file
// of the given size under this format's bit rate estimate.
func (f Format) EstimateDuration(size int64) int {
	kbps := f.BitrateKbps()
	if kbps <= 0 {
		return 0
	}
	return int(size * 8 / int64(kbps) / 1000)
}
