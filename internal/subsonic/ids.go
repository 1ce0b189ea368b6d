package subsonic

import (
	"fmt"
	"regexp"
	"strconv"
)

// Opaque client-facing identifiers. Clients echo these back verbatim;
// everything they encode is packed into an anchored, digits-only tagged
// string so parse and format are exact inverses.

// SongID locates one audio file: the release group, the concrete
// torrent (so playback still works when the selection policy moves on)
// and the index into the torrent's stable audio file list.
type SongID struct {
	Group     int
	Torrent   int
	FileIndex int
}

var (
	artistIDPattern = regexp.MustCompile(`^artist-(\d+)$`)
	groupIDPattern  = regexp.MustCompile(`^group-(\d+)$`)
	songIDPattern   = regexp.MustCompile(`^song-(\d+)-(\d+)-(\d+)$`)
	coverIDPattern  = regexp.MustCompile(`^cover-(\d+)$`)
)

func FormatArtistID(id int) string { return fmt.Sprintf("artist-%d", id) }
func FormatGroupID(id int) string  { return fmt.Sprintf("group-%d", id) }
func FormatCoverID(id int) string  { return fmt.Sprintf("cover-%d", id) }

func FormatSongID(id SongID) string {
	return fmt.Sprintf("song-%d-%d-%d", id.Group, id.Torrent, id.FileIndex)
}

func ParseArtistID(s string) (int, error) {
	return parseTagged(artistIDPattern, "artist-<id>", s)
}

func ParseGroupID(s string) (int, error) {
	return parseTagged(groupIDPattern, "group-<id>", s)
}

func ParseCoverID(s string) (int, error) {
	return parseTagged(coverIDPattern, "cover-<id>", s)
}

func ParseSongID(s string) (SongID, error) {
	m := songIDPattern.FindStringSubmatch(s)
	if m == nil {
		return SongID{}, errMissing("malformed id %q, expected song-<group>-<torrent>-<file>", s)
	}
	group, err := strconv.Atoi(m[1])
	if err != nil {
		return SongID{}, errMissing("malformed id %q: %v", s, err)
	}
	torrentID, err := strconv.Atoi(m[2])
	if err != nil {
		return SongID{}, errMissing("malformed id %q: %v", s, err)
	}
	index, err := strconv.Atoi(m[3])
	if err != nil {
		return SongID{}, errMissing("malformed id %q: %v", s, err)
	}
	return SongID{Group: group, Torrent: torrentID, FileIndex: index}, nil
}

// IsGroupID reports whether s has the group id shape, used where an
// endpoint accepts more than one id variant.
func IsGroupID(s string) bool  { return groupIDPattern.MatchString(s) }
func IsArtistID(s string) bool { return artistIDPattern.MatchString(s) }

func parseTagged(pattern *regexp.Regexp, shape, s string) (int, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errMissing("malformed id %q, expected %s", s, shape)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errMissing("malformed id %q: %v", s, err)
	}
	return id, nil
}
