package subsonic

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/welp-ops/gazelle-subsonic/internal/gazelle"
	"github.com/welp-ops/gazelle-subsonic/internal/music"
	"github.com/welp-ops/gazelle-subsonic/internal/torrents"
)

func (s *Server) handlePing(sess *session) error {
	sess.Body()
	return nil
}

func (s *Server) handleGetLicense(sess *session) error {
	sess.Body().Child("license").
		Set("valid", true).
		Set("email", "welp@orpheus.network").
		Set("licenseExpires", "2100-01-01T00:00:00.000Z")
	return nil
}

func (s *Server) handleGetUser(sess *session) error {
	requested := sess.param("username")
	if requested != "" && requested != sess.username {
		return &Error{Code: CodeNotAuthorized, Message: "users may only query themselves"}
	}
	sess.Body().Child("user").
		Set("username", sess.username).
		Set("scrobblingEnabled", false).
		Set("adminRole", false).
		Set("settingsRole", false).
		Set("downloadRole", true).
		Set("uploadRole", false).
		Set("playlistRole", false).
		Set("coverArtRole", false).
		Set("commentRole", false).
		Set("podcastRole", false).
		Set("streamRole", true).
		Set("jukeboxRole", false).
		Set("shareRole", false)
	return nil
}

func (s *Server) handleGetMusicFolders(sess *session) error {
	sess.Body().Child("musicFolders").Append("musicFolder").
		Set("id", 1).
		Set("name", "Music")
	return nil
}

func (s *Server) handleGetAlbum(sess *session) error {
	groupID, err := ParseGroupID(sess.param("id"))
	if err != nil {
		return err
	}
	group, err := s.catalog.GetGroup(sess.r.Context(), groupID)
	if err != nil {
		return err
	}

	album := sess.Body().Child("album")
	setAlbumAttrs(album, group)
	for i, f := range group.Torrent.Files {
		setSongAttrs(album.Append("song"), group, group.Torrent, i, f)
	}
	return nil
}

func (s *Server) handleGetSong(sess *session) error {
	songID, err := ParseSongID(sess.param("id"))
	if err != nil {
		return err
	}
	group, err := s.catalog.GetGroup(sess.r.Context(), songID.Group)
	if err != nil {
		return err
	}
	t, ok := findTorrent(group, songID.Torrent)
	if !ok {
		return errNotFound("torrent %d is not part of group %d", songID.Torrent, songID.Group)
	}
	if songID.FileIndex < 0 || songID.FileIndex >= len(t.Files) {
		return errNotFound("no file %d in torrent %d", songID.FileIndex, t.ID)
	}
	setSongAttrs(sess.Body().Child("song"), group, t, songID.FileIndex, t.Files[songID.FileIndex])
	return nil
}

func (s *Server) handleGetArtist(sess *session) error {
	artistID, err := ParseArtistID(sess.param("id"))
	if err != nil {
		return err
	}
	artist, err := s.catalog.GetArtist(sess.r.Context(), artistID)
	if err != nil {
		return err
	}

	node := sess.Body().Child("artist").
		Set("id", FormatArtistID(artist.ID)).
		Set("name", artist.Name).
		Set("albumCount", len(artist.Groups))
	for _, g := range artist.Groups {
		node.Append("album").
			Set("id", FormatGroupID(g.ID)).
			Set("name", g.Name).
			Set("artist", artist.Name).
			Set("artistId", FormatArtistID(artist.ID)).
			Set("coverArt", FormatCoverID(g.ID)).
			Set("songCount", g.TrackCount).
			Set("duration", 0).
			Set("year", g.Year)
	}
	return nil
}

func (s *Server) handleGetMusicDirectory(sess *session) error {
	id := sess.param("id")
	switch {
	case IsGroupID(id):
		groupID, err := ParseGroupID(id)
		if err != nil {
			return err
		}
		group, err := s.catalog.GetGroup(sess.r.Context(), groupID)
		if err != nil {
			return err
		}
		dir := sess.Body().Child("directory")
		setAlbumAttrs(dir, group)
		dir.Set("name", group.Name)
		for i, f := range group.Torrent.Files {
			setSongAttrs(dir.Append("child"), group, group.Torrent, i, f)
		}
		return nil

	case IsArtistID(id):
		artistID, err := ParseArtistID(id)
		if err != nil {
			return err
		}
		artist, err := s.catalog.GetArtist(sess.r.Context(), artistID)
		if err != nil {
			return err
		}
		dir := sess.Body().Child("directory").
			Set("id", FormatArtistID(artist.ID)).
			Set("name", artist.Name)
		for _, g := range artist.Groups {
			dir.Append("child").
				Set("id", FormatGroupID(g.ID)).
				Set("parent", FormatArtistID(artist.ID)).
				Set("title", g.Name).
				Set("artist", artist.Name).
				Set("isDir", true).
				Set("coverArt", FormatCoverID(g.ID)).
				Set("year", g.Year)
		}
		return nil
	}
	return errMissing("malformed id %q, expected group-<id> or artist-<id>", id)
}

// Album list types the tracker can actually sort by. Anything else
// (starred, byGenre, ...) has no catalog equivalent.
var listOrders = map[string]gazelle.Order{
	"random":   gazelle.OrderRandom,
	"newest":   gazelle.OrderTime,
	"recent":   gazelle.OrderTime,
	"frequent": gazelle.OrderSnatched,
	"highest":  gazelle.OrderSeeders,
}

func (s *Server) handleGetAlbumList(sess *session) error {
	return s.albumList(sess, "albumList", "title")
}

func (s *Server) handleGetAlbumList2(sess *session) error {
	return s.albumList(sess, "albumList2", "name")
}

func (s *Server) albumList(sess *session, element, nameAttr string) error {
	listType := sess.param("type")
	order, ok := listOrders[listType]
	if !ok {
		return errMissing("unsupported album list type %q", listType)
	}
	size, err := intParam(sess, "size", 10, 1, 500)
	if err != nil {
		return err
	}
	offset, err := intParam(sess, "offset", 0, 0, 1<<30)
	if err != nil {
		return err
	}

	groups, err := s.pager.Window(sess.r.Context(), "", order, false, offset, size)
	if err != nil {
		return err
	}

	list := sess.Body().Child(element)
	for _, g := range groups {
		setSummaryAttrs(list.Append("album"), g, nameAttr)
	}
	return nil
}

func (s *Server) handleSearch2(sess *session) error {
	return s.search(sess, "searchResult2")
}

func (s *Server) handleSearch3(sess *session) error {
	return s.search(sess, "searchResult3")
}

// search serves both search flavors from the catalog's browse results.
// Only albums are searchable on the tracker; artist and song lists stay
// empty and clients cope.
func (s *Server) search(sess *session, element string) error {
	query := sess.param("query")
	if query == "" {
		return errMissing("required parameter %q is missing", "query")
	}
	count, err := intParam(sess, "albumCount", 20, 1, 500)
	if err != nil {
		return err
	}
	offset, err := intParam(sess, "albumOffset", 0, 0, 1<<30)
	if err != nil {
		return err
	}

	groups, err := s.pager.Window(sess.r.Context(), query, gazelle.OrderTime, false, offset, count)
	if err != nil {
		return err
	}

	nameAttr := "name"
	if element == "searchResult2" {
		nameAttr = "title"
	}
	result := sess.Body().Child(element)
	for _, g := range groups {
		setSummaryAttrs(result.Append("album"), g, nameAttr)
	}
	return nil
}

func (s *Server) handleStream(sess *session) error {
	songID, err := ParseSongID(sess.param("id"))
	if err != nil {
		return err
	}

	handle, err := s.streams.EnsureTorrent(sess.r.Context(), songID.Torrent)
	if err != nil {
		return err
	}

	rng := parseRangeHeader(sess.r.Header.Get("Range"))
	stream, info, err := s.streams.OpenFile(handle, songID.FileIndex, rng)
	if errors.Is(err, torrents.ErrUnsatisfiableRange) {
		// served whole instead, same as an unparseable range
		rng = nil
		stream, info, err = s.streams.OpenFile(handle, songID.FileIndex, nil)
	}
	if err != nil {
		return err
	}
	defer stream.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sess.w.Header().Set("Content-Type", contentType)
	sess.w.Header().Set("Accept-Ranges", "bytes")

	sess.wroteBody = true
	if rng != nil {
		sess.w.Header().Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
		sess.w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, info.Size))
		sess.w.WriteHeader(http.StatusPartialContent)
	} else {
		sess.w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		sess.w.WriteHeader(http.StatusOK)
	}

	if _, err := io.Copy(sess.w, stream); err != nil {
		// headers are committed, nothing to render; the client gets a
		// truncated body and the shared torrent stays up for others
		s.log.Warn("stream aborted", "torrentId", songID.Torrent, "file", info.Name, "error", err)
	}
	return nil
}

func (s *Server) handleGetCoverArt(sess *session) error {
	coverID, err := ParseCoverID(sess.param("id"))
	if err != nil {
		return err
	}
	group, err := s.catalog.GetGroup(sess.r.Context(), coverID)
	if err != nil {
		return err
	}

	if group.ImageURL != "" {
		sess.wroteBody = true
		http.Redirect(sess.w, sess.r, group.ImageURL, http.StatusFound)
		return nil
	}

	if s.cfg.DefaultCoverArtPath == "" {
		return errNotFound("group %d has no cover art", coverID)
	}
	f, err := os.Open(s.cfg.DefaultCoverArtPath)
	if err != nil {
		return fmt.Errorf("open default cover art: %w", err)
	}
	defer f.Close()

	contentType := s.cfg.DefaultCoverArtType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sess.w.Header().Set("Content-Type", contentType)
	sess.wroteBody = true
	if _, err := io.Copy(sess.w, f); err != nil {
		s.log.Warn("cover art write aborted", "error", err)
	}
	return nil
}

func (s *Server) handleGetPlaylists(sess *session) error {
	sess.Body().Child("playlists")
	return nil
}

func (s *Server) handleGetIndexes(sess *session) error {
	sess.Body().Child("indexes").
		Set("lastModified", 0).
		Set("ignoredArticles", "The El La Los Las Le Les")
	return nil
}

func (s *Server) handleGetGenres(sess *session) error {
	sess.Body().Child("genres")
	return nil
}

func (s *Server) handleGetPodcasts(sess *session) error {
	sess.Body().Child("podcasts")
	return nil
}

// setAlbumAttrs fills the album attributes shared by getAlbum and the
// directory view of a group.
func setAlbumAttrs(n *Node, group music.Group) {
	artistID := FormatArtistID(group.Artist.ID)
	duration := 0
	for _, f := range group.Torrent.Files {
		duration += group.Torrent.Format.EstimateDuration(f.Size)
	}
	n.Set("id", FormatGroupID(group.ID)).
		Set("name", group.Name).
		Set("coverArt", FormatCoverID(group.ID)).
		Set("songCount", len(group.Torrent.Files)).
		Set("duration", duration).
		Set("artist", group.ArtistName).
		Set("artistId", artistID).
		Set("parent", artistID).
		Set("year", group.Year).
		Set("isDir", true)
}

func setSongAttrs(n *Node, group music.Group, t music.Torrent, index int, f music.File) {
	base := path.Base(f.Name)
	title := strings.TrimSuffix(base, path.Ext(base))
	suffix := strings.TrimPrefix(path.Ext(base), ".")
	contentType := music.ContentTypeFor(f.Name)
	n.Set("id", FormatSongID(SongID{Group: group.ID, Torrent: t.ID, FileIndex: index})).
		Set("parent", FormatGroupID(group.ID)).
		Set("title", title).
		Set("album", group.Name).
		Set("albumId", FormatGroupID(group.ID)).
		Set("artist", group.ArtistName).
		Set("artistId", FormatArtistID(group.Artist.ID)).
		Set("isDir", false).
		Set("isVideo", false).
		Set("type", "music").
		Set("coverArt", FormatCoverID(group.ID)).
		Set("duration", t.Format.EstimateDuration(f.Size)).
		Set("bitRate", t.Format.BitrateKbps()).
		Set("size", f.Size).
		Set("suffix", suffix).
		Set("contentType", contentType).
		Set("year", group.Year).
		Set("path", fmt.Sprintf("%s/%s/%s", group.Artist.Name, group.Name, base))
}

func setSummaryAttrs(n *Node, g music.GroupSummary, nameAttr string) {
	n.Set("id", FormatGroupID(g.ID)).
		Set(nameAttr, g.Name).
		Set("artist", g.ArtistName).
		Set("coverArt", FormatCoverID(g.ID)).
		Set("year", g.Year).
		Set("isDir", true)
}

// findTorrent resolves a song's torrent within its group, preferring
// the currently selected release but falling back to any candidate so
// old song ids keep playing after the selection changes.
func findTorrent(group music.Group, torrentID int) (music.Torrent, bool) {
	if group.Torrent.ID == torrentID {
		return group.Torrent, true
	}
	for _, t := range group.Torrents {
		if t.ID == torrentID {
			return t, true
		}
	}
	return music.Torrent{}, false
}

func intParam(sess *session, name string, def, min, max int) (int, error) {
	raw := sess.param(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errMissing("parameter %q must be an integer", name)
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, nil
}
