package subsonic

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welp-ops/gazelle-subsonic/internal/gazelle"
	"github.com/welp-ops/gazelle-subsonic/internal/music"
	"github.com/welp-ops/gazelle-subsonic/internal/torrents"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCatalog struct {
	groups  map[int]music.Group
	artists map[int]music.Artist

	summaries []music.GroupSummary
	pageSize  int

	lastTerm  string
	lastOrder gazelle.Order
}

func (f *fakeCatalog) SearchPage(_ context.Context, term string, order gazelle.Order, _ bool, page int) (gazelle.SearchResult, error) {
	f.lastTerm = term
	f.lastOrder = order
	lo := (page - 1) * f.pageSize
	hi := lo + f.pageSize
	if lo > len(f.summaries) {
		lo = len(f.summaries)
	}
	if hi > len(f.summaries) {
		hi = len(f.summaries)
	}
	return gazelle.SearchResult{Groups: f.summaries[lo:hi], Pages: 1}, nil
}

func (f *fakeCatalog) PageSize() int { return f.pageSize }

func (f *fakeCatalog) GetGroup(_ context.Context, id int) (music.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return music.Group{}, gazelle.ErrNotFound
	}
	return g, nil
}

func (f *fakeCatalog) GetArtist(_ context.Context, id int) (music.Artist, error) {
	a, ok := f.artists[id]
	if !ok {
		return music.Artist{}, gazelle.ErrNotFound
	}
	return a, nil
}

// fakeStreams serves a fixed payload per torrent, clamping ranges the
// way the real orchestrator does.
type fakeStreams struct {
	payloads    map[int][]byte
	ensureErr   error
	lastTorrent int
}

func (f *fakeStreams) EnsureTorrent(_ context.Context, torrentID int) (*torrents.Handle, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	if _, ok := f.payloads[torrentID]; !ok {
		return nil, &torrents.TransportError{TorrentID: torrentID, Err: io.ErrUnexpectedEOF}
	}
	f.lastTorrent = torrentID
	return &torrents.Handle{}, nil
}

func (f *fakeStreams) OpenFile(_ *torrents.Handle, fileIndex int, rng *torrents.ByteRange) (io.ReadCloser, torrents.FileInfo, error) {
	payload := f.payloads[f.lastTorrent]
	if fileIndex != 0 {
		return nil, torrents.FileInfo{}, torrents.ErrFileNotFound
	}
	size := int64(len(payload))
	info := torrents.FileInfo{Name: "01 - Track.mp3", Size: size, ContentType: "audio/mpeg"}
	if rng == nil {
		return io.NopCloser(strings.NewReader(string(payload))), info, nil
	}
	if rng.Start < 0 || rng.Start >= size {
		return nil, torrents.FileInfo{}, torrents.ErrUnsatisfiableRange
	}
	if rng.End < rng.Start || rng.End >= size {
		rng.End = size - 1
	}
	return io.NopCloser(strings.NewReader(string(payload[rng.Start : rng.End+1]))), info, nil
}

func testGroup() music.Group {
	files := []music.File{
		{Name: "01 - Opener.flac", Size: 30_000_000},
		{Name: "02 - Closer.flac", Size: 40_000_000},
	}
	selected := music.Torrent{
		ID:     900,
		Format: music.FormatFLAC,
		Year:   2011,
		Files:  files,
	}
	return music.Group{
		GroupSummary: music.GroupSummary{
			ID:         42,
			Name:       "Night Drive",
			Year:       2009,
			ArtistName: "Chromatics",
		},
		ImageURL: "https://images.example/night-drive.jpg",
		Artist:   music.ArtistRef{ID: 7, Name: "Chromatics"},
		Torrent:  selected,
		Torrents: []music.Torrent{
			selected,
			{ID: 901, Format: music.FormatMP3320, Files: files[:1]},
		},
	}
}

func newHandlerServer(t *testing.T, catalog *fakeCatalog, streams *fakeStreams) *Server {
	t.Helper()
	return New(Config{Users: map[string]string{"welp": "sesame"}},
		catalog, streams, WithLogger(discardLogger()))
}

func TestGetAlbum(t *testing.T) {
	catalog := &fakeCatalog{groups: map[int]music.Group{42: testGroup()}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getAlbum", map[string]string{"id": "group-42"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<album id="group-42"`)
	assert.Contains(t, body, `name="Night Drive"`)
	assert.Contains(t, body, `artist="Chromatics"`)
	assert.Contains(t, body, `artistId="artist-7"`)
	assert.Contains(t, body, `coverArt="cover-42"`)
	assert.Contains(t, body, `songCount="2"`)
	assert.Contains(t, body, `<song id="song-42-900-0"`)
	assert.Contains(t, body, `<song id="song-42-900-1"`)
	assert.Contains(t, body, `title="02 - Closer"`)
	assert.Contains(t, body, `suffix="flac"`)
	assert.Contains(t, body, `contentType="audio/flac"`)
}

func TestGetAlbumUnknownGroup(t *testing.T) {
	s := newHandlerServer(t, &fakeCatalog{groups: map[int]music.Group{}}, nil)
	w := get(t, s, "getAlbum", map[string]string{"id": "group-9"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 70, errorCode(t, w))
}

func TestGetAlbumMalformedID(t *testing.T) {
	s := newHandlerServer(t, &fakeCatalog{}, nil)
	w := get(t, s, "getAlbum", map[string]string{"id": "album-42"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10, errorCode(t, w))
}

func TestGetSong(t *testing.T) {
	catalog := &fakeCatalog{groups: map[int]music.Group{42: testGroup()}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getSong", map[string]string{"id": "song-42-900-1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<song id="song-42-900-1"`)
	assert.Contains(t, body, `title="02 - Closer"`)
	assert.Contains(t, body, `album="Night Drive"`)
}

func TestGetSongUnselectedTorrentStillResolves(t *testing.T) {
	catalog := &fakeCatalog{groups: map[int]music.Group{42: testGroup()}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getSong", map[string]string{"id": "song-42-901-0"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<song id="song-42-901-0"`)
}

func TestGetSongFileIndexOutOfRange(t *testing.T) {
	catalog := &fakeCatalog{groups: map[int]music.Group{42: testGroup()}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getSong", map[string]string{"id": "song-42-900-5"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 70, errorCode(t, w))
}

func TestGetArtist(t *testing.T) {
	catalog := &fakeCatalog{artists: map[int]music.Artist{7: {
		ID:   7,
		Name: "Chromatics",
		Groups: []music.ArtistGroup{
			{ID: 42, Name: "Night Drive", Year: 2009, TrackCount: 12},
			{ID: 43, Name: "Kill for Love", Year: 2012, TrackCount: 17},
		},
	}}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getArtist", map[string]string{"id": "artist-7"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<artist id="artist-7"`)
	assert.Contains(t, body, `albumCount="2"`)
	assert.Contains(t, body, `<album id="group-42"`)
	assert.Contains(t, body, `<album id="group-43"`)
	assert.Contains(t, body, `songCount="17"`)
}

func TestGetMusicDirectoryGroup(t *testing.T) {
	catalog := &fakeCatalog{groups: map[int]music.Group{42: testGroup()}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getMusicDirectory", map[string]string{"id": "group-42"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<directory id="group-42"`)
	assert.Contains(t, body, `<child id="song-42-900-0"`)
	assert.Contains(t, body, `isDir="false"`)
}

func TestGetMusicDirectoryArtist(t *testing.T) {
	catalog := &fakeCatalog{artists: map[int]music.Artist{7: {
		ID:     7,
		Name:   "Chromatics",
		Groups: []music.ArtistGroup{{ID: 42, Name: "Night Drive", Year: 2009}},
	}}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getMusicDirectory", map[string]string{"id": "artist-7"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<directory id="artist-7"`)
	assert.Contains(t, body, `<child id="group-42"`)
	assert.Contains(t, body, `isDir="true"`)
}

func TestGetMusicDirectoryMalformedID(t *testing.T) {
	s := newHandlerServer(t, &fakeCatalog{}, nil)
	w := get(t, s, "getMusicDirectory", map[string]string{"id": "song-1-2-3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10, errorCode(t, w))
}

func TestGetAlbumList(t *testing.T) {
	catalog := &fakeCatalog{
		pageSize: 10,
		summaries: []music.GroupSummary{
			{ID: 1, Name: "One", ArtistName: "A", Year: 2001},
			{ID: 2, Name: "Two", ArtistName: "B", Year: 2002},
			{ID: 3, Name: "Three", ArtistName: "C", Year: 2003},
		},
	}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getAlbumList2", map[string]string{"type": "newest", "size": "2"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<albumList2>")
	assert.Contains(t, body, `<album id="group-1" name="One"`)
	assert.Contains(t, body, `<album id="group-2"`)
	assert.NotContains(t, body, `<album id="group-3"`)
	assert.Equal(t, gazelle.OrderTime, catalog.lastOrder)

	w = get(t, s, "getAlbumList", map[string]string{"type": "frequent", "size": "1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<album id="group-1" title="One"`)
	assert.Equal(t, gazelle.OrderSnatched, catalog.lastOrder)
}

func TestGetAlbumListUnsupportedType(t *testing.T) {
	s := newHandlerServer(t, &fakeCatalog{pageSize: 10}, nil)
	w := get(t, s, "getAlbumList2", map[string]string{"type": "starred"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10, errorCode(t, w))
}

func TestSearch(t *testing.T) {
	catalog := &fakeCatalog{
		pageSize:  10,
		summaries: []music.GroupSummary{{ID: 5, Name: "Kill for Love", ArtistName: "Chromatics", Year: 2012}},
	}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "search3", map[string]string{"query": "kill for love"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<searchResult3>")
	assert.Contains(t, w.Body.String(), `<album id="group-5" name="Kill for Love"`)
	assert.Equal(t, "kill for love", catalog.lastTerm)

	w = get(t, s, "search2", map[string]string{"query": "kill for love"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<album id="group-5" title="Kill for Love"`)
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newHandlerServer(t, &fakeCatalog{pageSize: 10}, nil)
	w := get(t, s, "search3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 10, errorCode(t, w))
}

func streamRequest(t *testing.T, s *Server, id, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	params := url.Values{}
	params.Set("u", "welp")
	params.Set("p", "sesame")
	params.Set("v", "1.16.1")
	params.Set("c", "testclient")
	params.Set("id", id)
	req := httptest.NewRequest(http.MethodGet, "/rest/stream?"+params.Encode(), nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestStreamFull(t *testing.T) {
	payload := []byte("0123456789abcdef")
	streams := &fakeStreams{payloads: map[int][]byte{900: payload}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	w := streamRequest(t, s, "song-42-900-0", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "16", w.Header().Get("Content-Length"))
	assert.Equal(t, string(payload), w.Body.String())
}

func TestStreamRange(t *testing.T) {
	payload := []byte("0123456789abcdef")
	streams := &fakeStreams{payloads: map[int][]byte{900: payload}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	w := streamRequest(t, s, "song-42-900-0", "bytes=4-7")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 4-7/16", w.Header().Get("Content-Range"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, "4567", w.Body.String())
}

func TestStreamOpenEndedRange(t *testing.T) {
	payload := []byte("0123456789abcdef")
	streams := &fakeStreams{payloads: map[int][]byte{900: payload}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	w := streamRequest(t, s, "song-42-900-0", "bytes=10-")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 10-15/16", w.Header().Get("Content-Range"))
	assert.Equal(t, "abcdef", w.Body.String())
}

func TestStreamUnparseableRangeServesFull(t *testing.T) {
	payload := []byte("0123456789abcdef")
	streams := &fakeStreams{payloads: map[int][]byte{900: payload}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	for _, header := range []string{"bytes=-5", "bytes=1-2,4-5", "chapters=1-2", "garbage"} {
		w := streamRequest(t, s, "song-42-900-0", header)
		assert.Equal(t, http.StatusOK, w.Code, "header %q", header)
		assert.Equal(t, string(payload), w.Body.String(), "header %q", header)
	}
}

func TestStreamUnsatisfiableRangeServesFull(t *testing.T) {
	payload := []byte("0123456789abcdef")
	streams := &fakeStreams{payloads: map[int][]byte{900: payload}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	w := streamRequest(t, s, "song-42-900-0", "bytes=100-200")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(payload), w.Body.String())
}

func TestStreamBadFileIndex(t *testing.T) {
	streams := &fakeStreams{payloads: map[int][]byte{900: []byte("xx")}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	w := streamRequest(t, s, "song-42-900-3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 70, errorCode(t, w))
}

func TestStreamTransportFailure(t *testing.T) {
	streams := &fakeStreams{payloads: map[int][]byte{}}
	s := newHandlerServer(t, &fakeCatalog{}, streams)

	w := streamRequest(t, s, "song-42-900-0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, errorCode(t, w))
	assert.Contains(t, w.Body.String(), "internal error")
}

func TestGetCoverArtRedirect(t *testing.T) {
	catalog := &fakeCatalog{groups: map[int]music.Group{42: testGroup()}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getCoverArt", map[string]string{"id": "cover-42"})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://images.example/night-drive.jpg", w.Header().Get("Location"))
}

func TestGetCoverArtFallbackMissing(t *testing.T) {
	group := testGroup()
	group.ImageURL = ""
	catalog := &fakeCatalog{groups: map[int]music.Group{42: group}}
	s := newHandlerServer(t, catalog, nil)

	w := get(t, s, "getCoverArt", map[string]string{"id": "cover-42"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 70, errorCode(t, w))
}

func TestStubEndpoints(t *testing.T) {
	s := newHandlerServer(t, &fakeCatalog{}, nil)
	for endpoint, element := range map[string]string{
		"getPlaylists": "<playlists/>",
		"getGenres":    "<genres/>",
		"getPodcasts":  "<podcasts/>",
	} {
		w := get(t, s, endpoint, nil)
		assert.Equal(t, http.StatusOK, w.Code, endpoint)
		assert.Contains(t, w.Body.String(), element, endpoint)
	}
}
