// Package subsonic implements the subsonic REST surface of the bridge:
// request validation, authentication, opaque ids, handler dispatch and
// the three response serializations.
package subsonic

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/welp-ops/gazelle-subsonic/internal/gazelle"
	"github.com/welp-ops/gazelle-subsonic/internal/music"
	"github.com/welp-ops/gazelle-subsonic/internal/torrents"
)

// Catalog is the slice of the gazelle client the handlers use.
type Catalog interface {
	SearchPage(ctx context.Context, term string, order gazelle.Order, ascending bool, page int) (gazelle.SearchResult, error)
	PageSize() int
	GetGroup(ctx context.Context, groupID int) (music.Group, error)
	GetArtist(ctx context.Context, artistID int) (music.Artist, error)
}

// Streams is the slice of the torrent orchestrator the handlers use.
type Streams interface {
	EnsureTorrent(ctx context.Context, torrentID int) (*torrents.Handle, error)
	OpenFile(h *torrents.Handle, fileIndex int, rng *torrents.ByteRange) (io.ReadCloser, torrents.FileInfo, error)
}

// Config carries the server's own settings; collaborators are passed
// separately.
type Config struct {
	// Users maps usernames to their passwords.
	Users map[string]string
	// CORS policy: allow all origins, or an explicit allow list. Both
	// zero means no CORS headers at all.
	CORSAllowAll bool
	CORSOrigins  []string
	// Fallback cover art served when a group has no image.
	DefaultCoverArtPath string
	DefaultCoverArtType string
}

type handlerFunc func(s *session) error

// Server dispatches subsonic REST calls. It is an http.Handler mounted
// at the site root; the subsonic path prefix is handled internally.
type Server struct {
	cfg      Config
	catalog  Catalog
	streams  Streams
	pager    *gazelle.Pager
	log      *slog.Logger
	handlers map[string]handlerFunc
}

// Option mutates a Server during construction.
type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func New(cfg Config, catalog Catalog, streams Streams, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		streams: streams,
		pager:   &gazelle.Pager{Search: catalog},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handlers = map[string]handlerFunc{
		"ping":              s.handlePing,
		"getLicense":        s.handleGetLicense,
		"getUser":           s.handleGetUser,
		"getMusicFolders":   s.handleGetMusicFolders,
		"getAlbum":          s.handleGetAlbum,
		"getSong":           s.handleGetSong,
		"getArtist":         s.handleGetArtist,
		"getMusicDirectory": s.handleGetMusicDirectory,
		"getAlbumList":      s.handleGetAlbumList,
		"getAlbumList2":     s.handleGetAlbumList2,
		"search2":           s.handleSearch2,
		"search3":           s.handleSearch3,
		"stream":            s.handleStream,
		"download":          s.handleStream,
		"getCoverArt":       s.handleGetCoverArt,
		"getPlaylists":      s.handleGetPlaylists,
		"getIndexes":        s.handleGetIndexes,
		"getGenres":         s.handleGetGenres,
		"getPodcasts":       s.handleGetPodcasts,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if done := s.cors(w, r); done {
		return
	}

	name, ok := endpointName(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.serve(w, r, name)
}

// endpointName extracts the operation from the request path. Endpoints
// are reachable both bare and with the legacy ".view" suffix.
func endpointName(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/rest/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return strings.TrimSuffix(rest, ".view"), true
}

// cors applies the configured CORS policy; reports whether the request
// was a preflight and fully handled here.
func (s *Server) cors(w http.ResponseWriter, r *http.Request) bool {
	if !s.cfg.CORSAllowAll && len(s.cfg.CORSOrigins) == 0 {
		return false
	}

	origin := r.Header.Get("Origin")
	switch {
	case s.cfg.CORSAllowAll:
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case origin != "":
		for _, allowed := range s.cfg.CORSOrigins {
			if allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				break
			}
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}
