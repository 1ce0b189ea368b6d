// Package torrents owns the process-wide map from torrent id to live
// torrent handle and serves byte-range reads of audio files inside
// them. Torrents are added lazily on first reference and kept for the
// life of the process; nothing is fetched from peers until a stream
// asks for it.
package torrents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/welp-ops/gazelle-subsonic/internal/music"
)

// ErrFileNotFound is returned when a song index does not exist within
// the torrent's audio file list.
var ErrFileNotFound = errors.New("torrents: no such file in torrent")

// ErrUnsatisfiableRange is returned when a requested range starts at or
// beyond the end of the file.
var ErrUnsatisfiableRange = errors.New("torrents: range not satisfiable")

// TransportError wraps a failure of the torrent client or the .torrent
// download for one torrent id. All waiters for that id observe the same
// error; the orchestrator never retries on its own.
type TransportError struct {
	TorrentID int
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("torrents: torrent %d: %v", e.TorrentID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config configures the orchestrator and its embedded torrent client.
type Config struct {
	// BaseURL and Passkey build the .torrent download URL per torrent id.
	BaseURL string
	Passkey string
	// DataDir is where fetched pieces are kept.
	DataDir string
	// ListenPort for incoming peer connections; 0 picks a free port.
	ListenPort int
	// PeerID overrides the client peer id when non-empty (20 bytes).
	PeerID string
}

// ByteRange is an inclusive byte span within a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes the range covers.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// FileInfo describes the file a stream was opened for.
type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// Handle is the one live handle per torrent id. It completes exactly
// once, either with a ready torrent or a terminal error, and late
// waiters observe the same outcome.
type Handle struct {
	torrentID int
	done      chan struct{}
	t         *torrent.Torrent
	err       error
}

// Orchestrator deduplicates torrent acquisition per torrent id and
// opens range-limited file streams on ready torrents.
type Orchestrator struct {
	cfg    Config
	client *torrent.Client
	http   *http.Client
	log    *slog.Logger

	mu      sync.Mutex
	handles map[int]*Handle

	// acquire is swapped out in tests; the default fetches the .torrent
	// file and adds it to the client.
	acquire func(id int) (*torrent.Torrent, error)
}

// New starts a torrent client and an empty handle registry.
func New(cfg Config, log *slog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = slog.Default()
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = cfg.DataDir
	clientConfig.ListenPort = cfg.ListenPort
	clientConfig.NoDHT = true
	clientConfig.DisableWebseeds = true
	if cfg.PeerID != "" {
		clientConfig.PeerID = cfg.PeerID
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("torrents: start client: %w", err)
	}

	o := &Orchestrator{
		cfg:     cfg,
		client:  client,
		http:    &http.Client{},
		log:     log,
		handles: make(map[int]*Handle),
	}
	o.acquire = o.fetchAndAdd
	return o, nil
}

// Close shuts down the torrent client and every live torrent.
func (o *Orchestrator) Close() {
	o.client.Close()
}

// EnsureTorrent returns the ready handle for a torrent id, adding the
// torrent on first reference. Concurrent callers for the same id share
// one acquisition; the registry entry is created before any I/O so a
// second caller can never trigger a second add. Cancelling ctx abandons
// the wait only, the acquisition keeps going for other callers.
func (o *Orchestrator) EnsureTorrent(ctx context.Context, torrentID int) (*Handle, error) {
	o.mu.Lock()
	h, ok := o.handles[torrentID]
	if !ok {
		h = &Handle{torrentID: torrentID, done: make(chan struct{})}
		o.handles[torrentID] = h
		go o.complete(h)
	}
	o.mu.Unlock()

	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if h.err != nil {
		return nil, h.err
	}
	return h, nil
}

func (o *Orchestrator) complete(h *Handle) {
	t, err := o.acquire(h.torrentID)
	if err != nil {
		o.log.Error("torrent acquisition failed", "torrentId", h.torrentID, "error", err)
		h.err = &TransportError{TorrentID: h.torrentID, Err: err}
	} else {
		h.t = t
	}
	close(h.done)
}

// fetchAndAdd downloads the .torrent file from the tracker, adds it to
// the client and waits for metadata. Once the piece layout is known the
// whole torrent is deselected so nothing downloads until a stream asks.
func (o *Orchestrator) fetchAndAdd(torrentID int) (*torrent.Torrent, error) {
	u := fmt.Sprintf("%s/torrents.php?action=download&id=%d&torrent_pass=%s",
		o.cfg.BaseURL, torrentID, o.cfg.Passkey)

	resp, err := o.http.Get(u)
	if err != nil {
		return nil, fmt.Errorf("fetch torrent file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch torrent file: status %d", resp.StatusCode)
	}

	mi, err := metainfo.Load(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse torrent file: %w", err)
	}

	t, err := o.client.AddTorrent(mi)
	if err != nil {
		return nil, fmt.Errorf("add torrent: %w", err)
	}

	select {
	case <-t.GotInfo():
	case <-t.Closed():
		return nil, errors.New("torrent closed before metadata arrived")
	}

	t.CancelPieces(0, t.NumPieces())
	o.log.Info("torrent ready", "torrentId", torrentID, "name", t.Name(), "files", len(t.Files()))
	return t, nil
}

// OpenFile opens a read stream over one audio file of a ready torrent.
// fileIndex addresses the filtered+sorted audio view, the same indexing
// song ids are built from. When rng is non-nil the stream covers only
// that span and the caller reports partial content; otherwise the whole
// file from offset zero. A rng.End of -1 or past the file is clamped in
// place so the caller can report the effective span. The pieces backing
// the requested span are marked wanted before the reader is handed out.
func (o *Orchestrator) OpenFile(h *Handle, fileIndex int, rng *ByteRange) (io.ReadCloser, FileInfo, error) {
	files := audioFiles(h.t)
	if fileIndex < 0 || fileIndex >= len(files) {
		return nil, FileInfo{}, ErrFileNotFound
	}
	f := files[fileIndex]

	info := FileInfo{
		Name:        f.DisplayPath(),
		Size:        f.Length(),
		ContentType: music.ContentTypeFor(f.DisplayPath()),
	}

	start := int64(0)
	length := f.Length()
	if rng != nil {
		if rng.Start < 0 || rng.Start >= f.Length() {
			return nil, FileInfo{}, ErrUnsatisfiableRange
		}
		if rng.End < rng.Start || rng.End >= f.Length() {
			rng.End = f.Length() - 1
		}
		start = rng.Start
		length = rng.Length()
	}

	o.selectSpan(h.t, f.Offset()+start, length)

	r := f.NewReader()
	r.SetReadahead(1 << 20)
	r.SetResponsive()
	if start > 0 {
		if _, err := r.Seek(start, io.SeekStart); err != nil {
			r.Close()
			return nil, FileInfo{}, &TransportError{TorrentID: h.torrentID, Err: err}
		}
	}

	return &rangeReader{Reader: io.LimitReader(r, length), closer: r}, info, nil
}

// selectSpan marks the pieces covering [off, off+length) as wanted.
func (o *Orchestrator) selectSpan(t *torrent.Torrent, off, length int64) {
	pieceLength := t.Info().PieceLength
	if pieceLength <= 0 || length <= 0 {
		return
	}
	begin := int(off / pieceLength)
	end := int((off + length + pieceLength - 1) / pieceLength)
	if end > t.NumPieces() {
		end = t.NumPieces()
	}
	t.DownloadPieces(begin, end)
}

// audioFiles re-derives the stable audio file view from the torrent's
// reported file list. Derived fresh on every call and sorted with the
// same collator as the catalog side, so indices agree between the two.
func audioFiles(t *torrent.Torrent) []*torrent.File {
	var files []*torrent.File
	for _, f := range t.Files() {
		if music.IsAudio(f.DisplayPath()) {
			files = append(files, f)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return music.CompareFileNames(files[i].DisplayPath(), files[j].DisplayPath()) < 0
	})
	return files
}

type rangeReader struct {
	io.Reader
	closer io.Closer
}

func (r *rangeReader) Close() error { return r.closer.Close() }
