package gazelle

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/welp-ops/gazelle-subsonic/internal/music"
	"github.com/welp-ops/gazelle-subsonic/internal/selection"
)

// Order is a browse sort key understood by the tracker.
type Order string

const (
	OrderTime     Order = "time"
	OrderYear     Order = "year"
	OrderSize     Order = "size"
	OrderRandom   Order = "random"
	OrderSnatched Order = "snatched"
	OrderSeeders  Order = "seeders"
	OrderLeechers Order = "leechers"
)

// SearchResult is one browse page: lightweight group summaries plus the
// total page count reported by the tracker.
type SearchResult struct {
	Groups []music.GroupSummary
	Pages  int
}

// SearchPage runs a browse query for a single 1-indexed page.
func (c *Client) SearchPage(ctx context.Context, term string, order Order, ascending bool, page int) (SearchResult, error) {
	way := "desc"
	if ascending {
		way = "asc"
	}
	params := url.Values{}
	params.Set("searchstr", term)
	params.Set("page", strconv.Itoa(page))
	params.Set("order_by", string(order))
	params.Set("order_way", way)

	var wire wireBrowseResult
	if err := c.call(ctx, "browse", params, &wire); err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{Pages: wire.Pages, Groups: make([]music.GroupSummary, 0, len(wire.Results))}
	for _, r := range wire.Results {
		result.Groups = append(result.Groups, music.GroupSummary{
			ID:         r.GroupID,
			Name:       html.UnescapeString(r.GroupName),
			Year:       r.GroupYear,
			ArtistName: html.UnescapeString(r.Artist),
		})
	}
	return result, nil
}

// GetGroup fetches a release group with its full torrent list and picks
// the torrent to expose under the selection policy.
func (c *Client) GetGroup(ctx context.Context, groupID int) (music.Group, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(groupID))

	var wire wireTorrentGroup
	if err := c.call(ctx, "torrentgroup", params, &wire); err != nil {
		return music.Group{}, err
	}

	torrents := make([]music.Torrent, 0, len(wire.Torrents))
	for _, wt := range wire.Torrents {
		torrents = append(torrents, torrentFromWire(wt))
	}

	selected, err := selection.Select(c.policy, torrents)
	if err != nil {
		return music.Group{}, fmt.Errorf("gazelle: group %d: %w", groupID, err)
	}

	credited := append(wire.Group.MusicInfo.Artists, wire.Group.MusicInfo.With...)
	names := make([]string, 0, len(credited))
	for _, a := range credited {
		names = append(names, html.UnescapeString(a.Name))
	}

	group := music.Group{
		GroupSummary: music.GroupSummary{
			ID:         wire.Group.ID,
			Name:       html.UnescapeString(wire.Group.Name),
			Year:       wire.Group.Year,
			ArtistName: strings.Join(names, ", "),
		},
		ImageURL: wire.Group.WikiImage,
		Torrent:  selected,
		Torrents: torrents,
	}
	if len(wire.Group.MusicInfo.Artists) > 0 {
		first := wire.Group.MusicInfo.Artists[0]
		group.Artist = music.ArtistRef{ID: first.ID, Name: html.UnescapeString(first.Name)}
	}
	return group, nil
}

// GetArtist fetches an artist page with its release group summaries.
func (c *Client) GetArtist(ctx context.Context, artistID int) (music.Artist, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(artistID))

	var wire wireArtist
	if err := c.call(ctx, "artist", params, &wire); err != nil {
		return music.Artist{}, err
	}

	artist := music.Artist{
		ID:       wire.ID,
		Name:     html.UnescapeString(wire.Name),
		ImageURL: wire.Image,
		Groups:   make([]music.ArtistGroup, 0, len(wire.TorrentGroup)),
	}
	for _, g := range wire.TorrentGroup {
		// fileCount includes logs and artwork; the largest torrent is
		// still the closest thing to a track count the artist page offers.
		tracks := 0
		for _, t := range g.Torrent {
			if t.FileCount > tracks {
				tracks = t.FileCount
			}
		}
		artist.Groups = append(artist.Groups, music.ArtistGroup{
			ID:         g.GroupID,
			Name:       html.UnescapeString(g.GroupName),
			Year:       g.GroupYear,
			TrackCount: tracks,
		})
	}
	return artist, nil
}

var fileListEntry = regexp.MustCompile(`^(.+)\{\{\{(\d+)\}\}\}$`)

// parseFileList unpacks the tracker's packed file list and reduces it to
// the stable audio file view song indices refer to.
func parseFileList(packed string) []music.File {
	if packed == "" {
		return nil
	}
	entries := strings.Split(packed, "|||")
	files := make([]music.File, 0, len(entries))
	for _, entry := range entries {
		m := fileListEntry.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		size, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		files = append(files, music.File{Name: html.UnescapeString(m[1]), Size: size})
	}
	return music.SortAudioFiles(files)
}

func torrentFromWire(wt wireTorrent) music.Torrent {
	return music.Torrent{
		ID:       wt.ID,
		Size:     wt.Size,
		Format:   music.ParseFormat(wt.Format, wt.Encoding),
		Media:    wt.Media,
		Year:     wt.RemasterYear,
		Snatches: wt.Snatched,
		Seeders:  wt.Seeders,
		Leechers: wt.Leechers,
		Files:    parseFileList(wt.FileList),
	}
}
