package gazelle

import (
	"context"

	"github.com/welp-ops/gazelle-subsonic/internal/music"
)

// pageSearcher is the slice of the client the pager needs.
type pageSearcher interface {
	SearchPage(ctx context.Context, term string, order Order, ascending bool, page int) (SearchResult, error)
	PageSize() int
}

// Pager maps an arbitrary (offset, size) window requested by a subsonic
// client onto the tracker's fixed-page browse results.
type Pager struct {
	Search pageSearcher
}

// Window returns up to size groups starting at offset within the full
// concatenated result sequence. The result is shorter than size when
// the tracker runs out of results; it is never padded.
func (p *Pager) Window(ctx context.Context, term string, order Order, ascending bool, offset, size int) ([]music.GroupSummary, error) {
	if size <= 0 || offset < 0 {
		return nil, nil
	}

	pageSize := p.Search.PageSize()
	firstPage := offset / pageSize
	lastPage := (offset + size - 1) / pageSize

	var out []music.GroupSummary
	for page := firstPage; page <= lastPage; page++ {
		result, err := p.Search.SearchPage(ctx, term, order, ascending, page+1)
		if err != nil {
			return nil, err
		}

		lo := offset - page*pageSize
		if lo < 0 {
			lo = 0
		}
		hi := offset + size - page*pageSize
		if hi > len(result.Groups) {
			hi = len(result.Groups)
		}
		if lo < hi {
			out = append(out, result.Groups[lo:hi]...)
		}

		// A short page means the tracker is out of results, pages
		// beyond it don't exist no matter what the window says.
		if len(result.Groups) < pageSize {
			break
		}
	}
	return out, nil
}
