package subsonic

import (
	"strconv"
	"strings"

	"github.com/welp-ops/gazelle-subsonic/internal/torrents"
)

// parseRangeHeader parses a single-span byte range header. Anything it
// can't make sense of (missing, multi-range, suffix form) returns nil
// and the caller serves the whole file with a 200; only a well-formed
// single range gets partial-content treatment. An open-ended "start-"
// span is returned with End = -1 for the stream layer to clamp.
func parseRangeHeader(header string) *torrents.ByteRange {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return nil
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return nil
	}

	end := int64(-1)
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil
		}
	}
	return &torrents.ByteRange{Start: start, End: end}
}
