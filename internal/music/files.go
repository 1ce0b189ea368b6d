package music

import (
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// The file order is load-bearing: song ids embed an index into the
// filtered+sorted audio file list, and the torrent layer re-derives the
// same list from the torrent's own file metadata. Both sides must sort
// with this collator or songs become unaddressable. Collators keep
// internal buffers, hence the lock.
var (
	fileCollatorMu sync.Mutex
	fileCollator   = collate.New(language.English)
)

// CompareFileNames is the locale-aware ordering used for audio files.
func CompareFileNames(a, b string) int {
	fileCollatorMu.Lock()
	defer fileCollatorMu.Unlock()
	return fileCollator.CompareString(a, b)
}

// SortAudioFiles filters a torrent's file list down to audio files and
// sorts it into the stable order song indices refer to. The input is
// not modified. The sort is stable so equal names keep their incoming
// relative order.
func SortAudioFiles(files []File) []File {
	audio := make([]File, 0, len(files))
	for _, f := range files {
		if IsAudio(f.Name) {
			audio = append(audio, f)
		}
	}
	sort.SliceStable(audio, func(i, j int) bool {
		return CompareFileNames(audio[i].Name, audio[j].Name) < 0
	})
	return audio
}
