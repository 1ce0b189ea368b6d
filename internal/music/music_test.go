package music

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		format, encoding string
		want             Format
	}{
		{"FLAC", "Lossless", FormatFLAC},
		{"FLAC", "24bit Lossless", FormatFLAC},
		{"MP3", "320", FormatMP3320},
		{"MP3", "V0", FormatMP3V0},
		{"MP3", "V0 (VBR)", FormatMP3V0},
		{"MP3", "V2", FormatMP3V2},
		{"MP3", "192", FormatMP3Other},
		{"AAC", "256", FormatOther},
		{"DTS", "", FormatOther},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseFormat(c.format, c.encoding), "%s/%s", c.format, c.encoding)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("01 Intro.mp3"))
	assert.Equal(t, "audio/mpeg", ContentTypeFor("b.AAC"))
	assert.Equal(t, "audio/flac", ContentTypeFor("CD1/02 Song.FLAC"))
	assert.Equal(t, "", ContentTypeFor("cover.jpg"))
	assert.Equal(t, "", ContentTypeFor("notes.txt"))
}

func TestSortAudioFiles_FiltersAndSorts(t *testing.T) {
	in := []File{
		{Name: "folder.jpg", Size: 10},
		{Name: "02 Second.mp3", Size: 2},
		{Name: "01 First.mp3", Size: 1},
		{Name: "info.nfo", Size: 3},
		{Name: "10 Tenth.mp3", Size: 10},
	}
	out := SortAudioFiles(in)

	names := make([]string, len(out))
	for i, f := range out {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"01 First.mp3", "02 Second.mp3", "10 Tenth.mp3"}, names)

	// input untouched
	assert.Equal(t, "folder.jpg", in[0].Name)
}

func TestSortAudioFiles_StableIndex(t *testing.T) {
	in := []File{
		{Name: "B.mp3"}, {Name: "a.flac"}, {Name: "C.aac"}, {Name: "cover.png"},
	}
	first := SortAudioFiles(in)
	for i := 0; i < 10; i++ {
		again := SortAudioFiles(in)
		assert.Equal(t, first, again, "derivation %d differs", i)
	}
}

func TestFormatEstimates(t *testing.T) {
	assert.Equal(t, 320, FormatMP3320.BitrateKbps())
	assert.Equal(t, 1000, FormatFLAC.BitrateKbps())

	// 320 kbps: 40 KB per second of audio
	assert.Equal(t, 60, FormatMP3320.EstimateDuration(60*40*1000))
	assert.Equal(t, 0, FormatMP3320.EstimateDuration(0))
}
