package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectIsDeterministic(t *testing.T) {
	p := DefaultPolicy()
	for i := 0; i < 100; i++ {
		assert.Equal(t, StrategyMultipart, p.Select("call.mp3", "audio/mpeg", false))
		assert.Equal(t, StrategyJSON, p.Select("scan.pdf", "application/pdf", false))
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		ctype     string
		forceJSON bool
		want      Strategy
	}{
		{name: "audio mime without extension", file: "recording", ctype: "audio/webm", want: StrategyMultipart},
		{name: "mime parameters ignored", file: "memo", ctype: "Audio/Ogg; codecs=opus", want: StrategyMultipart},
		{name: "extension without mime", file: "VOICE.WAV", want: StrategyMultipart},
		{name: "windows path", file: `C:\rec\take1.m4a`, ctype: "application/octet-stream", want: StrategyMultipart},
		{name: "image goes json", file: "photo.png", ctype: "image/png", want: StrategyJSON},
		{name: "no extension no mime", file: "blob", want: StrategyJSON},
		{name: "force json wins over audio", file: "call.mp3", ctype: "audio/mpeg", forceJSON: true, want: StrategyJSON},
	}
	p := DefaultPolicy()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Select(tc.file, tc.ctype, tc.forceJSON))
		})
	}
}

func TestCustomPolicy(t *testing.T) {
	p := StrategyPolicy{BinaryMIMEPrefixes: []string{"video/"}, BinaryExtensions: []string{"mkv"}}
	assert.Equal(t, StrategyMultipart, p.Select("clip", "video/mp4", false))
	assert.Equal(t, StrategyMultipart, p.Select("movie.MKV", "", false))
	assert.Equal(t, StrategyJSON, p.Select("call.mp3", "audio/mpeg", false))
}

func TestDispatcherDefaultsToAudioPolicy(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, StrategyMultipart, d.Strategy(File{Name: "a.flac"}, false))
	assert.Equal(t, StrategyJSON, d.Strategy(File{Name: "a.txt", ContentType: "text/plain"}, false))
	assert.Equal(t, "multipart", StrategyMultipart.String())
	assert.Equal(t, "json", StrategyJSON.String())
}
