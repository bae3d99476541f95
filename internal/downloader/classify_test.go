package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediaharvest/pkg/models"
)

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want models.MediaType
	}{
		{"jpg extension", "https://cdn.example.com/a/b/photo.jpg", models.MediaTypeImage},
		{"uppercase extension", "https://cdn.example.com/CLIP.MP4", models.MediaTypeVideo},
		{"extension before query", "https://cdn.example.com/pic.webp?w=1200", models.MediaTypeImage},
		{"hls playlist", "https://cdn.example.com/stream/master.m3u8", models.MediaTypeVideo},
		{"audio extension", "https://cdn.example.com/track.flac", models.MediaTypeAudio},
		{"image keyword", "https://example.com/images/48271", models.MediaTypeImage},
		{"img path segment", "https://example.com/img/48271", models.MediaTypeImage},
		{"video keyword", "https://example.com/video/48271", models.MediaTypeVideo},
		{"no signal", "https://example.com/posts/48271", ""},
		{"unknown extension", "https://example.com/archive.zip", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyURL(tt.url))
		})
	}
}

func TestTypeFromContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want models.MediaType
	}{
		{"image/jpeg", models.MediaTypeImage},
		{"image/png; charset=binary", models.MediaTypeImage},
		{"VIDEO/mp4", models.MediaTypeVideo},
		{"application/vnd.apple.mpegurl", models.MediaTypeVideo},
		{"audio/mpeg", models.MediaTypeAudio},
		{"text/html", ""},
		{"application/octet-stream", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, typeFromContentType(tt.ct), "content type %q", tt.ct)
	}
}

func TestResolveType(t *testing.T) {
	tests := []struct {
		name        string
		item        models.MediaItem
		contentType string
		want        models.MediaType
		ok          bool
	}{
		{
			name:        "declared wins when url is silent",
			item:        models.MediaItem{URL: "https://example.com/asset/1"},
			contentType: "image/webp",
			want:        models.MediaTypeImage,
			ok:          true,
		},
		{
			name:        "url extension with generic content type",
			item:        models.MediaItem{URL: "https://example.com/clip.mp4"},
			contentType: "application/octet-stream",
			want:        models.MediaTypeVideo,
			ok:          true,
		},
		{
			name: "handler hint with generic content type",
			item: models.MediaItem{
				URL:  "https://example.com/asset/1",
				Type: models.MediaTypeAudio,
			},
			contentType: "binary/octet-stream",
			want:        models.MediaTypeAudio,
			ok:          true,
		},
		{
			name:        "html is never media",
			item:        models.MediaItem{URL: "https://example.com/photo.jpg"},
			contentType: "text/html; charset=utf-8",
			ok:          false,
		},
		{
			name:        "json is never media",
			item:        models.MediaItem{URL: "https://example.com/photo.jpg"},
			contentType: "application/json",
			ok:          false,
		},
		{
			name:        "declared and guessed disagree",
			item:        models.MediaItem{URL: "https://example.com/photo.jpg"},
			contentType: "video/mp4",
			ok:          false,
		},
		{
			name:        "nothing known",
			item:        models.MediaItem{URL: "https://example.com/asset/1"},
			contentType: "application/octet-stream",
			ok:          false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveType(tt.item, tt.contentType)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		name        string
		mediaType   models.MediaType
		url         string
		contentType string
		imageFormat string
		want        string
	}{
		{"url extension matching type", models.MediaTypeImage, "https://x/a.png?w=1", "image/jpeg", "jpeg", ".png"},
		{"url extension wrong type ignored", models.MediaTypeImage, "https://x/a.mp4", "", "png", ".png"},
		{"decoded format jpeg", models.MediaTypeImage, "https://x/asset/1", "", "jpeg", ".jpg"},
		{"content type fallback", models.MediaTypeVideo, "https://x/asset/1", "video/webm", "", ".webm"},
		{"type default image", models.MediaTypeImage, "https://x/asset/1", "", "", ".jpg"},
		{"type default video", models.MediaTypeVideo, "https://x/asset/1", "application/octet-stream", "", ".mp4"},
		{"type default audio", models.MediaTypeAudio, "https://x/asset/1", "", "", ".mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extensionFor(tt.mediaType, tt.url, tt.contentType, tt.imageFormat))
		})
	}
}

func TestURLExtension(t *testing.T) {
	assert.Equal(t, ".jpg", urlExtension("https://x/a/b.JPG"))
	assert.Equal(t, ".webp", urlExtension("https://x/a.webp?size=large#frag"))
	assert.Equal(t, "", urlExtension("https://x/a/b"))
	assert.Equal(t, "", urlExtension("https://x/"))
}
