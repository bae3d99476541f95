package downloader

import (
	"strings"

	"mediaharvest/pkg/models"
)

var extToType = map[string]models.MediaType{
	".jpg": models.MediaTypeImage, ".jpeg": models.MediaTypeImage,
	".png": models.MediaTypeImage, ".gif": models.MediaTypeImage,
	".webp": models.MediaTypeImage, ".avif": models.MediaTypeImage,
	".bmp": models.MediaTypeImage,
	".mp4": models.MediaTypeVideo, ".webm": models.MediaTypeVideo,
	".mov": models.MediaTypeVideo, ".mkv": models.MediaTypeVideo,
	".m3u8": models.MediaTypeVideo,
	".mp3":  models.MediaTypeAudio, ".ogg": models.MediaTypeAudio,
	".wav": models.MediaTypeAudio, ".flac": models.MediaTypeAudio,
	".m4a": models.MediaTypeAudio,
}

// typeKeywords is the sniffing fallback for CDN URLs without a real
// extension.
var typeKeywords = []struct {
	keyword string
	t       models.MediaType
}{
	{"video", models.MediaTypeVideo},
	{"/img/", models.MediaTypeImage},
	{"image", models.MediaTypeImage},
	{"photo", models.MediaTypeImage},
	{"picture", models.MediaTypeImage},
	{"audio", models.MediaTypeAudio},
	{"sound", models.MediaTypeAudio},
}

// classifyURL guesses the media type from the URL alone: extension
// first, keyword sniffing second. Empty when the URL says nothing.
func classifyURL(rawURL string) models.MediaType {
	if t, ok := extToType[urlExtension(rawURL)]; ok {
		return t
	}
	lower := strings.ToLower(rawURL)
	for _, k := range typeKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.t
		}
	}
	return ""
}

// typeFromContentType maps a response Content-Type to a media type.
func typeFromContentType(contentType string) models.MediaType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return models.MediaTypeImage
	case strings.HasPrefix(ct, "video/"),
		ct == "application/vnd.apple.mpegurl", ct == "application/x-mpegurl":
		return models.MediaTypeVideo
	case strings.HasPrefix(ct, "audio/"):
		return models.MediaTypeAudio
	default:
		return ""
	}
}

// resolveType combines item hint, URL classification and the declared
// content type. The bool is false when the result should be treated
// as not-media (unknown everywhere, or a hard mismatch like HTML).
func resolveType(item models.MediaItem, contentType string) (models.MediaType, bool) {
	declared := typeFromContentType(contentType)
	guessed := item.Type
	if guessed == "" {
		guessed = classifyURL(item.URL)
	}

	// Text/HTML responses are never media regardless of the guess.
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/json") {
		return "", false
	}

	switch {
	case declared != "" && guessed != "" && declared != guessed:
		// URL said one thing, server another: treat as not media.
		return "", false
	case declared != "":
		return declared, true
	case guessed != "":
		return guessed, true
	default:
		return "", false
	}
}

// urlExtension returns the lowercased extension of a URL path.
func urlExtension(rawURL string) string {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return strings.ToLower(path[i:])
	}
	return ""
}

// extensionFor picks the stored-file extension: URL extension when
// plausible for the type, else one derived from the content type or
// decoded image format.
func extensionFor(mediaType models.MediaType, rawURL, contentType, imageFormat string) string {
	if ext := urlExtension(rawURL); ext != "" {
		if t, ok := extToType[ext]; ok && t == mediaType {
			return ext
		}
	}
	if imageFormat != "" {
		switch imageFormat {
		case "jpeg":
			return ".jpg"
		default:
			return "." + imageFormat
		}
	}

	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch ct {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}

	switch mediaType {
	case models.MediaTypeImage:
		return ".jpg"
	case models.MediaTypeVideo:
		return ".mp4"
	case models.MediaTypeAudio:
		return ".mp3"
	}
	return ".bin"
}
