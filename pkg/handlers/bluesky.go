package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/models"
)

// blueskyAPIBase is the unauthenticated AppView endpoint.
const blueskyAPIBase = "https://public.api.bsky.app/xrpc"

// blueskyFeedPageSize is the API page size; pages are fetched until the
// cursor runs out or maxFeedPages is hit.
const (
	blueskyFeedPageSize = 50
	maxFeedPages        = 4
)

// BlueskyHandler pulls media through the public Bluesky AppView API
// rather than scraping the client-rendered web app.
type BlueskyHandler struct {
	Base
}

// NewBlueskyHandler returns the Bluesky profile/hashtag handler.
func NewBlueskyHandler() *BlueskyHandler {
	return &BlueskyHandler{}
}

func (*BlueskyHandler) Name() string     { return "bluesky" }
func (*BlueskyHandler) PrefersAPI() bool { return true }

func (*BlueskyHandler) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == "bsky.app" || host == "staging.bsky.app"
}

type blueskyImage struct {
	Thumb       string `json:"thumb"`
	Fullsize    string `json:"fullsize"`
	Alt         string `json:"alt"`
	AspectRatio struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"aspectRatio"`
}

type blueskyEmbed struct {
	Images    []blueskyImage `json:"images"`
	Playlist  string         `json:"playlist"`
	Thumbnail string         `json:"thumbnail"`
}

type blueskyPost struct {
	URI    string `json:"uri"`
	Author struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text string `json:"text"`
	} `json:"record"`
	Embed blueskyEmbed `json:"embed"`
}

type authorFeedResponse struct {
	Feed []struct {
		Post blueskyPost `json:"post"`
	} `json:"feed"`
	Cursor string `json:"cursor"`
}

type searchPostsResponse struct {
	Posts  []blueskyPost `json:"posts"`
	Cursor string        `json:"cursor"`
}

// ExtractAPIData resolves a bsky.app profile or hashtag URL to feed
// pages and collects the embedded media.
func (h *BlueskyHandler) ExtractAPIData(ctx context.Context, client Fetcher, pageURL string, opts Options) (*Result, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeParsing, "failed to parse bluesky url: %v", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) >= 2 && parts[0] == "profile":
		return h.extractAuthorFeed(ctx, client, pageURL, parts[1])
	case len(parts) >= 2 && parts[0] == "hashtag":
		return h.extractSearch(ctx, client, pageURL, "#"+parts[1])
	default:
		return nil, errs.Newf(errs.ErrorTypeExtraction, "unsupported bluesky path: %s", u.Path)
	}
}

func (h *BlueskyHandler) extractAuthorFeed(ctx context.Context, client Fetcher, pageURL, actor string) (*Result, error) {
	result := &Result{Title: actor}
	cursor := ""
	for page := 0; page < maxFeedPages; page++ {
		endpoint := fmt.Sprintf("%s/app.bsky.feed.getAuthorFeed?actor=%s&limit=%d&filter=posts_with_media",
			blueskyAPIBase, url.QueryEscape(actor), blueskyFeedPageSize)
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}

		var resp authorFeedResponse
		if err := client.GetJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}
		for _, entry := range resp.Feed {
			appendPostMedia(result, entry.Post, pageURL)
		}
		if resp.Cursor == "" || len(resp.Feed) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return result, nil
}

func (h *BlueskyHandler) extractSearch(ctx context.Context, client Fetcher, pageURL, query string) (*Result, error) {
	result := &Result{Title: strings.TrimPrefix(query, "#")}
	cursor := ""
	for page := 0; page < maxFeedPages; page++ {
		endpoint := fmt.Sprintf("%s/app.bsky.feed.searchPosts?q=%s&limit=%d",
			blueskyAPIBase, url.QueryEscape(query), blueskyFeedPageSize)
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}

		var resp searchPostsResponse
		if err := client.GetJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}
		for _, post := range resp.Posts {
			appendPostMedia(result, post, pageURL)
		}
		if resp.Cursor == "" || len(resp.Posts) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return result, nil
}

// appendPostMedia flattens one post's embeds into media items. Image
// CDN hosts differ from bsky.app, so items are marked trusted-CDN to
// survive same-domain filtering.
func appendPostMedia(result *Result, post blueskyPost, pageURL string) {
	credits := post.Author.DisplayName
	if credits == "" {
		credits = post.Author.Handle
	}

	for _, img := range post.Embed.Images {
		src := img.Fullsize
		if src == "" {
			src = img.Thumb
		}
		if src == "" {
			continue
		}
		result.Items = append(result.Items, models.MediaItem{
			URL:           src,
			Type:          models.MediaTypeImage,
			Alt:           img.Alt,
			Title:         post.Record.Text,
			Credits:       credits,
			SourcePageURL: pageURL,
			TrustedCDN:    true,
		})
	}

	if post.Embed.Playlist != "" {
		result.Items = append(result.Items, models.MediaItem{
			URL:           post.Embed.Playlist,
			Type:          models.MediaTypeVideo,
			Title:         post.Record.Text,
			Credits:       credits,
			SourcePageURL: pageURL,
			TrustedCDN:    true,
		})
	}
}
