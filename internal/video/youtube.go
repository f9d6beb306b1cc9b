package video

import (
	"context"
	"errors"
	"fmt"
	"html"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var ErrNoAPIKey = errors.New("youtube api key not set")

type Result struct {
	Title   string
	ID      string
	Channel string
	URL     string
}

type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

type YouTube struct {
	svc *youtube.Service
}

func NewYouTube(ctx context.Context, apiKey string) (*YouTube, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return newYouTube(ctx, option.WithAPIKey(apiKey))
}

func newYouTube(ctx context.Context, opts ...option.ClientOption) (*YouTube, error) {
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTube{svc: svc}, nil
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// Search returns up to max videos in relevance order. No match is an empty
// slice, not an error.
func (y *YouTube) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if max <= 0 {
		max = 5
	}

	resp, err := y.svc.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		results = append(results, Result{
			Title:   html.UnescapeString(item.Snippet.Title),
			ID:      item.Id.VideoId,
			Channel: html.UnescapeString(item.Snippet.ChannelTitle),
			URL:     WatchURL(item.Id.VideoId),
		})
	}

	return results, nil
}
