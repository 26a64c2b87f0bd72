package export

import (
	"context"
	"fmt"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// gistCreator is the part of the GitHub gists API we use.
type gistCreator interface {
	Create(ctx context.Context, gist *github.Gist) (*github.Gist, *github.Response, error)
}

// GistPublisher publishes exported transcripts as secret GitHub Gists.
type GistPublisher struct {
	gists gistCreator
}

// NewGistPublisher authenticates with a GitHub token.
func NewGistPublisher(ctx context.Context, token string) (*GistPublisher, error) {
	if token == "" {
		return nil, fmt.Errorf("export: github token is required")
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return &GistPublisher{gists: github.NewClient(httpClient).Gists}, nil
}

// Publish creates a secret gist holding the Markdown transcript of room and
// returns its URL.
func (p *GistPublisher) Publish(ctx context.Context, room, markdown string) (string, error) {
	filename := github.GistFilename(fmt.Sprintf("omni-%s.md", room))
	gist := &github.Gist{
		Description: github.Ptr(fmt.Sprintf("OmniExpert transcript: %s", room)),
		Public:      github.Ptr(false),
		Files: map[github.GistFilename]github.GistFile{
			filename: {Content: github.Ptr(markdown)},
		},
	}
	created, _, err := p.gists.Create(ctx, gist)
	if err != nil {
		return "", fmt.Errorf("export: create gist: %w", err)
	}
	return created.GetHTMLURL(), nil
}
