package mirror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

const maxRetries = 3

// slackClient abstracts the slack-go methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts to one Slack channel.
type Slack struct {
	client  slackClient
	channel string
}

// NewSlack creates a Slack notifier for a bot token and channel id.
func NewSlack(token, channel string) (*Slack, error) {
	if token == "" || channel == "" {
		return nil, fmt.Errorf("mirror: slack token and channel are required")
	}
	return &Slack{client: slackapi.New(token), channel: channel}, nil
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, p Post) error {
	opts := slackMessageOptions(p)
	err := retrySlack(ctx, func() error {
		_, _, err := s.client.PostMessageContext(ctx, s.channel, opts...)
		return err
	})
	if err != nil {
		return fmt.Errorf("mirror: slack: %w", err)
	}
	return nil
}

func slackMessageOptions(p Post) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Title:    p.Title(),
		Text:     p.Body(),
		Color:    p.Color(),
		Fallback: p.Title(),
	}
	if len(p.Sources) > 0 {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: "Sources",
			Value: p.SourceLines(),
		})
	}
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(p.Title(), false),
		slackapi.MsgOptionAttachments(att),
	}
}

// retrySlack retries fn on Slack rate limit errors, honouring RetryAfter.
func retrySlack(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
