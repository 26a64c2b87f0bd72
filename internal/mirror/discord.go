package mirror

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts to one Discord channel over the REST API. No gateway
// connection is opened.
type Discord struct {
	sess        discordSession
	channel     string
	baseBackoff time.Duration
}

// NewDiscord creates a Discord notifier for a bot token and channel id.
func NewDiscord(token, channel string) (*Discord, error) {
	if token == "" || channel == "" {
		return nil, fmt.Errorf("mirror: discord token and channel are required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("mirror: discord: %w", err)
	}
	return &Discord{sess: dg, channel: channel, baseBackoff: time.Second}, nil
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, p Post) error {
	data := discordMessage(p)
	for attempt := 0; ; attempt++ {
		_, err := d.sess.ChannelMessageSendComplex(d.channel, data, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests || attempt == maxRetries {
			return fmt.Errorf("mirror: discord: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.baseBackoff << attempt):
		}
	}
}

func discordMessage(p Post) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       p.Title(),
		Description: p.Body(),
		Color:       hexColor(p.Color()),
	}
	if len(p.Sources) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Sources",
			Value: p.SourceLines(),
		})
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

func hexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
