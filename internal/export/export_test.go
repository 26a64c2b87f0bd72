package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/google/go-github/v68/github"
)

func TestMarkdown(t *testing.T) {
	ts := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	msgs := []chat.Message{
		{ID: "1", Role: chat.RoleUser, Sender: "alice", Content: "what is raft?", Timestamp: ts, Intent: chat.IntentSearch,
			Attachments: []chat.Attachment{{Name: "notes.txt", MIMEType: "text/plain", Size: 1500}}},
		{ID: "2", Role: chat.RoleAssistant, Content: "A consensus protocol.", Timestamp: ts,
			Sources:  []chat.Source{{Title: "Raft", URI: "https://raft.github.io"}},
			Feedback: &chat.Feedback{Type: chat.FeedbackUp, Comment: "clear"}},
		{ID: "3", Role: chat.RoleAssistant},
	}
	md := Markdown("alpha", msgs, ts)

	for _, want := range []string{
		"# OmniExpert transcript: alpha",
		"3 messages",
		"### Operator: alice · 2025-05-04T10:00:00Z · search",
		"- notes.txt (text/plain, 1.5 kB)",
		"### OmniExpert",
		"1. [Raft](https://raft.github.io)",
		"Feedback: up (clear)",
		"_(no content)_",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

type fakeGists struct {
	got *github.Gist
	err error
}

func (f *fakeGists) Create(_ context.Context, g *github.Gist) (*github.Gist, *github.Response, error) {
	f.got = g
	if f.err != nil {
		return nil, nil, f.err
	}
	return &github.Gist{HTMLURL: github.Ptr("https://gist.github.com/abc")}, nil, nil
}

func TestGistPublisher_Publish(t *testing.T) {
	f := &fakeGists{}
	p := &GistPublisher{gists: f}
	url, err := p.Publish(context.Background(), "alpha", "# hi")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if url != "https://gist.github.com/abc" {
		t.Errorf("url = %q", url)
	}
	if f.got.GetPublic() {
		t.Error("gist should be secret")
	}
	file, ok := f.got.Files["omni-alpha.md"]
	if !ok || file.GetContent() != "# hi" {
		t.Errorf("files = %+v", f.got.Files)
	}

	f.err = errors.New("401")
	if _, err := p.Publish(context.Background(), "alpha", "x"); err == nil {
		t.Error("expected error")
	}
}

func TestNewGistPublisher_RequiresToken(t *testing.T) {
	if _, err := NewGistPublisher(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
