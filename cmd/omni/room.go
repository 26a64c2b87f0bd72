package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/config"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/export"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Inspect and export stored rooms",
	}

	cmd.AddCommand(newRoomListCmd())
	cmd.AddCommand(newRoomShowCmd())
	cmd.AddCommand(newRoomExportCmd())
	cmd.AddCommand(newRoomWatchCmd())
	return cmd
}

func newRoomListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms with stored history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			gateway, store, err := openGateway(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			rooms, err := gateway.Rooms(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rooms) == 0 {
				fmt.Fprintln(out, "No rooms yet.")
				return nil
			}
			for _, room := range rooms {
				msgs := gateway.LoadTranscript(ctx, room, "")
				fmt.Fprintf(out, "%-24s %4d messages  %-8s %d online\n",
					room, len(msgs), gateway.LoadMode(ctx, room), len(gateway.Presence(ctx, room)))
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// printMessage writes one message as a terminal line block.
func printMessage(cmd *cobra.Command, m chat.Message) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "── %s · %s\n", m.Role.Label(m.Sender), humanize.Time(m.Timestamp))
	content := m.Content
	if content == "" {
		content = "(no content)"
	}
	fmt.Fprintln(out, content)
	for _, s := range m.Sources {
		fmt.Fprintf(out, "  ↳ %s <%s>\n", s.Title, s.URI)
	}
	if m.Feedback != nil {
		fmt.Fprintf(out, "  feedback: %s %s\n", m.Feedback.Type, m.Feedback.Comment)
	}
	fmt.Fprintln(out)
}

func newRoomShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <room>",
		Short: "Print a room's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room := args[0]
			if err := chat.ValidateRoomID(room); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			gateway, store, err := openGateway(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			state := gateway.LoadRoomState(ctx, room)
			fmt.Fprintf(cmd.OutOrStdout(), "Room %s (mode %s)\n\n", room, state.ActiveMode)
			for _, m := range gateway.LoadTranscript(ctx, room, "operator") {
				printMessage(cmd, m)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newRoomExportCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		gist       bool
	)

	cmd := &cobra.Command{
		Use:   "export <room>",
		Short: "Export a room's transcript as Markdown",
		Long:  "Writes the transcript as Markdown to stdout or --output, or publishes it as a secret GitHub Gist with --gist.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoomExport(cmd, configPath, args[0], outPath, gist)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write Markdown to this file")
	cmd.Flags().BoolVar(&gist, "gist", false, "publish as a secret GitHub Gist")
	return cmd
}

func runRoomExport(cmd *cobra.Command, configPath, room, outPath string, gist bool) error {
	if err := chat.ValidateRoomID(room); err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gateway, store, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	md := export.Markdown(room, gateway.LoadTranscript(ctx, room, "operator"), time.Now())
	out := cmd.OutOrStdout()

	switch {
	case gist:
		pub, err := export.NewGistPublisher(ctx, cfg.GitHubToken())
		if err != nil {
			return fmt.Errorf("%w (set %s)", err, cfg.Export.GitHubTokenEnv)
		}
		url, err := pub.Publish(ctx, room, md)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Published %s to %s\n", room, url)
	case outPath != "":
		if err := os.WriteFile(outPath, []byte(md), 0644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Fprintf(out, "Wrote %s (%s)\n", outPath, humanize.Bytes(uint64(len(md))))
	default:
		fmt.Fprint(out, md)
	}
	return nil
}

func newRoomWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch <room>",
		Short: "Follow a room's transcript as other processes write it",
		Long:  "Watches the sqlite database file and prints messages as they are added or updated. Requires the sqlite backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoomWatch(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

// watchDir is the directory whose changes signal a storage write. Pebble
// holds an exclusive lock on its directory, so only sqlite can be followed
// while a server is running.
func watchDir(st config.StorageConfig) (string, error) {
	if st.Driver != "sqlite" {
		return "", fmt.Errorf("watch needs the sqlite backend, not %s", st.Driver)
	}
	if st.Path == ":memory:" {
		return "", fmt.Errorf("cannot watch an in-memory database")
	}
	return filepath.Dir(st.Path), nil
}

// transcriptDiff returns the messages of next that are new or changed
// relative to prev.
func transcriptDiff(prev, next []chat.Message) []chat.Message {
	seen := make(map[string]string, len(prev))
	for _, m := range prev {
		seen[m.ID] = messageFingerprint(m)
	}
	var out []chat.Message
	for _, m := range next {
		if fp, ok := seen[m.ID]; ok && fp == messageFingerprint(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func messageFingerprint(m chat.Message) string {
	var b strings.Builder
	b.WriteString(m.Content)
	for _, s := range m.Sources {
		b.WriteString("\x00" + s.URI)
	}
	if m.Feedback != nil {
		b.WriteString("\x00" + string(m.Feedback.Type) + m.Feedback.Comment)
	}
	return b.String()
}

func runRoomWatch(cmd *cobra.Command, configPath, room string) error {
	if err := chat.ValidateRoomID(room); err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	dir, err := watchDir(cfg.Storage)
	if err != nil {
		return err
	}
	gateway, store, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	last := gateway.LoadTranscript(ctx, room, "operator")
	for _, m := range last {
		printMessage(cmd, m)
	}
	fmt.Fprintf(out, "Watching %s for changes to %s (Ctrl-C to stop)\n\n", dir, room)

	return followRoom(ctx, watcher, gateway, room, last, func(m chat.Message) { printMessage(cmd, m) })
}

// followRoom reloads the transcript after each burst of storage writes and
// hands new or changed messages to emit.
func followRoom(ctx context.Context, w *fsnotify.Watcher, g *persist.Gateway, room string, last []chat.Message, emit func(chat.Message)) error {
	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		case <-timer.C:
			next := g.LoadTranscript(ctx, room, "operator")
			for _, m := range transcriptDiff(last, next) {
				emit(m)
			}
			last = next
		}
	}
}
