package chat

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Mode is the room-wide working mode shared across tabs.
type Mode string

const (
	ModeResearch Mode = "research"
	ModeProject  Mode = "project"
)

// ParseMode converts a wire string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeResearch:
		return ModeResearch, nil
	case ModeProject:
		return ModeProject, nil
	}
	return "", fmt.Errorf("chat: invalid mode %q", s)
}

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateRoomID checks that a room id is usable as a channel name and a
// storage key suffix.
func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return fmt.Errorf("chat: invalid room id %q", id)
	}
	return nil
}

// RoomState is the small per-room session state persisted next to the
// transcript.
type RoomState struct {
	RoomID          string          `json:"roomId"`
	ActiveMode      Mode            `json:"activeMode"`
	ActiveDomain    string          `json:"activeDomain,omitempty"`
	ActiveSubDomain string          `json:"activeSubDomain,omitempty"`
	ActiveTools     map[string]bool `json:"activeTools,omitempty"`
}

// NewRoomState returns the state of a room on first visit.
func NewRoomState(roomID string) RoomState {
	return RoomState{
		RoomID:      roomID,
		ActiveMode:  ModeResearch,
		ActiveTools: map[string]bool{},
	}
}

// Tools returns the active tool names sorted for stable output.
func (s RoomState) Tools() []string {
	out := make([]string, 0, len(s.ActiveTools))
	for name, on := range s.ActiveTools {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ToggleTool flips a tool on or off and reports the new state.
func (s *RoomState) ToggleTool(name string) bool {
	if s.ActiveTools == nil {
		s.ActiveTools = map[string]bool{}
	}
	if s.ActiveTools[name] {
		delete(s.ActiveTools, name)
		return false
	}
	s.ActiveTools[name] = true
	return true
}
