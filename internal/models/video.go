package models

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"
)

// VideoInfo is one entry of GET /api/videos/list. Fields the client does not
// interpret are kept in Extra.
type VideoInfo struct {
	VideoName string                     `json:"video_name"`
	Status    JobStatus                  `json:"status"`
	Extra     map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps unknown fields in Extra.
func (v *VideoInfo) UnmarshalJSON(b []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	if raw, ok := all["video_name"]; ok {
		if err := json.Unmarshal(raw, &v.VideoName); err != nil {
			return err
		}
		delete(all, "video_name")
	}
	if raw, ok := all["status"]; ok {
		if err := json.Unmarshal(raw, &v.Status); err != nil {
			return err
		}
		delete(all, "status")
	}
	if len(all) > 0 {
		v.Extra = all
	}
	return nil
}

// MarshalJSON flattens Extra back next to the known fields.
func (v VideoInfo) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(v.Extra)+2)
	for k, raw := range v.Extra {
		out[k] = raw
	}
	out["video_name"] = v.VideoName
	out["status"] = v.Status
	return json.Marshal(out)
}

var (
	disallowedNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	extensionPattern    = regexp.MustCompile(`\.[^/.]+$`)
)

// NormalizeVideoName converts a user-facing name into the key the backend uses:
// spaces become underscores, characters outside [a-zA-Z0-9_-] are dropped,
// leading and trailing underscores are trimmed, and the result is lowercased.
// The function is idempotent.
func NormalizeVideoName(name string) string {
	safe := strings.ReplaceAll(name, " ", "_")
	safe = disallowedNameChars.ReplaceAllString(safe, "")
	safe = strings.Trim(safe, "_")
	return strings.ToLower(safe)
}

// VideoNameFromFilename derives the expected video name of an uploaded file.
func VideoNameFromFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return NormalizeVideoName(extensionPattern.ReplaceAllString(base, ""))
}

// VideoSelection is the set of videos a search is restricted to. An empty
// selection means "search all videos", not "search none".
type VideoSelection struct {
	names []string
}

// NewVideoSelection builds a selection, dropping duplicates and blanks.
func NewVideoSelection(names ...string) VideoSelection {
	var s VideoSelection
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s *VideoSelection) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" || s.Contains(name) {
		return
	}
	s.names = append(s.names, name)
}

// Contains reports whether name is selected.
func (s VideoSelection) Contains(name string) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// Toggle adds name when absent and removes it when present.
func (s *VideoSelection) Toggle(name string) {
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i:i], s.names[i+1:]...)
			return
		}
	}
	s.add(name)
}

// SelectAll replaces the selection with every available name.
func (s *VideoSelection) SelectAll(available []string) {
	s.names = nil
	for _, n := range available {
		s.add(n)
	}
}

// Clear empties the selection, which means "all videos".
func (s *VideoSelection) Clear() {
	s.names = nil
}

// IsAll reports whether the selection places no restriction.
func (s VideoSelection) IsAll() bool {
	return len(s.names) == 0
}

// Len returns the number of selected names.
func (s VideoSelection) Len() int {
	return len(s.names)
}

// Names returns a copy of the selected names, or nil for "all videos".
func (s VideoSelection) Names() []string {
	if len(s.names) == 0 {
		return nil
	}
	return append([]string(nil), s.names...)
}
