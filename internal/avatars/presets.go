package avatars

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPresetsFile reads an avatar preset list. The file may be JSON or YAML.
// A missing file yields an empty list.
func LoadPresetsFile(path string) ([]Avatar, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open presets %q: %w", path, err)
	}
	defer f.Close()
	return ParsePresets(f)
}

// ParsePresets decodes a list of preset entries. Entries that are not objects
// or lack an id, name or voice are skipped. A document that is not a list
// yields an empty result.
func ParsePresets(r io.Reader) ([]Avatar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc any
	// JSON first so tab-indented files work; YAML covers the rest.
	if err := json.Unmarshal(raw, &doc); err != nil {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode presets: %w", err)
		}
	}
	entries, ok := doc.([]any)
	if !ok {
		return nil, nil
	}
	var out []Avatar
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if a, ok := normalizeEntry(entry); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func normalizeEntry(entry map[string]any) (Avatar, bool) {
	id := firstNonEmpty(entry, "id", "avatarId", "voiceId")
	name := firstNonEmpty(entry, "name")
	voice := firstNonEmpty(entry, "voiceId", "voice_id")
	if voice == "" {
		voice = id
	}
	if id == "" || name == "" || voice == "" {
		return Avatar{}, false
	}
	return Avatar{ID: id, Name: name, VoiceID: voice}, true
}

func firstNonEmpty(entry map[string]any, keys ...string) string {
	for _, k := range keys {
		var s string
		switch v := entry[k].(type) {
		case nil:
			continue
		case string:
			s = v
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
