package profile

import (
	"encoding/json"
	"os"
	"strings"
)

// Titles resolves the honorific used when the bot addresses someone by
// display name.
type Titles struct {
	path string
}

func NewTitles(path string) *Titles {
	return &Titles{path: path}
}

// Lookup tries the exact name, then its lowercase form, then DefaultName.
func (t *Titles) Lookup(name string) string {
	m := map[string]string{}
	if raw, err := os.ReadFile(t.path); err == nil {
		_ = json.Unmarshal(raw, &m)
	}
	if title, ok := m[name]; ok {
		return title
	}
	if title, ok := m[strings.ToLower(name)]; ok {
		return title
	}
	return DefaultName
}
