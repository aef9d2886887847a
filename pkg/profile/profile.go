// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dotsetgreg/pibear/pkg/logger"
)

const (
	DefaultName = "朋友"

	KeyName         = "name"
	KeyBirthday     = "birthday"
	KeyRelation     = "relation"
	KeyRelationZhTW = "與皮熊關係"

	BirthdayLayout = "2006-01-02"
)

type Field struct {
	Key   string
	Value string
}

// Profile is an ordered set of user attributes. Order follows the source file
// because the prompt renders attributes in that order.
type Profile struct {
	Fields []Field
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedObject(data)
	if err != nil {
		return err
	}
	p.Fields = make([]Field, 0, len(fields))
	for _, kv := range fields {
		p.Fields = append(p.Fields, Field{Key: kv.key, Value: kv.value})
	}
	return nil
}

func (p Profile) Get(key string) (string, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func (p Profile) IsEmpty() bool {
	return len(p.Fields) == 0
}

// Name returns the profile name, or DefaultName when the profile has none.
func (p Profile) Name() string {
	if name, ok := p.Get(KeyName); ok && name != "" {
		return name
	}
	return DefaultName
}

func (p Profile) Relation() string {
	if rel, ok := p.Get(KeyRelation); ok && rel != "" {
		return rel
	}
	rel, _ := p.Get(KeyRelationZhTW)
	return rel
}

// Birthday parses the birthday attribute. ok is false when it is absent or
// not in YYYY-MM-DD form.
func (p Profile) Birthday() (time.Time, bool) {
	raw, found := p.Get(KeyBirthday)
	if !found || strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(BirthdayLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Text renders the profile block used in prompts. Empty profiles render as "".
func (p Profile) Text() string {
	if p.IsEmpty() {
		return ""
	}
	lines := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		lines = append(lines, f.Key+"："+f.Value)
	}
	return "📇 使用者個人檔案：\n" + strings.Join(lines, "\n") + "\n"
}

type Entry struct {
	UserID  string
	Profile Profile
}

// Store reads user_profiles.json. It is read on every call so external edits
// are picked up without a restart.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Entries returns every profile in file order. A missing or unreadable file
// yields no entries and is logged.
func (s *Store) Entries() []Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.ErrorCF("profile", "Failed to read profiles", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
		}
		return nil
	}

	entries, err := parseEntries(data)
	if err != nil {
		logger.ErrorCF("profile", "Failed to parse profiles", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return nil
	}
	return entries
}

// Get returns the profile for userID. Unknown users get an empty profile.
func (s *Store) Get(userID string) Profile {
	for _, e := range s.Entries() {
		if e.UserID == userID {
			return e.Profile
		}
	}
	return Profile{}
}

func parseEntries(data []byte) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object of profiles")
	}

	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		userID, _ := keyTok.(string)
		var p Profile
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", userID, err)
		}
		entries = append(entries, Entry{UserID: userID, Profile: p})
	}
	return entries, nil
}

type orderedValue struct {
	key   string
	value string
}

func decodeOrderedObject(data []byte) ([]orderedValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}

	var out []orderedValue
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, orderedValue{key: key, value: renderValue(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func renderValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
