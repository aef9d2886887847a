// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/profile"
	"github.com/dotsetgreg/pibear/pkg/utils"
)

// ProfileSource supplies the profile block rendered ahead of the history.
type ProfileSource interface {
	Get(userID string) profile.Profile
}

// Store keeps one bounded JSON conversation log per user under dir.
//
// Appends for the same user are serialised inside this process. Separate
// processes sharing dir can still overwrite each other's appends.
type Store struct {
	dir        string
	maxHistory int
	profiles   ProfileSource
	now        func() time.Time
	locks      sync.Map
}

func NewStore(dir string, maxHistory int, profiles ProfileSource) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		dir:        dir,
		maxHistory: maxHistory,
		profiles:   profiles,
		now:        time.Now,
	}, nil
}

// Append records one entry for userID, evicting the oldest entries past the
// history cap, and rewrites the user's file atomically.
func (s *Store) Append(userID, role, content string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	history := s.load(userID)
	history = append(history, Entry{
		Role:      role,
		Content:   content,
		Timestamp: s.now().Format(TimestampLayout),
	})
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	if err := utils.WriteJSONAtomic(s.path(userID), history); err != nil {
		logger.ErrorCF("memory", "Failed to persist conversation", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return fmt.Errorf("persist conversation for %s: %w", userID, err)
	}
	return nil
}

// History returns the stored entries for userID, oldest first.
func (s *Store) History(userID string) []Entry {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.load(userID)
}

// BuildContext renders the profile block followed by the conversation, one
// line per entry, for use in a prompt.
func (s *Store) BuildContext(userID string) string {
	var profileText string
	if s.profiles != nil {
		profileText = s.profiles.Get(userID).Text()
	}

	history := s.History(userID)
	lines := make([]string, 0, len(history))
	for _, e := range history {
		speaker := "皮熊"
		if e.Role == RoleUser {
			speaker = "你"
		}
		lines = append(lines, speaker+"："+e.Content)
	}
	return profileText + strings.Join(lines, "\n")
}

func (s *Store) load(userID string) []Entry {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnCF("memory", "Failed to read conversation, starting fresh", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
		return []Entry{}
	}

	var history []Entry
	if err := json.Unmarshal(data, &history); err != nil {
		logger.WarnCF("memory", "Conversation file is corrupt, starting fresh", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return []Entry{}
	}
	return history
}

func (s *Store) path(userID string) string {
	return filepath.Join(s.dir, filepath.Base(userID)+".json")
}

func (s *Store) userLock(userID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
