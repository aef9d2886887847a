// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package usage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dotsetgreg/pibear/pkg/logger"
)

const (
	RankingHeader = "🐾 今日皮熊陪伴排行榜 🧸\n"
	RankingEmpty  = "今天還沒人來找皮熊玩QQ"
	RankingSize   = 5
)

type Entry struct {
	Name  string
	Count int
}

// Recorder logs interactions and renders the same-day leaderboard.
type Recorder struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

func NewRecorder(store Store, loc *time.Location) *Recorder {
	if loc == nil {
		loc = time.Local
	}
	return &Recorder{store: store, loc: loc, now: time.Now}
}

func (r *Recorder) today() string {
	return Day(r.now().In(r.loc))
}

// Log appends one record for the interaction. Every call counts.
func (r *Recorder) Log(userID, displayName string) error {
	rec := Record{Day: r.today(), UserID: userID, DisplayName: displayName}
	if err := r.store.Append(rec); err != nil {
		logger.WarnCF("usage", "Failed to record usage", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return err
	}
	return nil
}

// Top counts today's records per display name, ordered by count descending.
// Ties keep first-encountered order.
func (r *Recorder) Top(n int) ([]Entry, error) {
	records, err := r.store.Records(r.today())
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var entries []Entry
	for _, rec := range records {
		if i, ok := index[rec.DisplayName]; ok {
			entries[i].Count++
			continue
		}
		index[rec.DisplayName] = len(entries)
		entries = append(entries, Entry{Name: rec.DisplayName, Count: 1})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// TodayRanking renders the top five of today. Read failures render as an
// empty board.
func (r *Recorder) TodayRanking() string {
	entries, err := r.Top(RankingSize)
	if err != nil {
		logger.WarnCF("usage", "Failed to read usage log", map[string]interface{}{
			"error": err.Error(),
		})
		return RankingEmpty
	}
	return RenderRanking(entries)
}

func RenderRanking(entries []Entry) string {
	if len(entries) == 0 {
		return RankingEmpty
	}
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s：%d 次", i+1, e.Name, e.Count))
	}
	return RankingHeader + strings.Join(lines, "\n")
}
