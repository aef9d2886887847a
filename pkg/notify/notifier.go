// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/pibear/pkg/cron"
	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/profile"
)

const (
	BirthdayJobID    = "birthday_wishes"
	MessageJobPrefix = "msg_"

	defaultBirthdayInterval = 12 * time.Hour
	defaultChannel          = "line"
)

// Pusher delivers a proactive message outside any reply context.
type Pusher interface {
	Push(ctx context.Context, channel, userID, text string) error
}

type ProfileSource interface {
	Entries() []profile.Entry
}

type Options struct {
	ScheduleFile     string
	BirthdayInterval time.Duration
	DefaultChannel   string
	Location         *time.Location
}

// ScheduleEntry is one line of the schedule file.
type ScheduleEntry struct {
	UserID  string `json:"user_id"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

type SkippedEntry struct {
	Index  int
	Reason string
}

type ReloadReport struct {
	Registered []string
	Removed    []string
	Skipped    []SkippedEntry
}

// Notifier owns the birthday job and the file-driven daily message jobs.
type Notifier struct {
	cron     *cron.CronService
	pusher   Pusher
	profiles ProfileSource
	opts     Options
	now      func() time.Time
	reloadMu sync.Mutex
}

func NewNotifier(cs *cron.CronService, pusher Pusher, profiles ProfileSource, opts Options) *Notifier {
	if opts.BirthdayInterval <= 0 {
		opts.BirthdayInterval = defaultBirthdayInterval
	}
	if strings.TrimSpace(opts.DefaultChannel) == "" {
		opts.DefaultChannel = defaultChannel
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Notifier{
		cron:     cs,
		pusher:   pusher,
		profiles: profiles,
		opts:     opts,
		now:      time.Now,
	}
}

// Start registers the birthday job if missing, loads message jobs and starts
// the cron service. Calling it again does not duplicate jobs.
func (n *Notifier) Start(ctx context.Context) error {
	logger.InfoC("notify", "Starting scheduler")

	if err := n.EnsureBirthdayJob(); err != nil {
		return err
	}
	if _, err := n.ReloadMessageJobs(); err != nil {
		logger.ErrorCF("notify", "Initial schedule load failed", map[string]interface{}{"error": err.Error()})
	}
	if !n.cron.IsRunning() {
		if err := n.cron.Start(); err != nil {
			return fmt.Errorf("start cron service: %w", err)
		}
	}
	return nil
}

func (n *Notifier) EnsureBirthdayJob() error {
	if n.cron.HasJob(BirthdayJobID) {
		return nil
	}
	_, err := n.cron.AddJob(BirthdayJobID, "birthday wishes", cron.Every(n.opts.BirthdayInterval), func(ctx context.Context, _ cron.CronJob) error {
		n.CheckBirthdays(ctx, n.now())
		return nil
	})
	if errors.Is(err, cron.ErrJobExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("register birthday job: %w", err)
	}
	logger.InfoCF("notify", "Birthday job registered", map[string]interface{}{
		"interval": n.opts.BirthdayInterval.String(),
	})
	return nil
}

// ReloadMessageJobs replaces every msg_ job with the entries currently in the
// schedule file. When the file cannot be read or parsed the existing jobs are
// left in place.
func (n *Notifier) ReloadMessageJobs() (ReloadReport, error) {
	n.reloadMu.Lock()
	defer n.reloadMu.Unlock()

	var report ReloadReport
	entries, err := LoadSchedule(n.opts.ScheduleFile)
	if err != nil {
		logger.ErrorCF("notify", "Failed to read schedule", map[string]interface{}{
			"path":  n.opts.ScheduleFile,
			"error": err.Error(),
		})
		return report, err
	}

	report.Removed = n.cron.RemoveByPrefix(MessageJobPrefix)

	for i, raw := range entries {
		entry, err := decodeEntry(raw)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Index: i, Reason: err.Error()})
			logger.WarnCF("notify", "Skipping schedule entry", map[string]interface{}{"index": i, "error": err.Error()})
			continue
		}

		hour, minute, err := ParseClock(entry.Time)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Index: i, Reason: err.Error()})
			logger.WarnCF("notify", "Skipping schedule entry", map[string]interface{}{"index": i, "error": err.Error()})
			continue
		}

		channel := strings.TrimSpace(entry.Channel)
		if channel == "" {
			channel = n.opts.DefaultChannel
		}
		id := fmt.Sprintf("%s%d", MessageJobPrefix, i)
		userID, message := entry.UserID, entry.Message

		_, err = n.cron.AddJob(id, "message to "+userID, cron.Daily(hour, minute), func(ctx context.Context, _ cron.CronJob) error {
			return n.send(ctx, channel, userID, message)
		})
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Index: i, Reason: err.Error()})
			logger.ErrorCF("notify", "Failed to register message job", map[string]interface{}{"job_id": id, "error": err.Error()})
			continue
		}
		report.Registered = append(report.Registered, id)
		logger.InfoCF("notify", "Message job registered", map[string]interface{}{
			"job_id":  id,
			"time":    entry.Time,
			"user_id": userID,
			"channel": channel,
		})
	}

	logger.InfoCF("notify", "Schedule reloaded", map[string]interface{}{
		"registered": len(report.Registered),
		"removed":    len(report.Removed),
		"skipped":    len(report.Skipped),
	})
	return report, nil
}

// CheckBirthdays pushes a greeting to every profile whose birthday falls on
// now's month and day, and returns how many pushes succeeded.
func (n *Notifier) CheckBirthdays(ctx context.Context, now time.Time) int {
	now = now.In(n.opts.Location)
	sent := 0
	for _, e := range n.profiles.Entries() {
		birthday, ok := e.Profile.Birthday()
		if !ok || birthday.Month() != now.Month() || birthday.Day() != now.Day() {
			continue
		}
		text := BirthdayMessage(e.Profile.Name())
		if err := n.send(ctx, n.opts.DefaultChannel, e.UserID, text); err != nil {
			continue
		}
		sent++
		logger.InfoCF("notify", "Birthday wish sent", map[string]interface{}{"user_id": e.UserID})
	}
	return sent
}

func BirthdayMessage(name string) string {
	return fmt.Sprintf("🎂 生日快樂，%s！皮熊祝你每天都快樂幸福！🧸🎉", name)
}

func (n *Notifier) send(ctx context.Context, channel, userID, text string) error {
	if err := n.pusher.Push(ctx, channel, userID, text); err != nil {
		logger.ErrorCF("notify", "Push failed", map[string]interface{}{
			"channel": channel,
			"user_id": userID,
			"error":   err.Error(),
		})
		return err
	}
	logger.InfoCF("notify", "Push delivered", map[string]interface{}{
		"channel": channel,
		"user_id": userID,
	})
	return nil
}

// LoadSchedule reads the schedule file as a list of raw entries.
func LoadSchedule(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

func decodeEntry(raw json.RawMessage) (ScheduleEntry, error) {
	var entry ScheduleEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("malformed entry: %w", err)
	}
	if entry.UserID == "" || strings.TrimSpace(entry.Time) == "" || entry.Message == "" {
		return entry, fmt.Errorf("entry is missing user_id, time or message")
	}
	return entry, nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("time %q has a non-numeric hour", s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("time %q has a non-numeric minute", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q is out of range", s)
	}
	return hour, minute, nil
}
