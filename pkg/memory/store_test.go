package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dotsetgreg/pibear/pkg/profile"
)

type staticProfiles map[string]profile.Profile

func (s staticProfiles) Get(userID string) profile.Profile {
	return s[userID]
}

func newTestStore(t *testing.T, profiles ProfileSource) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "user_log"), DefaultMaxHistory, profiles)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStore_AppendKeepsMostRecentInOrder(t *testing.T) {
	store := newTestStore(t, nil)

	for i := 0; i < 25; i++ {
		if err := store.Append("U1", RoleUser, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history := store.History("U1")
	if len(history) != DefaultMaxHistory {
		t.Fatalf("expected %d entries, got %d", DefaultMaxHistory, len(history))
	}
	for i, e := range history {
		want := fmt.Sprintf("msg-%d", i+5)
		if e.Content != want {
			t.Fatalf("entry %d = %q, want %q", i, e.Content, want)
		}
	}
}

func TestStore_AppendStampsTimestamp(t *testing.T) {
	store := newTestStore(t, nil)
	store.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC) }

	if err := store.Append("U1", RoleAssistant, "哈囉"); err != nil {
		t.Fatalf("append: %v", err)
	}

	history := store.History("U1")
	if len(history) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(history))
	}
	if history[0].Timestamp != "2024-01-02T03:04:05.678000" {
		t.Fatalf("unexpected timestamp %q", history[0].Timestamp)
	}
	if history[0].Role != RoleAssistant {
		t.Fatalf("unexpected role %q", history[0].Role)
	}
}

func TestStore_CorruptFileTreatedAsEmpty(t *testing.T) {
	store := newTestStore(t, nil)
	if err := os.WriteFile(store.path("U1"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if got := store.History("U1"); len(got) != 0 {
		t.Fatalf("expected empty history, got %#v", got)
	}
	if err := store.Append("U1", RoleUser, "hi"); err != nil {
		t.Fatalf("append after corruption: %v", err)
	}
	if got := store.History("U1"); len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("unexpected history after append: %#v", got)
	}
}

func TestStore_FileIsReadableJSON(t *testing.T) {
	store := newTestStore(t, nil)
	store.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := store.Append("U1", RoleUser, "皮熊你好"); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(store.path("U1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "[\n  {\n    \"role\": \"user\",\n    \"content\": \"皮熊你好\",\n    \"timestamp\": \"2024-01-01T00:00:00.000000\"\n  }\n]"
	if string(data) != want {
		t.Fatalf("file content mismatch\n--- got ---\n%s\n--- want ---\n%s", data, want)
	}
}

func TestStore_BuildContextRendersProfileAndHistory(t *testing.T) {
	profiles := staticProfiles{
		"U1": {Fields: []profile.Field{{Key: "name", Value: "小美"}}},
	}
	store := newTestStore(t, profiles)

	_ = store.Append("U1", RoleUser, "早安")
	_ = store.Append("U1", RoleAssistant, "早安呀")

	got := store.BuildContext("U1")
	want := "📇 使用者個人檔案：\nname：小美\n你：早安\n皮熊：早安呀"
	if got != want {
		t.Fatalf("context mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}

	if got := store.BuildContext("U2"); got != "" {
		t.Fatalf("expected empty context for unknown user, got %q", got)
	}
}

func TestStore_ConcurrentAppendsSameUser(t *testing.T) {
	store := newTestStore(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Append("U1", RoleUser, fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	if got := len(store.History("U1")); got != 10 {
		t.Fatalf("expected 10 entries after concurrent appends, got %d", got)
	}
}

func TestStore_RejectsEmptyUser(t *testing.T) {
	store := newTestStore(t, nil)
	if err := store.Append(" ", RoleUser, "x"); err != ErrEmptyUserID {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
}
