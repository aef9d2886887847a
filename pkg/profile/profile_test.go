package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_PreservesAttributeOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "user_profiles.json", `{
  "U1": {"name": "小美", "birthday": "1990-03-15", "與皮熊關係": "好朋友", "age": 34},
  "U2": {"name": "阿博"}
}`)

	store := NewStore(path)
	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "U1", entries[0].UserID)
	assert.Equal(t, "U2", entries[1].UserID)

	p := store.Get("U1")
	assert.Equal(t, "小美", p.Name())
	assert.Equal(t, "好朋友", p.Relation())
	assert.Equal(t, "📇 使用者個人檔案：\nname：小美\nbirthday：1990-03-15\n與皮熊關係：好朋友\nage：34\n", p.Text())

	bday, ok := p.Birthday()
	require.True(t, ok)
	assert.Equal(t, 3, int(bday.Month()))
	assert.Equal(t, 15, bday.Day())
}

func TestStore_MissingProfileDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))

	p := store.Get("nobody")
	assert.True(t, p.IsEmpty())
	assert.Equal(t, DefaultName, p.Name())
	assert.Equal(t, "", p.Text())
	assert.Equal(t, "", p.Relation())
}

func TestStore_CorruptFileYieldsNoEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "user_profiles.json", `{"U1": {"name": `)

	assert.Empty(t, NewStore(path).Entries())
}

func TestProfile_BirthdayRejectsBadFormat(t *testing.T) {
	p := Profile{Fields: []Field{{Key: KeyBirthday, Value: "03/15/1990"}}}

	_, ok := p.Birthday()
	assert.False(t, ok)
}

func TestCityStore_SetThenGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_cities.json")
	cities := NewCityStore(path, "臺北市")

	assert.Equal(t, "臺北市", cities.Get("小美"))

	require.NoError(t, cities.Set("小美", "高雄市"))
	require.NoError(t, cities.Set("阿博", "臺中市"))

	assert.Equal(t, "高雄市", cities.Get("小美"))
	assert.Equal(t, "臺中市", cities.Get("阿博"))
	assert.Equal(t, "臺北市", cities.Get("陌生人"))
}

func TestCityStore_CorruptFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "user_cities.json", "not json")
	cities := NewCityStore(path, "臺北市")

	assert.Equal(t, "臺北市", cities.Get("小美"))
	require.NoError(t, cities.Set("小美", "花蓮縣"))
	assert.Equal(t, "花蓮縣", cities.Get("小美"))
}

func TestTitles_Lookup(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "titles.json", `{"Amy": "公主", "bo": "勇者"}`)
	titles := NewTitles(path)

	assert.Equal(t, "公主", titles.Lookup("Amy"))
	assert.Equal(t, "勇者", titles.Lookup("BO"))
	assert.Equal(t, DefaultName, titles.Lookup("Carol"))
	assert.Equal(t, DefaultName, NewTitles(filepath.Join(dir, "missing.json")).Lookup("Amy"))
}
