package agent

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/dotsetgreg/pibear/pkg/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImgurDirectLink(t *testing.T) {
	assert.Equal(t, "https://i.imgur.com/abc123.jpg", ImgurDirectLink("https://imgur.com/abc123"))
	assert.Equal(t, "", ImgurDirectLink("https://imgur.com/a/xyz"))
}

func TestDateInfo_MondayFirstLabels(t *testing.T) {
	assert.Equal(t, "2026/03/16（星期一）", DateInfo(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026/03/22（星期日）", DateInfo(time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)))
}

func TestTone_PrefixFollowsHour(t *testing.T) {
	dir := t.TempDir()
	tones := filepath.Join(dir, "descriptions.txt")
	writeFile(t, tones, "\n  抱抱  \n\n")
	c := NewContent("", tones, "", rand.New(rand.NewPCG(1, 2)))

	at := func(h int) time.Time { return time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, "☀️ 早安！ 抱抱", c.Tone(at(11)))
	assert.Equal(t, "🌼 午安呀～ 抱抱", c.Tone(at(12)))
	assert.Equal(t, "🌙 晚安唷～ 抱抱", c.Tone(at(18)))
}

func TestTone_FallsBackToDefaults(t *testing.T) {
	c := NewContent("", filepath.Join(t.TempDir(), "missing.txt"), "", rand.New(rand.NewPCG(1, 2)))
	got := c.Tone(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	assert.Contains(t, []string{
		"☀️ 早安！ 皮熊陪你開始新的一天",
		"☀️ 早安！ 一起加油吧！",
		"☀️ 早安！ 今天也是好日子唷",
	}, got)
}

func TestEmotionLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emotions.json")
	writeFile(t, path, `{"hit":["好痛QQ"]}`)
	c := NewContent(path, "", "", rand.New(rand.NewPCG(1, 2)))

	assert.Equal(t, "好痛QQ", c.EmotionLine("hit"))
	assert.Equal(t, EmotionMissing, c.EmotionLine("cute"))

	writeFile(t, path, `{broken`)
	assert.Equal(t, EmotionUnreadable, c.EmotionLine("hit"))
}

func TestRandomImage_SkipsAlbums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "url.txt")
	writeFile(t, path, "https://imgur.com/a/album\n")
	c := NewContent("", "", path, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, "", c.RandomImage())

	writeFile(t, path, "https://imgur.com/pic9\n")
	assert.Equal(t, "https://i.imgur.com/pic9.jpg", c.RandomImage())
}

func TestGreeting(t *testing.T) {
	var withRelation profile.Profile
	require.NoError(t, withRelation.UnmarshalJSON([]byte(`{"name":"小明","與皮熊關係":"好朋友"}`)))
	assert.Equal(t, "小明（好朋友），新的一天開始囉～皮熊陪你！", Greeting(withRelation))

	assert.Equal(t, "朋友，新的一天開始囉～皮熊陪你！", Greeting(profile.Profile{}))
}

func TestQuickRepliesAreCopies(t *testing.T) {
	items := QuickReplies()
	require.Len(t, items, 8)
	assert.Equal(t, "🌤 天氣資訊", items[0].Label)
	assert.Equal(t, "天氣資訊", items[0].Text)
	items[0].Label = "changed"
	assert.Equal(t, "🌤 天氣資訊", QuickReplies()[0].Label)
}
