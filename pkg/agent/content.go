package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/pibear/pkg/bus"
	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/profile"
)

const (
	EmotionMissing    = "皮熊現在腦袋空空QQ"
	EmotionUnreadable = "皮熊壞掉了...請再說一次QQ"
)

var defaultToneSuffixes = []string{"皮熊陪你開始新的一天", "一起加油吧！", "今天也是好日子唷"}

var quickReplies = []bus.QuickReply{
	{Label: "🌤 天氣資訊", Text: "天氣資訊"},
	{Label: "🩵 安慰我", Text: "安慰我"},
	{Label: "🩷 撒嬌一下", Text: "撒嬌一下"},
	{Label: "💛 歡迎我", Text: "歡迎我"},
	{Label: "💚 鼓勵我", Text: "鼓勵我"},
	{Label: "🚫 不要打皮熊", Text: "不要打皮熊"},
	{Label: "📈 排行榜", Text: "排行榜"},
	{Label: "🎲 給我一隻寶可夢", Text: "給我一隻寶可夢"},
}

// QuickReplies returns the buttons attached to every text reply.
func QuickReplies() []bus.QuickReply {
	out := make([]bus.QuickReply, len(quickReplies))
	copy(out, quickReplies)
	return out
}

// Content serves the file-backed phrase banks. Files are re-read on every
// call so operators can edit them while the bot runs.
type Content struct {
	emotionsPath string
	tonesPath    string
	imagesPath   string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewContent(emotionsPath, tonesPath, imagesPath string, rng *rand.Rand) *Content {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return &Content{
		emotionsPath: emotionsPath,
		tonesPath:    tonesPath,
		imagesPath:   imagesPath,
		rng:          rng,
	}
}

func (c *Content) intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(n)
}

// Chance reports true with probability p.
func (c *Content) Chance(p float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < p
}

func (c *Content) pick(items []string) string {
	return items[c.intn(len(items))]
}

// EmotionLine picks a phrase for category from the emotions bank.
func (c *Content) EmotionLine(category string) string {
	raw, err := os.ReadFile(c.emotionsPath)
	if err != nil {
		logger.ErrorCF("agent", "Failed to read emotion phrases", map[string]interface{}{"error": err.Error()})
		return EmotionUnreadable
	}
	bank := map[string][]string{}
	if err := json.Unmarshal(raw, &bank); err != nil {
		logger.ErrorCF("agent", "Failed to parse emotion phrases", map[string]interface{}{"error": err.Error()})
		return EmotionUnreadable
	}
	lines := bank[category]
	if len(lines) == 0 {
		return EmotionMissing
	}
	return c.pick(lines)
}

// Tone combines a greeting for the hour of now with a random description
// line.
func (c *Content) Tone(now time.Time) string {
	var prefix string
	switch h := now.Hour(); {
	case h < 12:
		prefix = "☀️ 早安！"
	case h < 18:
		prefix = "🌼 午安呀～"
	default:
		prefix = "🌙 晚安唷～"
	}

	lines, err := readLines(c.tonesPath)
	if err != nil {
		logger.WarnCF("agent", "Using default tone lines", map[string]interface{}{"error": err.Error()})
	}
	if len(lines) == 0 {
		lines = defaultToneSuffixes
	}
	return prefix + " " + c.pick(lines)
}

// RandomImage returns a direct image link from the images list, or "" when
// the list is empty, unreadable, or the picked entry is an album.
func (c *Content) RandomImage() string {
	links, err := readLines(c.imagesPath)
	if err != nil {
		logger.ErrorCF("agent", "Failed to read image links", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(links) == 0 {
		return ""
	}
	return ImgurDirectLink(c.pick(links))
}

// ImgurDirectLink turns a page link into a direct .jpg link. Album links
// have no single image and resolve to "".
func ImgurDirectLink(raw string) string {
	if strings.Contains(raw, "/a/") {
		return ""
	}
	parts := strings.Split(raw, "/")
	return fmt.Sprintf("https://i.imgur.com/%s.jpg", parts[len(parts)-1])
}

// Greeting addresses the user by profile name, with the relation in
// parentheses when one is recorded.
func Greeting(p profile.Profile) string {
	name := p.Name()
	if relation := p.Relation(); relation != "" {
		return fmt.Sprintf("%s（%s），新的一天開始囉～皮熊陪你！", name, relation)
	}
	return fmt.Sprintf("%s，新的一天開始囉～皮熊陪你！", name)
}

const weekdays = "一二三四五六日"

// DateInfo renders t as YYYY/MM/DD（星期X）.
func DateInfo(t time.Time) string {
	// time.Weekday starts at Sunday; the label table starts at Monday.
	idx := (int(t.Weekday()) + 6) % 7
	day := []rune(weekdays)[idx]
	return fmt.Sprintf("%s（星期%c）", t.Format("2006/01/02"), day)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
