package agent

import "strings"

type IntentKind int

const (
	IntentChat IntentKind = iota
	IntentRanking
	IntentWeather
	IntentCreature
	IntentEmotion
)

func (k IntentKind) String() string {
	switch k {
	case IntentRanking:
		return "ranking"
	case IntentWeather:
		return "weather"
	case IntentCreature:
		return "creature"
	case IntentEmotion:
		return "emotion"
	default:
		return "chat"
	}
}

const (
	EmotionComfort   = "comfort"
	EmotionCute      = "cute"
	EmotionWelcome   = "welcome"
	EmotionEncourage = "encourage"
	EmotionHit       = "hit"
)

type Intent struct {
	Kind    IntentKind
	Emotion string
}

var (
	rankingTriggers = map[string]bool{
		"排行榜":      true,
		"使用排行":     true,
		"今天誰最黏皮熊？": true,
	}

	emotionTriggers = map[string]string{
		"安慰我":   EmotionComfort,
		"撒嬌一下":  EmotionCute,
		"歡迎我":   EmotionWelcome,
		"鼓勵我":   EmotionEncourage,
		"不要打皮熊": EmotionHit,
	}

	hitWords = []string{"踢你", "揍"}
)

const (
	weatherTrigger  = "天氣資訊"
	creatureTrigger = "給我一隻寶可夢"
)

// Classify maps message text to the reply path. Exact triggers are checked
// before the substring fallback; anything else is general chat.
func Classify(text string) Intent {
	if rankingTriggers[text] {
		return Intent{Kind: IntentRanking}
	}
	if text == weatherTrigger {
		return Intent{Kind: IntentWeather}
	}
	if text == creatureTrigger {
		return Intent{Kind: IntentCreature}
	}
	if category, ok := emotionTriggers[text]; ok {
		return Intent{Kind: IntentEmotion, Emotion: category}
	}
	lowered := strings.ToLower(text)
	for _, w := range hitWords {
		if strings.Contains(lowered, w) {
			return Intent{Kind: IntentEmotion, Emotion: EmotionHit}
		}
	}
	return Intent{Kind: IntentChat}
}
