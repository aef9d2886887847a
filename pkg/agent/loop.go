// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package agent

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/pibear/pkg/bus"
	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/memory"
	"github.com/dotsetgreg/pibear/pkg/profile"
	"github.com/dotsetgreg/pibear/pkg/providers"
	"github.com/dotsetgreg/pibear/pkg/tools"
	"github.com/dotsetgreg/pibear/pkg/usage"
	"github.com/dotsetgreg/pibear/pkg/utils"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

type WeatherSource interface {
	Forecast(ctx context.Context, city string) string
}

type CityResolver interface {
	City(ctx context.Context, lat, lon float64) string
}

type CreatureSource interface {
	Draw(ctx context.Context) (text string, imageURL string)
}

type UsageLog interface {
	Log(userID, displayName string) error
	TodayRanking() string
}

type ProfileLookup interface {
	Get(userID string) profile.Profile
}

type CityPreferences interface {
	Get(displayName string) string
	Set(displayName, city string) error
}

type TitleLookup interface {
	Lookup(name string) string
}

// Deps are the collaborators the dispatcher needs. NewAgentLoop wires them
// from config; tests supply their own.
type Deps struct {
	Responder      *Responder
	Content        *Content
	Weather        WeatherSource
	Geocoder       CityResolver
	Creatures      CreatureSource
	Usage          UsageLog
	Profiles       ProfileLookup
	Cities         CityPreferences
	Titles         TitleLookup
	EmotionAIRatio float64
	Location       *time.Location
	Concurrency    int
	Closers        []io.Closer
}

// AgentLoop turns inbound user events into replies.
type AgentLoop struct {
	bus            *bus.MessageBus
	responder      *Responder
	content        *Content
	weather        WeatherSource
	geocoder       CityResolver
	creatures      CreatureSource
	usage          UsageLog
	profiles       ProfileLookup
	cities         CityPreferences
	titles         TitleLookup
	emotionAIRatio float64
	loc            *time.Location
	now            func() time.Time
	concurrency    int
	closers        []io.Closer
	running        atomic.Bool
}

func NewAgentLoop(cfg *config.Config, msgBus *bus.MessageBus, gen providers.Generator) (*AgentLoop, error) {
	profiles := profile.NewStore(cfg.ResolvePath(cfg.Files.Profiles))

	mem, err := memory.NewStore(cfg.ResolvePath(cfg.Memory.Dir), cfg.Memory.MaxHistory, profiles)
	if err != nil {
		return nil, err
	}

	usageStore, closers, err := OpenUsageStore(cfg)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	weatherCfg := cfg.Tools.Weather
	policy := tools.RetryPolicy{
		Attempts: weatherCfg.Attempts,
		Timeout:  time.Duration(weatherCfg.TimeoutSeconds) * time.Second,
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	deps := Deps{
		Responder: NewResponder(cfg.ResolvePath(cfg.Files.Persona), mem, gen),
		Content: NewContent(
			cfg.ResolvePath(cfg.Files.Emotions),
			cfg.ResolvePath(cfg.Files.Tones),
			cfg.ResolvePath(cfg.Files.Images),
			nil,
		),
		Weather:        tools.NewWeatherClient(weatherCfg.APIBase, weatherCfg.APIKey, policy, nil),
		Geocoder:       tools.NewGeocoder(cfg.Tools.Geocode.APIBase, cfg.Tools.Geocode.UserAgent, cfg.Tools.Geocode.RequestsPerSecond, httpClient),
		Creatures:      tools.NewPokemonClient(cfg.Tools.Pokemon.APIBase, cfg.Tools.Pokemon.MaxID, httpClient),
		Usage:          usage.NewRecorder(usageStore, loc),
		Profiles:       profiles,
		Cities:         profile.NewCityStore(cfg.ResolvePath(cfg.Files.Cities), cfg.Bot.DefaultCity),
		Titles:         profile.NewTitles(cfg.ResolvePath(cfg.Files.Titles)),
		EmotionAIRatio: cfg.Bot.EmotionAIRatio,
		Location:       loc,
		Closers:        closers,
	}
	return NewAgentLoopWithDeps(msgBus, deps), nil
}

// OpenUsageStore opens the configured usage backend. Returned closers must be
// closed on shutdown.
func OpenUsageStore(cfg *config.Config) (usage.Store, []io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Usage.Backend)) {
	case "", "file":
		return usage.NewFileStore(cfg.ResolvePath(cfg.Usage.Path)), nil, nil
	case "sqlite":
		store, err := usage.NewSQLiteStore(cfg.ResolvePath(cfg.Usage.SQLitePath))
		if err != nil {
			return nil, nil, err
		}
		return store, []io.Closer{store}, nil
	default:
		return nil, nil, fmt.Errorf("unknown usage backend %q", cfg.Usage.Backend)
	}
}

func NewAgentLoopWithDeps(msgBus *bus.MessageBus, deps Deps) *AgentLoop {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	content := deps.Content
	if content == nil {
		content = NewContent("", "", "", rand.New(rand.NewPCG(1, 2)))
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &AgentLoop{
		bus:            msgBus,
		responder:      deps.Responder,
		content:        content,
		weather:        deps.Weather,
		geocoder:       deps.Geocoder,
		creatures:      deps.Creatures,
		usage:          deps.Usage,
		profiles:       deps.Profiles,
		cities:         deps.Cities,
		titles:         deps.Titles,
		emotionAIRatio: deps.EmotionAIRatio,
		loc:            loc,
		now:            time.Now,
		concurrency:    concurrency,
		closers:        deps.Closers,
	}
}

// Run consumes inbound messages until ctx is done. Each message is handled
// on its own goroutine, bounded by the configured concurrency.
func (al *AgentLoop) Run(ctx context.Context) error {
	al.running.Store(true)
	defer al.running.Store(false)

	var g errgroup.Group
	g.SetLimit(al.concurrency)

	for al.running.Load() {
		msg, ok := al.bus.ConsumeInbound(ctx)
		if !ok {
			if ctx.Err() != nil {
				break
			}
			continue
		}

		g.Go(func() error {
			reply := al.ProcessInbound(ctx, msg)
			if reply.Content != "" || len(reply.Images) > 0 {
				al.bus.PublishOutbound(reply)
			}
			return nil
		})
	}

	return g.Wait()
}

func (al *AgentLoop) Stop() {
	al.running.Store(false)
	for _, c := range al.closers {
		if err := c.Close(); err != nil {
			logger.WarnCF("agent", "Failed to close resource", map[string]interface{}{"error": err.Error()})
		}
	}
	al.closers = nil
}

func (al *AgentLoop) IsRunning() bool {
	return al.running.Load()
}

// ProcessInbound builds the reply for one user event. The returned message
// carries the inbound reply token so the channel can answer in place.
func (al *AgentLoop) ProcessInbound(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage {
	logger.InfoCF("agent", fmt.Sprintf("Processing %s from %s:%s", valueOr(msg.Kind, bus.KindText), msg.Channel, msg.SenderID),
		map[string]interface{}{
			"channel":      msg.Channel,
			"chat_id":      msg.ChatID,
			"sender_id":    msg.SenderID,
			"display_name": msg.DisplayName,
			"preview":      utils.Truncate(msg.Content, 80),
		})

	out := bus.OutboundMessage{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		ReplyToken: msg.ReplyToken,
	}

	if msg.Kind == bus.KindLocation {
		out.Content = al.handleLocation(ctx, msg)
		return out
	}

	text, images := al.handleText(ctx, msg)
	out.Content = text
	out.Images = images
	out.QuickReplies = QuickReplies()
	return out
}

// ProcessDirect runs a text message through the same dispatch used for
// channel traffic and flattens the reply for a terminal.
func (al *AgentLoop) ProcessDirect(ctx context.Context, content, userID, displayName string) string {
	reply := al.ProcessInbound(ctx, bus.InboundMessage{
		Channel:     "cli",
		SenderID:    userID,
		ChatID:      userID,
		DisplayName: displayName,
		Kind:        bus.KindText,
		Content:     content,
	})
	var b strings.Builder
	for _, img := range reply.Images {
		b.WriteString("[image] ")
		b.WriteString(img)
		b.WriteString("\n")
	}
	b.WriteString(reply.Content)
	return b.String()
}

func (al *AgentLoop) handleText(ctx context.Context, msg bus.InboundMessage) (string, []string) {
	name := msg.DisplayName
	title := profile.DefaultName
	if al.titles != nil {
		title = al.titles.Lookup(name)
	}
	if al.usage != nil {
		_ = al.usage.Log(msg.SenderID, name)
	}

	intent := Classify(msg.Content)
	logger.DebugCF("agent", "Classified message", map[string]interface{}{
		"sender_id": msg.SenderID,
		"intent":    intent.Kind.String(),
		"emotion":   intent.Emotion,
	})

	switch intent.Kind {
	case IntentRanking:
		return al.usage.TodayRanking(), nil

	case IntentWeather:
		city := al.cities.Get(name)
		forecast := al.weather.Forecast(ctx, city)
		return fmt.Sprintf("📅 %s\n🌤 %s\n", DateInfo(al.now().In(al.loc)), forecast), nil

	case IntentCreature:
		text, image := al.creatures.Draw(ctx)
		var images []string
		if image != "" {
			images = append(images, image)
		}
		return fmt.Sprintf("你抽到的是：%s！", text), images

	case IntentEmotion:
		var line string
		if al.content.Chance(al.emotionAIRatio) {
			line = al.responder.Respond(ctx, msg.SenderID, fmt.Sprintf("請用充滿「%s」情緒的方式對我說一句話", intent.Emotion))
		} else {
			line = al.content.EmotionLine(intent.Emotion)
		}
		var images []string
		if img := al.content.RandomImage(); img != "" {
			images = append(images, img)
		}
		return fmt.Sprintf("皮熊:%s! %s", title, line), images

	default:
		reply := al.responder.Respond(ctx, msg.SenderID, msg.Content)
		tone := al.content.Tone(al.now().In(al.loc))
		var p profile.Profile
		if al.profiles != nil {
			p = al.profiles.Get(msg.SenderID)
		}
		return fmt.Sprintf("皮熊:%s\n%s\n🧸 %s\n你想聽我說什麼呢？", reply, tone, Greeting(p)), nil
	}
}

func (al *AgentLoop) handleLocation(ctx context.Context, msg bus.InboundMessage) string {
	city := al.geocoder.City(ctx, msg.Latitude, msg.Longitude)
	if err := al.cities.Set(msg.DisplayName, city); err != nil {
		logger.ErrorCF("agent", "Failed to save city preference", map[string]interface{}{
			"display_name": msg.DisplayName,
			"error":        err.Error(),
		})
	}
	return fmt.Sprintf("你目前所在的縣市是：%s，已為你更新天氣設定。", city)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
