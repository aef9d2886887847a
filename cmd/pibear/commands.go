package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/dotsetgreg/pibear/pkg/agent"
	"github.com/dotsetgreg/pibear/pkg/bus"
	"github.com/dotsetgreg/pibear/pkg/channels"
	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/dotsetgreg/pibear/pkg/cron"
	"github.com/dotsetgreg/pibear/pkg/gateway"
	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/notify"
	"github.com/dotsetgreg/pibear/pkg/profile"
	"github.com/dotsetgreg/pibear/pkg/providers"
	"github.com/dotsetgreg/pibear/pkg/usage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runOnboard(out io.Writer, force bool) error {
	configPath := getConfigPath()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(out, "Config already exists at %s (use --force to reset)\n", configPath)
		existing, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = existing
	} else {
		if err := config.SaveConfig(configPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(out, "Config written to %s\n", configPath)
	}

	workspace := cfg.WorkspacePath()
	written, skipped, err := copyEmbeddedToTarget(workspace)
	if err != nil {
		return err
	}
	for _, dir := range []string{cfg.Memory.Dir, cfg.Gateway.ImageDir} {
		if err := os.MkdirAll(cfg.ResolvePath(dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	fmt.Fprintf(out, "Workspace: %s (%d created, %d kept)\n", workspace, len(written), len(skipped))
	fmt.Fprintf(out, "%s is ready!\n", appName)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Put your LINE channel secret and access token in", configPath)
	fmt.Fprintln(out, "     or export PIBEAR_CHANNELS_LINE_CHANNEL_SECRET / PIBEAR_CHANNELS_LINE_CHANNEL_ACCESS_TOKEN")
	fmt.Fprintln(out, "  2. Pick an AI backend with providers.ai_model_source (ollama, gemini, openai)")
	fmt.Fprintln(out, "  3. Chat locally: pibear chat -m \"你好\"")
	fmt.Fprintln(out, "  4. Run gateway: pibear gateway")
	return nil
}

func runGateway(ctx context.Context, out io.Writer, debug bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, debug)
	if debug {
		fmt.Fprintln(out, "🔍 Debug mode enabled")
	}

	gen, err := providers.CreateGenerator(cfg)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	msgBus := bus.NewMessageBusWithSize(cfg.Gateway.BusSize)
	agentLoop, err := agent.NewAgentLoop(cfg, msgBus, gen)
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}
	defer agentLoop.Stop()

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}
	fmt.Fprintf(out, "✓ Channels enabled: %s\n", strings.Join(channelManager.GetEnabledChannels(), ", "))

	cronService := cron.NewCronService(cfg.Location())
	notifier := notify.NewNotifier(cronService, channelManager, profile.NewStore(cfg.ResolvePath(cfg.Files.Profiles)), notifyOptions(cfg))

	webhook, ok := channelManager.LineWebhook()
	if !ok {
		logger.WarnC("gateway", "LINE channel disabled; /callback will answer 503")
	}
	var ready atomic.Bool
	server := gateway.NewServer(gateway.Options{
		Host:     cfg.Gateway.Host,
		Port:     cfg.Gateway.Port,
		ImageDir: cfg.ResolvePath(cfg.Gateway.ImageDir),
		Webhook:  webhook,
		Ready:    ready.Load,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	logger.InfoCF("gateway", "Channels started", channelManager.GetStatus())
	if err := notifier.Start(ctx); err != nil {
		_ = channelManager.StopAll(context.Background())
		return fmt.Errorf("start scheduler: %w", err)
	}
	fmt.Fprintf(out, "✓ Scheduler started (%d jobs)\n", len(cronService.ListJobs()))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return agentLoop.Run(gctx) })
	if cfg.Scheduler.WatchSchedule {
		g.Go(func() error { return notifier.WatchSchedule(gctx) })
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.InfoC("gateway", "SIGHUP received, reloading schedule")
				if _, err := notifier.ReloadMessageJobs(); err != nil {
					logger.WarnCF("gateway", "Schedule reload failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WarnCF("gateway", "HTTP shutdown error", map[string]interface{}{"error": err.Error()})
		}
		cronService.Stop()
		return channelManager.StopAll(shutdownCtx)
	})

	ready.Store(true)
	fmt.Fprintf(out, "✓ Gateway listening on %s\n", server.Addr())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	err = g.Wait()
	fmt.Fprintln(out, "✓ Gateway stopped")
	return err
}

func notifyOptions(cfg *config.Config) notify.Options {
	return notify.Options{
		ScheduleFile:     cfg.ResolvePath(cfg.Scheduler.ScheduleFile),
		BirthdayInterval: time.Duration(cfg.Scheduler.BirthdayIntervalHours) * time.Hour,
		DefaultChannel:   cfg.Scheduler.DefaultChannel,
		Location:         cfg.Location(),
	}
}

type chatOptions struct {
	Message string
	UserID  string
	Name    string
	Debug   bool
}

func runChat(ctx context.Context, out io.Writer, opts chatOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, opts.Debug)
	if !opts.Debug {
		logger.SetLevel(logger.WARN)
	}

	gen, err := providers.CreateGenerator(cfg)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}
	agentLoop, err := agent.NewAgentLoop(cfg, bus.NewMessageBusWithSize(cfg.Gateway.BusSize), gen)
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}
	defer agentLoop.Stop()

	if strings.TrimSpace(opts.Message) != "" {
		fmt.Fprintln(out, agentLoop.ProcessDirect(ctx, opts.Message, opts.UserID, opts.Name))
		return nil
	}

	fmt.Fprintf(out, "🧸 Interactive mode as %s (%s). Type exit to quit.\n\n", opts.Name, opts.UserID)
	interactiveMode(ctx, out, agentLoop, opts)
	return nil
}

func interactiveMode(ctx context.Context, out io.Writer, agentLoop *agent.AgentLoop, opts chatOptions) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "你：",
		HistoryFile:     filepath.Join(os.TempDir(), ".pibear_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		simpleInteractiveMode(ctx, out, os.Stdin, agentLoop, opts)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !chatTurn(ctx, out, agentLoop, opts, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, out io.Writer, in io.Reader, agentLoop *agent.AgentLoop, opts chatOptions) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "你：")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !chatTurn(ctx, out, agentLoop, opts, line) {
			return
		}
	}
}

// chatTurn handles one REPL line and reports whether the session continues.
func chatTurn(ctx context.Context, out io.Writer, agentLoop *agent.AgentLoop, opts chatOptions, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return false
	}
	reply := agentLoop.ProcessDirect(ctx, input, opts.UserID, opts.Name)
	fmt.Fprintf(out, "\n皮熊：%s\n\n", reply)
	return true
}

func runStatus(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configPath := getConfigPath()

	fmt.Fprintf(out, "%s Status\n", appName)
	fmt.Fprintf(out, "Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(out, "Build: %s\n", build)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Config:", configPath, mark(fileExists(configPath)))
	workspace := cfg.WorkspacePath()
	fmt.Fprintln(out, "Workspace:", workspace, mark(fileExists(workspace)))

	files := []struct {
		label string
		path  string
	}{
		{"Persona", cfg.Files.Persona},
		{"Profiles", cfg.Files.Profiles},
		{"Cities", cfg.Files.Cities},
		{"Titles", cfg.Files.Titles},
		{"Emotions", cfg.Files.Emotions},
		{"Tones", cfg.Files.Tones},
		{"Images", cfg.Files.Images},
		{"Schedule", cfg.Scheduler.ScheduleFile},
	}
	for _, f := range files {
		p := cfg.ResolvePath(f.path)
		fmt.Fprintf(out, "  %s: %s %s\n", f.label, p, mark(fileExists(p)))
	}
	fmt.Fprintln(out)

	set := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}
	line := cfg.Channels.Line
	lineReady := strings.TrimSpace(line.ChannelSecret) != "" && strings.TrimSpace(line.ChannelAccessToken) != ""
	fmt.Fprintf(out, "AI backend: %s\n", providers.ActiveProviderName(cfg))
	fmt.Fprintf(out, "Usage backend: %s\n", valueOr(cfg.Usage.Backend, "file"))
	fmt.Fprintf(out, "Time zone: %s\n", cfg.Location())
	fmt.Fprintln(out, "LINE enabled:", line.Enabled)
	fmt.Fprintln(out, "LINE credentials:", set(lineReady))
	fmt.Fprintln(out, "Discord enabled:", cfg.Channels.Discord.Enabled)
	fmt.Fprintln(out, "Discord token:", set(strings.TrimSpace(cfg.Channels.Discord.Token) != ""))
	fmt.Fprintf(out, "Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	return nil
}

// discardPusher drops pushes; schedule list only needs the registered jobs.
type discardPusher struct{}

func (discardPusher) Push(context.Context, string, string, string) error { return nil }

func runScheduleList(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetLevel(logger.WARN)

	cs := cron.NewCronService(cfg.Location())
	n := notify.NewNotifier(cs, discardPusher{}, profile.NewStore(cfg.ResolvePath(cfg.Files.Profiles)), notifyOptions(cfg))
	if err := n.EnsureBirthdayJob(); err != nil {
		return err
	}
	report, err := n.ReloadMessageJobs()
	if err != nil {
		return fmt.Errorf("read schedule: %w", err)
	}

	now := time.Now().In(cfg.Location())
	jobs := cs.ListJobs()
	fmt.Fprintf(out, "%d job(s)\n", len(jobs))
	for _, job := range jobs {
		next := "-"
		if t, err := cron.NextRun(job.Schedule, now); err == nil {
			next = t.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "  %-16s %-22s next %s  %s\n", job.ID, job.Schedule.String(), next, job.Name)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "  skipped entry %d: %s\n", s.Index, s.Reason)
	}
	return nil
}

// printPusher reports what a push would deliver instead of sending it.
type printPusher struct {
	out io.Writer
}

func (p printPusher) Push(_ context.Context, channel, userID, text string) error {
	fmt.Fprintf(p.out, "  [dry-run] %s:%s %s\n", channel, userID, text)
	return nil
}

func runScheduleCheck(ctx context.Context, out io.Writer, send bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetLevel(logger.WARN)

	var pusher notify.Pusher = printPusher{out: out}
	if send {
		manager, err := channels.NewManager(cfg, bus.NewMessageBusWithSize(cfg.Gateway.BusSize))
		if err != nil {
			return fmt.Errorf("create channel manager: %w", err)
		}
		if err := manager.StartAll(ctx); err != nil {
			return fmt.Errorf("start channels: %w", err)
		}
		defer manager.StopAll(context.Background())
		pusher = manager
	}

	n := notify.NewNotifier(cron.NewCronService(cfg.Location()), pusher, profile.NewStore(cfg.ResolvePath(cfg.Files.Profiles)), notifyOptions(cfg))
	sent := n.CheckBirthdays(ctx, time.Now())
	fmt.Fprintf(out, "%d birthday greeting(s)\n", sent)
	return nil
}

func runRanking(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closers, err := agent.OpenUsageStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	fmt.Fprintln(out, usage.NewRecorder(store, cfg.Location()).TodayRanking())
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
