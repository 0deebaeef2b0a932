// Package servecmd implements `pimbot serve`: the Slack Events API bridge
// daemon that answers product-catalog questions through the model.
package servecmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iwapim/pimbot/agent"
	"github.com/iwapim/pimbot/catalog"
	"github.com/iwapim/pimbot/internal/configutil"
	"github.com/iwapim/pimbot/internal/dispatch"
	"github.com/iwapim/pimbot/internal/idempotency"
	"github.com/iwapim/pimbot/internal/promptfile"
	"github.com/iwapim/pimbot/internal/respcache"
	"github.com/iwapim/pimbot/internal/slackbridge"
	"github.com/iwapim/pimbot/llm/openaillm"
	"github.com/iwapim/pimbot/tools"
	"github.com/iwapim/pimbot/tools/pimtools"
)

const (
	defaultListen      = ":8080"
	defaultModel       = "gpt-4o"
	defaultCatalogPath = "pimbot.db"
	defaultTaskTimeout = 2 * time.Minute
)

// NewCommand builds the serve command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack catalog assistant",
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.String("listen", defaultListen, "HTTP listen address for the Events API webhook")
	flags.String("slack-webhook-url", "", "Slack incoming-webhook URL for posting answers")
	flags.String("slack-bot-token", "", "Slack bot token (xoxb-...), used for auth.test identity discovery")
	flags.String("slack-app-token", "", "Slack app token (xapp-...), required for socket mode")
	flags.String("slack-bot-user-id", "", "bot user id stripped from mention texts; discovered via auth.test when empty")
	flags.Bool("slack-socket-mode", false, "consume events over Socket Mode in addition to the webhook")
	flags.String("openai-api-key", "", "OpenAI API key")
	flags.String("openai-base-url", "", "OpenAI-compatible endpoint override")
	flags.String("model", defaultModel, "chat model")
	flags.String("catalog-db", defaultCatalogPath, "path to the product catalog SQLite database")
	flags.String("prompt-file", "", "optional YAML prompt override file")
	flags.Int("workers", 0, "mention worker count")
	flags.Int("queue-size", 0, "pending mention queue size")
	flags.Duration("dedup-window", 0, "event id dedup window")
	flags.Int("cache-capacity", 0, "response cache capacity")
	flags.Duration("cache-ttl", 0, "response cache TTL, zero keeps answers until evicted")
	flags.Duration("task-timeout", defaultTaskTimeout, "per-mention orchestration timeout")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := loggerFromViper()
	slog.SetDefault(logger)

	webhookURL := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-webhook-url", "slack.webhook_url"))
	if webhookURL == "" {
		return fmt.Errorf("missing slack.webhook_url (set via --slack-webhook-url or PIMBOT_SLACK_WEBHOOK_URL)")
	}
	apiKey := strings.TrimSpace(configutil.FlagOrViperString(cmd, "openai-api-key", "openai.api_key"))
	if apiKey == "" {
		return fmt.Errorf("missing openai.api_key (set via --openai-api-key or PIMBOT_OPENAI_API_KEY)")
	}
	model := strings.TrimSpace(configutil.FlagOrViperString(cmd, "model", "openai.model"))
	if model == "" {
		model = defaultModel
	}

	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
	appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
	socketMode := configutil.FlagOrViperBool(cmd, "slack-socket-mode", "slack.socket_mode")
	if socketMode && appToken == "" {
		return fmt.Errorf("missing slack.app_token (socket mode needs an xapp- token)")
	}

	botUserID := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-user-id", "slack.bot_user_id"))
	api := slackbridge.NewAPI(slackbridge.APIOptions{BotToken: botToken, AppToken: appToken})
	if botUserID == "" {
		if botToken == "" {
			return fmt.Errorf("missing slack.bot_user_id (set it directly or provide slack.bot_token for auth.test)")
		}
		identity, err := api.AuthTest(cmd.Context())
		if err != nil {
			return fmt.Errorf("slack auth.test: %w", err)
		}
		botUserID = identity.UserID
		if botUserID == "" {
			return fmt.Errorf("slack auth.test returned empty user_id")
		}
		logger.Info("slack_identity_discovered", "bot_user_id", botUserID, "team_id", identity.TeamID)
	}

	store, err := catalog.Open(catalog.Options{
		Path: strings.TrimSpace(configutil.FlagOrViperString(cmd, "catalog-db", "catalog.db_path")),
	})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = store.Close() }()

	registry := tools.NewRegistry(logger)
	if err := pimtools.Register(registry, store, logger); err != nil {
		return err
	}

	prompt, err := promptfile.Load(configutil.FlagOrViperString(cmd, "prompt-file", "prompt.file"))
	if err != nil {
		return err
	}
	systemPrompt := prompt.Apply(pimtools.SystemPrompt)

	client, err := openaillm.New(openaillm.Options{
		APIKey:         apiKey,
		BaseURL:        strings.TrimSpace(configutil.FlagOrViperString(cmd, "openai-base-url", "openai.base_url")),
		Model:          model,
		MaxRetries:     viper.GetInt("openai.max_retries"),
		RequestTimeout: viper.GetDuration("openai.request_timeout"),
	})
	if err != nil {
		return err
	}

	cache := respcache.New(respcache.Options{
		Capacity: configutil.FlagOrViperInt(cmd, "cache-capacity", "cache.capacity"),
		TTL:      configutil.FlagOrViperDuration(cmd, "cache-ttl", "cache.ttl"),
	})
	engine := agent.New(client, registry, cache, agent.Config{
		Model:        model,
		SystemPrompt: systemPrompt,
	}, agent.WithLogger(logger))

	notifier, err := slackbridge.NewNotifier(slackbridge.NotifierOptions{
		WebhookURL: webhookURL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskTimeout := configutil.FlagOrViperDuration(cmd, "task-timeout", "slack.task_timeout")
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	pool := dispatch.Start(ctx, dispatch.Options{
		Workers:   configutil.FlagOrViperInt(cmd, "workers", "dispatch.workers"),
		QueueSize: configutil.FlagOrViperInt(cmd, "queue-size", "dispatch.queue_size"),
		Logger:    logger,
	})
	defer pool.Close()

	dispatcher, err := slackbridge.NewMentionDispatcher(slackbridge.MentionDispatcherOptions{
		Window: idempotency.NewWindow(idempotency.WindowOptions{
			Window: configutil.FlagOrViperDuration(cmd, "dedup-window", "slack.dedup_window"),
		}),
		Pool:   pool,
		Logger: logger,
		Handle: func(ctx context.Context, ev slackbridge.MentionEvent) {
			runCtx, cancel := context.WithTimeout(ctx, taskTimeout)
			defer cancel()
			answer, err := engine.Run(runCtx, ev.Text)
			if err != nil {
				logger.Warn("mention_run_error", "event_id", ev.EventID, "error", err.Error())
				return
			}
			if err := notifier.Post(runCtx, answer, ev.ThreadTS); err != nil {
				logger.Error("mention_post_error", "event_id", ev.EventID, "error", err.Error())
				return
			}
			logger.Info("mention_answered", "event_id", ev.EventID, "thread_ts", ev.ThreadTS, "chars", len(answer))
		},
	})
	if err != nil {
		return err
	}

	receiver, err := slackbridge.NewReceiver(slackbridge.ReceiverOptions{
		BotUserID:  botUserID,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/slack/events", receiver)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
	})

	listen := strings.TrimSpace(configutil.FlagOrViperString(cmd, "listen", "listen"))
	if listen == "" {
		listen = defaultListen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	logger.Info("pimbot_start", "addr", listen, "model", model, "socket_mode", socketMode, "bot_user_id", botUserID)

	if socketMode {
		listener, err := slackbridge.NewSocketListener(slackbridge.SocketListenerOptions{
			API:        api,
			BotUserID:  botUserID,
			Dispatcher: dispatcher,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		go func() { _ = listener.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("pimbot_stop")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggerFromViper() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.level"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(viper.GetString("log.format")), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
