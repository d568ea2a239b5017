package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kraken-autotrade/config"
	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the subset of internal/database.Repository the orchestrator
// needs: registered chats, the /config key-value store, and the recent-event
// feed backing /ultimas and /logs.
type Repository interface {
	EnabledChats(ctx context.Context) ([]*database.TelegramChat, error)
	RegisterChat(ctx context.Context, chatID int64, label string) error
	DisableChat(ctx context.Context, chatID int64) error
	SetConfigValue(ctx context.Context, key, value string) error
	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	RecentEvents(ctx context.Context, limit int) ([]*database.BotEvent, error)
}

// Locker is the single-poller advisory lock (internal/lock) guarding the
// Telegram getUpdates long-poll: exactly one running instance may hold the
// poller role at a time, so two deployments sharing a bot token never race
// for updates.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// StatusProvider answers the read-only Telegram commands (/estado,
// /balance, /cartera, /posiciones, /ganancias, /exposicion) and
// accepts the two control commands (/pausar, /reanudar). The trading engine
// implements this; notify depends only on the interface to avoid an import
// cycle.
type StatusProvider interface {
	Status(ctx context.Context) StatusSnapshot
	Pause()
	Resume()
	Paused() bool
}

// StatusSnapshot is the engine's point-in-time state, rendered by the
// corresponding slash commands.
type StatusSnapshot struct {
	Uptime           time.Duration
	BalancesEur      map[string]float64
	OpenLots         []OpenLotView
	RealizedPnLEur   float64
	RealizedPnLPct   float64
	ExposurePct      float64
	KillSwitchActive bool
	DryRun           bool
}

// OpenLotView is one open position as rendered by /cartera and /posiciones.
type OpenLotView struct {
	Pair            string
	Exchange        string
	LotID           string
	Quantity        float64
	EntryPrice      float64
	CurrentPrice    float64
	UnrealizedPct   float64
	ExitState       string
	StopPrice       float64
}

// Orchestrator renders and delivers notifications, and serves the bot's
// slash-command surface over a Telegram long-poll. It holds no
// package-level state: one Orchestrator is constructed in main.go and
// injected into the engine and scheduler, per SPEC_FULL.md §10's "explicit
// long-lived collaborator structs... no package-level singletons".
type Orchestrator struct {
	cfg      config.NotificationConfig
	bot      *tgbotapi.BotAPI
	repo     Repository
	locker   Locker
	status   StatusProvider
	log      *logging.Logger
	throttle *throttle

	mu        sync.RWMutex
	isPoller  bool
	startedAt time.Time
}

// New constructs an Orchestrator. status may be nil until the engine is
// constructed; SetStatusProvider wires it once main.go has built the engine.
func New(cfg config.NotificationConfig, repo Repository, locker Locker, log *logging.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		repo:      repo,
		locker:    locker,
		log:       log.WithComponent("notify"),
		throttle:  newThrottle(),
		startedAt: time.Now(),
	}

	if !cfg.Enabled || !cfg.Telegram.Enabled {
		return o, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to init telegram bot: %w", err)
	}
	o.bot = bot
	return o, nil
}

// IsPoller reports whether this instance currently holds the Telegram
// getUpdates poller lock, surfaced on /diagnostics.
func (o *Orchestrator) IsPoller() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.isPoller
}

// SetStatusProvider wires the engine's status surface after construction.
func (o *Orchestrator) SetStatusProvider(sp StatusProvider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = sp
}

func (o *Orchestrator) enabled() bool {
	return o.bot != nil && o.cfg.Enabled && o.cfg.Telegram.Enabled
}

// Publish renders ctx and fans it out to every enabled chat, subject to the
// kind's dedupe/throttle window. A disabled or unreachable Telegram
// integration degrades to a log line rather than blocking the caller. It is
// called synchronously by the engine's tick loop (through engine.Deps.Publish)
// and by the scheduled jobs.
func (o *Orchestrator) Publish(ctx context.Context, msg Context) {
	if !o.throttle.allow(msg, time.Now()) {
		return
	}

	text := msg.Render()

	if !o.enabled() {
		o.log.Debug("notification suppressed (telegram disabled)", "kind", msg.Kind(), "text", text)
		return
	}

	chats, err := o.repo.EnabledChats(ctx)
	if err != nil {
		o.log.Error("failed to load enabled chats", "error", err.Error())
		return
	}

	for _, chat := range chats {
		out := tgbotapi.NewMessage(chat.ChatID, text)
		out.ParseMode = tgbotapi.ModeHTML
		if _, err := o.bot.Send(out); err != nil {
			o.log.Warn("telegram send failed", "chat_id", chat.ChatID, "kind", msg.Kind(), "error", err.Error())
		}
	}
}

// Run holds the single-poller lock and, while held, processes Telegram
// updates (slash commands) until ctx is cancelled. Safe to run from every
// instance in a multi-instance deployment: only the lock holder actually
// polls; the rest retry acquisition on a backoff.
func (o *Orchestrator) Run(ctx context.Context) {
	if !o.enabled() {
		return
	}

	if err := o.registerCommands(); err != nil {
		o.log.Warn("failed to register telegram commands", "error", err.Error())
	}

	backoff := 2 * time.Second
	const maxBackoff = 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		acquired, err := o.locker.Acquire(ctx)
		if err != nil {
			o.log.Warn("poller lock acquire failed", "error", err.Error())
		}
		if !acquired {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = 2 * time.Second
		o.mu.Lock()
		o.isPoller = true
		o.mu.Unlock()

		o.pollUntilLost(ctx)

		o.mu.Lock()
		o.isPoller = false
		o.mu.Unlock()
	}
}

func (o *Orchestrator) pollUntilLost(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := o.bot.GetUpdatesChan(u)
	defer o.bot.StopReceivingUpdates()

	renew := time.NewTicker(20 * time.Second)
	defer renew.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = o.locker.Release(context.Background())
			return
		case <-renew.C:
			if err := o.locker.Renew(ctx); err != nil {
				o.log.Warn("poller lock lost, relinquishing", "error", err.Error())
				return
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			o.handleUpdate(ctx, update)
		}
	}
}

func (o *Orchestrator) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	chatID := update.Message.Chat.ID
	cmd := update.Message.Command()
	args := update.Message.CommandArguments()

	reply := o.dispatchCommand(ctx, chatID, cmd, args)
	if reply == "" {
		return
	}

	out := tgbotapi.NewMessage(chatID, reply)
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := o.bot.Send(out); err != nil {
		o.log.Warn("telegram command reply failed", "chat_id", chatID, "command", cmd, "error", err.Error())
	}
}

func (o *Orchestrator) isAdmin(chatID int64) bool {
	return o.cfg.Telegram.AdminChatID == 0 || chatID == o.cfg.Telegram.AdminChatID
}

// registerCommands pushes the full command catalog to Telegram so clients
// show them in the slash-command autocomplete menu.
func (o *Orchestrator) registerCommands() error {
	cmds := make([]tgbotapi.BotCommand, 0, len(commandCatalog))
	for _, c := range commandCatalog {
		cmds = append(cmds, tgbotapi.BotCommand{Command: c.Name, Description: c.Desc})
	}
	_, err := o.bot.Request(tgbotapi.NewSetMyCommands(cmds...))
	return err
}
