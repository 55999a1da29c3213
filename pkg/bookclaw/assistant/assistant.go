// Package assistant wires the pieces of the booking bot together: the
// message transport, the dedup gate, conversation history, the
// tool-calling loop against the LLM, the keyword fallback and the
// auto-send scheduler.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/autosend"
	"github.com/jholhewres/bookclaw/pkg/bookclaw/calendar"
	"github.com/jholhewres/bookclaw/pkg/bookclaw/channels"
)

// lifecycleSource is implemented by transports that emit ready and
// disconnect notifications.
type lifecycleSource interface {
	AddLifecycleObserver(channels.LifecycleObserver)
}

// selfIdentifier is implemented by transports that know their own
// account identity, used for group mention and reply checks.
type selfIdentifier interface {
	OwnJID() string
}

// Assistant is the long-running orchestration core.
type Assistant struct {
	cfg     *Config
	channel channels.Channel
	llm     *LLMClient
	cal     calendar.Service
	history HistoryStore
	dedup   *DedupCache
	sender  *autosend.AutoSender
	logger  *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds the assistant from configuration and its collaborators.
// cal may be nil when the calendar integration is disabled; the AI then
// runs without booking tools.
func New(cfg *Config, channel channels.Channel, cal calendar.Service, logger *slog.Logger) (*Assistant, error) {
	a := &Assistant{
		cfg:     cfg,
		channel: channel,
		cal:     cal,
		dedup:   NewDedupCache(cfg.Bot.DedupWindow),
		logger:  logger.With("component", "assistant"),
	}

	if cfg.AI.Enabled {
		a.llm = NewLLMClient(cfg.AI, logger)
	}

	if cfg.Memory.Enabled {
		switch cfg.Memory.Store {
		case "", "memory":
			a.history = NewMemoryHistory(cfg.Memory.Limit)
		case "sqlite":
			store, err := NewSQLiteHistory(cfg.Memory.Path, cfg.Memory.Limit)
			if err != nil {
				return nil, fmt.Errorf("open history store: %w", err)
			}
			a.history = store
		default:
			return nil, fmt.Errorf("unknown memory store %q", cfg.Memory.Store)
		}
	}

	a.sender = autosend.New(cfg.AutoSend, func(ctx context.Context, to, message string) error {
		return channel.Send(ctx, to, &channels.OutgoingMessage{Content: message})
	}, logger)

	return a, nil
}

// Run connects the transport and processes messages until ctx is
// cancelled. It blocks; call Stop (or cancel ctx) to shut down.
func (a *Assistant) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if ls, ok := a.channel.(lifecycleSource); ok {
		ls.AddLifecycleObserver(&lifecycleHooks{assistant: a, ctx: ctx})
	}

	if err := a.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", a.channel.Name(), err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dedup.Run(ctx)
	}()

	a.logger.Info("assistant running",
		"channel", a.channel.Name(),
		"ai_enabled", a.cfg.AI.Enabled,
		"memory_enabled", a.cfg.Memory.Enabled,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-a.channel.Receive():
			if !ok {
				return nil
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.handleMessage(ctx, msg)
			}()
		}
	}
}

// Stop performs graceful shutdown: scheduler teardown first, then the
// transport, then the history store.
func (a *Assistant) Stop() {
	a.logger.Info("shutting down")

	a.sender.Stop()

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.channel.Disconnect(); err != nil {
		a.logger.Warn("disconnect failed", "error", err)
	}

	a.wg.Wait()

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("history close failed", "error", err)
		}
	}

	a.logger.Info("assistant stopped")
}

// lifecycleHooks bridges transport lifecycle events to the scheduler.
type lifecycleHooks struct {
	assistant *Assistant
	ctx       context.Context
}

func (h *lifecycleHooks) OnReady() {
	h.assistant.logger.Info("transport ready")
	h.assistant.sender.Arm(h.ctx)
}

func (h *lifecycleHooks) OnDisconnected(reason string) {
	h.assistant.logger.Warn("transport disconnected", "reason", reason)
	h.assistant.sender.CancelRecurring()
}

// handleMessage runs the full pipeline for one inbound message: dedup
// gate, ignore flags, AI loop, keyword fallback, default reply.
func (a *Assistant) handleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic while handling message",
				"message_id", msg.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if !a.dedup.MarkIfNew(msg.ID) {
		return
	}

	logger := a.logger.With("run_id", uuid.NewString()[:8])

	customer := CustomerInfo{
		Name:   msg.FromName,
		Number: numberFromJID(msg.From),
	}
	if customer.Name == "" {
		customer.Name = "Customer"
	}

	if a.cfg.Bot.LogMessages {
		logger.Info("message received",
			"from", msg.From,
			"name", customer.Name,
			"content", msg.Content,
		)
	}

	if !a.cfg.AutoReply.Enabled {
		return
	}
	if a.cfg.Bot.IgnoreOwnMessages && msg.IsFromMe {
		return
	}
	if a.cfg.Bot.IgnoreBroadcast && msg.IsBroadcast {
		return
	}

	if msg.IsGroup {
		if a.cfg.Bot.IgnoreGroups {
			return
		}
		if !a.addressedInGroup(msg) {
			return
		}
		logger.Info("addressed in group", "chat", msg.ChatID)
	}

	replyTo := msg.From
	if msg.IsGroup {
		replyTo = msg.ChatID
	}

	replied := false
	if a.cfg.AI.Enabled && a.llm != nil {
		if err := a.handleAI(ctx, logger, msg, customer, replyTo); err != nil {
			logger.Error("ai processing failed", "error", err)
			if !a.cfg.AI.FallbackToDefault {
				return
			}
		} else {
			replied = true
		}
	}

	if !replied {
		replied = a.keywordReply(ctx, logger, msg, replyTo)
	}

	if !replied && a.cfg.AutoReply.UseDefaultReply {
		a.reply(ctx, logger, replyTo, msg.ID, a.cfg.AutoReply.DefaultReply)
		logger.Info("default reply sent")
	}
}

// addressedInGroup reports whether the bot was mentioned or the sender
// quoted one of the bot's messages.
func (a *Assistant) addressedInGroup(msg *channels.IncomingMessage) bool {
	si, ok := a.channel.(selfIdentifier)
	if !ok {
		return false
	}
	own := numberFromJID(si.OwnJID())
	if own == "" {
		return false
	}

	for _, jid := range msg.MentionedJIDs {
		if numberFromJID(jid) == own {
			return true
		}
	}
	if msg.ReplyTo != "" && numberFromJID(msg.QuotedSender) == own {
		return true
	}
	return false
}

// handleAI runs the tool-calling loop for one message and sends the
// resulting reply. The transcript is committed to history whether or
// not the loop produced final text.
func (a *Assistant) handleAI(ctx context.Context, logger *slog.Logger, msg *channels.IncomingMessage, customer CustomerInfo, replyTo string) error {
	exec := NewToolExecutor(logger)
	if a.cfg.Calendar.Enabled && a.cal != nil {
		RegisterBookingTools(exec, a.cal, a.cfg, customer)
	}

	var history []Message
	if a.history != nil {
		h, err := a.history.Read(msg.From)
		if err != nil {
			logger.Warn("history read failed", "error", err)
		} else {
			history = h
		}
	}

	agent := NewAgentRun(a.llm, exec, a.cfg.AI.MaxLoops, logger)
	result, err := agent.Run(ctx, a.cfg.AI.SystemPrompt, history, msg.Content)
	if err != nil {
		return err
	}

	if result.Exhausted {
		logger.Warn("tool loop exhausted without final reply", "loops", result.Loops)
		if a.cfg.AI.ExhaustedReply != "" {
			a.reply(ctx, logger, replyTo, msg.ID, a.cfg.AI.ExhaustedReply)
		}
	} else if result.Reply != "" {
		a.reply(ctx, logger, replyTo, msg.ID, result.Reply)
	}

	if a.history != nil {
		for _, turn := range result.Transcript {
			if err := a.history.Append(msg.From, turn); err != nil {
				logger.Warn("history append failed", "error", err)
				break
			}
		}
	}
	return nil
}

// keywordReply sends the first configured keyword response contained in
// the message, if any. Keywords are checked in sorted order so the
// winner is stable when several match.
func (a *Assistant) keywordReply(ctx context.Context, logger *slog.Logger, msg *channels.IncomingMessage, replyTo string) bool {
	body := strings.ToLower(msg.Content)

	keywords := make([]string, 0, len(a.cfg.AutoReply.Keywords))
	for keyword := range a.cfg.AutoReply.Keywords {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	for _, keyword := range keywords {
		if strings.Contains(body, strings.ToLower(keyword)) {
			a.reply(ctx, logger, replyTo, msg.ID, a.cfg.AutoReply.Keywords[keyword])
			logger.Info("keyword reply sent", "keyword", keyword)
			return true
		}
	}
	return false
}

// reply sends text as a quoted reply to a message.
func (a *Assistant) reply(ctx context.Context, logger *slog.Logger, to, replyToID, content string) {
	err := a.channel.Send(ctx, to, &channels.OutgoingMessage{
		Content: content,
		ReplyTo: replyToID,
	})
	if err != nil {
		logger.Error("send failed", "to", to, "error", err)
	}
}

// numberFromJID extracts the bare phone number from a JID such as
// "94771234567@s.whatsapp.net" or "94771234567:12@s.whatsapp.net".
func numberFromJID(jid string) string {
	user, _, _ := strings.Cut(jid, "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}
