// Package whatsapp implements the WhatsApp transport for BookClaw using
// whatsmeow — a native Go WhatsApp Web API library.
//
// Features:
//   - QR code login with persistent session (SQLite)
//   - Send/receive text messages, reply quoting
//   - Group message support with mention extraction
//   - Connection lifecycle events consumed by the assistant
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/channels"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for session store.
)

// Config holds WhatsApp transport configuration.
type Config struct {
	// SessionDir is the directory for session persistence (SQLite).
	SessionDir string `yaml:"session_dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionDir: "./sessions/whatsapp",
	}
}

// WhatsApp implements the channels.Channel interface over whatsmeow.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	// messages is the channel for incoming messages.
	messages chan *channels.IncomingMessage

	// connected tracks connection state.
	connected atomic.Bool

	// observers receives lifecycle notifications (ready, disconnected).
	observers   []channels.LifecycleObserver
	observersMu sync.Mutex

	// ctx and cancel for lifecycle management.
	ctx    context.Context
	cancel context.CancelFunc

	// messagesClosed tracks if the messages channel has been closed.
	// This prevents sending to a closed channel which would cause a panic.
	messagesClosed atomic.Bool
}

// New creates a new WhatsApp transport instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = DefaultConfig().SessionDir
	}

	return &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// AddLifecycleObserver registers an observer for ready/disconnect events.
func (w *WhatsApp) AddLifecycleObserver(obs channels.LifecycleObserver) {
	w.observersMu.Lock()
	defer w.observersMu.Unlock()
	w.observers = append(w.observers, obs)
}

// notifyReady notifies all observers that the transport is connected.
func (w *WhatsApp) notifyReady() {
	w.observersMu.Lock()
	observers := make([]channels.LifecycleObserver, len(w.observers))
	copy(observers, w.observers)
	w.observersMu.Unlock()

	for _, obs := range observers {
		obs.OnReady()
	}
}

// notifyDisconnected notifies all observers that the connection dropped.
func (w *WhatsApp) notifyDisconnected(reason string) {
	w.observersMu.Lock()
	observers := make([]channels.LifecycleObserver, len(w.observers))
	copy(observers, w.observers)
	w.observersMu.Unlock()

	for _, obs := range observers {
		obs.OnDisconnected(reason)
	}
}

// Connect establishes the WhatsApp Web connection via whatsmeow.
// If no existing session is found, the QR login flow runs and the code
// is logged for pairing with the phone.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Info("whatsapp: initializing connection...")

	if err := os.MkdirAll(w.cfg.SessionDir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	dbPath := filepath.Join(w.cfg.SessionDir, "whatsapp.db")
	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("BookClaw", [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		// First login — run the QR flow in the background so startup
		// is not blocked while waiting for the scan.
		w.logger.Info("whatsapp: no existing session, QR code required")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("whatsapp: QR login pending", "error", err)
			}
		}()
		return nil
	}

	// Existing session — reconnect.
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	w.connected.Store(true)
	w.logger.Info("whatsapp: connected (existing session)", "jid", w.ownJID())
	return nil
}

// Disconnect gracefully closes the WhatsApp connection.
func (w *WhatsApp) Disconnect() error {
	w.connected.Store(false)

	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}

	// Mark channel as closed before actually closing to prevent a race
	// with emitMessage trying to send to a closed channel.
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}

	w.logger.Info("whatsapp: disconnected")
	return nil
}

// Send sends a text message to the specified JID.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	waMsg := buildTextMessage(msg.Content, msg.ReplyTo)

	if _, err := w.client.SendMessage(ctx, jid, waMsg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	return nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if WhatsApp is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// OwnJID returns the bot's own JID string, or "" before login.
func (w *WhatsApp) OwnJID() string {
	return w.ownJID()
}

// ---------- Internal ----------

func (w *WhatsApp) ownJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

// getDevice retrieves an existing device or creates a new one.
func (w *WhatsApp) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR handles the QR code login flow. The raw code is logged so
// it can be rendered and scanned from the phone.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	w.logger.Info("whatsapp: waiting for QR code scan")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}

			switch evt.Event {
			case "code":
				w.logger.Info("whatsapp: scan this QR code with your WhatsApp",
					"code", evt.Code)

			case "success":
				w.connected.Store(true)
				w.logger.Info("whatsapp: login successful")
				return nil

			case "timeout":
				w.logger.Warn("whatsapp: QR code expired")
				return fmt.Errorf("QR code timeout")

			default:
				if evt.Error != nil {
					w.logger.Error("whatsapp: QR login error", "error", evt.Error)
					return fmt.Errorf("QR login error: %v", evt.Error)
				}
			}
		}
	}
}

// emitMessage sends a message to the incoming messages channel.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}

	select {
	case w.messages <- msg:
	case <-w.ctx.Done():
	default:
		w.logger.Warn("whatsapp: message channel full, dropping message",
			"from", msg.From)
	}
}

// ---------- Helpers ----------

// buildTextMessage builds a WhatsApp text message, quoting the replied
// message when replyTo is set.
func buildTextMessage(content, replyTo string) *waE2E.Message {
	if replyTo == "" {
		return &waE2E.Message{Conversation: proto.String(content)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(content),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID: proto.String(replyTo),
			},
		},
	}
}

// parseJID converts a string JID to types.JID.
// Accepts formats: "5511999999999" or "5511999999999@s.whatsapp.net"
// or group IDs like "123456789-1234@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	// Already a full JID with server.
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	// Bare phone number — strip non-digits and add @s.whatsapp.net.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}

