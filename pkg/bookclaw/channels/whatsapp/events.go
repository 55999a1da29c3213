// Package whatsapp – events.go processes incoming whatsmeow events and
// converts message events into the unified channels.IncomingMessage type.
package whatsapp

import (
	"github.com/jholhewres/bookclaw/pkg/bookclaw/channels"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.handleConnected(evt)

	case *events.Disconnected:
		w.handleDisconnected(evt)

	case *events.LoggedOut:
		w.handleLoggedOut(evt)

	case *events.StreamReplaced:
		w.logger.Error("whatsapp: stream replaced - another device connected")
		w.connected.Store(false)
		w.notifyDisconnected("stream_replaced")

	case *events.PairSuccess:
		w.logger.Info("whatsapp: device paired",
			"jid", evt.ID, "platform", evt.Platform)

	case *events.QRScannedWithoutMultidevice:
		w.logger.Warn("whatsapp: QR scanned but multidevice not enabled")
	}
}

// handleConnected handles successful connection.
func (w *WhatsApp) handleConnected(_ *events.Connected) {
	w.connected.Store(true)
	w.logger.Info("whatsapp: connected", "jid", w.ownJID())
	w.notifyReady()
}

// handleDisconnected handles disconnection.
func (w *WhatsApp) handleDisconnected(_ *events.Disconnected) {
	wasConnected := w.connected.Load()
	w.connected.Store(false)
	w.logger.Warn("whatsapp: disconnected", "was_connected", wasConnected)
	w.notifyDisconnected("connection_lost")
}

// handleLoggedOut handles session invalidation.
func (w *WhatsApp) handleLoggedOut(evt *events.LoggedOut) {
	w.connected.Store(false)

	reason := "unknown"
	if evt.Reason != 0 {
		reason = evt.Reason.String()
	}

	w.logger.Error("whatsapp: logged out", "reason", reason)
	w.notifyDisconnected("logged_out")
}

// handleMessageEvt converts an incoming WhatsApp message event into an
// IncomingMessage and emits it. All filtering (own messages, broadcasts,
// groups) happens in the assistant; the transport only annotates.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	msg := &channels.IncomingMessage{
		ID:          string(evt.Info.ID),
		From:        evt.Info.Sender.String(),
		FromName:    evt.Info.PushName,
		ChatID:      evt.Info.Chat.String(),
		IsGroup:     evt.Info.IsGroup,
		IsFromMe:    evt.Info.IsFromMe,
		IsBroadcast: evt.Info.Chat.Server == "broadcast",
		Timestamp:   evt.Info.Timestamp,
	}

	extractTextContent(evt.Message, msg)
	extractContext(evt.Message, msg)

	if msg.Content == "" {
		// Media-only and system messages carry nothing the booking
		// assistant can respond to.
		return
	}

	w.emitMessage(msg)
}

// extractTextContent extracts the text content from a WhatsApp message.
func extractTextContent(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		return
	}

	if waMsg.Conversation != nil {
		msg.Content = waMsg.GetConversation()
		return
	}

	if ext := waMsg.ExtendedTextMessage; ext != nil {
		msg.Content = ext.GetText()
		return
	}

	// Captions still count as text input.
	if img := waMsg.ImageMessage; img != nil {
		msg.Content = img.GetCaption()
		return
	}
	if vid := waMsg.VideoMessage; vid != nil {
		msg.Content = vid.GetCaption()
	}
}

// extractContext extracts quoted-message and mention data.
func extractContext(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		return
	}

	var ctxInfo *waE2E.ContextInfo

	switch {
	case waMsg.ExtendedTextMessage != nil:
		ctxInfo = waMsg.ExtendedTextMessage.GetContextInfo()
	case waMsg.ImageMessage != nil:
		ctxInfo = waMsg.ImageMessage.GetContextInfo()
	case waMsg.VideoMessage != nil:
		ctxInfo = waMsg.VideoMessage.GetContextInfo()
	}

	if ctxInfo == nil {
		return
	}

	if ctxInfo.StanzaID != nil {
		msg.ReplyTo = ctxInfo.GetStanzaID()
	}
	if ctxInfo.Participant != nil {
		msg.QuotedSender = ctxInfo.GetParticipant()
	}
	msg.MentionedJIDs = ctxInfo.GetMentionedJID()
}
