package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command, args string) {
	args = strings.TrimSpace(args)

	switch command {
	case "help":
		b.sendMessage(chatID, helpText)
	case "status":
		b.handleStatus(ctx, chatID)
	case "panels":
		panels, err := b.panels.List(ctx)
		if err != nil {
			b.sendMessage(chatID, "❌ "+escape(err.Error()))
			return
		}
		b.sendMessage(chatID, FormatPanels(panels))
	case "addpanel":
		b.startWizard(chatID)
	case "cancel":
		if b.cancelWizard(chatID) {
			b.sendMessage(chatID, "Panel setup cancelled.")
		} else {
			b.sendMessage(chatID, "Nothing to cancel.")
		}
	case "enable", "disable":
		b.handleToggle(ctx, chatID, args, command == "enable")
	case "removepanel":
		b.handleRemovePanel(ctx, chatID, args)
	case "relogin":
		b.handleRelogin(chatID, args)
	case "chats":
		b.handleChats(ctx, chatID)
	case "addchat", "removechat":
		b.handleChatChange(ctx, chatID, args, command == "addchat")
	default:
		b.sendMessage(chatID, "Unknown command. /help lists what I understand.")
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	b.mu.Lock()
	provider := b.status
	b.mu.Unlock()

	panels, err := b.panels.List(ctx)
	if err != nil {
		b.sendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	chats, err := b.chats.List(ctx)
	if err != nil {
		b.sendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}

	if provider == nil {
		b.sendMessage(chatID, "Relay is not running yet.")
		return
	}
	b.sendMessage(chatID, FormatStatus(provider.Status(), panels, len(chats)))
}

func (b *Bot) handleToggle(ctx context.Context, chatID int64, id string, enabled bool) {
	if id == "" {
		b.sendMessage(chatID, "Usage: /enable &lt;panel id&gt; or /disable &lt;panel id&gt;")
		return
	}

	if err := b.panels.SetEnabled(ctx, id, enabled); err != nil {
		b.sendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	zap.L().Info("panel toggled", zap.String("panel_id", id), zap.Bool("enabled", enabled))
	b.sendMessage(chatID, fmt.Sprintf("Panel <code>%s</code> %s.", escape(id), verb))
}

func (b *Bot) handleRemovePanel(ctx context.Context, chatID int64, id string) {
	if id == "" {
		b.sendMessage(chatID, "Usage: /removepanel &lt;panel id&gt;")
		return
	}

	if err := b.panels.Remove(ctx, id); err != nil {
		b.sendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	if b.sessions != nil {
		b.sessions.Invalidate(id)
	}

	zap.L().Info("panel removed", zap.String("panel_id", id))
	b.sendMessage(chatID, fmt.Sprintf("Panel <code>%s</code> removed.", escape(id)))
}

func (b *Bot) handleRelogin(chatID int64, id string) {
	if id == "" {
		b.sendMessage(chatID, "Usage: /relogin &lt;panel id&gt; or /relogin all")
		return
	}
	if b.sessions != nil && strings.EqualFold(id, "all") {
		n := b.sessions.InvalidateAll()
		zap.L().Info("all panel sessions dropped", zap.Int("sessions", n))
		b.sendMessage(chatID, fmt.Sprintf("Dropped %d cached sessions; the next cycle logs in again.", n))
		return
	}
	if b.sessions == nil || !b.sessions.Invalidate(id) {
		b.sendMessage(chatID, fmt.Sprintf("No cached session for <code>%s</code>.", escape(id)))
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Session of <code>%s</code> dropped; the next cycle logs in again.", escape(id)))
}

func (b *Bot) handleChats(ctx context.Context, chatID int64) {
	chats, err := b.chats.List(ctx)
	if err != nil {
		b.sendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	if len(chats) == 0 {
		b.sendMessage(chatID, "No destination chats. Use /addchat &lt;chat id&gt;.")
		return
	}

	var sb strings.Builder
	sb.WriteString("💬 <b>Destination chats</b>\n")
	for _, id := range chats {
		fmt.Fprintf(&sb, "\n<code>%d</code>", id)
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleChatChange(ctx context.Context, chatID int64, arg string, add bool) {
	target, err := cast.ToInt64E(arg)
	if arg == "" || err != nil || target == 0 {
		b.sendMessage(chatID, "Usage: /addchat &lt;chat id&gt; or /removechat &lt;chat id&gt;")
		return
	}

	if add {
		err = b.chats.Add(ctx, target)
	} else {
		err = b.chats.Remove(ctx, target)
	}
	if err != nil {
		b.sendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}

	verb := "removed"
	if add {
		verb = "added"
	}
	zap.L().Info("destination chat changed", zap.Int64("chat_id", target), zap.Bool("added", add))
	b.sendMessage(chatID, fmt.Sprintf("Chat <code>%d</code> %s.", target, verb))
}
