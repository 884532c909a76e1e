package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ObiAU/otprelay/internal/models"
	"github.com/ObiAU/otprelay/internal/parser"
)

// Telegram rejects messages above 4096 characters; the raw text is the only
// unbounded part of a notification.
const maxRawText = 3000

func escape(s string) string {
	return html.EscapeString(s)
}

func FormatOTPMessage(ev models.OTPEvent) string {
	number := "Unknown"
	if ev.Phone != "" {
		number = parser.MaskNumber(ev.Phone)
	}

	received := ev.Timestamp
	if received == "" {
		received = "-"
	}

	raw := strings.TrimSpace(ev.RawText)
	if len([]rune(raw)) > maxRawText {
		raw = string([]rune(raw)[:maxRawText]) + "…"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>New %s %s OTP Received!</b>\n\n", ev.CountryFlag, escape(ev.Country), escape(ev.Service))
	fmt.Fprintf(&sb, "%s <b>Service:</b> %s\n", ev.ServiceEmoji, escape(ev.Service))
	fmt.Fprintf(&sb, "📞 <b>Number:</b> <code>%s</code>\n", escape(number))
	fmt.Fprintf(&sb, "🔑 <b>OTP:</b> <code>%s</code>\n", escape(ev.OTP))
	fmt.Fprintf(&sb, "🕒 <b>Time:</b> %s\n", escape(received))
	if ev.PanelName != "" {
		fmt.Fprintf(&sb, "🛰 <b>Panel:</b> %s\n", escape(ev.PanelName))
	}
	fmt.Fprintf(&sb, "\n💬 <b>Message:</b>\n<blockquote>%s</blockquote>", escape(raw))
	return sb.String()
}

func FormatStatus(st models.RelayStatus, panels []models.Panel, chats int) string {
	enabled := 0
	for _, p := range panels {
		if p.Enabled {
			enabled++
		}
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Relay status</b>\n\n")
	fmt.Fprintf(&sb, "State: <code>%s</code>\n", escape(st.State))
	fmt.Fprintf(&sb, "Panels: %d enabled / %d total\n", enabled, len(panels))
	fmt.Fprintf(&sb, "Destination chats: %d\n", chats)
	fmt.Fprintf(&sb, "Cycles: %d\n", st.Cycles)
	fmt.Fprintf(&sb, "Delivered: %d (known %d)\n", st.Delivered, st.KnownMessages)
	fmt.Fprintf(&sb, "Fetch errors: %d\n", st.FetchErrors)
	fmt.Fprintf(&sb, "Notify errors: %d\n", st.NotifyErrors)
	if !st.LastCycleEnd.IsZero() {
		fmt.Fprintf(&sb, "Last cycle: %s", st.LastCycleEnd.Format(time.RFC3339))
	}
	return sb.String()
}

func FormatPanels(panels []models.Panel) string {
	if len(panels) == 0 {
		return "No panels configured. Use /addpanel to add one."
	}

	var sb strings.Builder
	sb.WriteString("🛰 <b>Panels</b>\n")
	for _, p := range panels {
		state := "🟢"
		if !p.Enabled {
			state = "🔴"
		}
		fmt.Fprintf(&sb, "\n%s <b>%s</b>\n<code>%s</code> · %s · %s\n%s\n",
			state, escape(p.Name), p.ID, p.Mode, p.LoginStrategy, escape(p.BaseURL))
	}
	return sb.String()
}

const helpText = `<b>Admin commands</b>

/status – relay statistics
/panels – list panels
/addpanel – add a panel step by step
/cancel – abort /addpanel
/enable &lt;id&gt; – resume polling a panel
/disable &lt;id&gt; – stop polling a panel
/removepanel &lt;id&gt; – delete a panel
/relogin &lt;id&gt; – drop the cached session of a panel
/relogin all – drop every cached session
/chats – list destination chats
/addchat &lt;chat id&gt; – add a destination chat
/removechat &lt;chat id&gt; – remove a destination chat`
