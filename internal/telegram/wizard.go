package telegram

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ObiAU/otprelay/internal/models"
)

type wizardStep int

const (
	stepMode wizardStep = iota
	stepLogin
	stepName
	stepBaseURL
	stepSMSPath
	stepCallPath
	stepLoginPath
	stepUser
	stepPassword
	stepToken
	stepDone
)

// wizard collects a PanelInput one answer at a time.
type wizard struct {
	step  wizardStep
	input models.PanelInput
}

func newWizard() *wizard {
	return &wizard{step: stepMode}
}

func (w *wizard) done() bool {
	return w.step == stepDone
}

// prompt returns the question for the current step and, for fixed answers,
// the choices to offer as buttons.
func (w *wizard) prompt() (string, []string) {
	switch w.step {
	case stepMode:
		return "Which messages should this panel relay?", []string{"sms", "call", "both"}
	case stepLogin:
		return "How does the panel authenticate?", []string{"username", "email", "token"}
	case stepName:
		return "Send a display name for the panel.", nil
	case stepBaseURL:
		return "Send the base URL, e.g. <code>https://panel.example.com</code>.", nil
	case stepSMSPath:
		return "Send the SMS endpoint path, e.g. <code>/crapi/had/viewstats</code>.", nil
	case stepCallPath:
		return "Send the call endpoint path, e.g. <code>/crapi/had/callstats</code>.", nil
	case stepLoginPath:
		return "Send the login form path, e.g. <code>/login</code>.", nil
	case stepUser:
		if w.input.LoginStrategy == models.LoginEmail {
			return "Send the login email.", nil
		}
		return "Send the login username.", nil
	case stepPassword:
		return "Send the password.", nil
	case stepToken:
		return "Send the API token.", nil
	}
	return "", nil
}

// advance records value for the current step and moves on. On error the step
// is unchanged.
func (w *wizard) advance(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("answer must not be empty")
	}

	switch w.step {
	case stepMode:
		mode, err := models.ParseMode(value)
		if err != nil {
			return err
		}
		w.input.Mode = mode
		w.step = stepLogin
	case stepLogin:
		strategy, err := models.ParseLoginStrategy(value)
		if err != nil {
			return err
		}
		w.input.LoginStrategy = strategy
		w.step = stepName
	case stepName:
		w.input.Name = value
		w.step = stepBaseURL
	case stepBaseURL:
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("base url must be an http:// or https:// address")
		}
		w.input.BaseURL = strings.TrimRight(value, "/")
		w.step = w.endpointStep()
	case stepSMSPath:
		w.input.SMSPath = value
		w.step = w.endpointStep()
	case stepCallPath:
		w.input.CallPath = value
		w.step = w.endpointStep()
	case stepLoginPath:
		w.input.LoginPath = value
		w.step = stepUser
	case stepUser:
		if w.input.LoginStrategy == models.LoginEmail {
			w.input.Credentials.Email = value
		} else {
			w.input.Credentials.Username = value
		}
		w.step = stepPassword
	case stepPassword:
		w.input.Credentials.Password = value
		w.step = stepDone
	case stepToken:
		w.input.Credentials.Token = value
		w.step = stepDone
	}
	return nil
}

// endpointStep asks for the endpoints the mode needs, then for credentials.
func (w *wizard) endpointStep() wizardStep {
	if w.input.Mode != models.ModeCall && w.input.SMSPath == "" {
		return stepSMSPath
	}
	if w.input.Mode != models.ModeSMS && w.input.CallPath == "" {
		return stepCallPath
	}
	if w.input.LoginStrategy == models.LoginToken {
		return stepToken
	}
	return stepLoginPath
}

func (b *Bot) startWizard(chatID int64) {
	w := newWizard()
	b.mu.Lock()
	b.wizards[chatID] = w
	b.mu.Unlock()

	b.promptWizard(chatID, w)
}

func (b *Bot) cancelWizard(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.wizards[chatID]; !ok {
		return false
	}
	delete(b.wizards, chatID)
	return true
}

func (b *Bot) hasWizard(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.wizards[chatID]
	return ok
}

func (b *Bot) continueWizard(ctx context.Context, chatID int64, value string) {
	b.mu.Lock()
	w, ok := b.wizards[chatID]
	b.mu.Unlock()
	if !ok {
		b.sendMessage(chatID, "No panel setup in progress. Start one with /addpanel.")
		return
	}

	if err := w.advance(value); err != nil {
		b.sendMessage(chatID, "⚠️ "+escape(err.Error()))
		b.promptWizard(chatID, w)
		return
	}

	if !w.done() {
		b.promptWizard(chatID, w)
		return
	}

	b.cancelWizard(chatID)

	panel, err := b.panels.Create(ctx, w.input)
	if err != nil {
		zap.L().Warn("failed to add panel", zap.String("name", w.input.Name), zap.Error(err))
		b.sendMessage(chatID, "❌ Could not add panel: "+escape(err.Error()))
		return
	}

	zap.L().Info("panel added", zap.String("panel_id", panel.ID), zap.String("name", panel.Name))
	b.sendMessage(chatID, fmt.Sprintf("✅ Panel <b>%s</b> added as <code>%s</code>. It is polled from the next cycle.",
		escape(panel.Name), panel.ID))
}

func (b *Bot) promptWizard(chatID int64, w *wizard) {
	text, choices := w.prompt()
	if len(choices) == 0 {
		b.sendMessage(chatID, text+"\n\n/cancel to abort.")
		return
	}

	row := make([]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c, "wiz:"+c))
	}
	b.send(chatID, text, tgbotapi.NewInlineKeyboardMarkup(row))
}
