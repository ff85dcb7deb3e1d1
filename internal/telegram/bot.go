package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"narong-license-tool/internal/license"
	"narong-license-tool/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UI-level issuing policy. The core accepts any positive activation count
// and any machine id; the front end is where the product limits live.
const (
	maxActivationsUI = 10
	machineIDLen     = 16
)

type Bot struct {
	api         *tgbotapi.BotAPI
	adminChatID int64
	st          store.Store
	gen         *license.Generator

	mu     sync.Mutex
	states map[int64]pendingState
}

type pendingState string

const (
	stateNone       pendingState = ""
	stateNewLicense pendingState = "new_license"
	stateAskVerify  pendingState = "ask_verify"
	stateAskInfo    pendingState = "ask_info"
)

func NewBot(token string, adminChatID int64, st store.Store, gen *license.Generator) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	return &Bot{api: api, adminChatID: adminChatID, st: st, gen: gen, states: map[int64]pendingState{}}, nil
}

func (b *Bot) Run(ctx context.Context) error {
	upd := tgbotapi.NewUpdate(0)
	upd.Timeout = 30
	updates := b.api.GetUpdatesChan(upd)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			if u.CallbackQuery != nil {
				b.handleCallback(u.CallbackQuery)
				continue
			}
			if u.Message != nil {
				b.handleMessage(u.Message)
				continue
			}
		}
	}
}

func (b *Bot) handleMessage(m *tgbotapi.Message) {
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	// Only admin can issue keys
	if chatID != b.adminChatID {
		msg := tgbotapi.NewMessage(chatID, "This bot is admin-only.")
		_, _ = b.api.Send(msg)
		return
	}

	// Allow /start and /help but the UX is button-first.
	if strings.HasPrefix(text, "/start") || strings.HasPrefix(text, "/help") || strings.HasPrefix(text, "/menu") {
		b.sendMenu(chatID, "License management menu")
		b.setState(chatID, stateNone)
		return
	}

	st := b.getState(chatID)
	switch st {
	case stateNewLicense:
		b.handleNewLicenseInput(chatID, text)
		return
	case stateAskVerify:
		b.setState(chatID, stateNone)
		b.cmdVerify(chatID, text)
		b.sendMenu(chatID, "")
		return
	case stateAskInfo:
		b.setState(chatID, stateNone)
		b.cmdInfo(chatID, text)
		b.sendMenu(chatID, "")
		return
	default:
		b.sendMenu(chatID, "Use the menu buttons.")
		return
	}
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) {
	chatID := q.Message.Chat.ID

	if chatID != b.adminChatID {
		_ = b.answerCallback(q.ID, "Not allowed")
		return
	}

	data := strings.TrimSpace(q.Data)
	_ = b.answerCallback(q.ID, "")

	switch {
	case data == "menu":
		b.setState(chatID, stateNone)
		b.sendMenu(chatID, "Menu")
	case data == "new":
		b.setState(chatID, stateNewLicense)
		b.reply(chatID, "Send: company | days | activations | [machine id] | [type]\nExample: Acme Corp | 365 | 3 | ABCD1234EFGH5678 | PROFESSIONAL")
	case data == "list":
		b.setState(chatID, stateNone)
		b.cmdListWithButtons(chatID)
	case data == "ask_verify":
		b.setState(chatID, stateAskVerify)
		b.reply(chatID, "Send the license key to verify:")
	case data == "ask_info":
		b.setState(chatID, stateAskInfo)
		b.reply(chatID, "Send the license id:")
	case strings.HasPrefix(data, "info:"):
		b.setState(chatID, stateNone)
		b.cmdInfo(chatID, strings.TrimPrefix(data, "info:"))
		b.sendMenu(chatID, "")
	default:
		b.sendMenu(chatID, "Unknown action")
	}
}

func (b *Bot) sendMenu(chatID int64, title string) {
	if strings.TrimSpace(title) == "" {
		title = "Menu"
	}
	msg := tgbotapi.NewMessage(chatID, title)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ New license", "new"),
			tgbotapi.NewInlineKeyboardButtonData("📋 List", "list"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Verify key", "ask_verify"),
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Info", "ask_info"),
		),
	)
	_, _ = b.api.Send(msg)
}

func (b *Bot) handleNewLicenseInput(chatID int64, text string) {
	fields := strings.Split(text, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 3 {
		b.reply(chatID, "Invalid input. Send: company | days | activations | [machine id] | [type]")
		return
	}
	company := fields[0]
	days, err := strconv.Atoi(fields[1])
	if err != nil || days < 1 {
		b.reply(chatID, "Invalid day count")
		return
	}
	activations, err := strconv.Atoi(fields[2])
	if err != nil || activations < 1 || activations > maxActivationsUI {
		b.reply(chatID, fmt.Sprintf("Activations must be 1-%d", maxActivationsUI))
		return
	}
	machineID := ""
	if len(fields) > 3 {
		machineID = fields[3]
	}
	if machineID != "" && len(machineID) != machineIDLen {
		b.reply(chatID, fmt.Sprintf("Machine id must be exactly %d characters", machineIDLen))
		return
	}
	licenseType := ""
	if len(fields) > 4 {
		licenseType = fields[4]
	}

	doc, err := b.st.IssueLicense(license.IssueParams{
		CompanyName:    company,
		ExpirationDays: days,
		MaxActivations: activations,
		MachineID:      machineID,
		LicenseType:    licenseType,
	})
	if err != nil {
		b.reply(chatID, "Error: "+err.Error())
		return
	}
	b.setState(chatID, stateNone)
	lines := []string{
		"License issued:",
		doc.LicenseKey,
		"",
		"License ID: " + doc.LicenseID,
		"Company: " + doc.CompanyName,
		"Expires: " + doc.ExpirationDate.Format(time.DateOnly),
		fmt.Sprintf("Max activations: %d", doc.MaxActivations),
	}
	if doc.ActivationKey != "" {
		lines = append(lines, "Activation key: "+doc.ActivationKey)
	}
	b.reply(chatID, strings.Join(lines, "\n"))
	b.sendMenu(chatID, "")
}

func (b *Bot) cmdVerify(chatID int64, key string) {
	rec, err := b.gen.Verify(strings.TrimSpace(key))
	if err != nil {
		b.reply(chatID, "❌ "+err.Error())
		return
	}
	lines := []string{
		"✅ Valid license",
		"License ID: " + rec.LicenseID,
		"Company: " + rec.CompanyName,
		"Expires: " + rec.ExpirationDate.Format(time.DateOnly),
		"Features: " + strings.Join(rec.Features, ", "),
	}
	if rec.MachineID != "" {
		lines = append(lines, "Bound to: "+rec.MachineID)
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdInfo(chatID int64, licenseID string) {
	info, err := b.st.GetInfo(strings.TrimSpace(licenseID))
	if err != nil {
		b.reply(chatID, "Error: "+err.Error())
		return
	}
	doc := info.License
	lines := []string{
		"License: " + doc.LicenseID,
		"Company: " + doc.CompanyName,
		"Type: " + doc.LicenseType,
		"Issued: " + doc.IssueDate.Format(time.DateOnly),
		"Expires: " + doc.ExpirationDate.Format(time.DateOnly),
		fmt.Sprintf("Activations: %d/%d", info.Used, doc.MaxActivations),
		"Key: " + doc.LicenseKey,
	}
	if doc.ActivationKey != "" {
		lines = append(lines, "Activation key: "+doc.ActivationKey)
	}
	if len(info.Bindings) > 0 {
		lines = append(lines, "Machines:")
		max := len(info.Bindings)
		if max > 30 {
			max = 30
		}
		for i := 0; i < max; i++ {
			m := info.Bindings[i]
			lines = append(lines, fmt.Sprintf("- %s (last: %s)", m.MachineID, m.LastSeen.Format(time.RFC3339)))
		}
		if len(info.Bindings) > max {
			lines = append(lines, fmt.Sprintf("... (%d more)", len(info.Bindings)-max))
		}
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdListWithButtons(chatID int64) {
	list, err := b.st.ListLicenses()
	if err != nil {
		b.reply(chatID, "Error: "+err.Error())
		return
	}
	if len(list) == 0 {
		b.reply(chatID, "No licenses issued yet")
		return
	}

	lines := []string{"Recent licenses (tap a button for details):"}
	max := len(list)
	if max > 20 {
		max = 20
	}
	buttons := make([][]tgbotapi.InlineKeyboardButton, 0)
	for i := 0; i < max; i++ {
		it := list[i]
		lines = append(lines, fmt.Sprintf("- %s | %s | %d/%d | exp %s",
			it.License.LicenseID, it.License.CompanyName, it.Used, it.License.MaxActivations,
			it.License.ExpirationDate.Format(time.DateOnly)))
		// One button per row (keeps callback data short and UI clean)
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ "+it.License.LicenseID, "info:"+it.License.LicenseID),
		))
	}
	buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("↩️ Menu", "menu"),
	))

	msg := tgbotapi.NewMessage(chatID, strings.Join(lines, "\n"))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, _ = b.api.Send(msg)
}

func (b *Bot) answerCallback(id string, text string) error {
	cb := tgbotapi.NewCallback(id, text)
	_, err := b.api.Request(cb)
	return err
}

func (b *Bot) setState(chatID int64, st pendingState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st == stateNone {
		delete(b.states, chatID)
		return
	}
	b.states[chatID] = st
}

func (b *Bot) getState(chatID int64) pendingState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[chatID]
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, _ = b.api.Send(msg)
}
