package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/ada-tracker/internal/config"
	"github.com/suspectuso/ada-tracker/internal/payment"
	"github.com/suspectuso/ada-tracker/internal/slots"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

// SurfacePrefix starts the notifier surface id of every owner chat
const SurfacePrefix = "telegram"

var addrRegex = regexp.MustCompile(`addr(_test)?1[02-9ac-hj-np-z]+`)

// Sender is the part of the Telegram API the bot calls
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Bot is the Telegram surface of the tracker
type Bot struct {
	bot      *bot.Bot
	api      Sender
	cfg      *config.Config
	registry *wallet.Registry
	slots    *slots.Manager
	payments payment.Provider
	states   *StateManager
	log      *slog.Logger

	mu      sync.Mutex
	pending map[int64]context.CancelFunc // payment polls per chat
	wg      sync.WaitGroup
}

// New creates a new telegram bot
func New(cfg *config.Config, registry *wallet.Registry, slotManager *slots.Manager, payments payment.Provider, log *slog.Logger) (*Bot, error) {
	b := newBot(cfg, nil, registry, slotManager, payments, log)

	opts := []bot.Option{
		bot.WithMiddlewares(b.guard),
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	b.api = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/slots", bot.MatchTypeExact, b.slotsHandler)

	return b, nil
}

func newBot(cfg *config.Config, api Sender, registry *wallet.Registry, slotManager *slots.Manager, payments payment.Provider, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		cfg:      cfg,
		registry: registry,
		slots:    slotManager,
		payments: payments,
		states:   NewStateManager(),
		log:      log,
		pending:  make(map[int64]context.CancelFunc),
	}
}

// Start starts the bot polling and waits for running payment polls on exit
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
	b.wg.Wait()
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.states.Clear(update.Message.Chat.ID)
	b.sendMessage(ctx, update.Message.Chat.ID, b.mainMenuText(ctx, update.Message.From), MainKeyboard())
}

func (b *Bot) slotsHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	st, err := b.slots.State(ctx)
	if err != nil {
		b.log.Error("slot state", "error", err)
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, formatSlots(st, b.slots.SlotsPerPayment()), SlotsKeyboard(st.UnlockedSlots < st.MaxSlots))
}

func (b *Bot) mainMenuText(ctx context.Context, from *models.User) string {
	userName := "друг"
	if from != nil {
		if from.FirstName != "" {
			userName = from.FirstName
		} else if from.Username != "" {
			userName = from.Username
		}
	}

	st, err := b.slots.State(ctx)
	if err != nil {
		b.log.Error("slot state", "error", err)
	}

	return fmt.Sprintf(
		"%s, добро пожаловать в <b>ADA Tracker</b>! 🚀\n\n"+
			"Я храню закладки на Cardano-кошельки и показываю:\n"+
			"• Баланс ADA\n"+
			"• Токены и NFT\n\n"+
			"Слоты: <b>%d/%d</b>\n\n"+
			"Выбери действие 👇",
		html.EscapeString(userName), st.UsedSlots, st.UnlockedSlots,
	)
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(chatID)
	if state == nil {
		return
	}

	switch state.State {
	case StateWaitName:
		b.handleWaitName(ctx, chatID, text, state)
	case StateWaitAddress:
		b.handleWaitAddress(ctx, chatID, text, state)
	case StateWaitRename:
		b.handleWaitRename(ctx, chatID, text, state)
	case StateWaitIcon:
		b.handleWaitIcon(ctx, chatID, text, state)
	}
}

func (b *Bot) handleWaitName(ctx context.Context, chatID int64, name string, state *ChatState) {
	if name == "" {
		b.sendMessage(ctx, chatID, "Название не может быть пустым, попробуй ещё раз.", nil)
		return
	}

	state.Data["name"] = name
	b.states.Set(chatID, StateWaitAddress, state.Data)

	b.sendMessage(ctx, chatID,
		"🔹 Теперь отправь адрес Cardano-кошелька (addr1…)\n(можно ссылкой с cardanoscan):",
		BackKeyboard(),
	)
}

func (b *Bot) handleWaitAddress(ctx context.Context, chatID int64, text string, state *ChatState) {
	addr := extractAddress(text)
	if err := wallet.ValidateAddress(addr); err != nil {
		b.sendMessage(ctx, chatID, errorText(err, slots.State{}), nil)
		return
	}

	state.Data["address"] = addr
	b.states.Set(chatID, StateWaitType, state.Data)

	b.sendMessage(ctx, chatID, "🔹 Каким кошельком ты пользуешься?", TypeKeyboard())
}

func (b *Bot) handleWaitIcon(ctx context.Context, chatID int64, text string, state *ChatState) {
	icon := ""
	if text != "-" {
		if !validIcon(text) {
			b.sendMessage(ctx, chatID, "❌ Нужна ссылка на картинку (https://…) или «-», чтобы пропустить.", BackKeyboard())
			return
		}
		icon = text
	}
	b.states.Clear(chatID)

	b.sendMessage(ctx, chatID, "⏳ Загружаю данные кошелька…", nil)
	w, err := b.registry.AddCustom(ctx, state.Data["address"], state.Data["name"], icon)
	if err != nil {
		b.log.Warn("add custom wallet", "address", state.Data["address"], "error", err)
		st, _ := b.slots.State(ctx)
		b.sendMessage(ctx, chatID, errorText(err, st), MainKeyboard())
		return
	}

	b.log.Info("wallet added via telegram",
		"chat_id", chatID,
		"address", w.Address,
		"custom_icon", icon != "",
	)
	b.sendMessage(ctx, chatID, "✅ Кошелёк добавлен!\n\n"+formatWallet(w, b.cfg.IPFSGateway, b.cfg.AssetsPerView), WalletKeyboard(w.Address))
}

func validIcon(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:image/")
}

func (b *Bot) handleWaitRename(ctx context.Context, chatID int64, name string, state *ChatState) {
	address := state.Data["address"]
	b.states.Clear(chatID)

	w, err := b.registry.Rename(ctx, address, name)
	if err != nil {
		b.log.Warn("rename wallet", "address", address, "error", err)
		b.sendMessage(ctx, chatID, errorText(err, slots.State{}), StartMenuKeyboard())
		return
	}

	b.sendMessage(ctx, chatID, formatWallet(w, b.cfg.IPFSGateway, b.cfg.AssetsPerView), WalletKeyboard(w.Address))
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	// Answer callback to remove loading state
	b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch {
	case data == "back":
		b.showMainMenu(ctx, cb)
	case data == "add":
		b.handleAdd(ctx, cb)
	case data == "list":
		b.showWalletList(ctx, cb)
	case strings.HasPrefix(data, "type:"):
		b.handleType(ctx, cb, strings.TrimPrefix(data, "type:"))
	case strings.HasPrefix(data, "show:"):
		b.showWallet(ctx, cb, strings.TrimPrefix(data, "show:"))
	case strings.HasPrefix(data, "ref:"):
		b.handleRefresh(ctx, cb, strings.TrimPrefix(data, "ref:"))
	case strings.HasPrefix(data, "del:"):
		b.handleDelete(ctx, cb, strings.TrimPrefix(data, "del:"))
	case strings.HasPrefix(data, "ren:"):
		b.handleRename(ctx, cb, strings.TrimPrefix(data, "ren:"))
	case data == "slots":
		b.showSlots(ctx, cb)
	case data == "unlock":
		b.handleUnlock(ctx, cb)
	case data == "cancel_pay":
		b.handleCancelPayment(ctx, cb)
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

func (b *Bot) showMainMenu(ctx context.Context, cb *models.CallbackQuery) {
	if msg := cb.Message.Message; msg != nil {
		b.states.Clear(msg.Chat.ID)
	}
	b.editMessage(ctx, cb.Message, b.mainMenuText(ctx, &cb.From), MainKeyboard())
}

func (b *Bot) handleAdd(ctx context.Context, cb *models.CallbackQuery) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}

	st, err := b.slots.State(ctx)
	if err == nil && st.Available() == 0 {
		b.editMessage(ctx, cb.Message, errorText(wallet.ErrSlotsExhausted, st), SlotsKeyboard(st.UnlockedSlots < st.MaxSlots))
		return
	}

	b.states.Set(msg.Chat.ID, StateWaitName, nil)
	b.editMessage(ctx, cb.Message, "🔹 Введи название для нового кошелька:", BackKeyboard())
}

func (b *Bot) handleType(ctx context.Context, cb *models.CallbackQuery, typeName string) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	state := b.states.Get(chatID)
	if state == nil || state.State != StateWaitType {
		return
	}
	walletType, ok := wallet.ParseType(typeName)
	if !ok {
		b.states.Clear(chatID)
		b.editMessage(ctx, cb.Message, errorText(wallet.ErrInvalidType, slots.State{}), MainKeyboard())
		return
	}
	if walletType == wallet.TypeCustom {
		b.states.Set(chatID, StateWaitIcon, state.Data)
		b.editMessage(ctx, cb.Message, "🖼 Отправь ссылку на иконку кошелька (https://…) или «-», чтобы пропустить.", BackKeyboard())
		return
	}
	b.states.Clear(chatID)

	b.editMessage(ctx, cb.Message, "⏳ Загружаю данные кошелька…", nil)

	w, err := b.registry.Add(ctx, state.Data["address"], state.Data["name"], walletType)
	if err != nil {
		b.log.Warn("add wallet", "address", state.Data["address"], "error", err)
		st, _ := b.slots.State(ctx)
		b.editMessage(ctx, cb.Message, errorText(err, st), MainKeyboard())
		return
	}

	b.log.Info("wallet added via telegram",
		"chat_id", chatID,
		"address", w.Address,
	)
	b.editMessage(ctx, cb.Message, "✅ Кошелёк добавлен!\n\n"+formatWallet(w, b.cfg.IPFSGateway, b.cfg.AssetsPerView), WalletKeyboard(w.Address))
}

func (b *Bot) showWalletList(ctx context.Context, cb *models.CallbackQuery) {
	wallets, err := b.registry.List(ctx)
	if err != nil {
		b.log.Error("list wallets", "error", err)
		b.editMessage(ctx, cb.Message, errorText(err, slots.State{}), MainKeyboard())
		return
	}

	if len(wallets) == 0 {
		b.editMessage(ctx, cb.Message, "❌ У тебя нет добавленных кошельков.", MainKeyboard())
		return
	}

	st, err := b.slots.State(ctx)
	if err != nil {
		b.log.Error("slot state", "error", err)
	}

	b.editMessage(ctx, cb.Message, formatWalletList(wallets, st), WalletsKeyboard(wallets))
}

// lookup resolves a callback wallet key against the current registry
func (b *Bot) lookup(ctx context.Context, key string) (*wallet.Record, error) {
	wallets, err := b.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range wallets {
		if walletKey(wallets[i].Address) == key {
			return &wallets[i], nil
		}
	}
	return nil, wallet.ErrNotFound
}

func (b *Bot) showWallet(ctx context.Context, cb *models.CallbackQuery, key string) {
	w, err := b.lookup(ctx, key)
	if err != nil {
		b.alert(ctx, cb, errorText(err, slots.State{}))
		return
	}
	b.editMessage(ctx, cb.Message, formatWallet(w, b.cfg.IPFSGateway, b.cfg.AssetsPerView), WalletKeyboard(w.Address))
}

func (b *Bot) handleRefresh(ctx context.Context, cb *models.CallbackQuery, key string) {
	w, err := b.lookup(ctx, key)
	if err != nil {
		b.alert(ctx, cb, errorText(err, slots.State{}))
		return
	}

	w, err = b.registry.Refresh(ctx, w.Address)
	if err != nil {
		b.log.Warn("refresh wallet", "error", err)
		b.alert(ctx, cb, errorText(err, slots.State{}))
		return
	}
	b.editMessage(ctx, cb.Message, formatWallet(w, b.cfg.IPFSGateway, b.cfg.AssetsPerView), WalletKeyboard(w.Address))
}

func (b *Bot) handleDelete(ctx context.Context, cb *models.CallbackQuery, key string) {
	w, err := b.lookup(ctx, key)
	if err == nil {
		err = b.registry.Remove(ctx, w.Address)
	}
	if err != nil && !errors.Is(err, wallet.ErrNotFound) {
		b.log.Error("remove wallet", "error", err)
	}

	// Refresh wallet list
	b.showWalletList(ctx, cb)
}

func (b *Bot) handleRename(ctx context.Context, cb *models.CallbackQuery, key string) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}

	w, err := b.lookup(ctx, key)
	if err != nil {
		b.alert(ctx, cb, errorText(err, slots.State{}))
		return
	}

	b.states.Set(msg.Chat.ID, StateWaitRename, map[string]string{"address": w.Address})
	b.editMessage(ctx, cb.Message,
		fmt.Sprintf("✏️ Введи новое название для <b>%s</b>:", html.EscapeString(w.Name)),
		BackKeyboard(),
	)
}

func (b *Bot) showSlots(ctx context.Context, cb *models.CallbackQuery) {
	st, err := b.slots.State(ctx)
	if err != nil {
		b.log.Error("slot state", "error", err)
		return
	}
	b.editMessage(ctx, cb.Message, formatSlots(st, b.slots.SlotsPerPayment()), SlotsKeyboard(st.UnlockedSlots < st.MaxSlots))
}

// --- Helpers ---

func (b *Bot) alert(ctx context.Context, cb *models.CallbackQuery, text string) {
	b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
		ShowAlert:       true,
	})
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.api.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.api.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// SendNotification sends a notice to a chat
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.api.SendMessage(ctx, params)
	return err
}

func extractAddress(text string) string {
	return addrRegex.FindString(text)
}
