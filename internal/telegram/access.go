package telegram

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/ada-tracker/internal/storage"
)

const refusalText = "⛔ Это приватный бот."

// SurfaceID names the notifier surface of one owner chat
func SurfaceID(chatID int64) string {
	return fmt.Sprintf("%s:%d", SurfacePrefix, chatID)
}

// guard drops updates from chats outside the allow list and tags the
// context of admitted ones, so registry and slot writes carry their chat.
func (b *Bot) guard(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
		chatID, ok := updateChat(update)
		if !ok {
			return
		}
		if !b.allowed(chatID) {
			b.refuse(ctx, update, chatID)
			return
		}
		next(storage.WithWriter(ctx, SurfaceID(chatID)), tgBot, update)
	}
}

func (b *Bot) allowed(chatID int64) bool {
	return slices.Contains(b.cfg.AllowedChatIDs, chatID)
}

func (b *Bot) refuse(ctx context.Context, update *models.Update, chatID int64) {
	switch {
	case update.CallbackQuery != nil:
		b.log.Warn("callback from foreign chat", "chat_id", chatID, "user_id", update.CallbackQuery.From.ID)
		b.alert(ctx, update.CallbackQuery, refusalText)
	case update.Message != nil:
		var userID int64
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
		b.log.Warn("message from foreign chat", "chat_id", chatID, "user_id", userID)
		b.sendMessage(ctx, chatID, refusalText, nil)
	}
}

func updateChat(update *models.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.Message.Message != nil {
			return cb.Message.Message.Chat.ID, true
		}
		if cb.Message.InaccessibleMessage != nil {
			return cb.Message.InaccessibleMessage.Chat.ID, true
		}
		// private chats share the user's id
		return cb.From.ID, true
	}
	return 0, false
}
