package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/suspectuso/ada-tracker/internal/asset"
	"github.com/suspectuso/ada-tracker/internal/notifier"
)

// chatSurface delivers cross-surface messages to one owner chat as notices
type chatSurface struct {
	bot    *Bot
	chatID int64
}

var _ notifier.Surface = (*chatSurface)(nil)

// Surfaces returns one notifier surface per allowed chat. A change made in
// one chat is announced in the others.
func (b *Bot) Surfaces() []notifier.Surface {
	surfaces := make([]notifier.Surface, 0, len(b.cfg.AllowedChatIDs))
	for _, id := range b.cfg.AllowedChatIDs {
		surfaces = append(surfaces, &chatSurface{bot: b, chatID: id})
	}
	return surfaces
}

func (s *chatSurface) ID() string {
	return SurfaceID(s.chatID)
}

// Handle sends a notice for messages a person should see. The bot renders
// from the store on every interaction, so reloads need no local work.
func (s *chatSurface) Handle(ctx context.Context, msg notifier.Message) error {
	text := noticeText(msg)
	if text == "" {
		return nil
	}
	return s.bot.SendNotification(ctx, s.chatID, text, nil)
}

func noticeText(msg notifier.Message) string {
	switch m := msg.(type) {
	case notifier.WalletLoading:
		return fmt.Sprintf("⏳ Добавляется кошелёк <b>%s</b>…", html.EscapeString(m.Wallet.Name))
	case notifier.WalletLoaded:
		return fmt.Sprintf("✅ Кошелёк <b>%s</b> добавлен: %s ADA, активов: %d",
			html.EscapeString(m.Wallet.Name), asset.FormatADA(m.Wallet.Balance), len(m.Wallet.Assets))
	case notifier.SlotsUpdated:
		return fmt.Sprintf("🔓 Доступно слотов: <b>%d</b>", m.Slots)
	default:
		return ""
	}
}

// OpenFullView sends the full wallet overview. A request from an owner
// chat is answered in that chat, any other origin gets every owner chat.
func (b *Bot) OpenFullView(ctx context.Context, origin string) error {
	wallets, err := b.registry.List(ctx)
	if err != nil {
		return err
	}
	st, err := b.slots.State(ctx)
	if err != nil {
		return err
	}

	chats := b.cfg.AllowedChatIDs
	if id, ok := chatFromSurface(origin); ok && b.allowed(id) {
		chats = []int64{id}
	}

	text := formatWalletList(wallets, st)
	if len(wallets) == 0 {
		text = "❌ У тебя нет добавленных кошельков."
	}

	b.log.Info("full view opened", "origin", origin, "wallets", len(wallets))
	for _, id := range chats {
		if err := b.SendNotification(ctx, id, text, WalletsKeyboard(wallets)); err != nil {
			return fmt.Errorf("send full view to %d: %w", id, err)
		}
	}
	return nil
}

func chatFromSurface(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, SurfacePrefix+":")
	if !ok {
		return 0, false
	}
	chatID, err := strconv.ParseInt(rest, 10, 64)
	return chatID, err == nil
}
