package telegram

import (
	"errors"
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"github.com/suspectuso/ada-tracker/internal/asset"
	"github.com/suspectuso/ada-tracker/internal/payment"
	"github.com/suspectuso/ada-tracker/internal/slots"
	"github.com/suspectuso/ada-tracker/internal/wallet"
)

func formatWallet(w *wallet.Record, gateway string, limit int) string {
	var tokens, nfts []*asset.Record
	for i := range w.Assets {
		a := &w.Assets[i]
		if asset.Classify(a) == asset.NFT {
			nfts = append(nfts, a)
		} else {
			tokens = append(tokens, a)
		}
	}

	lines := []string{
		fmt.Sprintf("💼 <b>%s</b> · %s", html.EscapeString(w.Name), w.WalletType),
		fmt.Sprintf("<code>%s</code>", w.Address),
	}
	if strings.HasPrefix(w.CustomIconData, "https://") {
		lines = append(lines, fmt.Sprintf("<a href='%s'>🖼 Иконка</a>", html.EscapeString(w.CustomIconData)))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Баланс: <b>%s ADA</b>", asset.FormatADA(w.Balance)),
		fmt.Sprintf("Токенов: <b>%d</b> · NFT: <b>%d</b>", len(tokens), len(nfts)),
	)

	shown := 0
	if len(tokens) > 0 {
		lines = append(lines, "", "<b>Токены</b>")
		for _, a := range tokens {
			if shown == limit {
				break
			}
			lines = append(lines, fmt.Sprintf("• %s — %s",
				html.EscapeString(a.Name()), asset.Compact(a.Amount(), a.Decimals)))
			shown++
		}
	}
	if len(nfts) > 0 && shown < limit {
		lines = append(lines, "", "<b>NFT</b>")
		for _, a := range nfts {
			if shown == limit {
				break
			}
			name := html.EscapeString(a.Name())
			if img := asset.ResolveImage(a, gateway); strings.HasPrefix(img, "http") {
				lines = append(lines, fmt.Sprintf("• <a href='%s'>%s</a>", html.EscapeString(img), name))
			} else {
				lines = append(lines, "• "+name)
			}
			shown++
		}
	}
	if rest := len(w.Assets) - shown; rest > 0 {
		lines = append(lines, fmt.Sprintf("… и ещё %d", rest))
	}

	if w.Timestamp > 0 {
		updated := time.UnixMilli(w.Timestamp).UTC().Format("02.01.2006 15:04 UTC")
		lines = append(lines, "", "<i>Обновлено: "+updated+"</i>")
	}
	return strings.Join(lines, "\n")
}

func formatWalletList(wallets []wallet.Record, st slots.State) string {
	lines := []string{"📋 <b>Твои кошельки:</b>\n"}
	for _, w := range wallets {
		lines = append(lines, fmt.Sprintf("• <b>%s</b> — %s ADA",
			html.EscapeString(w.Name), asset.FormatADA(w.Balance)))
	}
	lines = append(lines, fmt.Sprintf("\nСлоты: <b>%d/%d</b>", st.UsedSlots, st.UnlockedSlots))
	return strings.Join(lines, "\n")
}

func formatSlots(st slots.State, perPayment int) string {
	text := fmt.Sprintf(
		"🔓 <b>Слоты</b>\n\n"+
			"Занято: <b>%d</b> из <b>%d</b>\n"+
			"Максимум: <b>%d</b>",
		st.UsedSlots, st.UnlockedSlots, st.MaxSlots,
	)
	if st.UnlockedSlots < st.MaxSlots {
		text += fmt.Sprintf("\n\nОдна оплата открывает ещё <b>%d</b> слотов.", perPayment)
	}
	return text
}

func formatPayment(req *payment.Request, attempts int, interval time.Duration) string {
	// the amount is unique per payment, so it is shown to the last lovelace
	amount := asset.FormatQuantity(big.NewInt(req.Amount), 6)
	return fmt.Sprintf(
		"💳 <b>Оплата слотов</b>\n\n"+
			"Переведи <b>%s ADA</b> на адрес:\n\n"+
			"<code>%s</code>\n\n"+
			"⚠️ <b>Важно:</b> переведи точно указанную сумму!\n"+
			"По ней определяется твой платёж.\n\n"+
			"Жду оплату до %s.",
		amount, req.Address, time.Duration(attempts)*interval,
	)
}

// errorText turns a registry error into a short notice
func errorText(err error, st slots.State) string {
	switch {
	case errors.Is(err, wallet.ErrInvalidAddress):
		return "❌ Адрес не похож на Cardano (addr1…). Попробуй ещё раз."
	case errors.Is(err, wallet.ErrInvalidName):
		return "❌ Название не может быть пустым."
	case errors.Is(err, wallet.ErrDuplicateName):
		return "❌ Кошелёк с таким названием уже есть."
	case errors.Is(err, wallet.ErrSlotsExhausted):
		return fmt.Sprintf("❌ Все слоты заняты (%d/%d).\nОткрой ещё в разделе «Слоты».", st.UsedSlots, st.UnlockedSlots)
	case errors.Is(err, wallet.ErrDuplicateAddress):
		return "❌ Этот кошелёк уже добавлен."
	case errors.Is(err, wallet.ErrInvalidType):
		return "❌ Неизвестный тип кошелька."
	case errors.Is(err, wallet.ErrNotFound):
		return "❌ Кошелёк не найден."
	case errors.Is(err, wallet.ErrProvider):
		return "❌ Не удалось получить данные кошелька. Попробуй позже."
	default:
		return "❌ Ошибка хранилища. Попробуй ещё раз."
	}
}
