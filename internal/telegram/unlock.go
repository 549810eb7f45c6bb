package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/ada-tracker/internal/payment"
	"github.com/suspectuso/ada-tracker/internal/slots"
)

func (b *Bot) handleUnlock(ctx context.Context, cb *models.CallbackQuery) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	st, err := b.slots.State(ctx)
	if err != nil {
		b.log.Error("slot state", "error", err)
		return
	}
	if st.UnlockedSlots >= st.MaxSlots {
		b.editMessage(ctx, cb.Message, formatSlots(st, b.slots.SlotsPerPayment()), SlotsKeyboard(false))
		return
	}

	b.mu.Lock()
	if _, busy := b.pending[chatID]; busy {
		b.mu.Unlock()
		b.alert(ctx, cb, "Оплата уже ожидается.")
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	b.pending[chatID] = cancel
	b.mu.Unlock()

	flow := payment.NewFlow(b.payments, b.slots, payment.Options{
		PollInterval: b.cfg.PaymentPollInterval,
		MaxAttempts:  b.cfg.PaymentMaxAttempts,
	}, b.log)
	flow.OnState(func(state payment.State, req *payment.Request) {
		attrs := []any{"chat_id", chatID, "state", state.String()}
		if req != nil {
			attrs = append(attrs, "payment_id", req.PaymentID)
		}
		b.log.Info("payment state", attrs...)
	})

	// the handler context may be gone by the time the flow reports
	notifyCtx := context.WithoutCancel(ctx)
	target := cb.Message

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.finishPayment(chatID)

		var req *payment.Request
		st, err := flow.Run(pollCtx, func(r *payment.Request) {
			req = r
			b.editMessage(notifyCtx, target,
				formatPayment(r, b.cfg.PaymentMaxAttempts, b.cfg.PaymentPollInterval),
				PaymentKeyboard(),
			)
		})

		if errors.Is(err, payment.ErrInitiate) {
			b.editMessage(notifyCtx, target, "❌ Не удалось создать платёж. Попробуй позже.", SlotsKeyboard(true))
			return
		}

		text := paymentResult(st, err, req)
		if err := b.SendNotification(notifyCtx, chatID, text, StartMenuKeyboard()); err != nil {
			b.log.Error("send payment result", "chat_id", chatID, "error", err)
		}
	}()
}

func paymentResult(st slots.State, err error, req *payment.Request) string {
	switch {
	case err == nil:
		return fmt.Sprintf("✅ <b>Оплата получена!</b>\n\nТеперь доступно слотов: <b>%d</b>", st.UnlockedSlots)
	case errors.Is(err, payment.ErrPaymentUsed):
		return "⚠️ Этот платёж уже был использован."
	case errors.Is(err, payment.ErrPaymentTimeout):
		return "⌛ Оплата не найдена. Если ты уже отправил ADA, открой «Слоты» и попробуй снова."
	case req != nil && req.Consumed():
		return "❌ Оплата получена, но слоты не удалось сохранить. Напиши в поддержку."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Проверка оплаты отменена."
	default:
		return "❌ Не удалось проверить оплату. Попробуй позже."
	}
}

func (b *Bot) handleCancelPayment(ctx context.Context, cb *models.CallbackQuery) {
	msg := cb.Message.Message
	if msg == nil {
		return
	}

	b.mu.Lock()
	cancel, ok := b.pending[msg.Chat.ID]
	b.mu.Unlock()

	if !ok {
		b.editMessage(ctx, cb.Message, "Нет ожидающей оплаты.", StartMenuKeyboard())
		return
	}
	cancel()
}

func (b *Bot) finishPayment(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.pending[chatID]; ok {
		cancel()
		delete(b.pending, chatID)
	}
}
