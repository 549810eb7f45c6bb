package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/ada-tracker/internal/wallet"
)

// MainKeyboard returns the main menu keyboard
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "➕ Добавить кошелёк", CallbackData: "add"},
				{Text: "📋 Список кошельков", CallbackData: "list"},
			},
			{
				{Text: "🔓 Слоты", CallbackData: "slots"},
			},
		},
	}
}

// WalletsKeyboard returns a keyboard with the wallet list
func WalletsKeyboard(wallets []wallet.Record) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, w := range wallets {
		key := walletKey(w.Address)
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: w.Name, CallbackData: "show:" + key},
			{Text: "🔄", CallbackData: "ref:" + key},
			{Text: "🗑", CallbackData: "del:" + key},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Назад", CallbackData: "back"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// WalletKeyboard returns actions for one wallet
func WalletKeyboard(address string) *models.InlineKeyboardMarkup {
	key := walletKey(address)
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔄 Обновить", CallbackData: "ref:" + key},
				{Text: "✏️ Переименовать", CallbackData: "ren:" + key},
			},
			{
				{Text: "🗑 Удалить", CallbackData: "del:" + key},
				{Text: "🔎 Cardanoscan", URL: fmt.Sprintf("https://cardanoscan.io/address/%s", address)},
			},
			{
				{Text: "⬅️ Назад", CallbackData: "list"},
			},
		},
	}
}

// TypeKeyboard lets the user pick a wallet brand
func TypeKeyboard() *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton

	for _, t := range wallet.KnownTypes {
		row = append(row, models.InlineKeyboardButton{Text: string(t), CallbackData: "type:" + string(t)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Назад", CallbackData: "back"},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BackKeyboard returns a simple back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Назад", CallbackData: "back"},
			},
		},
	}
}

// SlotsKeyboard offers to pay for more slots
func SlotsKeyboard(canUnlock bool) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	if canUnlock {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "💳 Открыть ещё слоты", CallbackData: "unlock"},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Назад", CallbackData: "back"},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// PaymentKeyboard is shown while a payment is being polled
func PaymentKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✖️ Отменить", CallbackData: "cancel_pay"},
			},
		},
	}
}

// StartMenuKeyboard returns keyboard to go back to start menu
func StartMenuKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Главное меню", CallbackData: "back"},
			},
		},
	}
}

// walletKey shortens an address to fit into callback data (64 bytes max)
func walletKey(address string) string {
	if len(address) <= 24 {
		return address
	}
	return address[len(address)-24:]
}
