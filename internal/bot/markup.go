package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ms-passbot/internal/models"
	"ms-passbot/internal/utils"
)

// Callback payloads. Dated and targeted ones carry their argument after ':'.
const (
	cbAgreement  = "agreement"
	cbBuy        = "buy"
	cbMenu       = "menu"
	cbRegister   = "reg:"
	cbRegError   = "regerr:"
	cbSend       = "send:"
	cbSendCancel = "sendcancel"

	regErrRegistered = "registered"
	regErrSoldOut    = "soldout"
)

// declineTickets picks the Russian plural form of "билет" for n.
func declineTickets(n int) string {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return "билет"
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 10 || n%100 >= 20):
		return "билета"
	default:
		return "билетов"
	}
}

func menuButton() tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(msgMenuButton, cbMenu)
}

func startMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(msgBuyButton, cbBuy)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(msgAgreeButton, cbAgreement)),
	)
}

func menuMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(menuButton()))
}

// buyMarkup has one row per upcoming event. Events the user already holds and
// sold out events point at an error callback instead of the purchase.
func buyMarkup(events []models.EventAvailability) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(events)+1)
	for _, e := range events {
		available := e.Available()
		text := fmt.Sprintf(msgEventButton, utils.ShortDate(e.Date), available, declineTickets(available))

		var data string
		switch {
		case e.HasTicket:
			text += msgHoldingTicket
			data = cbRegError + regErrRegistered
		case available <= 0:
			data = cbRegError + regErrSoldOut
		default:
			data = cbRegister + e.Date
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(menuButton()))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func paymentMarkup(paymentURL, price string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(fmt.Sprintf(msgPayButton, price), paymentURL)),
		tgbotapi.NewInlineKeyboardRow(menuButton()),
	)
}

func newsletterMarkup(draftID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msgSendButton, cbSend+strconv.FormatInt(draftID, 10)),
			tgbotapi.NewInlineKeyboardButtonData(msgCancelButton, cbSendCancel),
		),
	)
}
