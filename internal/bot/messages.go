package bot

const (
	msgStart = "Привет!\nЭтот бот нужен для оплаты пропуска на вечеринку.\n"

	msgAgreement = "📝 Пользовательское соглашение\n\n" +
		"Оплачивая пропуск, вы соглашаетесь с правилами мероприятия. " +
		"Пропуск действует один раз на указанную дату и не подлежит передаче. " +
		"Возврат средств возможен по запросу организатору до начала мероприятия."

	msgChooseDate   = "Выберите дату:"
	msgNoEvents     = "Сейчас нет доступных мероприятий."
	msgNoTickets    = "У вас нет билетов на ближайшие мероприятия."
	msgTicketAbsent = "Билет не найден."
	msgTicketUsed   = "Этот билет уже использован."
	msgTicketUnpaid = "Оплата ещё не подтверждена. Билет придёт сюда сразу после оплаты."
	msgUnknownCmd   = "Неизвестная команда. Список команд: /help"
	msgUseCommands  = "Используйте меню или /help."
	msgInternal     = "Произошла ошибка. Попробуйте позже."
	msgBusy         = "Бот перегружен, повторите через минуту."
	msgCancelled    = "Отменено."
	msgPromptExpire = "Время ожидания ответа истекло."

	msgAlreadyRegistered = "Вы уже зарегистрированы на это мероприятие."
	msgNotAvailable      = "❌ Нет свободных мест!"
	msgEventNotFound     = "Мероприятие не найдено."
	msgUnknownError      = "Произошла неизвестная ошибка"
	msgPaymentRejected   = "Оплата отклонена, бронь снята. Можно попробовать ещё раз."
	msgPaymentTimedOut   = "Время на оплату истекло, бронь снята."
	msgInProgress        = "Покупка уже идёт. Завершите оплату по ссылке выше."
	msgInterrupted       = "Бот перезапускается. Если оплата пройдёт, билет придёт автоматически."
	msgReleased          = "Оплата билета на %s не подтвердилась, бронь снята."

	msgPayment       = "Оплатите пропуск на %s в течение %d мин."
	msgTicketCaption = "🎟 Пропуск на %s\nКод: %s\nПокажите QR-код на входе."

	msgCodeValid     = "✅ Пропуск действителен. Проход разрешён."
	msgCodeUsed      = "⛔ Пропуск уже использован."
	msgCodeUnpaid    = "⏳ Пропуск не оплачен."
	msgCodeInvalid   = "❌ Код недействителен."
	msgCodeAmbiguous = "Код подходит к нескольким пропускам, введите больше символов."

	msgAskDate       = "Введите дату в формате ДД.ММ.ГГГГ или 'выход' для отмены"
	msgAskCapacity   = "Введите максимальное количество участников (по умолчанию %d)"
	msgBadDate       = "Неверный формат даты: %s"
	msgEventCreated  = "Мероприятие %s добавлено, мест: %d."
	msgEventUpdated  = "Мероприятие %s обновлено, мест: %d."
	msgCapacityBelow = "Нельзя сделать мест меньше, чем уже выдано пропусков."
	msgEventDeleted  = "Мероприятие %s удалено, аннулировано пропусков: %d."
	msgEventsHeader  = "Ближайшие мероприятия:"
	msgEventLine     = "%s: %d/%d, свободно %d"
	msgRevoked       = "Удалено записей: %d."
	msgAskBroadcast  = "Введите текст рассылки или 'выход' для отмены"
	msgPreview       = "Предпросмотр:\n\n%s"
	msgDraftMissing  = "Черновик рассылки не найден."
	msgBroadcasting  = "Рассылка для %s..."
	msgBroadcastDone = "Рассылка завершена: отправлено %d из %d, ошибок %d."
	msgScannerOff    = "Сканер не настроен: задайте SCANNER_JWT_SECRET."
	msgScannerToken  = "Токен сканера, действует до %s:\n\n%s"
	msgAdminError    = "⚠️ Ошибка в %s ⚠️\n\nТип: %T\nОписание: %v"
	msgUsageCheck    = "Использование: /check <код>"
	msgUsageDelEvent = "Использование: /delevent <дата>"
	msgUsageRevoke   = "Использование: /revoke <user_id> [дата]"
	msgUsageGenQR    = "Использование: /genqr <код>"
	msgHelpHeader    = "Команды:"
	msgAllUsers      = "всех пользователей"
	msgPayButton     = "Оплатить %s ₽"
	msgMenuButton    = "🗄 В меню"
	msgBuyButton     = "Купить билеты"
	msgAgreeButton   = "📝 Пользовательское соглашение"
	msgSendButton    = "Отправить"
	msgCancelButton  = "Отмена"
	msgEventButton   = "%s — %d %s"
	msgHoldingTicket = " ✅"
)

// cancelWords end a multi-turn prompt.
var cancelWords = map[string]bool{"выход": true, "отмена": true, "/cancel": true}
