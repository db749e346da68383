package bot

// User-facing texts. The bot serves a Russian-speaking office.
const (
	textGreeting = "👋 Здравствуйте, %s!\n\n" +
		"🏢 Добро пожаловать в систему бронирования переговорных!\n\n" +
		"📱 Для доступа к системе нажмите кнопку ниже:"

	textHelp = "🤖 <b>Бот системы бронирования переговорных</b>\n\n" +
		"📋 <b>Доступные команды:</b>\n" +
		"/start - Запустить бота и получить доступ к веб-приложению\n" +
		"/help - Показать это сообщение помощи\n" +
		"/rooms - Переговорные и брони на сегодня\n\n" +
		"💡 <b>Как пользоваться:</b>\n" +
		"1. Нажмите /start\n" +
		"2. Выберите 'Открыть веб-приложение'\n" +
		"3. Забронируйте переговорную!\n\n" +
		"❓ По вопросам обращайтесь к администратору."

	textDefaultName = "Пользователь"

	textOpenWebApp = "🚀 Открыть веб-приложение"
	textDirectLink = "📋 Прямая ссылка"

	textForbidden      = "⛔ Недостаточно прав."
	textUnknownCommand = "Неизвестная команда. Наберите /help."

	textNoRooms         = "Переговорных пока нет."
	textNoNotifications = "Активных уведомлений нет."
	textNotifDisabled   = "Уведомление отключено."
	textNotifCleared    = "Все уведомления удалены."
	textNotifGone       = "Уведомление не найдено."
	textClearAll        = "🗑 Очистить все"
)
