package dialogue

import (
	"fmt"

	"github.com/avbuyanov/postpilot/internal/chat"
)

// Choice ids understood by the engine. These travel through the adapters
// as button callback data.
const (
	choiceCheckSubscription = "check_subscription"
	choiceContentPlan       = "content_plan"
	choiceRepackage         = "repackage"
	choiceStartOver         = "start_over"
	choiceFinishExamples    = "finish_examples"
	choiceNewPlan           = "new_plan"
	choiceBackToMenu        = "back_to_menu"

	choiceAdvertising = "advertising"
	choiceProducts    = "products"
	choiceServices    = "services"
	choiceConsulting  = "consulting"

	choiceStyleAggressive = "aggressive"
	choiceStyleBusiness   = "business"
	choiceStyleHumorous   = "humorous"
	choiceStyleCustom     = "custom"
)

// monetizationLabels maps choice ids to the labels shown on buttons and
// stored in the profile prompt context.
var monetizationLabels = map[string]string{
	choiceAdvertising: "Реклама",
	choiceProducts:    "Продукты",
	choiceServices:    "Услуги",
	choiceConsulting:  "Консультации",
}

var styleLabels = map[string]string{
	choiceStyleAggressive: "Агрессивный",
	choiceStyleBusiness:   "Деловой",
	choiceStyleHumorous:   "Юмористический",
	choiceStyleCustom:     "Свой стиль",
}

const (
	msgWelcome = "Добро пожаловать! Я помогу вам создать engaging посты для вашего Telegram-канала.\nВыберите, что будем делать:"

	msgSubscribeRequired = "👋 Для использования бота необходимо подписаться на канал %s.\nПодпишитесь и нажмите кнопку проверки."
	msgStillNotMember    = "❌ Вы всё ещё не подписаны на канал %s.\nПодпишитесь и нажмите кнопку проверки ещё раз."

	msgAskTopic          = "Какая тема вашего канала?"
	msgAskAudience       = "Опишите вашу целевую аудиторию:"
	msgAskMonetization   = "Выберите метод монетизации:"
	msgAskProductDetails = "Опишите ваш продукт/услугу/курс подробнее:"
	msgAskPreferences    = "Какие у вас есть дополнительные пожелания к контенту?"
	msgAskStyle          = "Выберите стиль написания:"
	msgAskCustomStyle    = "Опишите ваш стиль:"
	msgAskEmotions       = "Какие эмоции должен вызывать контент у аудитории?"
	msgAskExamples       = "Пришлите примеры постов, которые вам нравятся (можно переслать из другого канала). Отправляйте по одному, затем нажмите «Готово»."
	msgExampleSaved      = "Пример сохранён (всего: %d). Пришлите ещё один или нажмите «Готово»."
	msgNeedMoreExamples  = "Нужен хотя бы %d пример(а) поста. Пришлите текст примера."

	msgGeneratingPlan = "🔄 Генерирую контент-план на %d дней..."
	msgPlanHeader     = "📋 Контент-план на %d дней:"
	msgAskPostNumber  = "✍️ Чтобы сгенерировать полный текст поста, введите его номер (от 1 до %d):"
	msgGeneratingPost = "🔄 Получено число %d, генерирую пост..."
	msgPostReady      = "✨ Готово! Вот ваш пост #%d:\n\n%s\n\nЧтобы сгенерировать другой пост, введите его номер (1-%d):"

	msgAskRepackageAudience = "🎯 Переупаковка продукта.\nДля кого ваш продукт? Опишите аудиторию:"
	msgAskRepackageTool     = "Какой инструмент или метод вы используете?"
	msgAskRepackageResult   = "Какой результат получает клиент?"

	msgBadPostNumber   = "❌ Пожалуйста, введите корректный номер поста (число от 1 до %d)."
	msgPlanNotFound    = "❌ Контент-план не найден. Пожалуйста, создайте новый план через меню."
	msgEntryNotFound   = "❌ Пост с таким номером не найден в плане. Создайте новый план через меню."
	msgGenerationError = "❌ Произошла ошибка при генерации. Попробуйте ещё раз позже."
	msgMissingFields   = "❌ Не все данные заполнены (%s). Начните заново через меню."
	msgUnexpectedInput = "Я вас не понял. Воспользуйтесь кнопками или напишите /start."
	msgCancelled       = "Операция отменена. Для начала напишите /start"
)

func (e *Engine) menuReply(chatID string) chat.Reply {
	return chat.Reply{
		ChatID: chatID,
		Text:   msgWelcome,
		Choices: [][]chat.Choice{
			chat.Row(chat.Choice{Label: "📋 Контент-план / Посты", ID: choiceContentPlan}),
			chat.Row(chat.Choice{Label: "🎯 Переупаковка продукта", ID: choiceRepackage}),
			chat.Row(chat.Choice{Label: "🔄 Начать заново", ID: choiceStartOver}),
		},
	}
}

func (e *Engine) subscriptionReply(chatID, text string) chat.Reply {
	return chat.Reply{
		ChatID: chatID,
		Text:   text,
		Choices: [][]chat.Choice{
			chat.Row(chat.Choice{Label: "✅ Я подписался", ID: choiceCheckSubscription}),
		},
		LinkLabel: "📢 Подписаться на канал",
		LinkURL:   e.channelURL,
	}
}

func monetizationReply(chatID string) chat.Reply {
	return chat.Reply{
		ChatID: chatID,
		Text:   msgAskMonetization,
		Choices: [][]chat.Choice{
			chat.Row(
				chat.Choice{Label: monetizationLabels[choiceAdvertising], ID: choiceAdvertising},
				chat.Choice{Label: monetizationLabels[choiceProducts], ID: choiceProducts},
			),
			chat.Row(
				chat.Choice{Label: monetizationLabels[choiceServices], ID: choiceServices},
				chat.Choice{Label: monetizationLabels[choiceConsulting], ID: choiceConsulting},
			),
		},
	}
}

func styleReply(chatID string) chat.Reply {
	return chat.Reply{
		ChatID: chatID,
		Text:   msgAskStyle,
		Choices: [][]chat.Choice{
			chat.Row(
				chat.Choice{Label: styleLabels[choiceStyleAggressive], ID: choiceStyleAggressive},
				chat.Choice{Label: styleLabels[choiceStyleBusiness], ID: choiceStyleBusiness},
			),
			chat.Row(
				chat.Choice{Label: styleLabels[choiceStyleHumorous], ID: choiceStyleHumorous},
				chat.Choice{Label: styleLabels[choiceStyleCustom], ID: choiceStyleCustom},
			),
		},
	}
}

func finishExamplesRow() [][]chat.Choice {
	return [][]chat.Choice{
		chat.Row(chat.Choice{Label: "✅ Готово", ID: choiceFinishExamples}),
	}
}

func newPlanRow() [][]chat.Choice {
	return [][]chat.Choice{
		chat.Row(chat.Choice{Label: "🔄 Сгенерировать новый контент-план", ID: choiceNewPlan}),
	}
}

func backToMenuRow() [][]chat.Choice {
	return [][]chat.Choice{
		chat.Row(chat.Choice{Label: "🔙 Вернуться в меню", ID: choiceBackToMenu}),
	}
}

func textReply(chatID, text string) chat.Reply {
	return chat.Reply{ChatID: chatID, Text: text}
}

func textReplyf(chatID, format string, args ...interface{}) chat.Reply {
	return chat.Reply{ChatID: chatID, Text: fmt.Sprintf(format, args...)}
}
