// Package prompt builds the prompts sent to the generative backend. All
// functions are pure string builders; I/O happens in the dialogue engine.
package prompt

import (
	"fmt"
	"strings"

	"github.com/avbuyanov/postpilot/internal/models"
	"github.com/avbuyanov/postpilot/internal/plan"
)

// Warm-up phases of the 14-day calendar. Each phase dictates the framing
// of the posts inside its day range.
const (
	phasePain      = "прогрев через боли и страхи аудитории"
	phaseSolution  = "демонстрация решений и первых результатов"
	phaseExpertise = "подтверждение экспертности автора"
	phaseProduct   = "мягкое подведение к продукту или услуге"
)

// PhaseFor returns the warm-up framing for a day of the calendar:
// days 1-5 audience pain, 6-9 solutions, 10-11 expertise, 12-14 soft
// product introduction.
func PhaseFor(day int) string {
	switch {
	case day <= 5:
		return phasePain
	case day <= 9:
		return phaseSolution
	case day <= 11:
		return phaseExpertise
	default:
		return phaseProduct
	}
}

// ComposePlanPrompt builds the content-calendar prompt. It encodes the
// fixed warm-up structure and instructs the backend to emit exactly days
// entries in the "День N:" marker format with no surrounding prose.
func ComposePlanPrompt(p *models.ContentProfile, days int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Создай контент-план на %d дней для Telegram-канала.\n\n", days)
	b.WriteString("Данные канала:\n")
	fmt.Fprintf(&b, "- Тема канала: %s\n", p.Topic)
	fmt.Fprintf(&b, "- Целевая аудитория: %s\n", p.Audience)
	fmt.Fprintf(&b, "- Метод монетизации: %s\n", p.Monetization)
	if p.ProductDetails != "" {
		fmt.Fprintf(&b, "- Детали продукта/услуги/курса: %s\n", p.ProductDetails)
	}
	fmt.Fprintf(&b, "- Дополнительные пожелания: %s\n", p.Preferences)
	fmt.Fprintf(&b, "- Стиль написания: %s\n", p.Style)
	fmt.Fprintf(&b, "- Желаемые эмоции аудитории: %s\n", p.Emotions)

	if examples := p.ExampleList(); len(examples) > 0 {
		b.WriteString("\nПримеры постов, которые нравятся автору:\n")
		for i, ex := range examples {
			fmt.Fprintf(&b, "%d. %s\n", i+1, ex.Text)
			if ex.Source != "" {
				fmt.Fprintf(&b, "   (%s)\n", ex.Source)
			}
		}
	}

	b.WriteString("\nСтруктура прогрева:\n")
	fmt.Fprintf(&b, "- Дни 1-5: %s\n", phasePain)
	fmt.Fprintf(&b, "- Дни 6-9: %s\n", phaseSolution)
	fmt.Fprintf(&b, "- Дни 10-11: %s\n", phaseExpertise)
	fmt.Fprintf(&b, "- Дни 12-%d: %s\n", days, phaseProduct)

	b.WriteString("\nФормат ответа — строго:\n")
	fmt.Fprintf(&b, "Ровно %d пунктов, пронумерованных подряд от 1 до %d.\n", days, days)
	b.WriteString("Каждый пункт начинается с новой строки в виде:\n")
	b.WriteString("День N: <интригующий заголовок в стиле кликбейт>\n")
	b.WriteString("Описание: <краткое описание поста в одно предложение>\n")
	b.WriteString("Цель: <цель поста — вовлечение, продажи и т.д.>\n")
	b.WriteString("\nБез вступления и заключения, только пункты плана. Ответ на русском языке.")
	return b.String()
}

// ComposePostPrompt builds the single-post prompt from the profile and the
// originating calendar entry, so the long-form post stays consistent with
// the plan and its day's warm-up framing.
func ComposePostPrompt(p *models.ContentProfile, entry plan.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Напиши пост №%d для Telegram-канала по пункту контент-плана.\n\n", entry.Day)
	b.WriteString("Пункт плана:\n")
	fmt.Fprintf(&b, "- Заголовок: %s\n", entry.Headline)
	if entry.Description != "" {
		fmt.Fprintf(&b, "- Описание: %s\n", entry.Description)
	}
	if entry.Objective != "" {
		fmt.Fprintf(&b, "- Цель поста: %s\n", entry.Objective)
	}
	fmt.Fprintf(&b, "- Этап прогрева (день %d): %s\n", entry.Day, PhaseFor(entry.Day))

	b.WriteString("\nДанные канала:\n")
	fmt.Fprintf(&b, "- Тема канала: %s\n", p.Topic)
	fmt.Fprintf(&b, "- Целевая аудитория: %s\n", p.Audience)
	fmt.Fprintf(&b, "- Метод монетизации: %s\n", p.Monetization)
	if p.ProductDetails != "" {
		fmt.Fprintf(&b, "- Детали продукта/услуги/курса: %s\n", p.ProductDetails)
	}
	fmt.Fprintf(&b, "- Дополнительные пожелания: %s\n", p.Preferences)
	fmt.Fprintf(&b, "- Стиль написания: %s\n", p.Style)
	fmt.Fprintf(&b, "- Желаемые эмоции аудитории: %s\n", p.Emotions)

	b.WriteString("\nТребования к посту:\n")
	b.WriteString("- Вовлекающий и естественный текст\n")
	b.WriteString("- Реальные примеры, истории и кейсы\n")
	b.WriteString("- Умеренное использование эмодзи\n")
	b.WriteString("- Ключевые моменты выделены жирным шрифтом\n")
	b.WriteString("- Если монетизация через продукт или услугу, пост плавно подводит к покупке\n")
	b.WriteString("\nОтвет на русском языке.")
	return b.String()
}

// ComposeRepackagePrompt builds the product-repackaging prompt. Beyond
// restating the three inputs it asks for a value framing: ценность =
// желаемый результат × вероятность его достижения / (время до результата ×
// усилия).
func ComposeRepackagePrompt(p *models.ContentProfile) string {
	var b strings.Builder
	b.WriteString("Сделай переупаковку продукта для Telegram-канала.\n\n")
	b.WriteString("Исходные данные:\n")
	fmt.Fprintf(&b, "- Целевая аудитория: %s\n", p.RepackageAudience)
	fmt.Fprintf(&b, "- Инструмент/метод: %s\n", p.RepackageTool)
	fmt.Fprintf(&b, "- Заявленный результат: %s\n", p.RepackageResult)

	b.WriteString("\nВ ответе обязательно:\n")
	b.WriteString("1. Назови аудиторию, для которой переупаковывается продукт.\n")
	b.WriteString("2. Назови инструмент или метод.\n")
	b.WriteString("3. Назови заявленный результат.\n")
	b.WriteString("4. Сформулируй ценность предложения по формуле: ")
	b.WriteString("ценность = желаемый результат × вероятность его достижения / (время до результата × усилия). ")
	b.WriteString("Нужна формулировка выгоды более высокого порядка, а не пересказ исходных данных.\n")
	b.WriteString("\nОтвет на русском языке.")
	return b.String()
}
