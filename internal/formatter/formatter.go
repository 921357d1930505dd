// Package formatter renders a gated deal into a structured message for
// the Notifier (spec §4.G). It contains no business logic: it is a pure
// transform from (Deal, temperature, score, rating, age) to text.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/promodescuentos/dealwatcher/internal/models"
)

const maxDescriptionLen = 280

// fireEmoji mirrors the rating tier with a fire-emoji count (spec
// glossary: 🔥→🔥🔥→🔥🔥🔥→🔥🔥🔥🔥).
func fireEmoji(rating int) string {
	if rating < 1 {
		rating = 1
	}
	if rating > 4 {
		rating = 4
	}
	return strings.Repeat("🔥", rating)
}

// Format renders deal into a Message ready for a Notifier. temperature
// and age are passed in rather than recomputed so the formatter stays a
// pure function with no wall-clock read.
func Format(deal models.Deal, temperature, finalScore float64, rating int, age time.Duration) models.Message {
	var b strings.Builder

	b.WriteString(fireEmoji(rating))
	b.WriteString(" *")
	b.WriteString(escapeMarkdownV2(deal.Title))
	b.WriteString("*\n")

	b.WriteString(fmt.Sprintf("🌡 %s° \\| ⏱ %s\n", escapeMarkdownV2(formatNumber(temperature)), formatAge(age)))

	if deal.Merchant != "" {
		b.WriteString(fmt.Sprintf("🏬 %s\n", escapeMarkdownV2(deal.Merchant)))
	}

	if deal.Price > 0 {
		if deal.Discount > 0 {
			b.WriteString(fmt.Sprintf("💰 %s \\(%s%% off\\)\n",
				escapeMarkdownV2(formatPrice(deal.Price)), escapeMarkdownV2(formatNumber(deal.Discount))))
		} else {
			b.WriteString(fmt.Sprintf("💰 %s\n", escapeMarkdownV2(formatPrice(deal.Price))))
		}
	}

	if deal.Coupon != "" {
		b.WriteString(fmt.Sprintf("🎟 Coupon: `%s`\n", escapeMarkdownV2(deal.Coupon)))
	}

	if deal.Description != "" {
		b.WriteString(escapeMarkdownV2(truncate(deal.Description, maxDescriptionLen)))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("🔗 [Ver oferta](%s)", deal.URL))

	return models.Message{
		Text:        b.String(),
		ParseMode:   "MarkdownV2",
		DealURL:     deal.URL,
		Rating:      rating,
		PreviewText: fireEmoji(rating) + " " + deal.Title,
	}
}

func formatAge(age time.Duration) string {
	if age < time.Hour {
		minutes := int(age.Minutes())
		if minutes < 0 {
			minutes = 0
		}
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%.1fh", age.Hours())
}

func formatPrice(price float64) string {
	return fmt.Sprintf("$%.2f", price)
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "…"
}

// escapeMarkdownV2 escapes Telegram MarkdownV2 special characters.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
