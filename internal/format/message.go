// Package format renders submissions as Telegram MarkdownV2 messages.
package format

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wolfman30/storefront-bridge/internal/submission"
)

// ParseMode is the Telegram parse mode the composed text is written for.
const ParseMode = "MarkdownV2"

const (
	orderHeader = "*Новий заказ*"
	leadHeader  = "*Нова заявка*"
	placeholder = "—"
	currency    = " ₴"
)

// markdownV2 escapes every character Telegram reserves in MarkdownV2. The
// replacements are disjoint, so a single pass is order independent.
var markdownV2 = strings.NewReplacer(
	`\`, `\\`,
	`_`, `\_`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`~`, `\~`,
	"`", "\\`",
	`>`, `\>`,
	`#`, `\#`,
	`+`, `\+`,
	`-`, `\-`,
	`=`, `\=`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`.`, `\.`,
	`!`, `\!`,
)

var uahPrinter = message.NewPrinter(language.Ukrainian)

// Escape makes s render literally inside a MarkdownV2 message.
func Escape(s string) string {
	return markdownV2.Replace(s)
}

// Money rounds to whole hryvnias, groups thousands the Ukrainian way and
// appends the currency sign.
func Money(amount float64) string {
	rounded := int64(math.Floor(amount + 0.5))
	return uahPrinter.Sprintf("%d", rounded) + currency
}

// Compose renders s as a single MarkdownV2 text block.
func Compose(s submission.Submission) string {
	customer := s.Contact()
	name := strings.TrimSpace(customer.LastName + " " + customer.FirstName)
	phone := strings.TrimSpace(customer.Phone)

	head := leadHeader
	if s.Kind() == submission.KindOrder {
		head = orderHeader
	}

	lines := []string{head, ""}
	lines = append(lines,
		"👤 *Клієнт:* "+code(Escape(name)),
		"📞 *Телефон:* "+code(Escape(phone)),
	)

	if order, ok := s.(submission.Order); ok {
		city := orPlaceholder(order.Delivery.City)
		addr := orPlaceholder(order.Delivery.Address)
		lines = append(lines, "🚚 *Місто/Відділення:* "+code(Escape(city)+" / "+Escape(addr)))

		if items := order.Items(); len(items) > 0 {
			lines = append(lines, "", "*Позиції:*")
			for _, it := range items {
				lines = append(lines, itemLine(it))
			}
		}

		lines = append(lines, "", "💰 *Разом:* "+code(Escape(Money(order.Total()))))
	}

	if src := s.Source(); src != "" {
		lines = append(lines, "🔗 *Джерело:* "+Escape(src))
	}

	return strings.Join(lines, "\n")
}

func itemLine(it submission.Item) string {
	title := it.Title
	if it.Label != "" {
		title += " — " + it.Label
	}
	return "• " + Escape(title) + " × " + Escape(quantity(it.Qty)) + " — " + code(Escape(Money(it.Price)))
}

func quantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func code(s string) string {
	return "`" + s + "`"
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
