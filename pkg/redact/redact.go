// redact маскирует чувствительные данные для логов клиента: номера телефонов,
// токены и пароли. В лог попадает ровно столько, сколько нужно для отладки
// (последние цифры телефона), но не сам секрет.
package redact

import "unicode"

// Phone маскирует номер телефона, оставляя только две последние цифры.
//
// Правила:
//   - Нецифровые символы (+, пробелы, скобки, дефисы) отбрасываются;
//   - Если цифр меньше пяти — возвращается "***";
//   - Иначе — "***" + две последние цифры.
//
// Примеры:
//
//	"+7 (701) 123-45-67" -> "***67"
//	"87011234567"        -> "***67"
//	"123"                -> "***"
func Phone(s string) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}

	if len(digits) < 5 {
		return "***"
	}

	return "***" + string(digits[len(digits)-2:])
}

// Token возвращает литерал-заглушку для токена в логах.
// Пустой токен остаётся пустым, чтобы в логе было видно его отсутствие.
func Token(s string) string {
	if s == "" {
		return ""
	}

	return "[REDACTED_TOKEN]"
}

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }
