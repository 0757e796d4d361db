// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// IsValidEmail проверяет минимально разумную форму адреса электронной почты:
// ровно один @, непустая локальная часть и домен с точкой не по краям.
func IsValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t") {
		return false
	}

	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}

	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	if dot <= 0 || strings.HasSuffix(domain, ".") {
		return false
	}

	return true
}
