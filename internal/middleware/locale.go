// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	"github.com/labstack/echo/v4"
)

// Locale detects the user's preferred language from the Accept-Language
// header and sets it in the request context.
func Locale() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lang := i18n.MatchLanguage(c.Request().Header.Get("Accept-Language"))
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
