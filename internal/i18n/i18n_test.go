// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	require.NoError(t, i18n.Init())
	require.NoError(t, i18n.Init(), "second call is a no-op")
}

func TestT(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "Your verification code", i18n.T(ctx, "otp_subject_register"))
}

func TestT_German(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "Dein Bestätigungscode", i18n.T(ctx, "otp_subject_register"))
	assert.Equal(t, "de", i18n.GetLocale(ctx))
}

func TestT_UnknownKey(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "unknown_key_that_does_not_exist", i18n.T(ctx, "unknown_key_that_does_not_exist"))
}

func TestT_NoLocaleContext(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := context.Background()

	assert.Equal(t, "Your verification code", i18n.T(ctx, "otp_subject_register"))
	assert.Equal(t, "en", i18n.GetLocale(ctx))
}

func TestTData(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	body := i18n.TData(ctx, "otp_body_register", map[string]any{"Code": "123456", "Minutes": 10})

	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "10 minutes")
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header   string
		expected language.Tag
	}{
		{"de-DE,de;q=0.9,en;q=0.8", language.German},
		{"en-US,en;q=0.9", language.English},
		{"fr-FR", language.English},
		{"", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected.String(), i18n.MatchLanguage(tt.header).String())
		})
	}
}
