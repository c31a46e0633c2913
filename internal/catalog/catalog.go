// Package catalog is the static media picker content offered to clients and
// the validation applied to sticker and GIF messages.
package catalog

import (
	"nexochat/backend/internal/apperror"

	"github.com/forPelevin/gomoji"
	"github.com/go-playground/validator/v10"
)

var stickers = []string{
	"😀", "😂", "🥰", "😍", "🤔", "😎", "🙄", "😴",
	"🤗", "🎉", "👍", "❤️", "🔥", "⭐", "💯", "🚀",
	"👋", "🤝", "💪", "🙏", "😊", "😋", "🤣", "😭",
}

var gifs = []string{
	"https://media.giphy.com/media/3oKIPnAiaMCws8nOsE/giphy.gif",
	"https://media.giphy.com/media/26ufdipQqU2lhNA4g/giphy.gif",
	"https://media.giphy.com/media/3o7abKGM3Xa70I7jCE/giphy.gif",
	"https://media.giphy.com/media/26AHPxxnSw1L9T1rW/giphy.gif",
	"https://media.giphy.com/media/3o6Zt0hNCfak3QCqsw/giphy.gif",
	"https://media.giphy.com/media/26gsjCZpPolPr3sBy/giphy.gif",
}

var (
	ErrInvalidSticker = apperror.InvalidArg("sticker must be a single emoji")
	ErrInvalidGIF     = apperror.InvalidArg("gif must be an http(s) URL")
)

var validate = validator.New()

// Stickers returns the picker's sticker set.
func Stickers() []string {
	return append([]string(nil), stickers...)
}

// GIFs returns the picker's GIF URLs.
func GIFs() []string {
	return append([]string(nil), gifs...)
}

func IsSticker(s string) bool {
	for _, st := range stickers {
		if st == s {
			return true
		}
	}
	return false
}

func IsGIF(url string) bool {
	for _, g := range gifs {
		if g == url {
			return true
		}
	}
	return false
}

// ValidateSticker accepts any catalog sticker, or any other string made of
// exactly one emoji.
func ValidateSticker(s string) error {
	if IsSticker(s) {
		return nil
	}
	found := gomoji.CollectAll(s)
	if len(found) != 1 || found[0].Character != s {
		return ErrInvalidSticker
	}
	return nil
}

// ValidateGIF accepts any absolute http or https URL.
func ValidateGIF(url string) error {
	if IsGIF(url) {
		return nil
	}
	if err := validate.Var(url, "required,http_url"); err != nil {
		return ErrInvalidGIF
	}
	return nil
}
