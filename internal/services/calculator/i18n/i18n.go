// Package i18n resolves the request language for calculator surfaces and
// localizes widget labels and error messages.
package i18n

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/platform/i18n/catalog"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "examdesk_lang"
)

var (
	supported = catalog.Default().Tags()
	matcher   = language.NewMatcher(supported)
)

// LanguageOption represents a supported language in the widget footer.
type LanguageOption struct {
	Tag    string
	Label  string
	URL    string
	Active bool
}

// Supported returns the supported language tags, default first.
func Supported() []language.Tag {
	return append([]language.Tag(nil), supported...)
}

// Default returns the default language tag.
func Default() language.Tag {
	return supported[0]
}

// ParseTag parses value and matches it to a supported tag.
func ParseTag(value string) (language.Tag, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Default(), false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return Default(), false
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return Default(), false
	}
	return supported[index], true
}

// MatchTags picks the best supported tag for a preference list.
func MatchTags(tags []language.Tag) language.Tag {
	_, index, _ := matcher.Match(tags...)
	return supported[index]
}

// ResolveTag determines the best language tag for the request.
// The bool indicates whether the lang query param should be persisted as a cookie.
func ResolveTag(r *http.Request) (language.Tag, bool) {
	if r == nil {
		return Default(), false
	}

	if langValue := strings.TrimSpace(r.URL.Query().Get(LangParam)); langValue != "" {
		if tag, ok := ParseTag(langValue); ok {
			return tag, true
		}
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := ParseTag(cookie.Value); ok {
			return tag, false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return MatchTags(tags), false
		}
	}

	return Default(), false
}

// SetLanguageCookie persists the selected language on the response.
func SetLanguageCookie(w http.ResponseWriter, tag language.Tag) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// Localizer renders catalog messages for one language.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLocalizer returns a localizer for tag.
func NewLocalizer(tag language.Tag) Localizer {
	return Localizer{tag: tag, printer: message.NewPrinter(tag)}
}

// FromRequest resolves the request language, persisting an explicit choice.
func FromRequest(w http.ResponseWriter, r *http.Request) Localizer {
	tag, persist := ResolveTag(r)
	if persist {
		SetLanguageCookie(w, tag)
	}
	return NewLocalizer(tag)
}

// Tag returns the localizer's language.
func (l Localizer) Tag() language.Tag {
	return l.tag
}

// Locale returns the catalog locale name, e.g. "pt-BR".
func (l Localizer) Locale() string {
	return l.tag.String()
}

// T returns the message for key, or key itself when it has no translation.
func (l Localizer) T(key string) string {
	if l.printer == nil {
		return key
	}
	return l.printer.Sprintf(key)
}

// Error returns the user-facing message for err.
func (l Localizer) Error(err error) string {
	return apperrors.LocalizedMessage(err, l.Locale())
}

// ActionLabel returns the accessible label for an action's button.
func (l Localizer) ActionLabel(a engine.Action) string {
	key := actionLabelKey(a)
	if a.Kind == engine.KindDigit {
		return l.T(key) + " " + a.Value
	}
	return l.T(key)
}

func actionLabelKey(a engine.Action) string {
	switch a.Kind {
	case engine.KindDigit:
		return "calculator.button.digit"
	case engine.KindDot:
		return "calculator.button.dot"
	case engine.KindSign:
		return "calculator.button.sign"
	case engine.KindBackspace:
		return "calculator.button.backspace"
	case engine.KindClearEntry:
		return "calculator.button.clear_entry"
	case engine.KindClearAll:
		return "calculator.button.clear_all"
	case engine.KindEquals:
		return "calculator.button.equals"
	case engine.KindOperator:
		switch engine.Operator(a.Value) {
		case engine.OperatorAdd:
			return "calculator.button.add"
		case engine.OperatorSubtract:
			return "calculator.button.subtract"
		case engine.OperatorMultiply:
			return "calculator.button.multiply"
		case engine.OperatorDivide:
			return "calculator.button.divide"
		}
	case engine.KindUnary:
		switch engine.UnaryKind(a.Value) {
		case engine.UnarySqrt:
			return "calculator.button.sqrt"
		case engine.UnaryReciprocal:
			return "calculator.button.reciprocal"
		case engine.UnaryPercent:
			return "calculator.button.percent"
		}
	case engine.KindMemory:
		switch engine.MemoryOp(a.Value) {
		case engine.MemoryClear:
			return "calculator.button.memory_clear"
		case engine.MemoryRecall:
			return "calculator.button.memory_recall"
		case engine.MemoryStore:
			return "calculator.button.memory_store"
		case engine.MemoryAdd:
			return "calculator.button.memory_add"
		case engine.MemorySubtract:
			return "calculator.button.memory_subtract"
		}
	}
	return a.String()
}

// LanguageOptions lists supported languages with links that switch to them.
func (l Localizer) LanguageOptions(path string, rawQuery string) []LanguageOption {
	options := make([]LanguageOption, 0, len(supported))
	for _, tag := range supported {
		options = append(options, LanguageOption{
			Tag:    tag.String(),
			Label:  l.T(languageKey(tag)),
			URL:    LanguageURL(path, rawQuery, tag.String()),
			Active: tag == l.tag,
		})
	}
	return options
}

func languageKey(tag language.Tag) string {
	switch tag.String() {
	case "pt-BR":
		return "calculator.lang_pt_br"
	case "en-US":
		return "calculator.lang_en"
	default:
		return tag.String()
	}
}

// LanguageURL returns the current URL with the language param updated.
func LanguageURL(path string, rawQuery string, tag string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "/"
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	query.Set(LangParam, tag)
	return (&url.URL{Path: path, RawQuery: query.Encode()}).String()
}
