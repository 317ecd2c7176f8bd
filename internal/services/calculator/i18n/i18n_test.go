package i18n

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/examdesk/internal/platform/errors"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
)

func TestResolveTagFromQueryPersists(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/calculator?lang=pt-BR", nil)
	tag, persist := ResolveTag(req)
	if tag != language.BrazilianPortuguese {
		t.Fatalf("tag = %v, want %v", tag, language.BrazilianPortuguese)
	}
	if !persist {
		t.Fatal("persist = false, want true")
	}
}

func TestResolveTagFromCookieAndHeader(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/calculator", nil)
	req.AddCookie(&http.Cookie{Name: LangCookieName, Value: "pt-BR"})
	if tag, persist := ResolveTag(req); tag != language.BrazilianPortuguese || persist {
		t.Fatalf("cookie tag = %v persist = %v", tag, persist)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/calculator", nil)
	req.Header.Set("Accept-Language", "pt;q=0.9, fr;q=0.8")
	if tag, _ := ResolveTag(req); tag != language.BrazilianPortuguese {
		t.Fatalf("header tag = %v, want %v", tag, language.BrazilianPortuguese)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/calculator?lang=klingon", nil)
	if tag, persist := ResolveTag(req); tag != Default() || persist {
		t.Fatalf("unknown tag = %v persist = %v", tag, persist)
	}
}

func TestFromRequestSetsCookie(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/calculator?lang=pt-BR", nil)
	loc := FromRequest(rec, req)
	if loc.Locale() != "pt-BR" {
		t.Fatalf("locale = %q, want pt-BR", loc.Locale())
	}
	if cookie := rec.Header().Get("Set-Cookie"); !strings.Contains(cookie, LangCookieName+"=pt-BR") {
		t.Fatalf("Set-Cookie = %q", cookie)
	}
}

func TestLocalizerTranslates(t *testing.T) {
	t.Parallel()

	en := NewLocalizer(language.AmericanEnglish)
	pt := NewLocalizer(language.BrazilianPortuguese)
	if got := en.T("calculator.title"); got != "Calculator" {
		t.Fatalf("en title = %q", got)
	}
	if got := pt.T("calculator.title"); got != "Calculadora" {
		t.Fatalf("pt title = %q", got)
	}
	if got := en.T("calculator.missing_key"); got != "calculator.missing_key" {
		t.Fatalf("missing key = %q", got)
	}
}

func TestActionLabel(t *testing.T) {
	t.Parallel()

	en := NewLocalizer(language.AmericanEnglish)
	tests := []struct {
		action engine.Action
		want   string
	}{
		{action: engine.Digit('7'), want: "Digit 7"},
		{action: engine.Memory(engine.MemoryAdd), want: "Memory add"},
		{action: engine.Unary(engine.UnarySqrt), want: "Square root"},
		{action: engine.ChooseOperator(engine.OperatorDivide), want: "Divide"},
		{action: engine.ClearAll(), want: "Clear all"},
	}
	for _, tt := range tests {
		if got := en.ActionLabel(tt.action); got != tt.want {
			t.Fatalf("ActionLabel(%v) = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestLocalizerError(t *testing.T) {
	t.Parallel()

	pt := NewLocalizer(language.BrazilianPortuguese)
	err := apperrors.WithMetadata(apperrors.CodeInvalidKey, "unknown key", map[string]string{"Key": "F5"})
	if got := pt.Error(err); !strings.Contains(got, "F5") {
		t.Fatalf("localized error = %q", got)
	}
	if got := NewLocalizer(language.AmericanEnglish).Error(errors.New("boom")); got == "" || strings.Contains(got, "boom") {
		t.Fatalf("unknown error message = %q", got)
	}
}

func TestLanguageOptions(t *testing.T) {
	t.Parallel()

	options := NewLocalizer(language.BrazilianPortuguese).LanguageOptions("/calculator", "x=1")
	if len(options) != 2 {
		t.Fatalf("len(options) = %d, want 2", len(options))
	}
	if options[0].Tag != "en-US" || options[0].Active {
		t.Fatalf("options[0] = %+v", options[0])
	}
	if !options[1].Active || options[1].Label != "Português (Brasil)" {
		t.Fatalf("options[1] = %+v", options[1])
	}
	if options[1].URL != "/calculator?lang=pt-BR&x=1" {
		t.Fatalf("url = %q", options[1].URL)
	}
}

func TestLanguageURL(t *testing.T) {
	t.Parallel()

	if got := LanguageURL("", "", "en-US"); got != "/?lang=en-US" {
		t.Fatalf("LanguageURL = %q", got)
	}
}
