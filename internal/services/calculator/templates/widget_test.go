package templates

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/i18n"
)

func TestWidgetRendersDisplayAndKeypad(t *testing.T) {
	var b strings.Builder
	err := Widget(WidgetData{
		View:     engine.View{Display: "73", HasMemory: true},
		Loc:      i18n.NewLocalizer(language.AmericanEnglish),
		PressURL: "/calculator/press",
		CloseURL: "/calculator/close",
	}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Widget() = %v", err)
	}
	got := b.String()
	for _, want := range []string{
		`id="calculator"`,
		`<output class="calculator-value">73</output>`,
		`class="calculator-memory"`,
		`hx-post="/calculator/press"`,
		`value="M+"`,
		`aria-label="Memory add"`,
		`value="1/x"`,
		`Close calculator`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("widget missing %q in %q", want, got)
		}
	}
}

func TestWidgetOmitsMemoryIndicatorWhenEmpty(t *testing.T) {
	var b strings.Builder
	err := Widget(WidgetData{
		View: engine.View{Display: "0"},
		Loc:  i18n.NewLocalizer(language.AmericanEnglish),
	}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Widget() = %v", err)
	}
	if strings.Contains(b.String(), "calculator-memory") {
		t.Fatal("memory indicator rendered without memory")
	}
	if strings.Contains(b.String(), "calculator-close") {
		t.Fatal("close form rendered without close url")
	}
}

func TestWidgetEscapesError(t *testing.T) {
	var b strings.Builder
	err := Widget(WidgetData{
		View:  engine.View{Display: "0"},
		Loc:   i18n.NewLocalizer(language.AmericanEnglish),
		Error: `<script>alert(1)</script>`,
	}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Widget() = %v", err)
	}
	if strings.Contains(b.String(), "<script>alert") {
		t.Fatalf("error message not escaped: %q", b.String())
	}
}

func TestPageWrapsWidgetInMain(t *testing.T) {
	loc := i18n.NewLocalizer(language.BrazilianPortuguese)
	data := PageData{
		Widget:    WidgetData{View: engine.View{Display: "0"}, Loc: loc},
		Languages: loc.LanguageOptions("/calculator", ""),
	}
	var b strings.Builder
	if err := Page(data, Widget(data.Widget)).Render(context.Background(), &b); err != nil {
		t.Fatalf("Page() = %v", err)
	}
	got := b.String()
	if !strings.HasPrefix(got, "<!DOCTYPE html>") {
		t.Fatalf("page missing doctype: %q", got[:40])
	}
	for _, want := range []string{`lang="pt-BR"`, `<title>Calculadora</title>`, `<main><section id="calculator"`, `aria-current="true"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestClosed(t *testing.T) {
	var b strings.Builder
	err := Closed(ClosedData{Loc: i18n.NewLocalizer(language.AmericanEnglish), OpenURL: "/calculator"}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Closed() = %v", err)
	}
	if !strings.Contains(b.String(), `href="/calculator"`) {
		t.Fatalf("closed notice missing reopen link: %q", b.String())
	}
}
