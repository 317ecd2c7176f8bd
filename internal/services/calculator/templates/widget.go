// Package templates renders the calculator widget as templ components.
package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/keymap"
	"github.com/louisbranch/examdesk/internal/services/calculator/i18n"
)

// WidgetID is the DOM id HTMX swaps on every press.
const WidgetID = "calculator"

// HTMXScriptURL is loaded by Page to drive partial updates.
const HTMXScriptURL = "https://unpkg.com/htmx.org@2.0.4"

// WidgetData is everything the widget needs to render one state.
type WidgetData struct {
	View     engine.View
	Rows     [][]keymap.Button
	Loc      i18n.Localizer
	PressURL string
	CloseURL string
	// Error is a localized message shown above the keypad.
	Error string
}

// PageData wraps the widget in a full document.
type PageData struct {
	Widget    WidgetData
	Languages []i18n.LanguageOption
}

// ClosedData renders the closed-session notice.
type ClosedData struct {
	Loc     i18n.Localizer
	OpenURL string
}

// Widget renders the calculator display and keypad.
func Widget(data WidgetData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		loc := data.Loc
		rows := data.Rows
		if rows == nil {
			rows = keymap.Buttons()
		}

		hw.raw(`<section id="` + WidgetID + `" class="calculator" aria-label="`)
		hw.text(loc.T("calculator.title"))
		hw.raw(`">`)

		hw.raw(`<div class="calculator-display" role="status" aria-live="polite" aria-label="`)
		hw.text(loc.T("calculator.display_label"))
		hw.raw(`">`)
		if data.View.HasMemory {
			hw.raw(`<span class="calculator-memory" title="`)
			hw.text(loc.T("calculator.memory_indicator_label"))
			hw.raw(`">`)
			hw.text(loc.T("calculator.memory_indicator"))
			hw.raw(`</span>`)
		}
		hw.raw(`<output class="calculator-value">`)
		hw.text(data.View.Display)
		hw.raw(`</output></div>`)

		if msg := strings.TrimSpace(data.Error); msg != "" {
			hw.raw(`<p class="calculator-error" role="alert">`)
			hw.text(msg)
			hw.raw(`</p>`)
		}

		hw.raw(`<form class="calculator-keypad" method="post" action="`)
		hw.text(data.PressURL)
		hw.raw(`" hx-post="`)
		hw.text(data.PressURL)
		hw.raw(`" hx-target="#` + WidgetID + `" hx-swap="outerHTML">`)
		for _, row := range rows {
			hw.raw(`<div class="calculator-row">`)
			for _, button := range row {
				if button.Label == "" {
					hw.raw(`<span class="calculator-spacer"></span>`)
					continue
				}
				hw.raw(`<button type="submit" name="button" class="calculator-button calculator-button-`)
				hw.text(string(button.Style))
				hw.raw(`" value="`)
				hw.text(button.Label)
				hw.raw(`" aria-label="`)
				hw.text(loc.ActionLabel(button.Action))
				hw.raw(`">`)
				hw.text(button.Label)
				hw.raw(`</button>`)
			}
			hw.raw(`</div>`)
		}
		hw.raw(`</form>`)

		hw.raw(`<p class="calculator-hint">`)
		hw.text(loc.T("calculator.keyboard_hint"))
		hw.raw(`</p>`)

		if data.CloseURL != "" {
			hw.raw(`<form method="post" action="`)
			hw.text(data.CloseURL)
			hw.raw(`" hx-post="`)
			hw.text(data.CloseURL)
			hw.raw(`" hx-target="#` + WidgetID + `" hx-swap="outerHTML"><button type="submit" class="calculator-close">`)
			hw.text(loc.T("calculator.close"))
			hw.raw(`</button></form>`)
		}
		hw.raw(`</section>`)
		return hw.err
	})
}

// Closed renders the notice shown after a session ends.
func Closed(data ClosedData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<section id="` + WidgetID + `" class="calculator calculator-closed"><p>`)
		hw.text(data.Loc.T("calculator.closed"))
		hw.raw(`</p>`)
		if data.OpenURL != "" {
			hw.raw(`<a href="`)
			hw.text(data.OpenURL)
			hw.raw(`">`)
			hw.text(data.Loc.T("calculator.reopen"))
			hw.raw(`</a>`)
		}
		hw.raw(`</section>`)
		return hw.err
	})
}

// Page renders a full document around body.
func Page(data PageData, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		loc := data.Widget.Loc
		hw.raw(`<!DOCTYPE html><html lang="`)
		hw.text(loc.Locale())
		hw.raw(`"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		hw.text(loc.T("calculator.title"))
		hw.raw(`</title><script src="` + HTMXScriptURL + `"></script><style>` + widgetCSS + `</style></head><body><main>`)
		if hw.err != nil {
			return hw.err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		hw.raw(`</main>`)
		if len(data.Languages) > 0 {
			hw.raw(`<footer><nav aria-label="`)
			hw.text(loc.T("calculator.language"))
			hw.raw(`">`)
			for _, option := range data.Languages {
				hw.raw(`<a href="`)
				hw.text(option.URL)
				hw.raw(`"`)
				if option.Active {
					hw.raw(` aria-current="true"`)
				}
				hw.raw(`>`)
				hw.text(option.Label)
				hw.raw(`</a> `)
			}
			hw.raw(`</nav></footer>`)
		}
		hw.raw(`<script>` + keyboardScript + `</script></body></html>`)
		return hw.err
	})
}

// htmlWriter stops writing after the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

const widgetCSS = `.calculator{display:inline-block;font-family:system-ui,sans-serif;border:1px solid #999;border-radius:6px;padding:8px;background:#f4f4f4}` +
	`.calculator-display{display:flex;justify-content:space-between;background:#fff;border:1px solid #bbb;padding:6px 8px;font-size:1.5rem;min-width:14rem}` +
	`.calculator-value{margin-left:auto;font-variant-numeric:tabular-nums}` +
	`.calculator-memory{font-size:.8rem;color:#555}` +
	`.calculator-row{display:flex;gap:4px;margin-top:4px}` +
	`.calculator-button{flex:1;min-width:2.8rem;padding:6px;font-size:1rem}` +
	`.calculator-button-memory{color:#a00}.calculator-button-control{color:#005}.calculator-button-equals{background:#dde}` +
	`.calculator-error{color:#a00}.calculator-hint{font-size:.75rem;color:#555}`

// keyboardScript forwards key presses to the widget form as key fields.
const keyboardScript = `document.addEventListener("keydown",function(e){` +
	`var f=document.querySelector("#` + WidgetID + ` form.calculator-keypad");` +
	`if(!f||e.ctrlKey||e.metaKey||e.altKey||e.target.tagName==="INPUT")return;` +
	`if(!/^([0-9.,+\-*\/=%cC]|Enter|Backspace|Escape|Delete)$/.test(e.key))return;` +
	`e.preventDefault();` +
	`htmx.ajax("POST",f.getAttribute("action"),{target:"#` + WidgetID + `",swap:"outerHTML",values:{key:e.key}});});`
