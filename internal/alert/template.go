package alert

import "strings"

// Render substitutes {name} placeholders in text with values from ctx.
// Unknown placeholders render as <missing:name> so a half-configured
// template produces a visibly broken message instead of a silent gap.
// Braces with no closing counterpart are passed through literally.
func Render(text string, ctx map[string]string) string {
	var b strings.Builder
	b.Grow(len(text))

	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			b.WriteString(text)
			return b.String()
		}
		close := strings.IndexByte(text[open:], '}')
		if close < 0 {
			b.WriteString(text)
			return b.String()
		}
		close += open

		b.WriteString(text[:open])
		name := text[open+1 : close]

		if val, ok := ctx[name]; ok {
			b.WriteString(val)
		} else {
			b.WriteString("<missing:")
			b.WriteString(name)
			b.WriteString(">")
		}
		text = text[close+1:]
	}
}

// RenderMessage renders a template's subject and body with one context.
func RenderMessage(tpl Template, ctx map[string]string) (subject, body string) {
	return Render(tpl.Subject, ctx), Render(tpl.Body, ctx)
}
