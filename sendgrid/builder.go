package sendgrid

import (
	"fmt"
	"regexp"
	"strings"
)

// WrapHTML wraps rendered body content in the standard outreach email shell.
func WrapHTML(content string, includeFooter bool, signature string) string {
	footer := ""
	if includeFooter && signature != "" {
		footer = fmt.Sprintf(`
        <p style="color: #666; font-size: 12px; margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee;">
            %s
        </p>`, signature)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    %s
    %s
</body>
</html>`, content, footer)
}

var (
	brPattern      = regexp.MustCompile(`<br\s*/?>`)
	pOpenPattern   = regexp.MustCompile(`<p[^>]*>`)
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	blankPattern   = regexp.MustCompile(`\n\s*\n`)
)

// HTMLToText produces a plain-text alternative from an HTML body.
func HTMLToText(html string) string {
	text := brPattern.ReplaceAllString(html, "\n")
	text = pOpenPattern.ReplaceAllString(text, "\n")
	text = strings.ReplaceAll(text, "</p>", "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = blankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
