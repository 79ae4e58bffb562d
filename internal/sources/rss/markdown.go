package rss

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

var markdownConverter = sync.OnceValue(func() *converter.Converter {
	return converter.NewConverter(
		converter.WithEscapeMode("smart"),
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
})

// HTMLToMarkdown converts feed HTML to trimmed Markdown. Text without any
// tags is returned unchanged so plain values are not escaped.
func HTMLToMarkdown(html string) (string, error) {
	if !strings.ContainsRune(html, '<') {
		return html, nil
	}
	md, err := markdownConverter().ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
