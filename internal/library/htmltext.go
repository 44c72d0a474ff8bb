package library

import (
	"strings"

	"golang.org/x/net/html"
)

// stripHTMLText はHTML断片からタグを除去し、検索対象の平文テキストを返す。
// script/style要素の中身は含めない。空白は単一スペースに正規化される。
func stripHTMLText(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var parts []string
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOFまたは不正な入力。収集済みのテキストを返す。
			return strings.Join(parts, " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedElement(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedElement(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				parts = append(parts, strings.Join(strings.Fields(text), " "))
			}
		}
	}
}

// isSkippedElement はテキスト抽出から除外する要素かを判定する。
func isSkippedElement(name string) bool {
	return name == "script" || name == "style"
}
