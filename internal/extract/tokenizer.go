package extract

import "strings"

// minTokenLength はフォールバックトークンとして採用する最小文字数。
// 短い機能語（"a", "of", "in" 等）を除外する。
const minTokenLength = 3

// FallbackTokenize は抽出器が利用できない場合の決定的なキーワード分割。
// クエリを小文字化して空白で分割し、3文字以上のトークンをすべて返す。
// キーワード件数の上限（maxKeywords）は抽出器のみに適用され、ここでは適用しない。
func FallbackTokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenLength {
			continue
		}
		keywords = append(keywords, f)
	}

	return keywords
}
