// Package model はドメインモデルを定義する。
package model

// MediaKind はライブラリアイテムのメディア種別を表す。
type MediaKind string

const (
	// MediaKindImage は画像ファイル。
	MediaKindImage MediaKind = "image"
	// MediaKindVideo は動画ファイル。
	MediaKindVideo MediaKind = "video"
	// MediaKindAudio は音声ファイル。
	MediaKindAudio MediaKind = "audio"
	// MediaKindDocument はドキュメント（document/pdf/text系MIME）。
	MediaKindDocument MediaKind = "document"
	// MediaKindOther は上記いずれにも該当しないファイル。
	MediaKindOther MediaKind = "other"
)

// ItemOrigin はアイテムの由来を表す。
type ItemOrigin string

const (
	// OriginRemote は接続済みリモートフォルダ由来のアイテム。
	OriginRemote ItemOrigin = "remote"
	// OriginLocal はローカル（組み込み）由来のアイテム。
	OriginLocal ItemOrigin = "local"
	// OriginWeb は検索時に合成されるWebプレースホルダー結果。
	OriginWeb ItemOrigin = "web"
)

// LibraryItem はライブラリ内の1ファイルを表す。
// IDは同一フォルダの再リスティングをまたいで安定したプロバイダーネイティブIDを使用する。
type LibraryItem struct {
	ID          string
	MediaKind   MediaKind
	Title       string
	Description string // サニタイズ済み
	Tags        []string
	LocatorURL  string
	TextContent string // 検索対象の平文テキスト（省略可）
	Origin      ItemOrigin
}

// SearchResult はLibraryItemにリモートビューア・アイコン・サムネイルの
// 各リンクを加えた検索結果。Origin=OriginRemoteの結果は必ずLocatorURLを持つ。
// ThumbnailLinkはサムネイルプロキシ（/api/library/thumbnail）に渡すURLとなる。
type SearchResult struct {
	LibraryItem
	WebViewLink   string
	IconLink      string
	ThumbnailLink string
}

// SearchableText はキーワードマッチの対象となる連結テキストを返す。
// タイトル、説明、本文テキスト、タグをスペース区切りで結合する。
func (i *LibraryItem) SearchableText() string {
	text := i.Title + " " + i.Description + " " + i.TextContent
	for _, tag := range i.Tags {
		text += " " + tag
	}
	return text
}
