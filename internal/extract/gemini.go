// Package extract は自然文クエリからの検索キーワード抽出を提供する。
// 言語モデルによる抽出と、決定的なフォールバックトークナイザーを含む。
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	// defaultEndpointFormat はGemini generateContentエンドポイントのフォーマット。
	defaultEndpointFormat = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

	// maxKeywords は1クエリから抽出するキーワードの上限。
	maxKeywords = 3
)

// ErrNotConfigured はAPIキー未設定により抽出器が利用できないことを示す。
// 呼び出し元はフォールバックトークナイザーに切り替える。
var ErrNotConfigured = errors.New("keyword extractor is not configured")

// Extractor は自然文クエリからキーワードを抽出するインターフェース。
type Extractor interface {
	Extract(ctx context.Context, query string) ([]string, error)
}

// GeminiExtractor は言語モデルAPIによるキーワード抽出器。
// 構造化出力（JSONスキーマ）で最大3件のキーワードを取得する。
type GeminiExtractor struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewGeminiExtractor はGeminiExtractor の新しいインスタンスを生成する。
// APIキーが空の場合でも生成は成功し、Extract がErrNotConfiguredを返す。
func NewGeminiExtractor(httpClient *http.Client, logger *slog.Logger, apiKey, model string) *GeminiExtractor {
	return &GeminiExtractor{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   fmt.Sprintf(defaultEndpointFormat, model),
	}
}

// generateRequest はgenerateContentエンドポイントのリクエスト。
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   *responseSchema `json:"responseSchema"`
}

type responseSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

type schemaProperty struct {
	Type  string          `json:"type"`
	Items *schemaProperty `json:"items,omitempty"`
}

// generateResponse はgenerateContentエンドポイントのレスポンス。
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// extractedQueries はモデルが返す構造化出力。
type extractedQueries struct {
	Queries []string `json:"queries"`
}

// Extract は自然文クエリから検索キーワードを最大3件抽出する。
// APIキー未設定の場合はネットワーク呼び出しなしでErrNotConfiguredを返す。
func (e *GeminiExtractor) Extract(ctx context.Context, query string) ([]string, error) {
	if e.apiKey == "" {
		return nil, ErrNotConfigured
	}

	prompt := fmt.Sprintf(
		"次の検索クエリから、メディアライブラリの検索に使用する重要なキーワードを最大%d件抽出してください。"+
			"助詞や冠詞などのストップワードは除外してください。クエリ: %q",
		maxKeywords, query,
	)

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema: &responseSchema{
				Type: "OBJECT",
				Properties: map[string]schemaProperty{
					"queries": {
						Type:  "ARRAY",
						Items: &schemaProperty{Type: "STRING"},
					},
				},
				Required: []string{"queries"},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Error("キーワード抽出APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("キーワード抽出APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		e.logger.Error("キーワード抽出APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("キーワード抽出APIがステータス %d を返しました", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("キーワード抽出APIのレスポンスに候補がありません")
	}

	var extracted extractedQueries
	if err := json.Unmarshal([]byte(genResp.Candidates[0].Content.Parts[0].Text), &extracted); err != nil {
		return nil, fmt.Errorf("構造化出力のパースに失敗しました: %w", err)
	}

	keywords := extracted.Queries
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}

	return keywords, nil
}

// compile-time interface check
var _ Extractor = (*GeminiExtractor)(nil)
