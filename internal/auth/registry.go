package auth

import "sync"

// FlowRegistry はセッションIDごとのFlowを管理するインメモリレジストリ。
// HTTPハンドラーとバックグラウンドリフレッシュの双方から参照される。
type FlowRegistry struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewFlowRegistry はFlowRegistryを生成する。
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{
		flows: make(map[string]*Flow),
	}
}

// Put はセッションIDにFlowを登録する。既存のFlowは置き換えられる。
func (r *FlowRegistry) Put(sessionID string, flow *Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[sessionID] = flow
}

// Get はセッションIDのFlowを返す。見つからない場合はnil。
func (r *FlowRegistry) Get(sessionID string) *Flow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flows[sessionID]
}

// Delete はセッションIDのFlowを破棄する。
func (r *FlowRegistry) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, sessionID)
}

// ListAuthorized はAuthorized状態かつフォルダ選択済みのセッションIDを返す。
// バックグラウンドリフレッシュの対象列挙に使用する。
func (r *FlowRegistry) ListAuthorized() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.flows))
	for id, flow := range r.flows {
		if flow.State() == StateAuthorized && flow.Folder() != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count は登録されているFlowの数を返す。テストおよびメトリクス用。
func (r *FlowRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}
