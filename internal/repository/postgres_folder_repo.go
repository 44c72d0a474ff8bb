package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/canvas/internal/model"
)

// PostgresFolderRepo はPostgreSQLを使用したフォルダ選択リポジトリ。
// ユーザーごとに高々1件のレコードをUPSERTで維持する。
type PostgresFolderRepo struct {
	db *sql.DB
}

// NewPostgresFolderRepo はPostgresFolderRepoを生成する。
func NewPostgresFolderRepo(db *sql.DB) *PostgresFolderRepo {
	return &PostgresFolderRepo{db: db}
}

// Save はフォルダ選択を冪等にUPSERTする。既存の選択は置き換えられる。
func (r *PostgresFolderRepo) Save(ctx context.Context, selection *model.FolderSelection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO folder_selections (user_id, folder_id, folder_name, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id)
		 DO UPDATE SET folder_id = $2, folder_name = $3, updated_at = $4`,
		selection.UserID, selection.FolderID, selection.Name, selection.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save folder selection: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーのフォルダ選択を取得する。見つからない場合はnilを返す。
func (r *PostgresFolderRepo) FindByUserID(ctx context.Context, userID string) (*model.FolderSelection, error) {
	selection := &model.FolderSelection{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, folder_id, folder_name, updated_at
		 FROM folder_selections
		 WHERE user_id = $1`,
		userID,
	).Scan(&selection.UserID, &selection.FolderID, &selection.Name, &selection.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find folder selection: %w", err)
	}

	return selection, nil
}

// DeleteByUserID は指定ユーザーのフォルダ選択を削除する。冪等。
func (r *PostgresFolderRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM folder_selections WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete folder selection: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FolderRepository = (*PostgresFolderRepo)(nil)
