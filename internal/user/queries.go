package user

import (
	"context"
	"database/sql"
	"time"
)

// userRow はusersテーブルの1行。
type userRow struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Name はログイン名。
	Name string
	// PasswordHash はbcryptでハッシュ化したパスワード。
	PasswordHash string
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// queries はusersテーブルへのクエリ実行オブジェクト。
type queries struct {
	db *sql.DB
}

// createUser はユーザーを新規作成する。
func (q *queries) createUser(ctx context.Context, id, name, passwordHash string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, name, password_hash) VALUES (?, ?, ?)`,
		id, name, passwordHash,
	)
	return err
}

// getUserByName はログイン名でユーザーを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *queries) getUserByName(ctx context.Context, name string) (userRow, error) {
	var u userRow
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, created_at FROM users WHERE name = ?`,
		name,
	).Scan(&u.ID, &u.Name, &u.PasswordHash, &u.CreatedAt)
	return u, err
}
