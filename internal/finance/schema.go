package finance

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。通貨マスタはシードデータを投入し、レート取得ジョブなしでも
// システムが動作するようにする。シードはINSERT OR IGNOREで再起動時も冪等。
const schema = `
CREATE TABLE IF NOT EXISTS currencies (
    -- 通貨の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 通貨名。重複不可
    name TEXT NOT NULL UNIQUE,
    -- 基準通貨に対するレート
    rate REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS user_favorite_currencies (
    -- ユーザーID
    user_id TEXT NOT NULL,
    -- 通貨ID
    currency_id TEXT NOT NULL,
    PRIMARY KEY (user_id, currency_id),
    FOREIGN KEY (currency_id) REFERENCES currencies(id) ON DELETE CASCADE
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_user_favorite_currencies_user_id
    ON user_favorite_currencies(user_id);

INSERT OR IGNORE INTO currencies (id, name, rate) VALUES
    ('0b76f7a9-07c7-4a21-a3d0-07e5f6b6f2a1', 'USD', 1.0),
    ('5c1a3f62-9db0-4f5e-8a2f-44c0a1b7e9d2', 'EUR', 0.92),
    ('9e4d2b80-62f3-4c1d-b5a7-81d9c0e3f6a3', 'JPY', 147.35),
    ('2f8c5e17-b3a4-4d96-9c0b-5e2a7d1f8b44', 'GBP', 0.79),
    ('7a3b9d54-1e86-4f2c-a8d1-c6f0b4e2a955', 'CHF', 0.86),
    ('4d6e1c28-a759-4b3f-92e5-f1a8d3c7b066', 'CNY', 7.12);
`

// initSchema はSQLiteデータベースにスキーマとシードデータを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
