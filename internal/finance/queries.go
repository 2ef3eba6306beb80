package finance

import (
	"context"
	"database/sql"
	"fmt"
)

// currencyRow はcurrenciesテーブルの1行。
type currencyRow struct {
	// ID は通貨の一意識別子（UUID）。
	ID string
	// Name は通貨名。
	Name string
	// Rate は基準通貨に対するレート。
	Rate float64
}

// queries は通貨テーブル群へのクエリ実行オブジェクト。
type queries struct {
	db *sql.DB
}

// listCurrencies は全通貨を名前順で取得する。
func (q *queries) listCurrencies(ctx context.Context) ([]currencyRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, rate FROM currencies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var currencies []currencyRow
	for rows.Next() {
		var c currencyRow
		if err := rows.Scan(&c.ID, &c.Name, &c.Rate); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

// listFavoriteIDs はユーザーのお気に入り通貨IDの集合を取得する。
func (q *queries) listFavoriteIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT currency_id FROM user_favorite_currencies WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// listFavoriteCurrencies はユーザーのお気に入り通貨を名前順で取得する。
func (q *queries) listFavoriteCurrencies(ctx context.Context, userID string) ([]currencyRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.rate
		FROM currencies c
		JOIN user_favorite_currencies f ON f.currency_id = c.id
		WHERE f.user_id = ?
		ORDER BY c.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var currencies []currencyRow
	for rows.Next() {
		var c currencyRow
		if err := rows.Scan(&c.ID, &c.Name, &c.Rate); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

// currencyExists は指定IDの通貨が存在するかを返す。
func (q *queries) currencyExists(ctx context.Context, currencyID string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx,
		`SELECT 1 FROM currencies WHERE id = ?`, currencyID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// updateFavorites はユーザーのお気に入り通貨集合を指定された集合に置き換える。
// 現在の集合との差分のみを挿入・削除し、全体を1トランザクションで実行する。
func (q *queries) updateFavorites(ctx context.Context, userID string, currencyIDs []string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	current := make(map[string]bool)
	rows, err := tx.QueryContext(ctx,
		`SELECT currency_id FROM user_favorite_currencies WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("現在のお気に入りの取得に失敗: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("現在のお気に入りの読み取りに失敗: %w", err)
		}
		current[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("現在のお気に入りの読み取りに失敗: %w", err)
	}
	rows.Close()

	desired := make(map[string]bool, len(currencyIDs))
	for _, id := range currencyIDs {
		desired[id] = true
	}

	// 追加分を挿入する
	for id := range desired {
		if current[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_favorite_currencies (user_id, currency_id) VALUES (?, ?)`,
			userID, id); err != nil {
			return fmt.Errorf("お気に入りの追加に失敗: %w", err)
		}
	}

	// 削除分を削除する
	for id := range current {
		if desired[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_favorite_currencies WHERE user_id = ? AND currency_id = ?`,
			userID, id); err != nil {
			return fmt.Errorf("お気に入りの削除に失敗: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}
