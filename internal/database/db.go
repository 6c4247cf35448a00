package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open はPostgreSQLデータベース接続を開く。
// databaseURLにはconfigのDATABASE_URL（例: "postgres://explorations:...@db:5432/explorations?sslmode=disable"）
// を渡す。serveとworkerの両モードがこの接続プールを使う。
// sql.Openは接続を試行しないため、起動時の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
