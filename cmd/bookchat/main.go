// Command bookchat はBookChatのAPIサーバーを起動する。
//
//	bookchat [serve]     APIサーバーを起動する（デフォルト）
//	bookchat migrate     データベースマイグレーションを適用する
//	bookchat healthcheck /health を確認する（コンテナのヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/bookchat/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bookchat: %v\n", err)
		os.Exit(1)
	}
}
