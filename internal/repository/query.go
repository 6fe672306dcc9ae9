package repository

import (
	"strconv"
	"strings"

	"github.com/hitoshi/bookchat/internal/database"
)

// rebind は "?" プレースホルダで書かれたクエリをDialectに合わせて書き換える。
// PostgreSQLでは $1, $2, ... に置換し、SQLiteではそのまま返す。
// クエリ中の文字列リテラルに "?" を含めないこと。
func rebind(dialect database.Dialect, query string) string {
	if dialect != database.DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
