package remotelog

import "github.com/hitoshi/bookchat/internal/model"

// Status はリモートログ操作の結果種別を表す。
// 呼び出し元は「データなし」と「失敗」を区別してアラートできる。
type Status string

const (
	// StatusOK は操作が成功し、データが1件以上あることを示す。
	StatusOK Status = "ok"
	// StatusEmpty は操作は成功したが、該当データが無いことを示す。
	StatusEmpty Status = "empty"
	// StatusFailed はAPI呼び出しが失敗したことを示す。Errに原因が入る。
	StatusFailed Status = "failed"
)

// PushResult はPushMessageの結果。
type PushResult struct {
	Path   string
	Status Status
	Err    error
}

// OK はpushが成功したかを返す。
func (r PushResult) OK() bool { return r.Status == StatusOK }

// ListResult はメッセージ一覧・検索の結果。
// Statusが StatusFailed の場合でも Messages は空スライスとして扱える。
type ListResult struct {
	Messages []model.RemoteMessage
	Status   Status
	Err      error
	// Skipped はデコードに失敗して除外したファイル数。
	Skipped int
}

// StatsResult はメッセージ統計の結果。
type StatsResult struct {
	Stats  model.MessageStats
	Status Status
	Err    error
}

func failedList(err error) ListResult {
	return ListResult{Messages: []model.RemoteMessage{}, Status: StatusFailed, Err: err}
}

func listResult(messages []model.RemoteMessage, skipped int) ListResult {
	if messages == nil {
		messages = []model.RemoteMessage{}
	}
	status := StatusOK
	if len(messages) == 0 {
		status = StatusEmpty
	}
	return ListResult{Messages: messages, Status: status, Skipped: skipped}
}
