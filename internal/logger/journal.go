package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	journalMu  sync.Mutex
	journalLog *log.Logger
)

// SetJournalWriter 设置成交流水输出；nil 表示关闭。
func SetJournalWriter(w io.Writer) {
	journalMu.Lock()
	defer journalMu.Unlock()
	if w == nil {
		journalLog = nil
		return
	}
	journalLog = log.New(w, "", log.LstdFlags)
}

// JournalField 是流水中的一个 key=value 段。
type JournalField struct {
	Key   string
	Value string
}

// Journal 以单行形式记录一次仓位事件，例如:
// [TRADE][open][ema-cross] price=100 size=1
func Journal(event, run string, fields ...JournalField) {
	journalMu.Lock()
	l := journalLog
	journalMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[TRADE]")
	for _, tag := range []string{event, run} {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	for _, f := range fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(f.Value)
	}
	l.Print(b.String())
}
