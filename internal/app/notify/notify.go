/*
Package notify carries user-facing notices (the toasts of a graphical client) from the
session and chat stores to whatever front end is attached.
*/
package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"chatsync/internal/pkg/logx"
)

// Level classifies a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is one message for the user.
type Notice struct {
	Level Level
	Title string
	Body  string
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

// Func adapts a plain function to Notifier.
type Func func(Notice)

// Notify calls f(n).
func (f Func) Notify(n Notice) { f(n) }

// Info builds an informational notice.
func Info(title, body string) Notice {
	return Notice{Level: LevelInfo, Title: title, Body: body}
}

// Failure builds an error notice.
func Failure(title, body string) Notice {
	return Notice{Level: LevelError, Title: title, Body: body}
}

// LogNotifier writes notices to the structured log. It is the default when no
// front end is attached.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logx.Component("notify")}
}

// Notify logs n at a level matching its severity.
func (l *LogNotifier) Notify(n Notice) {
	ev := l.logger.Info()
	if n.Level == LevelError {
		ev = l.logger.Warn()
	}
	ev.Str("title", n.Title).Msg(n.Body)
}

// Recorder keeps every notice it receives. Useful in tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
