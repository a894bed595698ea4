package orchestrator

// Level задаёт важность уведомления.
type Level string

const (
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Notice описывает уведомление, показываемое пользователю на текущем шаге.
type Notice struct {
	Level   Level
	Message string
}

// Notifier доставляет уведомления до слоя представления.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc позволяет использовать функцию как Notifier.
type NotifierFunc func(n Notice)

// Notify вызывает f(n).
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
