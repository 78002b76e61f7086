package session

// Navigator receives navigation intents.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Level is a notification severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a user-facing message. ID is stable per message kind so
// presenters can de-duplicate repeated notifications.
type Notification struct {
	ID      string `json:"id"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Notification identities.
const (
	NoticeRestoreFailed = "session-restore-failed"
	NoticeSessionExpiry = "session-expired"
	NoticeLogoutSuccess = "logout-success"
)

var (
	restoreFailedNotice = Notification{ID: NoticeRestoreFailed, Level: LevelError, Message: "Failed to restore session. Please log in again."}
	sessionExpiryNotice = Notification{ID: NoticeSessionExpiry, Level: LevelError, Message: "Session expired. Please log in again."}
	logoutSuccessNotice = Notification{ID: NoticeLogoutSuccess, Level: LevelSuccess, Message: "Logged out successfully."}
)

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
