package match

// System notices appended to the session log.
const (
	NoticeReady             = "Ready to chat!"
	NoticeLooking           = "Looking for someone to chat with..."
	NoticeFound             = "Found someone! Connecting..."
	NoticeConnected         = "Connected! Say hi!"
	NoticeNoOne             = "No one available. Try again!"
	NoticeConnectFailed     = "Connection failed. Try again!"
	NoticeStrangerLeft      = "Stranger disconnected"
	NoticeYouLeft           = "You disconnected"
	NoticeConnectionError   = "Connection error occurred"
	NoticeOpenTimeout       = "Connection timeout. Please refresh."
	NoticeFatal             = "Connection error. Please refresh."
	NoticeReconnecting      = "Reconnecting..."
	NoticeServerLost        = "Lost the connection to the server. Reconnecting..."
	NoticeSearchInterrupted = "Search stopped while the server was unreachable."
)
