package models

// Message is a rendered notification, ready to hand to a Notifier.
// Building it is the Notification Formatter's only job (§4.G); sending it
// is the Notifier's (§4.I).
type Message struct {
	Text        string
	ParseMode   string
	DealURL     string
	Rating      int
	PreviewText string // short plain-text fallback for transports without rich formatting
}
