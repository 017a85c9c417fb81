package domain

import "time"

type NotificationKind string

const (
	KindMessage        NotificationKind = "message"
	KindPartnerFound   NotificationKind = "partner_found"
	KindPartnerLeft    NotificationKind = "partner_left"
	KindSearchStarted  NotificationKind = "search_started"
	KindReportReceived NotificationKind = "report_received"
)

const (
	PartnerFoundText   = "Chat partner found! You are now chatting with a random stranger. Say hello! Use /end when you want to finish this conversation."
	PartnerLeftText    = "Your chat partner has ended the conversation. Use /find to find a new partner."
	SearchStartedText  = "Looking for a chat partner..."
	ReportReceivedText = "Thank you for your report. Our moderation team will review it. Your chat has been ended for your safety."
)

// Notification is handed to the Notifier. It never carries partner identity or profile.
type Notification struct {
	Recipient string
	Kind      NotificationKind
	Content   string
	At        time.Time
}

func NewNotification(recipient string, kind NotificationKind, content string) Notification {
	return Notification{Recipient: recipient, Kind: kind, Content: content, At: time.Now().UTC()}
}
