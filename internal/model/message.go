package model

type Channel string

const (
	ChannelEmail Channel = "Email"
	ChannelSMS   Channel = "SMS"
)

// OutboundMessage is one provider send. Subject is only meaningful for Email.
type OutboundMessage struct {
	ContactID string
	Channel   Channel
	Subject   string
	Body      string
}
