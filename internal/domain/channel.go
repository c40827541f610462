package domain

import (
	"fmt"
	"strings"
)

// Channel identifies the transport a guest message arrived on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelWebchat  Channel = "webchat"
	ChannelEmail    Channel = "email"
)

var knownChannels = map[Channel]bool{
	ChannelWhatsApp: true,
	ChannelSMS:      true,
	ChannelWebchat:  true,
	ChannelEmail:    true,
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !knownChannels[c] {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

func (c Channel) String() string { return string(c) }
