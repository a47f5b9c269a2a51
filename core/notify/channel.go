// Package notify defines the delivery-channel contract and the schedule
// message formatting that feeds it.
package notify

import (
	"context"
	"strings"
)

// Channel delivers one formatted text message to one recipient. When
// escape is true the text demands strict literal rendering and the backend
// must escape structural characters before handing it to the transport.
type Channel interface {
	Send(ctx context.Context, recipientID, text string, escape bool) error
}

// escapeSet is the fixed table of structural characters that must be
// backslash-escaped for strict literal rendering.
const escapeSet = "_*[]()~`>#+-=|{}.!"

// Escape prefixes every structural character in text with a backslash.
func Escape(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, r := range text {
		if strings.ContainsRune(escapeSet, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
