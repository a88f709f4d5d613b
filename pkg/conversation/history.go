package conversation

import "github.com/nstogner/selfimprove/pkg/models"

// History is an append-only sequence of messages. Insertion order is the
// order sent to the model on every turn. The zero value is an empty history.
type History struct {
	messages []models.Message
}

// NewHistory creates a history seeded with msgs.
func NewHistory(msgs ...models.Message) History {
	return History{messages: append([]models.Message(nil), msgs...)}
}

// Append returns a new history with msgs added at the end. The receiver is
// left untouched so earlier snapshots stay valid.
func (h History) Append(msgs ...models.Message) History {
	out := make([]models.Message, 0, len(h.messages)+len(msgs))
	out = append(out, h.messages...)
	out = append(out, msgs...)
	return History{messages: out}
}

// Messages returns a copy of the messages in order.
func (h History) Messages() []models.Message {
	return append([]models.Message(nil), h.messages...)
}

// Len returns the number of messages.
func (h History) Len() int { return len(h.messages) }

// Last returns the newest message, if any.
func (h History) Last() (models.Message, bool) {
	if len(h.messages) == 0 {
		return models.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}
