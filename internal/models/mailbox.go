package models

import (
	"fmt"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
)

// PropertyBoundedMailbox holds while the mailbox never exceeds its capacity.
const PropertyBoundedMailbox = "bounded-mailbox"

// mailboxCapacity is the declared capacity; the sender does not check it.
const mailboxCapacity = 2

// mailbox is a sender that never waits for room and a receiver that stops
// after one message, so three sends overflow the mailbox.
type mailbox struct {
	queued   int
	sent     int
	received int
}

const (
	actSend    model.Action = "sender.send"
	actReceive model.Action = "receiver.receive"

	totalMessages = 4
	receiverQuota = 1
)

func (m *mailbox) Enabled() []model.Action {
	var out []model.Action

	if m.sent < totalMessages {
		out = append(out, actSend)
	}

	if m.queued > 0 && m.received < receiverQuota {
		out = append(out, actReceive)
	}

	return out
}

func (m *mailbox) Step(a model.Action) error {
	switch a {
	case actSend:
		m.queued++
		m.sent++
	case actReceive:
		m.queued--
		m.received++
	default:
		return fmt.Errorf("unknown action %q", a)
	}

	return nil
}

func (m *mailbox) Check() error {
	if m.queued > mailboxCapacity {
		return &model.Violation{
			Property: PropertyBoundedMailbox,
			Detail:   fmt.Sprintf("%d messages queued, capacity %d", m.queued, mailboxCapacity),
		}
	}

	return nil
}

func (m *mailbox) Dependent(_, _ model.Action) bool {
	return true
}

// Mailbox is a single-entry model whose shortest violation has depth three.
func Mailbox() model.Model {
	return model.Model{
		Name: "examples.Mailbox",
		EntryPoints: []model.EntryPoint{
			{
				Name:        "implementation.UncheckedSend.execute",
				Description: "sender ignores the mailbox capacity",
				New:         func() model.System { return &mailbox{} },
			},
		},
	}
}
