package core

// Message is a payload plus the handles transferred alongside it.
type Message struct {
	Payload []byte
	Handles []Handle
}

func NewMessage(payload []byte, handles ...Handle) *Message {
	return &Message{Payload: payload, Handles: handles}
}

// TakeHandles moves the attached handles out of the message.
func (m *Message) TakeHandles() []Handle {
	h := m.Handles
	m.Handles = nil
	return h
}

// CloseHandles closes every handle the message still owns.
func (m *Message) CloseHandles() {
	for _, h := range m.TakeHandles() {
		if h != nil {
			h.Close()
		}
	}
}
