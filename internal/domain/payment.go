package domain

import (
	"bytes"
	"encoding/json"
)

// Description is an optional payment note. The zero value is absent.
type Description struct {
	text  string
	valid bool
}

func SomeDescription(text string) Description {
	return Description{text: text, valid: true}
}

func NoDescription() Description {
	return Description{}
}

func (d Description) Get() (string, bool) {
	return d.text, d.valid
}

func (d Description) IsSome() bool {
	return d.valid
}

func (d Description) MarshalJSON() ([]byte, error) {
	if !d.valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.text)
}

func (d *Description) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = NoDescription()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = SomeDescription(s)
	return nil
}

// Payment is the immutable record of one completed value transfer.
type Payment struct {
	ID          uint64      `json:"id"`
	Sender      Account     `json:"sender"`
	Recipient   Account     `json:"recipient"`
	Amount      uint64      `json:"amount"`
	Description Description `json:"description"`
	Timestamp   uint64      `json:"timestamp"`
}

// Involves reports whether a is the sender or the recipient.
func (p Payment) Involves(a Account) bool {
	return p.Sender == a || p.Recipient == a
}

// Participants returns the distinct accounts whose histories hold p.
func (p Payment) Participants() []Account {
	if p.Sender == p.Recipient {
		return []Account{p.Sender}
	}
	return []Account{p.Sender, p.Recipient}
}

// PaymentRecorded is the notification emitted once a payment is committed.
type PaymentRecorded struct {
	ID        uint64  `json:"id"`
	Sender    Account `json:"sender"`
	Recipient Account `json:"recipient"`
	Amount    uint64  `json:"amount"`
	Timestamp uint64  `json:"timestamp"`
}

func (p Payment) Recorded() PaymentRecorded {
	return PaymentRecorded{
		ID:        p.ID,
		Sender:    p.Sender,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Timestamp: p.Timestamp,
	}
}
