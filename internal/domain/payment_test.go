package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescription(t *testing.T) {
	text, ok := SomeDescription("rent").Get()
	assert.True(t, ok)
	assert.Equal(t, "rent", text)

	_, ok = NoDescription().Get()
	assert.False(t, ok)

	// present-but-empty is distinct from absent
	empty := SomeDescription("")
	assert.True(t, empty.IsSome())
	assert.NotEqual(t, NoDescription(), empty)
}

func TestPayment_JSONDescription(t *testing.T) {
	alice := MustParseAccount(aliceHex)

	tests := []struct {
		name     string
		desc     Description
		wantJSON string
	}{
		{name: "absent", desc: NoDescription(), wantJSON: `null`},
		{name: "present", desc: SomeDescription("rent"), wantJSON: `"rent"`},
		{name: "present empty", desc: SomeDescription(""), wantJSON: `""`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Payment{ID: 1, Sender: alice, Recipient: alice, Amount: 5, Description: tc.desc, Timestamp: 7}
			b, err := json.Marshal(p)
			require.NoError(t, err)

			var fields map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(b, &fields))
			assert.JSONEq(t, tc.wantJSON, string(fields["description"]))

			var back Payment
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, p, back)
		})
	}
}

func TestPayment_Participants(t *testing.T) {
	alice := MustParseAccount(aliceHex)
	bob := MustParseAccount("0x8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48")

	p := Payment{Sender: alice, Recipient: bob}
	assert.Equal(t, []Account{alice, bob}, p.Participants())
	assert.True(t, p.Involves(alice))
	assert.True(t, p.Involves(bob))
	assert.False(t, p.Involves(Account{}))

	self := Payment{Sender: alice, Recipient: alice}
	assert.Equal(t, []Account{alice}, self.Participants())
}

func TestDenomination_Format(t *testing.T) {
	tests := []struct {
		name   string
		denom  Denomination
		amount uint64
		want   string
	}{
		{name: "ten decimals", denom: Denomination{Symbol: "DOT", Decimals: 10}, amount: 15_000_000_000, want: "1.5000000000 DOT"},
		{name: "sub unit", denom: Denomination{Symbol: "DOT", Decimals: 10}, amount: 1, want: "0.0000000001 DOT"},
		{name: "no decimals", denom: Denomination{Symbol: "UNIT", Decimals: 0}, amount: 100, want: "100 UNIT"},
		{name: "no symbol", denom: Denomination{Decimals: 2}, amount: 12345, want: "123.45"},
		{name: "max uint64", denom: Denomination{Decimals: 0}, amount: ^uint64(0), want: "18446744073709551615"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.denom.Format(tc.amount))
		})
	}
}
