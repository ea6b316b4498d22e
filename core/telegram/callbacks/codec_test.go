package callbacks

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		kind   Kind
		unique string
		data   string
		token  string
	}{
		{name: "empty", raw: "", kind: KindUnknown},
		{name: "form feed only", raw: "\f", kind: KindUnknown},
		{name: "unique only", raw: "\fmenu", kind: KindAction, unique: "menu"},
		{name: "unique and data", raw: "\fsub_add|bili|42", kind: KindAction, unique: "sub_add", data: "bili|42"},
		{name: "bare key", raw: "settings", kind: KindAction, unique: "settings"},
		{name: "return", raw: ReturnData("tok-1"), kind: KindReturn, unique: ReturnUnique, data: "tok-1", token: "tok-1"},
		{name: "missing unique", raw: "\f|x", kind: KindUnknown, data: "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Decode(tc.raw)
			require.Equal(t, tc.kind, p.Kind)
			require.Equal(t, tc.unique, p.Unique)
			require.Equal(t, tc.data, p.Data)
			require.Equal(t, tc.token, p.Token)
			require.Equal(t, tc.raw, p.Raw)
		})
	}
}

func TestDecodeCallbackPrefersSplitFields(t *testing.T) {
	p := DecodeCallback(&tele.Callback{Unique: "pick", Data: "7"})
	require.Equal(t, KindAction, p.Kind)
	require.Equal(t, "pick", p.Unique)

	n, err := p.Int64()
	require.NoError(t, err)
	require.EqualValues(t, 7, n)

	require.Equal(t, Payload{}, DecodeCallback(nil))
}

func TestReturnPayload(t *testing.T) {
	p := DecodeCallback(&tele.Callback{Data: ReturnData("abc")})
	require.True(t, p.IsReturn())
	require.False(t, Decode(Encode(ReturnUnique, "")).IsReturn())
}

func TestPayloadTwoInt64(t *testing.T) {
	a, b, err := Decode(Encode("pair", "3:9")).TwoInt64(":")
	require.NoError(t, err)
	require.EqualValues(t, 3, a)
	require.EqualValues(t, 9, b)

	_, _, err = Decode("\fpair").TwoInt64(":")
	require.Error(t, err)
}
