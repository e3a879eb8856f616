package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStd(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{name: "empty", in: "", want: []byte{}},
		{name: "padding stripped", in: "aGVsbG8=", want: []byte("hello")},
		{name: "no padding needed", in: "Zm9vYmFy", want: []byte("foobar")},
		{
			name: "halts at first invalid byte",
			in:   "aGVsbG8=IGFtIGV4dHJhIGRhdGE=",
			want: []byte("hello"),
		},
		{
			name: "halts at NUL terminator",
			in:   "d29ybGQ\x00garbage",
			want: []byte("world"),
		},
		{name: "invalid prefix decodes nothing", in: "===", want: []byte{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, DecodeStd(c.in))
		})
	}
}

func TestEncodeDecodeURLRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hello"),
		{0x00, 0xff, 0x10, 0x20},
		make([]byte, 64),
	}

	for _, in := range cases {
		encoded := EncodeURL(in)
		got, err := DecodeURL(encoded)
		require.NoError(t, err)
		require.Equal(t, in, got)
	}
}

func TestDecodeStdNotRequiredToRoundTripWithURLEncoding(t *testing.T) {
	// base64_decode(base64url_encode(x)) is not required to equal x, because
	// the alphabets differ ('-'/'_' vs '+'/'/').
	in := []byte{0xfb, 0xff, 0xfe}
	urlEncoded := EncodeURL(in)
	got := DecodeStd(urlEncoded)
	require.NotEqual(t, in, got)
}
