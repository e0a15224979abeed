package codec

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []string{
		"",
		"plain ascii",
		"café naïve résumé",
		"日本語のテキスト",
		"emoji 🚀🔥 and ZWJ 👩‍💻",
		"mixed é́ combining",
		"quotes \" and \\ backslash\nnewline",
	}
	for _, text := range tests {
		got, err := Decode(Encode(text))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestEncodeDecode_NoDriftAcrossRoundTrips(t *testing.T) {
	text := "Ünïcödé ✓ 漢字 🎉"
	cur := text
	for i := 0; i < 50; i++ {
		dec, err := Decode(Encode(cur))
		require.NoError(t, err)
		cur = dec
	}
	assert.Equal(t, text, cur)
	assert.Equal(t, Clean, CorruptionLevel(cur))
}

func TestDecode_IgnoresEmbeddedLineBreaks(t *testing.T) {
	text := strings.Repeat("línea ", 40)
	enc := Encode(text)

	var wrapped strings.Builder
	for i := 0; i < len(enc); i += 60 {
		end := min(i+60, len(enc))
		wrapped.WriteString(enc[i:end])
		wrapped.WriteString("\n")
	}

	got, err := Decode(wrapped.String())
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("not base64!!")
	assert.Error(t, err)

	_, err = Decode(base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0x00}))
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
