package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-4))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 12, 30, 0, 123, time.FixedZone("x", 3600)), ID: uuid.New()}
	token := EncodeCursor(in)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorErrors(t *testing.T) {
	out, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, out)

	for _, raw := range []string{"%%%", rawToken("no-separator"), rawToken("yesterday|" + uuid.NewString()), rawToken("2026-01-01T00:00:00Z|nope")} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func rawToken(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}
