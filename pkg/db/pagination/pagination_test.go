package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID string
	At time.Time
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	token := EncodeCursor(Cursor{At: at, ID: "42"})
	require.NotContains(t, token, "=")

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.ID)
	require.True(t, at.Equal(decoded.At))

	decoded, err = DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)

	_, err = DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor(EncodeCursor(Cursor{ID: "42"}))
	require.ErrorIs(t, err, ErrInvalidCursor, "cursor without a timestamp")
}

func TestPage(t *testing.T) {
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	key := func(r *row) Cursor { return Cursor{At: r.At, ID: r.ID} }
	rows := []*row{{ID: "c", At: at}, {ID: "b", At: at}, {ID: "a", At: at}}

	out, info := Page(rows, 2, key)
	require.Len(t, out, 2)
	require.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "b", next.ID)

	out, info = Page(rows, 3, key)
	require.Len(t, out, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)

	out, info = Page([]*row{}, 2, key)
	require.Empty(t, out)
	require.False(t, info.HasMore)
}
