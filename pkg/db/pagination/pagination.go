package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Pagination is the query string half of a page request.
type Pagination struct {
	Cursor string `form:"cursor" binding:"omitempty,max=512"`
	Limit  int    `form:"limit" binding:"omitempty,gte=1,lte=250"`
}

// Cursor is the sort key of the last row a client has seen. Lists are
// ordered by (At, ID) descending.
type Cursor struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// EncodeCursor renders c as an opaque, URL safe token.
func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token is a
// nil cursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" || c.At.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// Page trims rows fetched with limit+1 down to limit and reports where the
// next page starts.
func Page[T any](rows []*T, limit int, key func(*T) Cursor) ([]*T, PageInfo) {
	if limit <= 0 || len(rows) <= limit {
		return rows, PageInfo{}
	}

	rows = rows[:limit]
	return rows, PageInfo{
		HasMore:    true,
		NextCursor: EncodeCursor(key(rows[len(rows)-1])),
	}
}
