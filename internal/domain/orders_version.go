package domain

import (
	"strconv"
	"strings"
	"time"
)

// OrdersVersion summarizes a user's order history for conditional GETs.
// Latest is zero when Count is zero.
type OrdersVersion struct {
	Count  int64
	Latest time.Time
}

// ETag returns a weak validator that changes whenever an order of userID is
// placed or updated.
func (v OrdersVersion) ETag(userID string) string {
	var ms int64
	if !v.Latest.IsZero() {
		ms = v.Latest.UnixMilli()
	}
	return `W/"orders:` + userID + ":" + strconv.FormatInt(v.Count, 10) + ":" + strconv.FormatInt(ms, 10) + `"`
}

// ETagMatches reports whether an If-None-Match header value names etag,
// either directly, in a comma-separated list, or through "*".
func ETagMatches(ifNoneMatch, etag string) bool {
	for _, cand := range strings.Split(ifNoneMatch, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "*" || cand == etag {
			return true
		}
	}
	return false
}
