package orders

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ConfirmationNumberLength is the fixed length of a confirmation number.
const ConfirmationNumberLength = 10

// ConfirmationNumber builds a short human-readable code from three sources:
// four random base-36 characters, the last four decimal digits of the
// creation time in milliseconds, and two base-36 characters hashed from the
// user id.
//
// It is a display convenience with low collision odds, not a secret. Never
// use it to authorize anything.
func ConfirmationNumber(random io.Reader, userID string, now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("confirmation number: %w", err)
	}

	var sb strings.Builder
	sb.Grow(ConfirmationNumberLength)
	for _, b := range buf {
		sb.WriteByte(base36[int(b)%36])
	}
	fmt.Fprintf(&sb, "%04d", now.UnixMilli()%10000)

	h := userHash(userID)
	sb.WriteByte(base36[h/36])
	sb.WriteByte(base36[h%36])

	return sb.String(), nil
}

// userHash is a 31-multiplier rolling hash of the user id, reduced to two
// base-36 digits.
func userHash(userID string) int {
	h := 0
	for _, r := range userID {
		h = (h*31 + int(r)) % (36 * 36)
	}
	return h
}

// OrderNumber builds "{STORE}-{8 digits of unix ms}-{6 chars of correlation id}".
//
// The correlation id is the checkout session id; its processor prefix
// ("cs_test_", "cs_live_") is dropped and only letters and digits are kept.
func OrderNumber(storeID, correlationID string, now time.Time) string {
	id := correlationID
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}

	var suffix strings.Builder
	for _, r := range strings.ToUpper(id) {
		if suffix.Len() == 6 {
			break
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			suffix.WriteRune(r)
		}
	}

	return fmt.Sprintf("%s-%08d-%s", strings.ToUpper(storeID), now.UnixMilli()%100000000, suffix.String())
}
