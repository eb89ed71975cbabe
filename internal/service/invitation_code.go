package service

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

// Unambiguous upper-case alphabet: no 0/O or 1/I.
const (
	codeAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeSuffixLength = 8
)

// newInvitationCode builds "<base36 nanosecond timestamp>-<random suffix>".
func newInvitationCode(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(codeAlphabet, codeSuffixLength)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strconv.FormatInt(now.UnixNano(), 36)) + "-" + suffix, nil
}

// NormalizeCode applies the case-insensitive matching rule for shared codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
