package store

import (
	"strconv"

	"github.com/google/uuid"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func newID() string {
	return uuid.NewString()
}
