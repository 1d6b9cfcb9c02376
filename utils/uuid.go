package utils

import (
	"strings"

	"github.com/google/uuid"
)

// namespace for ids derived from other ids
var derivedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("silent-auction"))

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// DerivedID returns the same identifier every time it is given the same parts
func DerivedID(parts ...string) string {
	return uuid.NewSHA1(derivedNamespace, []byte(strings.Join(parts, "/"))).String()
}
