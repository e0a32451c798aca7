package lightning

import (
	"fmt"
	"strings"
)

// SplitAddress splits a Lightning address of the form user@domain.
func SplitAddress(address string) (user, domain string, err error) {
	user, domain, ok := strings.Cut(address, "@")
	if !ok || user == "" || domain == "" {
		return "", "", fmt.Errorf("invalid lightning address format: %q", address)
	}
	return user, domain, nil
}
