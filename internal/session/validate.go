package session

import (
	"fmt"
	"regexp"
)

// A session is named after the user it syncs for, so the name has to work both
// as a directory name and as a username other users search for.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ValidateName checks that name is a usable session and user name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must be 1-32 characters of a-z, 0-9, _ or -, starting with a letter or digit", name)
	}
	return nil
}
