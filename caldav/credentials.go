package caldav

import "os"

// Credentials holds a basic-auth username/password pair. Values are never
// logged or echoed back.
type Credentials struct {
	Username string
	Password string
}

// ResolveCredentials reads <prefix>USERNAME and <prefix>PASSWORD from the
// process environment. It fails with KindMissingCredentials when either is
// unset or empty, before any network call is made: an unauthenticated
// request against most CalDAV servers produces an error far harder to
// diagnose than this local check. Credentials are resolved fresh per
// operation, so a changed environment takes effect on the next request.
func ResolveCredentials(prefix string) (Credentials, error) {
	username := os.Getenv(prefix + "USERNAME")
	password := os.Getenv(prefix + "PASSWORD")
	if username == "" || password == "" {
		return Credentials{}, newFailure(KindMissingCredentials,
			"environment variables %sUSERNAME and %sPASSWORD must both be set", prefix, prefix)
	}
	return Credentials{Username: username, Password: password}, nil
}
