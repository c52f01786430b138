package supply

import (
	"golang.org/x/oauth2"
)

// TokenSource creates a Supplier that resolves to the access token from the
// given source. Token refresh and caching are the source's business.
func TokenSource(ts oauth2.TokenSource) Supplier[string] {
	return Func(func() (string, error) {
		token, err := ts.Token()
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	})
}

// BearerToken creates a Supplier that resolves to an Authorization header
// value, for example "Bearer <access token>".
func BearerToken(ts oauth2.TokenSource) Supplier[string] {
	return Func(func() (string, error) {
		token, err := ts.Token()
		if err != nil {
			return "", err
		}
		return token.Type() + " " + token.AccessToken, nil
	})
}
