package cubic

import "net/url"

// credentials is the payload for POST auth/auth/login.
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the payload for POST auth/auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// tokenResponse is returned from both the login and refresh endpoints.
// Expiry times are epoch seconds.
type tokenResponse struct {
	AccessToken        string `json:"accessToken"`
	RefreshToken       string `json:"refreshToken"`
	AccessTokenExpire  int64  `json:"accessTokenExpire"`
	RefreshTokenExpire int64  `json:"refreshTokenExpire"`
}

// RequestOptions carries the optional parts of an authenticated
// request. The zero value (or nil) means no extra headers, query
// parameters or body.
type RequestOptions struct {
	// Headers are merged into the request. The session's Bearer
	// authorization header takes precedence on conflict.
	Headers map[string]string

	// Query is encoded as the request's query string.
	Query url.Values

	// Body, when non-nil, is JSON-encoded and sent with a
	// Content-Type of application/json.
	Body any
}

// bypassSegment encodes the vendor API's bypass flag as the trailing
// path segment of the read endpoints.
func bypassSegment(bypass bool) string {
	if bypass {
		return "1"
	}

	return "0"
}
