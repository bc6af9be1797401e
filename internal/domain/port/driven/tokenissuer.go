package driven

import "context"

// TokenIssuer defines the driven port for acquiring a fresh platform access
// token (OAuth2 password grant). Implementations must not cache; caching and
// single-flight renewal belong to the application's TokenCache.
type TokenIssuer interface {
	IssueToken(ctx context.Context) (string, error)
}
