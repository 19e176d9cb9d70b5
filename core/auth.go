package core

// Identity is the resolved caller attached to a request after the
// authentication gate accepts its token. It is computed once per request and
// threaded to handlers through the gin context; it is never persisted.
type Identity struct {
	UserID   int64
	Username string
}
