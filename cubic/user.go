package cubic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// UserClient reads user-scoped data. The user id is looked up once on
// first use and cached for the lifetime of the client instance.
type UserClient struct {
	session *Session

	mu     sync.Mutex
	userID string
}

// NewUserClient creates a user client on top of an authenticated
// session.
func NewUserClient(session *Session) *UserClient {
	return &UserClient{session: session}
}

// GetStructure returns the user's structure: the real estates and the
// machines installed in them. The payload shape is owned by the
// vendor; see FirstSerialNumber for extracting device serials.
func (c *UserClient) GetStructure(ctx context.Context, bypass bool) (json.RawMessage, error) {
	return c.userData(ctx, "structure", bypass)
}

// GetInformation returns the user's account information.
func (c *UserClient) GetInformation(ctx context.Context, bypass bool) (json.RawMessage, error) {
	return c.userData(ctx, "information", bypass)
}

// UserID returns the client's user id, resolving and caching it on
// first use.
func (c *UserClient) UserID(ctx context.Context) (string, error) {
	return c.resolveUserID(ctx)
}

func (c *UserClient) userData(ctx context.Context, kind string, bypass bool) (json.RawMessage, error) {
	userID, err := c.resolveUserID(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("service/users/user/%s/%s/%s", userID, kind, bypassSegment(bypass))

	return c.session.Request(ctx, http.MethodGet, endpoint, nil)
}

func (c *UserClient) resolveUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}

	userID, err := c.session.UserID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving user id: %w", err)
	}

	c.userID = userID

	return userID, nil
}
