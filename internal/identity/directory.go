package identity

import "context"

// Directory is the identity/session collaborator behind the provider. All
// durable user state lives here; the dispatch layer holds none.
//
// FindUser and VerifyPassword scope every lookup to one audience: the same
// phone or email may exist independently on both sides and must never resolve
// across them.
type Directory interface {
	// FindUser resolves a user by key within an audience. Returns ErrNotFound
	// when no record matches.
	FindUser(ctx context.Context, audience Audience, channel Channel, key string) (User, error)

	// CreateUserWithContact is an idempotent upsert: an existing user with
	// that phone/email (within the audience) is returned as-is, otherwise a
	// new record is created. channel must be ChannelPhone or ChannelEmail.
	CreateUserWithContact(ctx context.Context, audience Audience, channel Channel, contact string) (User, error)

	// VerifyPassword checks account credentials within an audience. Unknown
	// account and wrong password both return ErrCredentialInvalid.
	VerifyPassword(ctx context.Context, audience Audience, account, password string) (User, error)

	// Register creates a new customer account with credentials.
	Register(ctx context.Context, account, password string) error

	// ListUsersByIDs returns the raw records for the given ids, preserving
	// request order and skipping ids with no record.
	ListUsersByIDs(ctx context.Context, ids []string) ([]Record, error)

	// RolesByUserID returns the user's role records in assignment order.
	RolesByUserID(ctx context.Context, userID string) ([]Record, error)

	// PermissionsByUserAndRoleIDs returns permission records for the given
	// user/role ids, optionally scoped by organization.
	PermissionsByUserAndRoleIDs(ctx context.Context, ids []string, orgID string) ([]Record, error)

	// ButtonCodesByUserAndRoleIDs returns web button codes for the ids.
	ButtonCodesByUserAndRoleIDs(ctx context.Context, ids []string) ([]string, error)

	// MobileButtonCodesByUserAndRoleIDs returns mobile button codes for the ids.
	MobileButtonCodesByUserAndRoleIDs(ctx context.Context, ids []string) ([]string, error)

	// RecordLogin updates the user's last-login time and device.
	RecordLogin(ctx context.Context, userID, device string) error

	// ThirdPartyUserCount returns the total number of federated third-party
	// user records.
	ThirdPartyUserCount(ctx context.Context) (int64, error)
}
