package model

import "time"

// User represents a marketplace account as stored in the `users` table.
// Accounts arrive two ways: CAS-authenticated campus users (identified by
// netid, no password) and local password accounts (admins, development).
// PasswordHash is nil for CAS-only accounts.
//
// Fields:
//  ID           – primary key identifier.
//  NetID        – campus identifier, lowercase, unique (nullable for local accounts).
//  Email        – unique email address (nullable for CAS accounts without one).
//  DisplayName  – name shown on listings and reviews.
//  PasswordHash – bcrypt hash for local accounts (nullable).
//  Role         – RENTER, LENDER or ADMIN.
//  IsActive     – whether the account may authenticate.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64     // users.id
	NetID        *string    // users.netid (nullable)
	Email        *string    // users.email (nullable)
	DisplayName  string     // users.display_name
	PasswordHash *string    // users.password_hash (nullable)
	Role         string     // users.role
	IsActive     bool       // users.is_active
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// Roles stored in users.role and carried in the JWT "role" claim.
const (
	RoleRenter = "RENTER"
	RoleLender = "LENDER"
	RoleAdmin  = "ADMIN"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the raw token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
