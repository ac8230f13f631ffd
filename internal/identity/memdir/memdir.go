// Package memdir is an in-memory identity.Directory for development and tests.
package memdir

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/authhub/authhub/internal/identity"
)

// Directory keeps all records in mutex-guarded maps. Lookups are scoped by
// audience the same way the SQL directory scopes them by column predicate.
type Directory struct {
	mu             sync.Mutex
	users          map[string]*record // keyed by user id
	roles          map[string][]identity.Record
	permissions    map[string][]identity.Record
	buttonCodes    map[string][]string
	mobileCodes    map[string][]string
	thirdPartyUser int64
}

type record struct {
	user         identity.User
	passwordHash []byte
	raw          identity.Record
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		users:       map[string]*record{},
		roles:       map[string][]identity.Record{},
		permissions: map[string][]identity.Record{},
		buttonCodes: map[string][]string{},
		mobileCodes: map[string][]string{},
	}
}

// AddUser seeds a user with an optional password, returning the stored copy.
func (d *Directory) AddUser(user identity.User, password string) (identity.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if !user.Audience.Valid() {
		return identity.User{}, fmt.Errorf("seed user %s: unknown audience %q", user.ID, user.Audience)
	}
	var hash []byte
	if password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return identity.User{}, err
		}
	}
	d.mu.Lock()
	d.users[user.ID] = &record{
		user:         user,
		passwordHash: hash,
		raw:          rawRecord(user),
	}
	d.mu.Unlock()
	return user, nil
}

// SetRoles seeds role records for a user.
func (d *Directory) SetRoles(userID string, roles []identity.Record) {
	d.mu.Lock()
	d.roles[userID] = roles
	d.mu.Unlock()
}

// SetPermissions seeds permission records for a user-or-role id.
func (d *Directory) SetPermissions(id string, permissions []identity.Record) {
	d.mu.Lock()
	d.permissions[id] = permissions
	d.mu.Unlock()
}

// SetButtonCodes seeds web and mobile button codes for a user-or-role id.
func (d *Directory) SetButtonCodes(id string, web, mobile []string) {
	d.mu.Lock()
	d.buttonCodes[id] = web
	d.mobileCodes[id] = mobile
	d.mu.Unlock()
}

// SetThirdPartyUserCount seeds the third-party aggregate.
func (d *Directory) SetThirdPartyUserCount(n int64) {
	d.mu.Lock()
	d.thirdPartyUser = n
	d.mu.Unlock()
}

// FindUser implements identity.Directory.
func (d *Directory) FindUser(_ context.Context, audience identity.Audience, channel identity.Channel, key string) (identity.User, error) {
	key = strings.TrimSpace(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range d.users {
		if rec.user.Audience != audience {
			continue
		}
		if matches(rec.user, channel, key) {
			return rec.user, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func matches(u identity.User, channel identity.Channel, key string) bool {
	switch channel {
	case identity.ChannelID:
		return u.ID == key
	case identity.ChannelAccount:
		return u.Account == key
	case identity.ChannelPhone:
		return u.Phone == key
	case identity.ChannelEmail:
		return u.Email == key
	}
	return false
}

// CreateUserWithContact implements identity.Directory; the upsert returns an
// existing user for the contact unchanged.
func (d *Directory) CreateUserWithContact(ctx context.Context, audience identity.Audience, channel identity.Channel, contact string) (identity.User, error) {
	if channel != identity.ChannelPhone && channel != identity.ChannelEmail {
		return identity.User{}, fmt.Errorf("create user: channel %q has no reachable contact", channel)
	}
	contact = strings.TrimSpace(contact)
	if existing, err := d.FindUser(ctx, audience, channel, contact); err == nil {
		return existing, nil
	}
	user := identity.User{
		ID:       uuid.NewString(),
		Audience: audience,
		Account:  contact,
		Name:     contact,
		Enabled:  true,
	}
	if channel == identity.ChannelPhone {
		user.Phone = contact
	} else {
		user.Email = contact
	}
	switch audience {
	case identity.AudienceBackOffice:
		user.BackOffice = &identity.BackOfficeProfile{}
	case identity.AudienceCustomer:
		user.Customer = &identity.CustomerProfile{}
	}
	d.mu.Lock()
	d.users[user.ID] = &record{user: user, raw: rawRecord(user)}
	d.mu.Unlock()
	return user, nil
}

// VerifyPassword implements identity.Directory.
func (d *Directory) VerifyPassword(ctx context.Context, audience identity.Audience, account, password string) (identity.User, error) {
	user, err := d.FindUser(ctx, audience, identity.ChannelAccount, account)
	if err != nil {
		return identity.User{}, identity.ErrCredentialInvalid
	}
	d.mu.Lock()
	rec := d.users[user.ID]
	d.mu.Unlock()
	if rec == nil || len(rec.passwordHash) == 0 {
		return identity.User{}, identity.ErrCredentialInvalid
	}
	if bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
		return identity.User{}, identity.ErrCredentialInvalid
	}
	return user, nil
}

// Register implements identity.Directory; new accounts are customer records.
func (d *Directory) Register(ctx context.Context, account, password string) error {
	if _, err := d.FindUser(ctx, identity.AudienceCustomer, identity.ChannelAccount, account); err == nil {
		return fmt.Errorf("register: account %q already exists", account)
	}
	_, err := d.AddUser(identity.User{
		Audience: identity.AudienceCustomer,
		Account:  strings.TrimSpace(account),
		Name:     strings.TrimSpace(account),
		Enabled:  true,
		Customer: &identity.CustomerProfile{},
	}, password)
	return err
}

// ListUsersByIDs implements identity.Directory, preserving request order and
// skipping unknown ids.
func (d *Directory) ListUsersByIDs(_ context.Context, ids []string) ([]identity.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []identity.Record
	for _, id := range ids {
		if rec, ok := d.users[id]; ok {
			out = append(out, rec.raw)
		}
	}
	return out, nil
}

// RolesByUserID implements identity.Directory.
func (d *Directory) RolesByUserID(_ context.Context, userID string) ([]identity.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roles[userID], nil
}

// PermissionsByUserAndRoleIDs implements identity.Directory.
func (d *Directory) PermissionsByUserAndRoleIDs(_ context.Context, ids []string, _ string) ([]identity.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []identity.Record
	for _, id := range ids {
		out = append(out, d.permissions[id]...)
	}
	return out, nil
}

// ButtonCodesByUserAndRoleIDs implements identity.Directory.
func (d *Directory) ButtonCodesByUserAndRoleIDs(_ context.Context, ids []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, id := range ids {
		out = append(out, d.buttonCodes[id]...)
	}
	return out, nil
}

// MobileButtonCodesByUserAndRoleIDs implements identity.Directory.
func (d *Directory) MobileButtonCodesByUserAndRoleIDs(_ context.Context, ids []string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, id := range ids {
		out = append(out, d.mobileCodes[id]...)
	}
	return out, nil
}

// RecordLogin implements identity.Directory.
func (d *Directory) RecordLogin(_ context.Context, userID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	rec.user.LastLoginAt = time.Now()
	return nil
}

// ThirdPartyUserCount implements identity.Directory.
func (d *Directory) ThirdPartyUserCount(_ context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thirdPartyUser, nil
}

func rawRecord(u identity.User) identity.Record {
	return identity.Record(fmt.Sprintf(`{"id":%q,"audience":%q,"account":%q,"name":%q}`, u.ID, u.Audience, u.Account, u.Name))
}

var _ identity.Directory = (*Directory)(nil)
