package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/authhub/authhub/internal/audit"
	"github.com/authhub/authhub/internal/authflow"
	"github.com/authhub/authhub/internal/handlers"
	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/identity/memdir"
	"github.com/authhub/authhub/internal/server"
	"github.com/authhub/authhub/internal/session"
	"github.com/authhub/authhub/internal/verify"
)

const serviceSecret = "integration-test-secret"

type fixture struct {
	dir      *memdir.Directory
	verifier *verify.Service
	client   *Client
}

// newFixture stands up the full provider stack behind httptest and returns a
// facade pointed at it.
func newFixture(t *testing.T, captcha authflow.CaptchaFlags) *fixture {
	t.Helper()

	dir := memdir.New()
	sessions, err := session.NewManager(nil, "integration-session-secret", time.Hour)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	verifier := verify.NewService(nil, time.Minute)
	recorder := audit.NewRecorder(nil, dir)
	flow := authflow.NewService(nil, dir, sessions, verifier, recorder, captcha)

	srv := server.NewServer(nil, ":0", serviceSecret,
		handlers.NewAuthRPCHandler(flow),
		handlers.NewUserRPCHandler(dir, recorder),
	)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(func() {
		ts.Close()
		recorder.Close()
		verifier.Close()
		sessions.Close()
	})

	cli, err := New(Config{BaseURL: ts.URL, ServiceSecret: serviceSecret})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return &fixture{dir: dir, verifier: verifier, client: cli}
}

func seedOperator(t *testing.T, dir *memdir.Directory, account, password string) identity.User {
	t.Helper()
	user, err := dir.AddUser(identity.User{
		Audience:   identity.AudienceBackOffice,
		Account:    account,
		Name:       account,
		Phone:      "13000000001",
		Email:      account + "@example.com",
		Enabled:    true,
		BackOffice: &identity.BackOfficeProfile{OrgID: "org-1", EmpNo: "E-1"},
	}, password)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return user
}

func TestCredentialLoginWithCaptcha(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{BackOffice: true})
	seedOperator(t, f.dir, "alice", "correct-horse")

	enabled, err := f.client.CaptchaEnabledForB(ctx)
	if err != nil {
		t.Fatalf("captcha flag: %v", err)
	}
	if !enabled {
		t.Fatal("back-office captcha should be on")
	}

	// A wrong code fails the challenge before any credential check.
	ch, err := f.verifier.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = f.client.LoginByCredentials(ctx, identity.AudienceBackOffice, "alice", "correct-horse", "9999", ch.RequestID)
	if !errors.Is(err, identity.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}

	ch, err = f.verifier.Issue("alice")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	token, err := f.client.LoginByCredentials(ctx, identity.AudienceBackOffice, "alice", "correct-horse", ch.Code, ch.RequestID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	counts, err := f.client.SessionCount(ctx)
	if err != nil {
		t.Fatalf("session count: %v", err)
	}
	if counts.OnlineBCount != 1 || counts.OnlineCCount != 0 {
		t.Fatalf("counts = %+v, want b=1 c=0", counts)
	}
}

func TestCredentialErrorsCrossTheWire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	seedOperator(t, f.dir, "alice", "correct-horse")

	_, err := f.client.LoginByCredentials(ctx, identity.AudienceBackOffice, "alice", "wrong", "", "")
	if !errors.Is(err, identity.ErrCredentialInvalid) {
		t.Fatalf("wrong password: got %v", err)
	}
	_, err = f.client.LoginByCredentials(ctx, identity.AudienceBackOffice, "nobody", "pw", "", "")
	if !errors.Is(err, identity.ErrCredentialInvalid) {
		t.Fatalf("unknown account: got %v", err)
	}
	_, err = f.client.LoginByID(ctx, identity.AudienceBackOffice, "no-such-id", "")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("unknown id: got %v", err)
	}
}

func TestLookupNarrowsAndSignalsAbsence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	operator := seedOperator(t, f.dir, "alice", "")

	got, err := f.client.GetBackOfficeUserByAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil {
		t.Fatal("expected a user")
	}
	if got.ID != operator.ID || got.OrgID != "org-1" || got.EmpNo != "E-1" {
		t.Fatalf("unexpected narrowed user: %+v", got)
	}

	// A miss is a nil result, not an error.
	missing, err := f.client.GetBackOfficeUserByAccount(ctx, "nobody")
	if err != nil {
		t.Fatalf("miss lookup: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for a miss, got %+v", missing)
	}

	// The same account is absent from the customer population.
	crossed, err := f.client.GetCustomerUserByAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("cross-audience lookup: %v", err)
	}
	if crossed != nil {
		t.Fatalf("back-office account leaked into customer lookup: %+v", crossed)
	}
}

func TestLookupChannelsStayIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	seedOperator(t, f.dir, "alice", "")

	byPhone, err := f.client.GetBackOfficeUserByPhone(ctx, "13000000001")
	if err != nil || byPhone == nil {
		t.Fatalf("phone lookup: %v %v", byPhone, err)
	}
	// The phone number must not resolve through the account channel.
	byAccount, err := f.client.GetBackOfficeUserByAccount(ctx, "13000000001")
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if byAccount != nil {
		t.Fatalf("phone key resolved via account channel: %+v", byAccount)
	}
}

func TestCreateUserWithContactOverWire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})

	first, err := f.client.CreateCustomerUserWithPhone(ctx, "13800000000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first == nil || first.Phone != "13800000000" {
		t.Fatalf("unexpected created user: %+v", first)
	}
	second, err := f.client.CreateCustomerUserWithPhone(ctx, "13800000000")
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("create is not idempotent: %s vs %s", second.ID, first.ID)
	}
}

func TestRecordListsPreserveAbsence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	operator := seedOperator(t, f.dir, "alice", "")

	// No roles yet: absent, not an empty list.
	roles, err := f.client.GetRolesByUserID(ctx, operator.ID)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if roles != nil {
		t.Fatalf("expected absent roles, got %v", roles)
	}

	f.dir.SetRoles(operator.ID, []identity.Record{
		identity.Record(`{"id":"r1","name":"admin"}`),
		identity.Record(`{"id":"r2","name":"auditor"}`),
	})
	roles, err = f.client.GetRolesByUserID(ctx, operator.ID)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if len(roles) != 2 || string(roles[0]) != `{"id":"r1","name":"admin"}` {
		t.Fatalf("unexpected roles: %v", roles)
	}

	users, err := f.client.ListUsersByIDs(ctx, []string{operator.ID, "missing"})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("got %d user records, want 1", len(users))
	}
}

func TestButtonCodesAndPermissions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	f.dir.SetButtonCodes("r1", []string{"btnUserAdd", "btnUserEdit"}, []string{"mBtnUserAdd"})
	f.dir.SetPermissions("r1", []identity.Record{identity.Record(`{"perm":"user:read"}`)})

	web, err := f.client.GetButtonCodesByUserAndRoleIDs(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("button codes: %v", err)
	}
	if len(web) != 2 {
		t.Fatalf("got %d web codes, want 2", len(web))
	}
	mobile, err := f.client.GetMobileButtonCodesByUserAndRoleIDs(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("mobile codes: %v", err)
	}
	if len(mobile) != 1 || mobile[0] != "mBtnUserAdd" {
		t.Fatalf("unexpected mobile codes: %v", mobile)
	}
	perms, err := f.client.GetPermissionsByUserAndRoleIDs(ctx, []string{"r1"}, "org-1")
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("got %d permissions, want 1", len(perms))
	}
}

func TestRecordLoginInfoIsBestEffort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	operator := seedOperator(t, f.dir, "alice", "")

	if err := f.client.RecordLoginInfo(ctx, operator.ID, "web"); err != nil {
		t.Fatalf("record login: %v", err)
	}
	// The write lands asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := f.dir.FindUser(ctx, identity.AudienceBackOffice, identity.ChannelID, operator.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !got.LastLoginAt.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("last login never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// An unknown user is still a 200; the failure stays on the provider side.
	if err := f.client.RecordLoginInfo(ctx, "no-such-user", "web"); err != nil {
		t.Fatalf("record login for unknown user: %v", err)
	}
}

func TestRegisterAndLoginOverWire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})

	if err := f.client.Register(ctx, "bob", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := f.client.LoginByCredentials(ctx, identity.AudienceCustomer, "bob", "pw", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
}

func TestValidateCodeOverWire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})

	ch, err := f.verifier.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.client.ValidateCode(ctx, ch.Subject, ch.Code, ch.RequestID); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := f.client.ValidateCode(ctx, ch.Subject, ch.Code, ch.RequestID); !errors.Is(err, identity.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed on reuse, got %v", err)
	}
}

func TestThirdPartyUserCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})
	f.dir.SetThirdPartyUserCount(17)

	count, err := f.client.ThirdPartyUserCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 17 {
		t.Fatalf("count = %d, want 17", count)
	}
}

func TestUnauthenticatedCallerIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, authflow.CaptchaFlags{})

	rogue, err := New(Config{BaseURL: f.client.baseURL, ServiceSecret: "wrong-secret"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := rogue.SessionCount(ctx); !errors.Is(err, identity.ErrTransport) {
		t.Fatalf("expected ErrTransport for rejected caller, got %v", err)
	}
}

func TestUnreachableProviderIsTransportError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cli, err := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		ServiceSecret: serviceSecret,
		Timeout:       500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := cli.SessionCount(ctx); !errors.Is(err, identity.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
