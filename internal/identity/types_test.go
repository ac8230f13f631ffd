package identity

import (
	"errors"
	"testing"
)

func TestParseAudience(t *testing.T) {
	t.Parallel()

	if a, err := ParseAudience("b"); err != nil || a != AudienceBackOffice {
		t.Fatalf("ParseAudience(b) = %v, %v", a, err)
	}
	if a, err := ParseAudience("c"); err != nil || a != AudienceCustomer {
		t.Fatalf("ParseAudience(c) = %v, %v", a, err)
	}
	for _, raw := range []string{"", "B", "d", "back-office"} {
		if _, err := ParseAudience(raw); err == nil {
			t.Errorf("ParseAudience(%q) should fail", raw)
		}
	}
}

func TestNarrowBackOffice(t *testing.T) {
	t.Parallel()

	user := User{
		ID:       "u1",
		Audience: AudienceBackOffice,
		Account:  "alice",
		Name:     "Alice",
		Phone:    "13000000000",
		Enabled:  true,
		BackOffice: &BackOfficeProfile{
			OrgID:      "org-1",
			PositionID: "pos-1",
			EmpNo:      "E-7",
		},
	}
	narrowed, err := user.NarrowBackOffice()
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	if narrowed.ID != "u1" || narrowed.OrgID != "org-1" || narrowed.EmpNo != "E-7" {
		t.Fatalf("unexpected narrowed shape: %+v", narrowed)
	}
}

func TestNarrowRejectsWrongAudience(t *testing.T) {
	t.Parallel()

	customer := User{
		ID:       "u2",
		Audience: AudienceCustomer,
		Customer: &CustomerProfile{Nickname: "bee"},
	}
	if _, err := customer.NarrowBackOffice(); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}

	operator := User{
		ID:         "u3",
		Audience:   AudienceBackOffice,
		BackOffice: &BackOfficeProfile{},
	}
	if _, err := operator.NarrowCustomer(); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}
}

func TestNarrowRejectsMissingProfile(t *testing.T) {
	t.Parallel()

	// Tag says back office but the profile never loaded: treat it as skew,
	// not as an empty profile.
	user := User{ID: "u4", Audience: AudienceBackOffice}
	if _, err := user.NarrowBackOffice(); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}
}

func TestNarrowCustomer(t *testing.T) {
	t.Parallel()

	user := User{
		ID:       "u5",
		Audience: AudienceCustomer,
		Account:  "bob",
		Enabled:  true,
		Customer: &CustomerProfile{Nickname: "bobby", Level: "gold"},
	}
	narrowed, err := user.NarrowCustomer()
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	if narrowed.Nickname != "bobby" || narrowed.Level != "gold" {
		t.Fatalf("unexpected narrowed shape: %+v", narrowed)
	}
}
