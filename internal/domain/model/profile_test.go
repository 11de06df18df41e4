//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleProfiles() []*Profile {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []*Profile{
		{ID: "1", Email: "ada@example.com", FullName: "Ada Lovelace", IsAdmin: true, CreatedAt: base},
		{ID: "2", Email: "grace@example.com", FullName: "Grace Hopper", CreatedAt: base.Add(time.Hour)},
		{ID: "3", Email: "linus@example.org", FullName: "", CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestFilterProfiles(t *testing.T) {
	list := sampleProfiles()

	t.Run("blank query returns everything", func(t *testing.T) {
		got := FilterProfiles(list, "   ")
		assert.Len(t, got, 3)
	})

	t.Run("matches name case-insensitively", func(t *testing.T) {
		got := FilterProfiles(list, "HOPPER")
		require.Len(t, got, 1)
		assert.Equal(t, "2", got[0].ID)
	})

	t.Run("matches email", func(t *testing.T) {
		got := FilterProfiles(list, "example.org")
		require.Len(t, got, 1)
		assert.Equal(t, "3", got[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, FilterProfiles(list, "nobody"))
	})

	t.Run("name or uppercase email", func(t *testing.T) {
		pair := []*Profile{
			{ID: "a", FullName: "Alice Doe", Email: "a@x.com"},
			{ID: "b", FullName: "Bob", Email: "bob@ALICE.org"},
		}
		got := FilterProfiles(pair, "alice")
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "b", got[1].ID)
	})
}

func TestComputeProfileStats(t *testing.T) {
	stats := ComputeProfileStats(sampleProfiles())
	assert.Equal(t, ProfileStats{Total: 3, Admins: 1, Regular: 2}, stats)
	assert.Equal(t, ProfileStats{}, ComputeProfileStats(nil))
}

func TestSortProfilesNewestFirst(t *testing.T) {
	list := sampleProfiles()
	SortProfilesNewestFirst(list)
	assert.Equal(t, []string{"3", "2", "1"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&Profile{FullName: " Ada Lovelace ", Email: "a@b.co"}).DisplayName())
	assert.Equal(t, "a@b.co", (&Profile{Email: "a@b.co"}).DisplayName())
	assert.Empty(t, (*Profile)(nil).DisplayName())
}

func TestProfileChangesApply(t *testing.T) {
	admin := true
	p := &Profile{FullName: "Old", Phone: "+15555550100", Bio: "bio"}
	changes := ProfileChanges{FullName: strPtr("New"), IsAdmin: &admin}
	require.False(t, changes.Empty())

	changes.Apply(p)
	assert.Equal(t, "New", p.FullName)
	assert.Equal(t, "+15555550100", p.Phone)
	assert.True(t, p.IsAdmin)
	assert.True(t, ProfileChanges{}.Empty())
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", SanitizeText("  <b>Tom</b> & Jerry "))
	assert.Equal(t, "hello", SanitizeText("<script>alert(1)</script>hello"))
	assert.Equal(t, "line1\nline2", SanitizeText("line1\nline2\x00"))
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(650) 253-0000", "US")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	got, err = NormalizePhone("  ", "US")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NormalizePhone("not a phone", "US")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestRegistrationInputValidate(t *testing.T) {
	valid := RegistrationInput{
		FullName:        "Ada Lovelace",
		Email:           "ada@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
	require.NoError(t, valid.Validate(6))

	mismatch := valid
	mismatch.ConfirmPassword = "different"
	err := mismatch.Validate(6)
	require.Error(t, err)
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "confirm_password")

	short := valid
	short.Password, short.ConfirmPassword = "abc", "abc"
	err = short.Validate(6)
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "password")

	badEmail := valid
	badEmail.Email = "not-an-email"
	err = badEmail.Validate(6)
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "email")
}

func TestUpdateProfileRequestNormalize(t *testing.T) {
	req := UpdateProfileRequest{
		FullName: strPtr("  <i>Ada</i> "),
		Phone:    strPtr("650-253-0000"),
	}
	require.NoError(t, req.Normalize("US"))
	assert.Equal(t, "Ada", *req.FullName)
	assert.Equal(t, "+16502530000", *req.Phone)
	require.NoError(t, req.Validate())

	bad := UpdateProfileRequest{Phone: strPtr("12")}
	assert.Error(t, bad.Normalize("US"))
}

func TestProfileDraftRequest(t *testing.T) {
	p := &Profile{ID: "1", FullName: "Ada", Phone: "", Bio: "x", UpdatedAt: time.Unix(10, 0)}
	d := NewProfileDraft(p)
	d.FullName = "Ada L."
	req := d.Request()
	require.NotNil(t, req.FullName)
	assert.Equal(t, "Ada L.", *req.FullName)
	assert.Nil(t, req.Bio, "unchanged fields are not sent")
	assert.Nil(t, req.Phone)
	assert.True(t, d.Dirty())
	assert.Equal(t, "Ada", p.FullName)

	clean := NewProfileDraft(p)
	assert.False(t, clean.Dirty())
}

func TestProfileDerivedFacts(t *testing.T) {
	joined := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	p := &Profile{FullName: "Ada", CreatedAt: joined}

	assert.Equal(t, 0, p.DaysSinceJoined(joined.Add(23*time.Hour)))
	assert.Equal(t, 10, p.DaysSinceJoined(joined.Add(10*24*time.Hour+time.Minute)))
	assert.Equal(t, 0, p.DaysSinceJoined(joined.Add(-time.Hour)))

	assert.Equal(t, 75, p.Completeness())
	p.Phone = "+16502530000"
	p.Bio = "Mathematician"
	assert.Equal(t, 100, p.Completeness())

	var missing *Profile
	assert.Equal(t, 0, missing.Completeness())
}
