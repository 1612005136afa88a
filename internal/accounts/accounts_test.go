package accounts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/auth"
	"speech-to-pdf/internal/db"
	"speech-to-pdf/internal/models"
	"speech-to-pdf/internal/test"
)

func newService(t *testing.T) (*Service, models.User) {
	t.Helper()
	s := NewService(test.NewSQLiteDB(t), zap.NewNop())
	created, err := s.Bootstrap(context.Background(), "admin", "admin@example.com", "admin")
	require.NoError(t, err)
	require.True(t, created)
	admin, err := db.GetUserByUsername(context.Background(), s.db, "admin")
	require.NoError(t, err)
	return s, admin
}

func create(t *testing.T, s *Service, admin models.User, username string, isAdmin bool) models.User {
	t.Helper()
	u, err := s.Create(context.Background(), admin, CreateUserInput{
		Email: username + "@example.com", Username: username, Password: "Passw0rd!", IsAdmin: isAdmin,
	})
	require.NoError(t, err)
	return u
}

func requireKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperror.As(err).Kind, err.Error())
}

func TestBootstrap(t *testing.T) {
	s, admin := newService(t)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, models.UnlimitedCredits, admin.Credits)

	created, err := s.Bootstrap(context.Background(), "admin", "admin@example.com", "admin")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestAuthenticate(t *testing.T) {
	s, admin := newService(t)
	ctx := context.Background()

	u, err := s.Authenticate(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, u.ID)

	_, err = s.Authenticate(ctx, "admin", "wrong")
	requireKind(t, err, apperror.KindUnauthorized)
	_, err = s.Authenticate(ctx, "ghost", "admin")
	requireKind(t, err, apperror.KindUnauthorized)

	bob := create(t, s, admin, "bob", false)
	_, err = s.Update(ctx, admin, bob.ID, models.UserPatch{IsActive: models.Some(false)})
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, "bob", "Passw0rd!")
	requireKind(t, err, apperror.KindBusinessRule)
	_, err = s.Resolve(ctx, "bob")
	requireKind(t, err, apperror.KindBusinessRule)
	_, err = s.Resolve(ctx, "ghost")
	requireKind(t, err, apperror.KindUnauthorized)
}

func TestCreate(t *testing.T) {
	s, admin := newService(t)
	ctx := context.Background()

	bob := create(t, s, admin, "bob", false)
	assert.Equal(t, models.DefaultCredits, bob.Credits)
	require.NotNil(t, bob.CreatedBy)
	assert.Equal(t, admin.ID, *bob.CreatedBy)
	assert.NoError(t, auth.CheckPassword(bob.HashedPassword, "Passw0rd!"))

	carol := create(t, s, admin, "carol", true)
	assert.Equal(t, models.UnlimitedCredits, carol.Credits)

	five := 5.0
	dave, err := s.Create(ctx, admin, CreateUserInput{Email: "dave@example.com", Username: "dave", Password: "Passw0rd!", Credits: &five})
	require.NoError(t, err)
	assert.Equal(t, 5.0, dave.Credits)

	_, err = s.Create(ctx, admin, CreateUserInput{Email: "bob@example.com", Username: "bobby", Password: "Passw0rd!"})
	requireKind(t, err, apperror.KindConflict)
	_, err = s.Create(ctx, admin, CreateUserInput{Email: "other@example.com", Username: "bob", Password: "Passw0rd!"})
	requireKind(t, err, apperror.KindConflict)

	_, err = s.Create(ctx, admin, CreateUserInput{Email: "not-an-email", Username: "erin", Password: "Passw0rd!"})
	requireKind(t, err, apperror.KindValidation)
	assert.Equal(t, "email", apperror.As(err).Details["email"])

	_, err = s.Create(ctx, admin, CreateUserInput{Email: "erin@example.com", Username: "erin", Password: "weak"})
	requireKind(t, err, apperror.KindBusinessRule)
}

func TestUpdate(t *testing.T) {
	s, admin := newService(t)
	ctx := context.Background()
	bob := create(t, s, admin, "bob", false)
	create(t, s, admin, "carol", false)

	t.Run("partial patch keeps absent fields", func(t *testing.T) {
		u, err := s.Update(ctx, admin, bob.ID, models.UserPatch{Credits: models.Some(12.5)})
		require.NoError(t, err)
		assert.Equal(t, 12.5, u.Credits)
		assert.Equal(t, "bob@example.com", u.Email)
		assert.True(t, u.IsActive)
	})

	t.Run("uniqueness against other rows only", func(t *testing.T) {
		_, err := s.Update(ctx, admin, bob.ID, models.UserPatch{Username: models.Some("bob")})
		assert.NoError(t, err)
		_, err = s.Update(ctx, admin, bob.ID, models.UserPatch{Username: models.Some("carol")})
		requireKind(t, err, apperror.KindConflict)
		_, err = s.Update(ctx, admin, bob.ID, models.UserPatch{Email: models.Some("carol@example.com")})
		requireKind(t, err, apperror.KindConflict)
	})

	t.Run("password is hashed", func(t *testing.T) {
		_, err := s.Update(ctx, admin, bob.ID, models.UserPatch{Password: models.Some("NewPassw0rd")})
		require.NoError(t, err)
		_, err = s.Authenticate(ctx, "bob", "NewPassw0rd")
		assert.NoError(t, err)
	})

	t.Run("admin cannot demote self", func(t *testing.T) {
		_, err := s.Update(ctx, admin, admin.ID, models.UserPatch{IsAdmin: models.Some(false)})
		requireKind(t, err, apperror.KindBusinessRule)
	})

	t.Run("last active admin cannot deactivate", func(t *testing.T) {
		_, err := s.Update(ctx, admin, admin.ID, models.UserPatch{IsActive: models.Some(false)})
		requireKind(t, err, apperror.KindBusinessRule)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Update(ctx, admin, 999, models.UserPatch{Credits: models.Some(1.0)})
		requireKind(t, err, apperror.KindNotFound)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := s.Update(ctx, admin, bob.ID, models.UserPatch{Credits: models.Some(-5.0)})
		requireKind(t, err, apperror.KindValidation)
		_, err = s.Update(ctx, admin, bob.ID, models.UserPatch{Email: models.Some("nope")})
		requireKind(t, err, apperror.KindValidation)
	})
}

func TestDeleteGuards(t *testing.T) {
	s, admin := newService(t)
	ctx := context.Background()

	err := s.Delete(ctx, admin, admin.ID)
	requireKind(t, err, apperror.KindBusinessRule)

	// Deleting the second-to-last admin succeeds.
	second := create(t, s, admin, "second", true)
	require.NoError(t, s.Delete(ctx, admin, second.ID))

	// An inactive admin still holding a session cannot remove the last active one.
	stale := create(t, s, admin, "stale", true)
	_, err = s.Update(ctx, admin, stale.ID, models.UserPatch{IsActive: models.Some(false)})
	require.NoError(t, err)
	err = s.Delete(ctx, stale, admin.ID)
	requireKind(t, err, apperror.KindBusinessRule)

	requireKind(t, s.Delete(ctx, admin, 999), apperror.KindNotFound)
}

func TestDeleteRemovesArtifacts(t *testing.T) {
	s, admin := newService(t)
	ctx := context.Background()
	bob := create(t, s, admin, "bob", false)

	dir := t.TempDir()
	audio := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("x"), 0o644))
	c, err := db.CreateConversion(ctx, s.db, models.Conversion{UserID: bob.ID, OriginalFilename: "a.mp3", DisplayName: "a", AudioPath: &audio})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, admin, bob.ID))
	_, err = os.Stat(audio)
	assert.True(t, os.IsNotExist(err))
	_, err = db.GetConversion(ctx, s.db, c.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	s, admin := newService(t)
	ctx := context.Background()
	bob := create(t, s, admin, "bob", false)

	requireKind(t, s.ChangePassword(ctx, bob, "wrong", "Better123"), apperror.KindBusinessRule)
	requireKind(t, s.ChangePassword(ctx, bob, "Passw0rd!", "Passw0rd!"), apperror.KindBusinessRule)

	err := s.ChangePassword(ctx, bob, "Passw0rd!", "lowercase1")
	requireKind(t, err, apperror.KindBusinessRule)
	assert.Equal(t, auth.ErrPasswordNoUpper.Error(), apperror.As(err).Message)

	require.NoError(t, s.ChangePassword(ctx, bob, "Passw0rd!", "Better123"))
	_, err = s.Authenticate(ctx, "bob", "Better123")
	assert.NoError(t, err)
}
