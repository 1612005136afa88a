package accounts

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/auth"
	"speech-to-pdf/internal/db"
	"speech-to-pdf/internal/models"
	"speech-to-pdf/internal/storage"
)

const (
	msgBadCredentials = "Incorrect username or password"
	msgInvalidToken   = "Could not validate credentials"
	msgInactive       = "Inactive user"
	msgEmailTaken     = "Email already registered"
	msgUsernameTaken  = "Username already taken"
)

// CreateUserInput is the admin request for a new account.
type CreateUserInput struct {
	Email    string   `json:"email" validate:"required,email,max=255"`
	Username string   `json:"username" validate:"required,min=3,max=50"`
	Password string   `json:"password" validate:"required"`
	IsAdmin  bool     `json:"is_admin"`
	Credits  *float64 `json:"credits" validate:"omitempty,gte=-1"`
}

// Service owns account rules: authentication, uniqueness, the password policy
// and the admin guards.
type Service struct {
	db       *sqlx.DB
	validate *validator.Validate
	logger   *zap.Logger
}

func NewService(conn *sqlx.DB, logger *zap.Logger) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{db: conn, validate: v, logger: logger}
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := db.GetUserByUsername(ctx, s.db, username)
	if errors.Is(err, db.ErrNotFound) {
		return models.User{}, apperror.Unauthorized(msgBadCredentials)
	}
	if err != nil {
		return models.User{}, err
	}
	if err := auth.CheckPassword(user.HashedPassword, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return models.User{}, apperror.Unauthorized(msgBadCredentials)
	}
	if !user.IsActive {
		return models.User{}, apperror.BusinessRule(msgInactive)
	}
	return user, nil
}

// Resolve loads the active account a verified token subject names.
func (s *Service) Resolve(ctx context.Context, username string) (models.User, error) {
	user, err := db.GetUserByUsername(ctx, s.db, username)
	if errors.Is(err, db.ErrNotFound) {
		return models.User{}, apperror.Unauthorized(msgInvalidToken)
	}
	if err != nil {
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, apperror.BusinessRule(msgInactive)
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.User, error) {
	user, err := db.GetUserByID(ctx, s.db, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.User{}, apperror.NotFound("User")
	}
	return user, err
}

func (s *Service) List(ctx context.Context, skip, limit int) ([]models.User, int, error) {
	return db.ListUsers(ctx, s.db, skip, limit)
}

// Create adds an account on behalf of admin. Admin accounts get the unlimited
// balance unless one is given; everyone else gets the default grant.
func (s *Service) Create(ctx context.Context, admin models.User, in CreateUserInput) (models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return models.User{}, validationError(err)
	}
	if err := auth.ValidatePasswordComplexity(in.Password); err != nil {
		return models.User{}, apperror.BusinessRule(err.Error())
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}

	credits := models.DefaultCredits
	if in.IsAdmin {
		credits = models.UnlimitedCredits
	}
	if in.Credits != nil {
		credits = *in.Credits
	}

	var created models.User
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := checkUnique(ctx, tx, in.Email, in.Username, 0); err != nil {
			return err
		}
		created, err = db.CreateUser(ctx, tx, models.User{
			Email:          in.Email,
			Username:       in.Username,
			HashedPassword: hash,
			IsActive:       true,
			IsAdmin:        in.IsAdmin,
			Credits:        credits,
			CreatedBy:      &admin.ID,
		})
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("user created",
		zap.Int64("user_id", created.ID), zap.String("username", created.Username),
		zap.Bool("is_admin", created.IsAdmin), zap.Int64("created_by", admin.ID))
	return created, nil
}

// Update applies an admin patch to account id.
func (s *Service) Update(ctx context.Context, admin models.User, id int64, patch models.UserPatch) (models.User, error) {
	if err := s.validatePatch(&patch); err != nil {
		return models.User{}, err
	}
	if id == admin.ID && patch.IsAdmin.Set && !patch.IsAdmin.Value {
		return models.User{}, apperror.BusinessRule("Cannot remove your own admin privileges")
	}
	var hash string
	if patch.Password.Set {
		var err error
		if hash, err = auth.HashPassword(patch.Password.Value); err != nil {
			return models.User{}, err
		}
	}

	var updated models.User
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := db.GetUserByID(ctx, tx, id)
		if errors.Is(err, db.ErrNotFound) {
			return apperror.NotFound("User")
		}
		if err != nil {
			return err
		}
		if patch.Empty() {
			updated = current
			return nil
		}

		next := patch.Apply(current)
		if err := checkUnique(ctx, tx, changed(patch.Email, current.Email), changed(patch.Username, current.Username), id); err != nil {
			return err
		}
		if current.IsAdmin && current.IsActive && !(next.IsAdmin && next.IsActive) {
			if err := requireOtherAdmin(ctx, tx, id, "Cannot leave the system without an active admin"); err != nil {
				return err
			}
		}
		if hash != "" {
			next.HashedPassword = hash
		}
		if err := db.UpdateUser(ctx, tx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("user updated", zap.Int64("user_id", id), zap.Int64("updated_by", admin.ID))
	return updated, nil
}

// Delete removes account id and its conversions. Artifact files go after the
// commit and failures there are only logged.
func (s *Service) Delete(ctx context.Context, admin models.User, id int64) error {
	if id == admin.ID {
		return apperror.BusinessRule("Cannot delete your own account")
	}
	var paths []string
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		target, err := db.GetUserByID(ctx, tx, id)
		if errors.Is(err, db.ErrNotFound) {
			return apperror.NotFound("User")
		}
		if err != nil {
			return err
		}
		if target.IsAdmin && target.IsActive {
			if err := requireOtherAdmin(ctx, tx, id, "Cannot delete the last admin user"); err != nil {
				return err
			}
		}
		conversions, err := db.ListConversionsByUser(ctx, tx, id)
		if err != nil {
			return err
		}
		for i := range conversions {
			paths = append(paths, conversions[i].ArtifactPaths()...)
		}
		return db.DeleteUser(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	storage.RemoveAll(s.logger, paths...)
	s.logger.Info("user deleted", zap.Int64("user_id", id), zap.Int64("deleted_by", admin.ID), zap.Int("files", len(paths)))
	return nil
}

// ChangePassword replaces the caller's own password.
func (s *Service) ChangePassword(ctx context.Context, user models.User, current, next string) error {
	if err := auth.CheckPassword(user.HashedPassword, current); err != nil {
		return apperror.BusinessRule("Current password is incorrect")
	}
	if current == next {
		return apperror.BusinessRule("New password must be different from current password")
	}
	if err := auth.ValidatePasswordComplexity(next); err != nil {
		return apperror.BusinessRule(err.Error())
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := db.UpdatePassword(ctx, s.db, user.ID, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.Int64("user_id", user.ID))
	return nil
}

// Bootstrap creates the initial admin account unless username already exists.
func (s *Service) Bootstrap(ctx context.Context, username, email, password string) (bool, error) {
	taken, err := db.UsernameTaken(ctx, s.db, username, 0)
	if err != nil || taken {
		return false, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	_, err = db.CreateUser(ctx, s.db, models.User{
		Email:          email,
		Username:       username,
		HashedPassword: hash,
		IsActive:       true,
		IsAdmin:        true,
		Credits:        models.UnlimitedCredits,
	})
	return err == nil, err
}

func (s *Service) validatePatch(p *models.UserPatch) error {
	fields := map[string]string{}
	if p.Email.Set {
		p.Email.Value = strings.TrimSpace(p.Email.Value)
		if s.validate.Var(p.Email.Value, "required,email,max=255") != nil {
			fields["email"] = "email"
		}
	}
	if p.Username.Set {
		p.Username.Value = strings.TrimSpace(p.Username.Value)
		if s.validate.Var(p.Username.Value, "required,min=3,max=50") != nil {
			fields["username"] = "min=3,max=50"
		}
	}
	if p.Credits.Set && p.Credits.Value < models.UnlimitedCredits {
		fields["credits"] = "gte=-1"
	}
	if len(fields) > 0 {
		return apperror.Validation("Invalid user update", fields)
	}
	if p.Password.Set {
		if err := auth.ValidatePasswordComplexity(p.Password.Value); err != nil {
			return apperror.BusinessRule(err.Error())
		}
	}
	return nil
}

func checkUnique(ctx context.Context, q db.Queryer, email, username string, excludeID int64) error {
	if email != "" {
		taken, err := db.EmailTaken(ctx, q, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Conflict(msgEmailTaken)
		}
	}
	if username != "" {
		taken, err := db.UsernameTaken(ctx, q, username, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Conflict(msgUsernameTaken)
		}
	}
	return nil
}

// changed returns the patched value when it differs from current, else "".
func changed(f models.Field[string], current string) string {
	if f.Set && f.Value != current {
		return f.Value
	}
	return ""
}

func requireOtherAdmin(ctx context.Context, q db.Queryer, excludeID int64, message string) error {
	n, err := db.CountActiveAdmins(ctx, q, excludeID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.BusinessRule(message)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(err.Error(), nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return apperror.Validation("Invalid user data", fields)
}
