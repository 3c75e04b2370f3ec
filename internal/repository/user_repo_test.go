package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hushboard/hushboard/internal/models"
	apperrors "github.com/hushboard/hushboard/internal/pkg/errors"
)

// MockUserRepository is a mock implementation of UserRepository for testing.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		user.CreatedAt = time.Now()
		user.UpdatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	args := m.Called(ctx, googleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) FindOrCreateByGoogleID(ctx context.Context, googleID, username string) (*models.User, error) {
	args := m.Called(ctx, googleID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdateSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	args := m.Called(ctx, userID, secret)
	return args.Error(0)
}

func (m *MockUserRepository) ListWithSecret(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

// Verify MockUserRepository implements UserRepository
var _ UserRepository = (*MockUserRepository)(nil)

func TestMockUserRepository_Create_Duplicate(t *testing.T) {
	mockRepo := new(MockUserRepository)
	ctx := context.Background()

	hash := "$2a$10$fakehashfakehashfakehash"
	first := &models.User{Username: "alice@example.com", PasswordHash: &hash}
	second := &models.User{Username: "alice@example.com", PasswordHash: &hash}

	mockRepo.On("Create", ctx, first).Return(nil)
	mockRepo.On("Create", ctx, second).Return(apperrors.ErrDuplicateUser)

	assert.NoError(t, mockRepo.Create(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	err := mockRepo.Create(ctx, second)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)
	mockRepo.AssertExpectations(t)
}

func TestMockUserRepository_GetByUsername_NotFound(t *testing.T) {
	mockRepo := new(MockUserRepository)
	ctx := context.Background()

	// Unknown username is nil, nil: absence is not an error
	mockRepo.On("GetByUsername", ctx, "nobody@example.com").Return(nil, nil)

	user, err := mockRepo.GetByUsername(ctx, "nobody@example.com")
	assert.NoError(t, err)
	assert.Nil(t, user)
	mockRepo.AssertExpectations(t)
}

func TestMockUserRepository_FindOrCreate_SameIdentity(t *testing.T) {
	mockRepo := new(MockUserRepository)
	ctx := context.Background()

	googleID := "google-12345"
	existing := &models.User{
		ID:       uuid.New(),
		Username: "fed@example.com",
		GoogleID: &googleID,
	}

	// Every resolution of the same identity yields the same record
	mockRepo.On("FindOrCreateByGoogleID", ctx, googleID, "fed@example.com").Return(existing, nil).Twice()

	first, err := mockRepo.FindOrCreateByGoogleID(ctx, googleID, "fed@example.com")
	assert.NoError(t, err)
	second, err := mockRepo.FindOrCreateByGoogleID(ctx, googleID, "fed@example.com")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	mockRepo.AssertExpectations(t)
}

func TestMockUserRepository_UpdateSecret_UnknownUser(t *testing.T) {
	mockRepo := new(MockUserRepository)
	ctx := context.Background()

	ghostID := uuid.New()
	mockRepo.On("UpdateSecret", ctx, ghostID, "some secret").Return(apperrors.ErrUserNotFound)

	err := mockRepo.UpdateSecret(ctx, ghostID, "some secret")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	mockRepo.AssertExpectations(t)
}

func TestMockUserRepository_ListWithSecret_Ordering(t *testing.T) {
	mockRepo := new(MockUserRepository)
	ctx := context.Background()

	older := "posted first"
	newer := "posted second"
	now := time.Now()
	users := []*models.User{
		{ID: uuid.New(), Username: "b@example.com", Secret: &newer, UpdatedAt: now},
		{ID: uuid.New(), Username: "a@example.com", Secret: &older, UpdatedAt: now.Add(-time.Hour)},
	}

	// Most recently updated first
	mockRepo.On("ListWithSecret", ctx).Return(users, nil)

	got, err := mockRepo.ListWithSecret(ctx)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, got[0].UpdatedAt.After(got[1].UpdatedAt))
	mockRepo.AssertExpectations(t)
}

// fakeIdentityStore scripts the responses the find-or-create decision tree
// sees, one GetByGoogleID result per call.
type fakeIdentityStore struct {
	getResults []*models.User
	getErrs    []error
	createErr  error
	created    []*models.User
	getCalls   int
}

func (f *fakeIdentityStore) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	i := f.getCalls
	f.getCalls++
	var user *models.User
	if i < len(f.getResults) {
		user = f.getResults[i]
	}
	var err error
	if i < len(f.getErrs) {
		err = f.getErrs[i]
	}
	return user, err
}

func (f *fakeIdentityStore) Create(ctx context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, user)
	return nil
}

func TestFindOrCreateByGoogleID_ExistingIdentity(t *testing.T) {
	googleID := "google-123"
	existing := &models.User{ID: uuid.New(), Username: "fed@example.com", GoogleID: &googleID}
	store := &fakeIdentityStore{getResults: []*models.User{existing}}

	user, err := findOrCreateByGoogleID(context.Background(), store, googleID, "fed@example.com")
	assert.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.Empty(t, store.created, "known identity must not insert")
}

func TestFindOrCreateByGoogleID_CreatesNew(t *testing.T) {
	store := &fakeIdentityStore{getResults: []*models.User{nil}}

	user, err := findOrCreateByGoogleID(context.Background(), store, "google-123", "fed@example.com")
	assert.NoError(t, err)
	assert.Len(t, store.created, 1)
	assert.Equal(t, "fed@example.com", user.Username)
	assert.NotNil(t, user.GoogleID)
	assert.Equal(t, "google-123", *user.GoogleID)
	assert.Nil(t, user.PasswordHash)
}

func TestFindOrCreateByGoogleID_LostRace(t *testing.T) {
	// A concurrent first login inserted the row between our lookup and our
	// insert: the unique violation retries as a lookup and reuses that row.
	googleID := "google-123"
	racer := &models.User{ID: uuid.New(), Username: "fed@example.com", GoogleID: &googleID}
	store := &fakeIdentityStore{
		getResults: []*models.User{nil, racer},
		createErr:  apperrors.ErrDuplicateUser,
	}

	user, err := findOrCreateByGoogleID(context.Background(), store, googleID, "fed@example.com")
	assert.NoError(t, err)
	assert.Equal(t, racer.ID, user.ID)
	assert.Equal(t, 2, store.getCalls, "unique violation must retry as a lookup")
}

func TestFindOrCreateByGoogleID_UsernameConflict(t *testing.T) {
	// The insert collided on username, not google_id: a local account owns
	// the name and the identity cannot be linked.
	store := &fakeIdentityStore{
		getResults: []*models.User{nil, nil},
		createErr:  apperrors.ErrDuplicateUser,
	}

	user, err := findOrCreateByGoogleID(context.Background(), store, "google-123", "taken@example.com")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateUser)
	assert.Nil(t, user)
	assert.Equal(t, 2, store.getCalls)
}

func TestFindOrCreateByGoogleID_CreateError(t *testing.T) {
	// Non-conflict insert failures pass through untouched
	storeErr := errors.New("connection reset")
	store := &fakeIdentityStore{
		getResults: []*models.User{nil},
		createErr:  storeErr,
	}

	user, err := findOrCreateByGoogleID(context.Background(), store, "google-123", "fed@example.com")
	assert.ErrorIs(t, err, storeErr)
	assert.Nil(t, user)
	assert.Equal(t, 1, store.getCalls, "plain insert failure must not retry")
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "Unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"},
			want: true,
		},
		{
			name: "Wrapped unique violation",
			err:  errors.Join(errors.New("insert failed"), &pgconn.PgError{Code: "23505"}),
			want: true,
		},
		{
			name: "Other postgres error",
			err:  &pgconn.PgError{Code: "23503"},
			want: false,
		},
		{
			name: "Plain error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "Nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}
