package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type mockUserRepo struct {
	usersByEmail map[string]*models.User
	teachers     []models.User
}

func (m *mockUserRepo) put(u *models.User) {
	if m.usersByEmail == nil {
		m.usersByEmail = make(map[string]*models.User)
	}
	m.usersByEmail[u.Email] = u
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.usersByEmail {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ListTeachers(ctx context.Context) ([]models.User, error) {
	return m.teachers, nil
}

func (m *mockUserRepo) RolesByEmails(ctx context.Context, emails []string) (map[string]models.UserRole, error) {
	out := make(map[string]models.UserRole)
	for _, e := range emails {
		if u, ok := m.usersByEmail[e]; ok {
			out[e] = u.Role
		}
	}
	return out, nil
}

func (m *mockUserRepo) FindOrCreate(ctx context.Context, user *models.User) (*models.User, bool, error) {
	if existing, ok := m.usersByEmail[user.Email]; ok {
		cp := *existing
		return &cp, false, nil
	}
	user.ID = uuid.NewString()
	m.put(user)
	cp := *user
	return &cp, true, nil
}

func (m *mockUserRepo) ProvisionTeachers(ctx context.Context, teachers []models.User) (int64, error) {
	var inserted int64
	for i := range teachers {
		if _, ok := m.usersByEmail[teachers[i].Email]; ok {
			continue
		}
		teachers[i].ID = uuid.NewString()
		m.put(&teachers[i])
		inserted++
	}
	return inserted, nil
}

func (m *mockUserRepo) UpdateTeacherName(ctx context.Context, email, name string) (*models.User, error) {
	u, ok := m.usersByEmail[email]
	if !ok || u.Role != models.RoleTeacher {
		return nil, sql.ErrNoRows
	}
	u.FullName = name
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	for _, u := range m.usersByEmail {
		if u.ID == id {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return sql.ErrNoRows
}

type mockMentorCounts struct {
	counts    map[string]int
	migrated  int64
	migrateOK bool
}

func (m *mockMentorCounts) AssignedCountsByMentor(ctx context.Context) (map[string]int, error) {
	return m.counts, nil
}

func (m *mockMentorCounts) MigrateLegacyStatuses(ctx context.Context) (int64, error) {
	m.migrateOK = true
	return m.migrated, nil
}

func TestTeachersIncludesAssignedCounts(t *testing.T) {
	users := &mockUserRepo{teachers: []models.User{
		{ID: "1", Email: "a@x.com", Role: models.RoleTeacher},
		{ID: "2", Email: "B@X.com", Role: models.RoleTeacher},
	}}
	teams := &mockMentorCounts{counts: map[string]int{"a@x.com": 3, "b@x.com": 1}}
	svc := NewUserService(users, teams, &mockSettings{}, zap.NewNop())

	accounts, err := svc.Teachers(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, 3, accounts[0].AssignedTeamsCount)
	assert.Equal(t, 1, accounts[1].AssignedTeamsCount)
}

func TestCreateTeacherNew(t *testing.T) {
	users := &mockUserRepo{}
	svc := NewUserService(users, &mockMentorCounts{}, &mockSettings{}, zap.NewNop())

	result, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{Email: " Prof@X.com ", Name: "Prof X"})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "prof@x.com", result.Teacher.Email)
	assert.Equal(t, models.RoleTeacher, result.Teacher.Role)
}

func TestCreateTeacherRenamesExisting(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{ID: "1", Email: "prof@x.com", FullName: "Old", Role: models.RoleTeacher})
	svc := NewUserService(users, &mockMentorCounts{}, &mockSettings{}, zap.NewNop())

	result, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{Email: "prof@x.com", Name: "New Name"})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, "New Name", result.Teacher.FullName)
}

func TestCreateTeacherRoleMismatch(t *testing.T) {
	users := &mockUserRepo{}
	users.put(&models.User{ID: "1", Email: "kid@x.com", Role: models.RoleStudent})
	svc := NewUserService(users, &mockMentorCounts{}, &mockSettings{}, zap.NewNop())

	_, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{Email: "kid@x.com"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRoleMismatch.Code, appErrors.FromError(err).Code)
	// The existing account keeps its role.
	assert.Equal(t, models.RoleStudent, users.usersByEmail["kid@x.com"].Role)
}

func TestCreateTeacherRequiresEmail(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, &mockMentorCounts{}, &mockSettings{}, zap.NewNop())
	_, err := svc.CreateTeacher(context.Background(), CreateTeacherRequest{Name: "X"})
	assertValidationError(t, err, "email")
}

func TestMigrateTeamStatusesRecordsRun(t *testing.T) {
	teams := &mockMentorCounts{migrated: 7}
	settings := &mockSettings{}
	svc := NewUserService(&mockUserRepo{}, teams, settings, zap.NewNop())

	result, err := svc.MigrateTeamStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.ModifiedCount)
	assert.True(t, teams.migrateOK)
	assert.Contains(t, settings.upsert, models.SettingTeamStatusMigration)
}
