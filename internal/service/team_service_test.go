package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type mockTeamRepo struct {
	created       []*models.Team
	createErr     error
	teamByID      *models.Team
	teamByMember  *models.Team
	listTeams     []models.Team
	listTotal     int
	listFilter    models.TeamFilter
	conflict      bool
	conflictErr   error
	savedMarks    map[string]models.Marks
	saveMarksErr  error
	mentorTeam    *models.Team
	mentorUpdates [][3]string
	mentorChanged bool
	mentorErr     error
	teamIDs       []string
}

func (m *mockTeamRepo) Create(ctx context.Context, team *models.Team) error {
	if m.createErr != nil {
		return m.createErr
	}
	team.ID = uuid.NewString()
	m.created = append(m.created, team)
	return nil
}

func (m *mockTeamRepo) FindByID(ctx context.Context, id string) (*models.Team, error) {
	if m.teamByID == nil {
		return nil, sql.ErrNoRows
	}
	return m.teamByID, nil
}

func (m *mockTeamRepo) FindByIDForMentor(ctx context.Context, id, mentorEmail string) (*models.Team, error) {
	if m.mentorTeam == nil || m.mentorTeam.Mentor.Email != mentorEmail {
		return nil, sql.ErrNoRows
	}
	return m.mentorTeam, nil
}

func (m *mockTeamRepo) FindByMemberEmail(ctx context.Context, yearID, subjectID, email string) (*models.Team, error) {
	if m.teamByMember == nil {
		return nil, sql.ErrNoRows
	}
	return m.teamByMember, nil
}

func (m *mockTeamRepo) List(ctx context.Context, filter models.TeamFilter) ([]models.Team, int, error) {
	m.listFilter = filter
	return m.listTeams, m.listTotal, nil
}

func (m *mockTeamRepo) ListAllForSync(ctx context.Context) ([]models.Team, error) {
	return m.listTeams, nil
}

func (m *mockTeamRepo) HasMembershipConflict(ctx context.Context, yearID, subjectID string, emails, rollNumbers []string) (bool, error) {
	if m.conflictErr != nil {
		return false, m.conflictErr
	}
	return m.conflict, nil
}

func (m *mockTeamRepo) UpdateMentor(ctx context.Context, teamID, name, email string) (bool, error) {
	if m.mentorErr != nil {
		return false, m.mentorErr
	}
	m.mentorUpdates = append(m.mentorUpdates, [3]string{teamID, name, email})
	return m.mentorChanged, nil
}

func (m *mockTeamRepo) SaveMarks(ctx context.Context, teamID string, status models.TeamStatus, marks map[string]models.Marks) error {
	if m.saveMarksErr != nil {
		return m.saveMarksErr
	}
	m.savedMarks = marks
	return nil
}

func (m *mockTeamRepo) TeamIDsByMentor(ctx context.Context, email string) ([]string, error) {
	return m.teamIDs, nil
}

func (m *mockTeamRepo) TeamIDsByMember(ctx context.Context, email string) ([]string, error) {
	return m.teamIDs, nil
}

type mockAcademic struct {
	years    map[string]*models.Year
	subjects map[string]*models.Subject
}

func (m *mockAcademic) FindYearByID(ctx context.Context, id string) (*models.Year, error) {
	if y, ok := m.years[id]; ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAcademic) FindSubjectByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockSettings struct {
	values map[string]*models.Setting
	upsert map[string]interface{}
}

func (m *mockSettings) Get(ctx context.Context, key string) (*models.Setting, error) {
	if s, ok := m.values[key]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSettings) Upsert(ctx context.Context, key string, value interface{}) error {
	if m.upsert == nil {
		m.upsert = make(map[string]interface{})
	}
	m.upsert[key] = value
	return nil
}

type countingPusher struct {
	calls int
}

func (p *countingPusher) PushBestEffort(ctx context.Context) {
	p.calls++
}

var (
	testYearID    = uuid.NewString()
	testSubjectID = uuid.NewString()
)

func testAcademic() *mockAcademic {
	return &mockAcademic{
		years: map[string]*models.Year{
			testYearID: {ID: testYearID, Name: "First Year", Code: "FY"},
		},
		subjects: map[string]*models.Subject{
			testSubjectID: {ID: testSubjectID, YearID: testYearID, Name: "Subject 1", Code: "Subject1"},
		},
	}
}

func validCreateRequest() CreateTeamRequest {
	return CreateTeamRequest{
		YearID:    testYearID,
		SubjectID: testSubjectID,
		TeamName:  "Alpha",
		Members: []TeamMemberInput{
			{Name: "Lead", Email: "LEAD@X.COM", RollNumber: "r1", IsLeader: true},
			{Name: "M1", Email: "m1@x.com", RollNumber: "R2"},
			{Name: "M2", Email: "m2@x.com", RollNumber: "R3"},
		},
	}
}

func testActor() models.UserInfo {
	return models.UserInfo{ID: uuid.NewString(), Email: "lead@x.com", Role: models.RoleStudent}
}

func assertValidationError(t *testing.T, err error, fragment string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, fragment)
}

func TestCreateTeamSuccess(t *testing.T) {
	repo := &mockTeamRepo{}
	pusher := &countingPusher{}
	svc := NewTeamService(repo, testAcademic(), &mockSettings{}, nil, pusher, nil, 0, zap.NewNop())

	team, err := svc.Create(context.Background(), validCreateRequest(), testActor())
	require.NoError(t, err)
	require.NotNil(t, team)

	assert.Equal(t, models.TeamStatusFinalized, team.Status)
	assert.False(t, team.Mentor.Assigned())
	assert.Len(t, team.Members, 3)
	assert.Equal(t, "lead@x.com", team.Members[0].Email)
	assert.Equal(t, "R1", team.Members[0].RollNumber)
	assert.Equal(t, 1, pusher.calls)
	for _, m := range team.Members {
		assert.Nil(t, m.Marks)
	}
}

func TestCreateTeamCompactsEmptyRows(t *testing.T) {
	repo := &mockTeamRepo{}
	svc := NewTeamService(repo, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())

	req := validCreateRequest()
	req.Members = append(req.Members, TeamMemberInput{})

	team, err := svc.Create(context.Background(), req, testActor())
	require.NoError(t, err)
	assert.Len(t, team.Members, 3)
}

func TestCreateTeamValidationOrder(t *testing.T) {
	svc := NewTeamService(&mockTeamRepo{}, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())
	ctx := context.Background()
	actor := testActor()

	req := validCreateRequest()
	req.TeamName = "   "
	_, err := svc.Create(ctx, req, actor)
	assertValidationError(t, err, "team name")

	req = validCreateRequest()
	req.YearID = "not-a-uuid"
	_, err = svc.Create(ctx, req, actor)
	assertValidationError(t, err, "year id")

	req = validCreateRequest()
	req.Members = req.Members[:2]
	_, err = svc.Create(ctx, req, actor)
	assertValidationError(t, err, "3 or 4 members")

	req = validCreateRequest()
	req.Members[1].RollNumber = ""
	_, err = svc.Create(ctx, req, actor)
	assertValidationError(t, err, "roll number")

	req = validCreateRequest()
	req.Members[1].IsLeader = true
	_, err = svc.Create(ctx, req, actor)
	assertValidationError(t, err, "exactly 1 leader")

	req = validCreateRequest()
	_, err = svc.Create(ctx, req, models.UserInfo{Email: "other@x.com"})
	assertValidationError(t, err, "logged-in student")

	req = validCreateRequest()
	req.Members[2].Email = "m1@x.com"
	_, err = svc.Create(ctx, req, actor)
	assertValidationError(t, err, "duplicate email")

	req = validCreateRequest()
	req.Members[2].RollNumber = "r2"
	_, err = svc.Create(ctx, req, actor)
	assertValidationError(t, err, "duplicate roll number")
}

func TestCreateTeamUnknownReferences(t *testing.T) {
	svc := NewTeamService(&mockTeamRepo{}, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())
	ctx := context.Background()

	req := validCreateRequest()
	req.YearID = uuid.NewString()
	_, err := svc.Create(ctx, req, testActor())
	assertValidationError(t, err, "year not found")

	req = validCreateRequest()
	req.SubjectID = uuid.NewString()
	_, err = svc.Create(ctx, req, testActor())
	assertValidationError(t, err, "subject not found")
}

func TestCreateTeamSubjectYearMismatch(t *testing.T) {
	academic := testAcademic()
	otherYear := uuid.NewString()
	academic.years[otherYear] = &models.Year{ID: otherYear, Name: "Second Year", Code: "SY"}
	svc := NewTeamService(&mockTeamRepo{}, academic, &mockSettings{}, nil, nil, nil, 0, zap.NewNop())

	req := validCreateRequest()
	req.YearID = otherYear
	_, err := svc.Create(context.Background(), req, testActor())
	assertValidationError(t, err, "does not belong")
}

func TestCreateTeamMembershipConflict(t *testing.T) {
	repo := &mockTeamRepo{conflict: true}
	svc := NewTeamService(repo, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())

	_, err := svc.Create(context.Background(), validCreateRequest(), testActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestCreateTeamUniqueViolationMapsToConflict(t *testing.T) {
	repo := &mockTeamRepo{createErr: &pq.Error{Code: "23505"}}
	pusher := &countingPusher{}
	svc := NewTeamService(repo, testAcademic(), &mockSettings{}, nil, pusher, nil, 0, zap.NewNop())

	_, err := svc.Create(context.Background(), validCreateRequest(), testActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Zero(t, pusher.calls)
}

func TestMyTeamReturnsNilWhenAbsent(t *testing.T) {
	svc := NewTeamService(&mockTeamRepo{}, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())

	team, err := svc.MyTeam(context.Background(), testYearID, testSubjectID, "lead@x.com")
	require.NoError(t, err)
	assert.Nil(t, team)
}

func TestMyTeamStripsMarks(t *testing.T) {
	member := models.Member{
		Name: "Lead", Email: "lead@x.com", RollNumber: "R1", Role: models.MemberRoleLeader,
		Marks: &models.Marks{Score: 90},
	}
	repo := &mockTeamRepo{teamByMember: &models.Team{Members: []models.Member{member}}}
	svc := NewTeamService(repo, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())

	team, err := svc.MyTeam(context.Background(), testYearID, testSubjectID, "lead@x.com")
	require.NoError(t, err)
	require.NotNil(t, team)
	assert.Nil(t, team.Members[0].Marks)
}

func TestAdminListIncludesLastSyncedAt(t *testing.T) {
	repo := &mockTeamRepo{listTeams: []models.Team{{TeamName: "Alpha"}}, listTotal: 1}
	settings := &mockSettings{values: map[string]*models.Setting{
		models.SettingMentorSync: {
			Key:   models.SettingMentorSync,
			Value: []byte(`{"last_synced_at":"2026-02-10T08:00:00Z","processed":4,"updated":2}`),
		},
	}}
	svc := NewTeamService(repo, testAcademic(), settings, nil, nil, nil, 0, zap.NewNop())

	result, err := svc.AdminList(context.Background(), models.TeamFilter{Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.NotNil(t, result.LastSyncedAt)
	assert.Equal(t, 1, result.Pagination.TotalCount)
	assert.Equal(t, "2026-02-10T08:00:00Z", result.LastSyncedAt.Format("2006-01-02T15:04:05Z"))
}

// jsonCache stores values the way the Redis-backed cache does: marshaled
// on Set, unmarshaled into dest on Get.
type jsonCache struct {
	store map[string][]byte
}

func newJSONCache() *jsonCache {
	return &jsonCache{store: map[string][]byte{}}
}

func (c *jsonCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *jsonCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = raw
	return nil
}

func (c *jsonCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.store = map[string][]byte{}
	return nil
}

func TestAdminListCacheHitKeepsPagination(t *testing.T) {
	repo := &mockTeamRepo{listTeams: []models.Team{{TeamName: "Alpha"}}, listTotal: 1}
	cache := newJSONCache()
	svc := NewTeamService(repo, testAcademic(), &mockSettings{}, cache, nil, nil, 0, zap.NewNop())

	filter := models.TeamFilter{Page: 1, PageSize: 50}
	first, err := svc.AdminList(context.Background(), filter)
	require.NoError(t, err)
	require.NotNil(t, first.Pagination)
	assert.Equal(t, 1, first.Pagination.TotalCount)

	// Drain the repo so a second read can only come from the cache.
	repo.listTeams = nil
	repo.listTotal = 0

	second, err := svc.AdminList(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, second.Teams, 1)
	require.NotNil(t, second.Pagination)
	assert.Equal(t, 1, second.Pagination.TotalCount)
	assert.Equal(t, 50, second.Pagination.PageSize)
}

func TestGetTeamNotFound(t *testing.T) {
	svc := NewTeamService(&mockTeamRepo{}, testAcademic(), &mockSettings{}, nil, nil, nil, 0, zap.NewNop())

	_, err := svc.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), "bogus")
	assertValidationError(t, err, "team id")
}
