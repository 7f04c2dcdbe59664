package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation. The unique indexes on teams/team_members are the authoritative
// guard against concurrent duplicate inserts; services translate this into
// a conflict error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

const teamSelect = `SELECT t.id, t.year_id, t.subject_id, t.team_name, t.mentor_name, t.mentor_email,
	t.created_by, t.status, t.created_at, t.updated_at,
	y.name AS year_name, y.code AS year_code,
	s.name AS subject_name, s.code AS subject_code
	FROM teams t
	JOIN years y ON y.id = t.year_id
	JOIN subjects s ON s.id = t.subject_id`

type teamRow struct {
	ID          string    `db:"id"`
	YearID      string    `db:"year_id"`
	SubjectID   string    `db:"subject_id"`
	TeamName    string    `db:"team_name"`
	MentorName  string    `db:"mentor_name"`
	MentorEmail string    `db:"mentor_email"`
	CreatedBy   string    `db:"created_by"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	YearName    string    `db:"year_name"`
	YearCode    string    `db:"year_code"`
	SubjectName string    `db:"subject_name"`
	SubjectCode string    `db:"subject_code"`
}

type memberRow struct {
	TeamID       string     `db:"team_id"`
	Position     int        `db:"position"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	RollNumber   string     `db:"roll_number"`
	Section      string     `db:"section"`
	MemberRole   string     `db:"member_role"`
	MarksScore   *float64   `db:"marks_score"`
	MarksRemarks string     `db:"marks_remarks"`
	GradedAt     *time.Time `db:"graded_at"`
	GradedBy     string     `db:"graded_by"`
}

// TeamRepository manages persistence for teams and their embedded members.
type TeamRepository struct {
	db *sqlx.DB
}

// NewTeamRepository constructs a TeamRepository.
func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create persists a team and its members in one transaction. Unique-index
// violations (duplicate team name or member within the year/subject scope)
// surface through IsUniqueViolation.
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create team: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	team.CreatedAt = now
	team.UpdatedAt = now

	const insertTeam = `INSERT INTO teams
		(id, year_id, subject_id, team_name, mentor_name, mentor_email, created_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, insertTeam,
		team.ID, team.YearID, team.SubjectID, team.TeamName,
		team.Mentor.Name, team.Mentor.Email, team.CreatedBy, string(team.Status),
		team.CreatedAt, team.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert team: %w", err)
	}

	const insertMember = `INSERT INTO team_members
		(team_id, year_id, subject_id, position, name, email, roll_number, section, member_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i, member := range team.Members {
		if _, err := tx.ExecContext(ctx, insertMember,
			team.ID, team.YearID, team.SubjectID, i,
			member.Name, member.Email, member.RollNumber, member.Section, string(member.Role),
		); err != nil {
			return fmt.Errorf("insert team member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create team: %w", err)
	}
	return nil
}

// FindByID fetches one team with its members. Returns sql.ErrNoRows when
// the team does not exist.
func (r *TeamRepository) FindByID(ctx context.Context, id string) (*models.Team, error) {
	var row teamRow
	if err := r.db.GetContext(ctx, &row, teamSelect+" WHERE t.id = $1", id); err != nil {
		return nil, err
	}
	return r.attachMembers(ctx, row)
}

// FindByIDForMentor fetches a team only when it is assigned to the given
// mentor email. Unknown id and foreign mentor both return sql.ErrNoRows so
// callers cannot distinguish the two.
func (r *TeamRepository) FindByIDForMentor(ctx context.Context, id, mentorEmail string) (*models.Team, error) {
	var row teamRow
	const query = teamSelect + " WHERE t.id = $1 AND LOWER(t.mentor_email) = LOWER($2)"
	if err := r.db.GetContext(ctx, &row, query, id, mentorEmail); err != nil {
		return nil, err
	}
	return r.attachMembers(ctx, row)
}

// FindByMemberEmail fetches the team within a year/subject scope containing
// the given member email.
func (r *TeamRepository) FindByMemberEmail(ctx context.Context, yearID, subjectID, email string) (*models.Team, error) {
	var row teamRow
	const query = teamSelect + ` WHERE t.year_id = $1 AND t.subject_id = $2
		AND EXISTS (SELECT 1 FROM team_members m WHERE m.team_id = t.id AND m.email = LOWER($3))`
	if err := r.db.GetContext(ctx, &row, query, yearID, subjectID, email); err != nil {
		return nil, err
	}
	return r.attachMembers(ctx, row)
}

// List returns teams matching the filter plus a total count, newest first.
func (r *TeamRepository) List(ctx context.Context, filter models.TeamFilter) ([]models.Team, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.YearID != "" {
		args = append(args, filter.YearID)
		conditions = append(conditions, fmt.Sprintf("t.year_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("t.subject_id = $%d", len(args)))
	}
	if filter.MentorEmail != "" {
		args = append(args, filter.MentorEmail)
		conditions = append(conditions, fmt.Sprintf("LOWER(t.mentor_email) = LOWER($%d)", len(args)))
	}
	if filter.MemberEmail != "" {
		args = append(args, filter.MemberEmail)
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM team_members m WHERE m.team_id = t.id AND m.email = LOWER($%d))", len(args)))
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM teams t" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teams: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY t.created_at DESC LIMIT %d OFFSET %d", teamSelect, where, size, offset)
	var rows []teamRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teams: %w", err)
	}

	teams, err := r.attachMembersBatch(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return teams, total, nil
}

// ListAllForSync returns every team with year/subject refs and members, the
// working set of a sheet push.
func (r *TeamRepository) ListAllForSync(ctx context.Context) ([]models.Team, error) {
	var rows []teamRow
	if err := r.db.SelectContext(ctx, &rows, teamSelect+" ORDER BY t.created_at ASC"); err != nil {
		return nil, fmt.Errorf("list teams for sync: %w", err)
	}
	return r.attachMembersBatch(ctx, rows)
}

// HasMembershipConflict reports whether any of the emails or roll numbers
// already belong to a team in the same year/subject scope.
func (r *TeamRepository) HasMembershipConflict(ctx context.Context, yearID, subjectID string, emails, rollNumbers []string) (bool, error) {
	query, args, err := sqlx.In(`SELECT EXISTS (
		SELECT 1 FROM team_members
		WHERE year_id = ? AND subject_id = ? AND (email IN (?) OR roll_number IN (?)))`,
		yearID, subjectID, emails, rollNumbers)
	if err != nil {
		return false, fmt.Errorf("build membership conflict query: %w", err)
	}
	query = r.db.Rebind(query)

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check membership conflict: %w", err)
	}
	return exists, nil
}

// UpdateMentor overwrites a team's mentor assignment. It reports whether
// the row actually changed, so sync summaries can count real updates.
// Blank values clear the assignment.
func (r *TeamRepository) UpdateMentor(ctx context.Context, teamID, name, email string) (bool, error) {
	if _, err := uuid.Parse(teamID); err != nil {
		// Operator-edited sheets can hold garbage in the Team ID column;
		// a malformed id matches no team.
		return false, nil
	}

	const query = `UPDATE teams SET mentor_name = $2, mentor_email = $3, updated_at = $4
		WHERE id = $1 AND (mentor_name <> $2 OR mentor_email <> $3)`
	res, err := r.db.ExecContext(ctx, query, teamID, name, email, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update mentor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update mentor rows affected: %w", err)
	}
	return affected > 0, nil
}

// SaveMarks writes a grading batch in one transaction, keyed by normalized
// roll number, and persists the (possibly migrated) team status.
func (r *TeamRepository) SaveMarks(ctx context.Context, teamID string, status models.TeamStatus, marks map[string]models.Marks) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save marks: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE teams SET status = $2, updated_at = $3 WHERE id = $1",
		teamID, string(status), now,
	); err != nil {
		return fmt.Errorf("update team status: %w", err)
	}

	const updateMember = `UPDATE team_members
		SET marks_score = $3, marks_remarks = $4, graded_at = $5, graded_by = $6
		WHERE team_id = $1 AND UPPER(roll_number) = $2`
	for roll, m := range marks {
		res, err := tx.ExecContext(ctx, updateMember, teamID, roll, m.Score, m.Remarks, m.GradedAt, m.GradedBy)
		if err != nil {
			return fmt.Errorf("update member marks: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("member marks rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save marks: %w", err)
	}
	return nil
}

// MigrateLegacyStatuses rewrites stored FROZEN statuses to FINALIZED and
// returns how many rows changed.
func (r *TeamRepository) MigrateLegacyStatuses(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE teams SET status = 'FINALIZED', updated_at = $1 WHERE UPPER(status) = 'FROZEN'",
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("migrate legacy statuses: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("migrate legacy statuses rows affected: %w", err)
	}
	return affected, nil
}

// TeamIDsByMentor returns ids of all teams assigned to the mentor email.
func (r *TeamRepository) TeamIDsByMentor(ctx context.Context, email string) ([]string, error) {
	var ids []string
	const query = "SELECT id FROM teams WHERE LOWER(mentor_email) = LOWER($1)"
	if err := r.db.SelectContext(ctx, &ids, query, email); err != nil {
		return nil, fmt.Errorf("team ids by mentor: %w", err)
	}
	return ids, nil
}

// TeamIDsByMember returns ids of every team, across all years and
// subjects, containing the member email.
func (r *TeamRepository) TeamIDsByMember(ctx context.Context, email string) ([]string, error) {
	var ids []string
	const query = "SELECT DISTINCT team_id FROM team_members WHERE email = LOWER($1)"
	if err := r.db.SelectContext(ctx, &ids, query, email); err != nil {
		return nil, fmt.Errorf("team ids by member: %w", err)
	}
	return ids, nil
}

// AssignedCountsByMentor aggregates team counts per mentor email.
func (r *TeamRepository) AssignedCountsByMentor(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Email string `db:"email"`
		Count int    `db:"count"`
	}{}
	const query = `SELECT LOWER(mentor_email) AS email, COUNT(*) AS count
		FROM teams WHERE mentor_email <> '' GROUP BY LOWER(mentor_email)`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("assigned counts by mentor: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Email] = row.Count
	}
	return counts, nil
}

func (r *TeamRepository) attachMembers(ctx context.Context, row teamRow) (*models.Team, error) {
	teams, err := r.attachMembersBatch(ctx, []teamRow{row})
	if err != nil {
		return nil, err
	}
	return &teams[0], nil
}

func (r *TeamRepository) attachMembersBatch(ctx context.Context, rows []teamRow) ([]models.Team, error) {
	teams := make([]models.Team, 0, len(rows))
	if len(rows) == 0 {
		return teams, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	query, args, err := sqlx.In(`SELECT team_id, position, name, email, roll_number, section, member_role,
		marks_score, marks_remarks, graded_at, graded_by
		FROM team_members WHERE team_id IN (?) ORDER BY team_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("build members query: %w", err)
	}
	query = r.db.Rebind(query)

	var memberRows []memberRow
	if err := r.db.SelectContext(ctx, &memberRows, query, args...); err != nil {
		return nil, fmt.Errorf("load team members: %w", err)
	}

	membersByTeam := make(map[string][]models.Member, len(rows))
	for _, m := range memberRows {
		member := models.Member{
			Name:       m.Name,
			Email:      m.Email,
			RollNumber: m.RollNumber,
			Section:    m.Section,
			Role:       models.MemberRole(m.MemberRole),
		}
		if m.MarksScore != nil {
			marks := models.Marks{
				Score:    *m.MarksScore,
				Remarks:  m.MarksRemarks,
				GradedBy: m.GradedBy,
			}
			if m.GradedAt != nil {
				marks.GradedAt = *m.GradedAt
			}
			member.Marks = &marks
		}
		membersByTeam[m.TeamID] = append(membersByTeam[m.TeamID], member)
	}

	for _, row := range rows {
		teams = append(teams, models.Team{
			ID:        row.ID,
			YearID:    row.YearID,
			SubjectID: row.SubjectID,
			TeamName:  row.TeamName,
			Mentor:    models.Mentor{Name: row.MentorName, Email: row.MentorEmail},
			CreatedBy: row.CreatedBy,
			Status:    models.NormalizeTeamStatus(row.Status),
			Members:   membersByTeam[row.ID],
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Year:      &models.AcademicRef{ID: row.YearID, Name: row.YearName, Code: row.YearCode},
			Subject:   &models.AcademicRef{ID: row.SubjectID, Name: row.SubjectName, Code: row.SubjectCode},
		})
	}
	return teams, nil
}
