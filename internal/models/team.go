package models

import (
	"strings"
	"time"
)

// TeamStatus is the lifecycle status of a team. FINALIZED is the only live
// value; FROZEN is a legacy spelling still present in old rows and is
// migrated on every read and write.
type TeamStatus string

const (
	TeamStatusFinalized TeamStatus = "FINALIZED"

	// legacyTeamStatusFrozen only ever appears in storage, never in output.
	legacyTeamStatusFrozen = "FROZEN"
)

// NormalizeTeamStatus maps legacy status spellings onto the current value.
func NormalizeTeamStatus(raw string) TeamStatus {
	if strings.EqualFold(strings.TrimSpace(raw), legacyTeamStatusFrozen) {
		return TeamStatusFinalized
	}
	if raw == "" {
		return TeamStatusFinalized
	}
	return TeamStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// MemberRole distinguishes the single leader from regular members.
type MemberRole string

const (
	MemberRoleLeader MemberRole = "leader"
	MemberRoleMember MemberRole = "member"
)

// Marks holds a member's grade. Absent (nil on Member) until first grading.
type Marks struct {
	Score    float64   `json:"score"`
	Remarks  string    `json:"remarks"`
	GradedAt time.Time `json:"graded_at"`
	GradedBy string    `json:"graded_by"`
}

// Member is embedded in a team and has no independent identity.
type Member struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	RollNumber string     `json:"roll_number"`
	Section    string     `json:"section"`
	Role       MemberRole `json:"role"`
	Marks      *Marks     `json:"marks,omitempty"`
}

// IsLeader reports whether the member carries the leader role.
func (m Member) IsLeader() bool {
	return m.Role == MemberRoleLeader
}

// Mentor is the teacher assigned to a team, matched by email. Both fields
// empty means unassigned. Mutated only by the spreadsheet sync engine.
type Mentor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Assigned reports whether a mentor email is set.
func (m Mentor) Assigned() bool {
	return m.Email != ""
}

// Team is created once by a student and immutable afterwards except for the
// mentor assignment (sync engine) and member marks (assigned mentor).
type Team struct {
	ID        string     `json:"id"`
	YearID    string     `json:"year_id"`
	SubjectID string     `json:"subject_id"`
	TeamName  string     `json:"team_name"`
	Mentor    Mentor     `json:"mentor"`
	CreatedBy string     `json:"created_by"`
	Status    TeamStatus `json:"status"`
	Members   []Member   `json:"members"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Populated on reads that join years/subjects.
	Year    *AcademicRef `json:"year,omitempty"`
	Subject *AcademicRef `json:"subject,omitempty"`
}

// Leader returns the member flagged as leader, falling back to the first
// member in list order when none is flagged. The second return reports
// whether an explicit leader was found.
func (t *Team) Leader() (*Member, bool) {
	for i := range t.Members {
		if t.Members[i].IsLeader() {
			return &t.Members[i], true
		}
	}
	if len(t.Members) > 0 {
		return &t.Members[0], false
	}
	return nil, false
}

// StripMarks removes the marks field from every member. Students must never
// observe marks, even empty ones.
func (t *Team) StripMarks() {
	for i := range t.Members {
		t.Members[i].Marks = nil
	}
}

// TeamFilter captures filtering criteria for listing teams.
type TeamFilter struct {
	YearID      string
	SubjectID   string
	MentorEmail string
	MemberEmail string
	Page        int
	PageSize    int
}

// GradeEntry is one row of a grading batch, addressed by roll number.
type GradeEntry struct {
	RollNumber string  `json:"roll_number" validate:"required"`
	Score      float64 `json:"score"`
	Remarks    string  `json:"remarks"`
}
