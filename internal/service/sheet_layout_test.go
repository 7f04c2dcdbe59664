package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

func TestParseYearSlot(t *testing.T) {
	cases := []struct {
		code string
		name string
		want int
	}{
		{"FY", "", 1},
		{"fy", "", 1},
		{"1", "", 1},
		{"Y1", "", 1},
		{"SY", "", 2},
		{"TY", "", 3},
		{"", "First Year", 1},
		{"", "first_year", 1},
		{"", "SECOND YEAR", 2},
		{"", "B.Tech Third Year", 3},
		{"FY ", "", 1},
		{"", "Fourth Year", 0},
		{"", "", 0},
	}
	for _, tc := range cases {
		got := parseYearSlot(&models.AcademicRef{Code: tc.code, Name: tc.name})
		assert.Equal(t, tc.want, got, "code=%q name=%q", tc.code, tc.name)
	}
	assert.Equal(t, 0, parseYearSlot(nil))
}

func TestParseSubjectSlot(t *testing.T) {
	cases := []struct {
		code string
		name string
		want int
	}{
		{"Subject1", "", 1},
		{"SUBJECT2", "", 2},
		{"sub1", "", 1},
		{"S2", "", 2},
		{"", "Subject 1", 1},
		{"", "subject_2", 2},
		{"", "Mathematics", 0},
		{"", "", 0},
	}
	for _, tc := range cases {
		got := parseSubjectSlot(&models.AcademicRef{Code: tc.code, Name: tc.name})
		assert.Equal(t, tc.want, got, "code=%q name=%q", tc.code, tc.name)
	}
	assert.Equal(t, 0, parseSubjectSlot(nil))
}

func TestTabForTeam(t *testing.T) {
	team := &models.Team{
		Year:    &models.AcademicRef{Code: "SY"},
		Subject: &models.AcademicRef{Code: "Subject2"},
	}
	tab, ok := tabForTeam(team)
	require.True(t, ok)
	assert.Equal(t, "Y2_Subject2", tab)

	team.Subject = &models.AcademicRef{Name: "Electronics"}
	_, ok = tabForTeam(team)
	assert.False(t, ok)

	team.Subject = nil
	_, ok = tabForTeam(team)
	assert.False(t, ok)
}

func sampleTeam() *models.Team {
	return &models.Team{
		ID:       "team-1",
		TeamName: "Alpha",
		Status:   models.TeamStatusFinalized,
		Mentor:   models.Mentor{Name: "Prof X", Email: "x@college.edu"},
		Year:     &models.AcademicRef{Code: "FY", Name: "First Year"},
		Subject:  &models.AcademicRef{Code: "Subject1"},
		Members: []models.Member{
			{Name: "Lead", Email: "lead@x.com", RollNumber: "R1", Role: models.MemberRoleLeader},
			{Name: "M1", Email: "m1@x.com", RollNumber: "R2", Role: models.MemberRoleMember},
			{Name: "M2", Email: "m2@x.com", RollNumber: "R3", Role: models.MemberRoleMember,
				Marks: &models.Marks{Score: 87.5, Remarks: "good"}},
		},
	}
}

func TestRowForTeam(t *testing.T) {
	row := normalizeRowWidth(rowForTeam(sampleTeam()))
	require.Len(t, row, len(sheetHeader))

	assert.Equal(t, "team-1", row[0])
	assert.Equal(t, "Alpha", row[1])
	assert.Equal(t, "1", row[2])
	assert.Equal(t, "Subject1", row[3])
	assert.Equal(t, "R1", row[4])
	assert.Equal(t, "Lead", row[5])
	assert.Equal(t, "lead@x.com", row[6])
	assert.Equal(t, "R2", row[7])
	assert.Equal(t, "R3", row[10])
	// Third member slot stays blank for a 3-member team.
	assert.Equal(t, "", row[13])
	assert.Equal(t, "Prof X", row[16])
	assert.Equal(t, "x@college.edu", row[17])
	assert.Equal(t, "FINALIZED", row[18])
	// Marks land in the slot matching the member position.
	assert.Equal(t, "", row[19])
	assert.Equal(t, "87.5", row[21])
	assert.Equal(t, "good", row[22])
}

func TestRowForTeamLeaderFallback(t *testing.T) {
	team := sampleTeam()
	for i := range team.Members {
		team.Members[i].Role = models.MemberRoleMember
	}

	row := rowForTeam(team)
	// First member renders as leader when none is flagged.
	assert.Equal(t, "R1", row[4])
	assert.Equal(t, "R2", row[7])
}

func TestRowForTeamTruncatesFourthMember(t *testing.T) {
	team := sampleTeam()
	team.Members = append(team.Members, models.Member{
		Name: "M3", Email: "m3@x.com", RollNumber: "R4", Role: models.MemberRoleMember,
	})
	team.Members = append(team.Members, models.Member{
		Name: "M4", Email: "m4@x.com", RollNumber: "R5", Role: models.MemberRoleMember,
	})

	row := rowForTeam(team)
	assert.Equal(t, "R4", row[13])
	// A fifth member has no slot.
	for _, cell := range row {
		assert.NotEqual(t, "R5", cell)
	}
}

func TestRowForTeamMigratesLegacyStatus(t *testing.T) {
	team := sampleTeam()
	team.Status = "FROZEN"
	row := rowForTeam(team)
	assert.Equal(t, "FINALIZED", row[18])
}
