package service

import (
	"strconv"
	"strings"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

// sheetTabs are the six fixed tabs in the mirror spreadsheet, one per
// (year, subject) pair.
var sheetTabs = []string{
	"Y1_Subject1",
	"Y1_Subject2",
	"Y2_Subject1",
	"Y2_Subject2",
	"Y3_Subject1",
	"Y3_Subject2",
}

// sheetHeader is the fixed 25-column row schema. Column order and header
// text are a compatibility contract: the pull protocol locates columns by
// header text.
var sheetHeader = []string{
	"Team ID",
	"Team Name",
	"Year",
	"Subject",
	"Leader Roll",
	"Leader Name",
	"Leader Email",
	"Member1 Roll",
	"Member1 Name",
	"Member1 Email",
	"Member2 Roll",
	"Member2 Name",
	"Member2 Email",
	"Member3 Roll",
	"Member3 Name",
	"Member3 Email",
	"Mentor Name",
	"Mentor Email",
	"Status",
	"Member1 Marks",
	"Member1 Remarks",
	"Member2 Marks",
	"Member2 Remarks",
	"Member3 Marks",
	"Member3 Remarks",
}

// Slot resolution tolerates the historical spellings of year and subject
// codes. The tables are data on purpose: the legacy variants are easier to
// audit and test here than scattered through conditionals.
var (
	yearSlotTokens = map[string]int{
		"1": 1, "y1": 1, "fy": 1,
		"2": 2, "y2": 2, "sy": 2,
		"3": 3, "y3": 3, "ty": 3,
	}
	yearSlotSubstrings = map[string]int{
		"firstyear":  1,
		"secondyear": 2,
		"thirdyear":  3,
	}
	subjectSlotTokens = map[string]int{
		"subject1": 1, "sub1": 1, "s1": 1,
		"subject2": 2, "sub2": 2, "s2": 2,
	}
)

// normalizeSlotToken lowercases and strips whitespace and underscores so
// "First Year", "first_year" and "FIRSTYEAR" all compare equal.
func normalizeSlotToken(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Join(strings.Fields(v), "")
	return strings.ReplaceAll(v, "_", "")
}

// parseYearSlot resolves a year's code (preferred) or name to 1..3,
// returning 0 when neither matches a known spelling.
func parseYearSlot(ref *models.AcademicRef) int {
	if ref == nil {
		return 0
	}
	v := normalizeSlotToken(ref.Code)
	if v == "" {
		v = normalizeSlotToken(ref.Name)
	}
	if slot, ok := yearSlotTokens[v]; ok {
		return slot
	}
	for substr, slot := range yearSlotSubstrings {
		if strings.Contains(v, substr) {
			return slot
		}
	}
	return 0
}

// parseSubjectSlot resolves a subject's code (preferred) or name to 1..2,
// returning 0 when neither matches.
func parseSubjectSlot(ref *models.AcademicRef) int {
	if ref == nil {
		return 0
	}
	v := normalizeSlotToken(ref.Code)
	if v == "" {
		v = normalizeSlotToken(ref.Name)
	}
	return subjectSlotTokens[v]
}

// tabForTeam maps a team onto its fixed tab. The second return is false
// when the year or subject cannot be resolved; such teams are counted as
// unmapped and excluded from the write.
func tabForTeam(t *models.Team) (string, bool) {
	y := parseYearSlot(t.Year)
	s := parseSubjectSlot(t.Subject)
	if y == 0 || s == 0 {
		return "", false
	}
	return "Y" + strconv.Itoa(y) + "_Subject" + strconv.Itoa(s), true
}

// rowForTeam renders a team into the fixed 25-column schema. Exactly three
// non-leader slots are rendered: a 4-member team's last member is truncated
// from the sheet view while staying fully present in the database.
func rowForTeam(t *models.Team) []string {
	leaderIdx := -1
	for i := range t.Members {
		if t.Members[i].IsLeader() {
			leaderIdx = i
			break
		}
	}

	// No member flagged leader should not happen for valid data; fall back
	// to the first member so the row still renders.
	effectiveLeaderIdx := leaderIdx
	if effectiveLeaderIdx < 0 && len(t.Members) > 0 {
		effectiveLeaderIdx = 0
	}

	var leader *models.Member
	if effectiveLeaderIdx >= 0 {
		leader = &t.Members[effectiveLeaderIdx]
	}

	others := make([]*models.Member, 0, 3)
	for i := range t.Members {
		if i == effectiveLeaderIdx {
			continue
		}
		if len(others) == 3 {
			break
		}
		others = append(others, &t.Members[i])
	}
	for len(others) < 3 {
		others = append(others, nil)
	}

	yearCell := ""
	if y := parseYearSlot(t.Year); y > 0 {
		yearCell = strconv.Itoa(y)
	}
	subjectCell := ""
	if s := parseSubjectSlot(t.Subject); s > 0 {
		subjectCell = "Subject" + strconv.Itoa(s)
	}

	row := []string{
		t.ID,
		t.TeamName,
		yearCell,
		subjectCell,
		memberRoll(leader),
		memberName(leader),
		memberEmail(leader),
	}
	for _, m := range others {
		row = append(row, memberRoll(m), memberName(m), memberEmail(m))
	}
	row = append(row,
		t.Mentor.Name,
		t.Mentor.Email,
		string(models.NormalizeTeamStatus(string(t.Status))),
	)
	for _, m := range others {
		row = append(row, memberScore(m), memberRemarks(m))
	}
	return row
}

// normalizeRowWidth pads or truncates a row to the header width.
func normalizeRowWidth(row []string) []string {
	out := make([]string, len(sheetHeader))
	copy(out, row)
	return out
}

func emptySheetRow() []string {
	return make([]string, len(sheetHeader))
}

func memberRoll(m *models.Member) string {
	if m == nil {
		return ""
	}
	return m.RollNumber
}

func memberName(m *models.Member) string {
	if m == nil {
		return ""
	}
	return m.Name
}

func memberEmail(m *models.Member) string {
	if m == nil {
		return ""
	}
	return m.Email
}

func memberScore(m *models.Member) string {
	if m == nil || m.Marks == nil {
		return ""
	}
	return strconv.FormatFloat(m.Marks.Score, 'f', -1, 64)
}

func memberRemarks(m *models.Member) string {
	if m == nil || m.Marks == nil {
		return ""
	}
	return m.Marks.Remarks
}
