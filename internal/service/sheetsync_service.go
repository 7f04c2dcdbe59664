package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
	"github.com/noah-isme/pbl-teams-api/pkg/sheets"
)

type syncTeamRepo interface {
	ListAllForSync(ctx context.Context) ([]models.Team, error)
	UpdateMentor(ctx context.Context, teamID, name, email string) (bool, error)
}

type syncUserRepo interface {
	RolesByEmails(ctx context.Context, emails []string) (map[string]models.UserRole, error)
	ProvisionTeachers(ctx context.Context, teachers []models.User) (int64, error)
}

type settingWriter interface {
	Upsert(ctx context.Context, key string, value interface{}) error
}

type syncMetrics interface {
	SyncCompleted(direction string, success bool)
}

// PushSummary reports the outcome of a database-to-spreadsheet push.
type PushSummary struct {
	Skipped        bool           `json:"skipped"`
	Reason         string         `json:"reason,omitempty"`
	CreatedTabs    int            `json:"created_tabs"`
	HeadersUpdated int            `json:"headers_updated"`
	Teams          int            `json:"teams"`
	UnmappedTeams  int            `json:"unmapped_teams"`
	Tabs           map[string]int `json:"tabs,omitempty"`
}

// TabPullStat is the per-tab slice of a mentor pull.
type TabPullStat struct {
	Processed int    `json:"processed"`
	Updated   int    `json:"updated"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// MentorSyncSummary reports the outcome of a spreadsheet-to-database
// mentor pull.
type MentorSyncSummary struct {
	Skipped                  bool                   `json:"skipped"`
	Reason                   string                 `json:"reason,omitempty"`
	Processed                int                    `json:"processed"`
	Updated                  int                    `json:"updated"`
	ByTab                    map[string]TabPullStat `json:"by_tab,omitempty"`
	ProvisionedTeachers      int64                  `json:"provisioned_teachers"`
	ProvisionedTeacherEmails []string               `json:"provisioned_teacher_emails"`
	UnknownMentorEmails      []string               `json:"unknown_mentor_emails"`
	SyncedAt                 time.Time              `json:"synced_at"`
}

// mentorSyncState is what gets persisted under the mentorSync setting key
// after every successful pull.
type mentorSyncState struct {
	LastSyncedAt        time.Time `json:"last_synced_at"`
	Processed           int       `json:"processed"`
	Updated             int       `json:"updated"`
	UnknownMentorEmails []string  `json:"unknown_mentor_emails"`
}

// SyncService implements both directions of the spreadsheet mirror: the
// database is authoritative for team data, the spreadsheet for mentor
// assignments. A nil sheets client turns both directions into no-ops.
type SyncService struct {
	client   sheets.Client
	teams    syncTeamRepo
	users    syncUserRepo
	settings settingWriter
	cache    teamCache
	metrics  syncMetrics
	timeout  time.Duration
	logger   *zap.Logger
}

const defaultSyncTimeout = 30 * time.Second

// NewSyncService constructs a SyncService. client, cache and metrics may
// be nil; a non-positive timeout falls back to the default.
func NewSyncService(client sheets.Client, teams syncTeamRepo, users syncUserRepo, settings settingWriter, cache teamCache, metrics syncMetrics, timeout time.Duration, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &SyncService{
		client:   client,
		teams:    teams,
		users:    users,
		settings: settings,
		cache:    cache,
		metrics:  metrics,
		timeout:  timeout,
		logger:   logger,
	}
}

// PushBestEffort runs a push and consumes any failure. Callers embed it in
// primary operations whose result must not depend on spreadsheet health.
func (s *SyncService) PushBestEffort(ctx context.Context) {
	if _, err := s.SyncToSheets(ctx); err != nil {
		s.logger.Warn("sheet push failed", zap.Error(err))
	}
}

// SyncToSheets regenerates the whole spreadsheet from the database. Every
// tab is rewritten over its full previous height so stale rows are blanked
// rather than left behind.
func (s *SyncService) SyncToSheets(ctx context.Context) (*PushSummary, error) {
	if s.client == nil {
		return &PushSummary{Skipped: true, Reason: "google sheets not configured"}, nil
	}

	// A stalled Sheets API must not hang the triggering request.
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary := &PushSummary{Tabs: make(map[string]int, len(sheetTabs))}

	created, headersUpdated, err := s.ensureTabsAndHeaders(ctx)
	if err != nil {
		s.observe("push", false)
		return nil, err
	}
	summary.CreatedTabs = created
	summary.HeadersUpdated = headersUpdated

	teams, err := s.teams.ListAllForSync(ctx)
	if err != nil {
		s.observe("push", false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams for push")
	}
	summary.Teams = len(teams)

	grouped := make(map[string][][]string, len(sheetTabs))
	for i := range teams {
		tab, ok := tabForTeam(&teams[i])
		if !ok {
			summary.UnmappedTeams++
			continue
		}
		grouped[tab] = append(grouped[tab], normalizeRowWidth(rowForTeam(&teams[i])))
	}

	endCol := sheets.ColumnLetter(len(sheetHeader))
	for _, tab := range sheetTabs {
		rows := grouped[tab]
		next := make([][]string, 0, len(rows)+1)
		next = append(next, append([]string(nil), sheetHeader...))
		next = append(next, rows...)

		// Best effort: an unreadable tab is treated as empty and fully
		// overwritten.
		existing, readErr := s.client.Read(ctx, sheets.Range(tab, "A1:"+endCol))
		if readErr != nil {
			s.logger.Warn("sheet read before push failed", zap.String("tab", tab), zap.Error(readErr))
			existing = nil
		}

		height := len(next)
		if len(existing) > height {
			height = len(existing)
		}
		writeRange := sheets.Range(tab, "A1:"+endCol+strconv.Itoa(height))

		if err := s.client.Write(ctx, writeRange, padRows(next, height)); err != nil {
			if existing != nil {
				if restoreErr := s.client.Write(ctx, writeRange, padRows(widenRows(existing), height)); restoreErr != nil {
					s.logger.Warn("sheet restore after failed push also failed", zap.String("tab", tab), zap.Error(restoreErr))
				}
			}
			s.observe("push", false)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write tab "+tab)
		}
		summary.Tabs[tab] = len(rows)
	}

	s.observe("push", true)
	return summary, nil
}

// SyncMentorsFromSheets reads mentor assignments out of every tab and
// applies them to the database. Mentor cells overwrite unconditionally, so
// blanking both cells clears an assignment. Unknown mentor emails are
// provisioned as teacher accounts; emails already registered under another
// role are reported and never changed.
func (s *SyncService) SyncMentorsFromSheets(ctx context.Context) (*MentorSyncSummary, error) {
	if s.client == nil {
		return &MentorSyncSummary{Skipped: true, Reason: "google sheets not configured"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, _, err := s.ensureTabsAndHeaders(ctx); err != nil {
		s.observe("pull", false)
		return nil, err
	}

	summary := &MentorSyncSummary{
		ByTab:                    make(map[string]TabPullStat, len(sheetTabs)),
		ProvisionedTeacherEmails: []string{},
		UnknownMentorEmails:      []string{},
	}
	unknownEmails := make(map[string]bool)
	provisionedEmails := make(map[string]bool)

	endCol := sheets.ColumnLetter(len(sheetHeader))
	for _, tab := range sheetTabs {
		values, err := s.client.Read(ctx, sheets.Range(tab, "A1:"+endCol))
		if err != nil {
			s.observe("pull", false)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read tab "+tab)
		}
		if len(values) == 0 {
			summary.ByTab[tab] = TabPullStat{}
			continue
		}

		header, dataRows := values[0], values[1:]
		idxTeamID := headerIndex(header, "Team ID")
		idxMentorName := headerIndex(header, "Mentor Name")
		idxMentorEmail := headerIndex(header, "Mentor Email")
		if idxTeamID < 0 || idxMentorName < 0 || idxMentorEmail < 0 {
			summary.ByTab[tab] = TabPullStat{Skipped: true, Reason: "missing required columns"}
			continue
		}

		teacherEmails, err := s.provisionMentors(ctx, dataRows, idxMentorName, idxMentorEmail, summary, unknownEmails, provisionedEmails)
		if err != nil {
			s.observe("pull", false)
			return nil, err
		}

		stat := TabPullStat{}
		for _, row := range dataRows {
			teamID := strings.TrimSpace(cellAt(row, idxTeamID))
			if teamID == "" {
				continue
			}
			summary.Processed++
			stat.Processed++

			mentorName := strings.TrimSpace(cellAt(row, idxMentorName))
			mentorEmail := strings.ToLower(strings.TrimSpace(cellAt(row, idxMentorEmail)))
			if mentorEmail != "" && !teacherEmails[mentorEmail] {
				unknownEmails[mentorEmail] = true
			}

			changed, err := s.teams.UpdateMentor(ctx, teamID, mentorName, mentorEmail)
			if err != nil {
				s.observe("pull", false)
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mentor for team "+teamID)
			}
			if changed {
				summary.Updated++
				stat.Updated++
			}
		}
		summary.ByTab[tab] = stat
	}

	summary.UnknownMentorEmails = sortedKeys(unknownEmails)
	summary.ProvisionedTeacherEmails = sortedKeys(provisionedEmails)
	summary.SyncedAt = time.Now().UTC()

	if s.settings != nil {
		state := mentorSyncState{
			LastSyncedAt:        summary.SyncedAt,
			Processed:           summary.Processed,
			Updated:             summary.Updated,
			UnknownMentorEmails: summary.UnknownMentorEmails,
		}
		if err := s.settings.Upsert(ctx, models.SettingMentorSync, state); err != nil {
			s.logger.Warn("mentor sync state write failed", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, teamListCachePrefix+"*"); err != nil {
			s.logger.Warn("team list cache invalidation failed", zap.Error(err))
		}
	}

	s.observe("pull", true)
	return summary, nil
}

// provisionMentors creates teacher accounts for mentor emails not yet
// registered and returns the set of emails confirmed to be teachers.
// Existing accounts with a non-teacher role are flagged, never mutated.
func (s *SyncService) provisionMentors(ctx context.Context, dataRows [][]string, idxName, idxEmail int, summary *MentorSyncSummary, unknownEmails, provisionedEmails map[string]bool) (map[string]bool, error) {
	nameByEmail := make(map[string]string)
	order := make([]string, 0)
	for _, row := range dataRows {
		email := strings.ToLower(strings.TrimSpace(cellAt(row, idxEmail)))
		if email == "" {
			continue
		}
		if _, seen := nameByEmail[email]; !seen {
			nameByEmail[email] = ""
			order = append(order, email)
		}
		if name := strings.TrimSpace(cellAt(row, idxName)); name != "" && nameByEmail[email] == "" {
			nameByEmail[email] = name
		}
	}

	teacherEmails := make(map[string]bool, len(order))
	if len(order) == 0 {
		return teacherEmails, nil
	}

	roles, err := s.users.RolesByEmails(ctx, order)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up mentor accounts")
	}

	toCreate := make([]models.User, 0)
	for _, email := range order {
		role, exists := roles[email]
		switch {
		case !exists:
			name := nameByEmail[email]
			if name == "" {
				name = "Teacher"
			}
			toCreate = append(toCreate, models.User{
				Email:    email,
				FullName: name,
				Role:     models.RoleTeacher,
			})
		case role == models.RoleTeacher:
			teacherEmails[email] = true
		default:
			unknownEmails[email] = true
		}
	}

	if len(toCreate) > 0 {
		inserted, err := s.users.ProvisionTeachers(ctx, toCreate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision teacher accounts")
		}
		summary.ProvisionedTeachers += inserted
		for _, u := range toCreate {
			teacherEmails[u.Email] = true
			provisionedEmails[u.Email] = true
		}
	}
	return teacherEmails, nil
}

// ensureTabsAndHeaders creates any missing tabs and rewrites any header
// row that drifted from the fixed schema.
func (s *SyncService) ensureTabsAndHeaders(ctx context.Context) (int, int, error) {
	titles, err := s.client.TabTitles(ctx)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list spreadsheet tabs")
	}
	have := make(map[string]bool, len(titles))
	for _, t := range titles {
		have[t] = true
	}

	missing := make([]string, 0)
	for _, tab := range sheetTabs {
		if !have[tab] {
			missing = append(missing, tab)
		}
	}
	if len(missing) > 0 {
		if err := s.client.AddTabs(ctx, missing); err != nil {
			return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create spreadsheet tabs")
		}
	}

	endCol := sheets.ColumnLetter(len(sheetHeader))
	headersUpdated := 0
	for _, tab := range sheetTabs {
		rangeA1 := sheets.Range(tab, "A1:"+endCol+"1")
		values, err := s.client.Read(ctx, rangeA1)
		if err != nil {
			return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read header of tab "+tab)
		}
		var row []string
		if len(values) > 0 {
			row = values[0]
		}
		if headerMatches(row) {
			continue
		}
		if err := s.client.Write(ctx, rangeA1, [][]string{append([]string(nil), sheetHeader...)}); err != nil {
			return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write header of tab "+tab)
		}
		headersUpdated++
	}
	return len(missing), headersUpdated, nil
}

func (s *SyncService) observe(direction string, success bool) {
	if s.metrics != nil {
		s.metrics.SyncCompleted(direction, success)
	}
}

func headerMatches(row []string) bool {
	if len(row) != len(sheetHeader) {
		return false
	}
	for i, want := range sheetHeader {
		if strings.TrimSpace(row[i]) != want {
			return false
		}
	}
	return true
}

func headerIndex(header []string, name string) int {
	for i, v := range header {
		if strings.TrimSpace(v) == name {
			return i
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// padRows appends empty full-width rows until the block is height rows
// tall, so the write blanks everything the previous content occupied.
func padRows(rows [][]string, height int) [][]string {
	out := rows
	for len(out) < height {
		out = append(out, emptySheetRow())
	}
	return out
}

// widenRows normalizes previously-read rows to full header width; the
// backend omits trailing empty cells on reads.
func widenRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = normalizeRowWidth(r)
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
