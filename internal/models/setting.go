package models

import (
	"encoding/json"
	"time"
)

// Setting keys used by the sync engine and migrations.
const (
	SettingMentorSync          = "mentorSync"
	SettingTeamStatusMigration = "teamStatusMigration"
)

// Setting is a process-wide key/value record used to persist last-sync
// timestamps and migration summaries. Not a domain entity.
type Setting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
