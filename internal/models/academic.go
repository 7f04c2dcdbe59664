package models

import "time"

// Year represents an academic year. Created by seed or admin tooling and
// immutable afterwards except for the activation flag.
type Year struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Subject belongs to exactly one Year; the code is unique per year.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	YearID    string    `db:"year_id" json:"year_id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AcademicRef is the name/code projection of a year or subject carried on
// team reads for display and sheet-tab resolution.
type AcademicRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}
