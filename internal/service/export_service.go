package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
	"github.com/noah-isme/pbl-teams-api/pkg/export"
)

type exportTeamRepo interface {
	ListAllForSync(ctx context.Context) ([]models.Team, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFormat selects the rendered file type of a roster export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered roster ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var rosterHeaders = []string{
	"Team Name",
	"Year",
	"Subject",
	"Status",
	"Mentor Name",
	"Mentor Email",
	"Member Name",
	"Roll Number",
	"Email",
	"Role",
}

// ExportService renders the full team roster, one row per member.
type ExportService struct {
	teams  exportTeamRepo
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the defaults.
func NewExportService(teams exportTeamRepo, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{teams: teams, csv: csv, pdf: pdf, logger: logger}
}

// Roster renders the roster in the requested format.
func (s *ExportService) Roster(ctx context.Context, format ExportFormat) (*ExportFile, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	teams, err := s.teams.ListAllForSync(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams for export")
	}

	dataset := export.Dataset{Headers: rosterHeaders}
	for i := range teams {
		t := &teams[i]
		yearName := ""
		if t.Year != nil {
			yearName = t.Year.Name
		}
		subjectName := ""
		if t.Subject != nil {
			subjectName = t.Subject.Name
		}
		for _, m := range t.Members {
			dataset.Rows = append(dataset.Rows, []string{
				t.TeamName,
				yearName,
				subjectName,
				string(models.NormalizeTeamStatus(string(t.Status))),
				t.Mentor.Name,
				t.Mentor.Email,
				m.Name,
				m.RollNumber,
				m.Email,
				string(m.Role),
			})
		}
	}

	switch format {
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, "Team Roster")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: "team-roster.pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: "team-roster.csv", ContentType: "text/csv", Data: data}, nil
	}
}
