package export

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"time"

	"scriptroom/api/internal/document"
)

// Archiver stores a copy of each export. The MinIO-backed Archive is the
// production implementation.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service provides screenplay export functionality
type Service struct {
	archive Archiver
	pdf     renderFunc
	docx    renderFunc
	now     func() time.Time
}

// NewService creates an export service. archive may be nil.
func NewService(archive Archiver) *Service {
	return &Service{
		archive: archive,
		pdf:     exportPDF,
		docx:    exportDOCX,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Export renders project in the requested format and, when an archive is
// configured, stores a copy under the owner's prefix. Archive failures are
// logged and do not fail the export.
func (s *Service) Export(ctx context.Context, ownerID string, project document.Project, format Format) (*Result, error) {
	var (
		result *Result
		err    error
	)
	switch format {
	case FormatFountain:
		result = &Result{
			Data:     []byte(ToFountain(project)),
			Filename: sanitizeFilename(project.Metadata.Title) + ".fountain",
			MimeType: "text/plain; charset=utf-8",
		}
	case FormatPDF, FormatDOCX:
		page, renderErr := RenderScreenplayHTML(templateData(project))
		if renderErr != nil {
			return nil, fmt.Errorf("render template: %w", renderErr)
		}
		if format == FormatPDF {
			result, err = s.pdf(ctx, page, project.Metadata.Title)
		} else {
			result, err = s.docx(ctx, page, project.Metadata.Title)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if s.archive != nil {
		key := archiveKey(ownerID, project.ID, format, s.now())
		if err := s.archive.Put(ctx, key, result.MimeType, result.Data); err != nil {
			log.Printf("export: archive %s: %v", key, err)
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}

func templateData(p document.Project) TemplateData {
	return TemplateData{
		Title:       p.Metadata.Title,
		Author:      p.Metadata.Author,
		DraftDate:   p.Metadata.DraftDate,
		Country:     string(p.Metadata.Country),
		Logline:     p.Metadata.Logline,
		ContentHTML: template.HTML(ScreenplayToHTML(p.Content)),
		UpdatedAt:   p.LastModified,
	}
}

func archiveKey(ownerID, projectID string, format Format, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s.%s",
		url.PathEscape(ownerID),
		url.PathEscape(projectID),
		at.UTC().Format("20060102T150405Z"),
		format,
	)
}
