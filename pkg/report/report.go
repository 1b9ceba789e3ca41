// Package report renders takedown notices for infringement cases. Rendering
// is pure; callers persist the result.
package report

import (
	"strings"
	"text/template"
	"time"

	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
)

// Input carries everything the notice template needs.
type Input struct {
	CaseNumber       string
	AssetName        string
	AssetURL         string
	InfringingURL    string
	Platform         string
	Seller           string
	SimilarityScore  int
	ConfidenceScore  int
	Conclusion       string
	ScreenshotURL    string
	ScreenshotHash   string
	AssessedAt       time.Time
	GeneratedAt      time.Time
	OrganizationName string
}

const noticeTemplate = `Subject: Copyright Infringement Notice — Case {{.CaseNumber}}

To Whom It May Concern,

We are writing on behalf of {{if .OrganizationName}}{{.OrganizationName}}{{else}}the rights holder{{end}} regarding unauthorized use of a copyrighted image.

Original work: {{.AssetName}}
Reference copy: {{.AssetURL}}

Infringing material:
  URL: {{.InfringingURL}}
  Platform: {{.Platform}}{{if .Seller}}
  Seller: {{.Seller}}{{end}}

An automated visual assessment determined a similarity score of {{.SimilarityScore}}/100 with a confidence of {{.ConfidenceScore}}/100.
{{if .Conclusion}}Assessment conclusion: {{.Conclusion}}
{{end}}{{if .ScreenshotURL}}
Evidence screenshot: {{.ScreenshotURL}}
SHA-256: {{.ScreenshotHash}}
{{end}}
We request the immediate removal of the infringing material. This notice is sent in good faith and under penalty of perjury; the information contained herein is accurate, and we are authorized to act on behalf of the copyright owner.

Case reference: {{.CaseNumber}}
Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
`

var notice = template.Must(template.New("notice").Parse(noticeTemplate))

// Render produces the notice text for a case. The assessment fields are
// required; callers enforce that an assessment exists before rendering.
func Render(input Input) (string, error) {
	if strings.TrimSpace(input.CaseNumber) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "case number is required")
	}
	if strings.TrimSpace(input.InfringingURL) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "infringing url is required")
	}
	if input.GeneratedAt.IsZero() {
		input.GeneratedAt = time.Now().UTC()
	}

	var builder strings.Builder
	if err := notice.Execute(&builder, input); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render notice template")
	}
	return builder.String(), nil
}
