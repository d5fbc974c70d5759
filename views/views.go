// Package views enthält die HTML-Templates der Web-Oberfläche.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"citesearch/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Funcs sind die Template-Funktionen aller Seiten.
var Funcs = template.FuncMap{
	"seconds": FormatSeconds,
	"plural":  Plural,
}

// Templates parst alle eingebetteten Templates. Die Namen entsprechen den Dateinamen
// ("index.html", "terms.html", "privacy.html").
func Templates() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(templateFS, "templates/*.html")
}

// FormatSeconds formatiert eine Dauer mit zwei Nachkommastellen.
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}

// Plural wählt Singular oder Plural abhängig von n.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Page sind die Daten der Suchseite.
type Page struct {
	session.Snapshot

	// Notice überlagert die Fehlermeldung der Session, z.B. bei Rate-Limit.
	Notice        string
	GitHubURL     string
	DisableSubmit bool
	CopyResetMs   int64
	PollMs        int64
}

// Overlay ist die eine Meldung, die unten rechts eingeblendet wird.
func (p Page) Overlay() string {
	if p.Notice != "" {
		return p.Notice
	}
	return p.Error
}

// Centered: Startseite und Leer-Ansicht zeigen das große, zentrierte Suchfeld.
func (p Page) Centered() bool {
	return p.View == session.ViewLanding || p.View == session.ViewEmpty
}

func (p Page) IsLoading() bool { return p.View == session.ViewLoading }
func (p Page) IsEmpty() bool   { return p.View == session.ViewEmpty }
func (p Page) IsResults() bool { return p.View == session.ViewResults }

// ShowFooter: die Links zu Terms, Privacy und Quellcode erscheinen nur ohne Ergebnisse.
func (p Page) ShowFooter() bool {
	return len(p.Citations) == 0
}
