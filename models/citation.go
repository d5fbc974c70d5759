package models

import (
	"encoding/json"
	"strings"
)

// Citation ist ein vom Backend gelieferter Zitationsvorschlag. Nach dem Empfang unveränderlich.
type Citation struct {
	ReferenceListCitation string  `json:"reference_list_citation"`
	InTextCitation        string  `json:"in_text_citation"`
	SupportingPassage     string  `json:"supporting_passage"`
	Reasoning             string  `json:"reasoning"`
	PMCID                 string  `json:"pmc_id"`
	Title                 string  `json:"title"`
	DOI                   *string `json:"doi"`
	PMCLink               string  `json:"pmc_link"`
	PublicationDate       string  `json:"publication_date"`
}

// DOINotAvailable wird angezeigt, wenn das Backend keine DOI liefert.
const DOINotAvailable = "Not available"

// HasDOI meldet, ob eine nicht-leere DOI vorhanden ist.
func (c Citation) HasDOI() bool {
	return c.DOI != nil && strings.TrimSpace(*c.DOI) != ""
}

// DOIOrPlaceholder gibt die DOI oder "Not available" zurück.
func (c Citation) DOIOrPlaceholder() string {
	if !c.HasDOI() {
		return DOINotAvailable
	}
	return *c.DOI
}

// DOILink gibt den doi.org-Link zurück, leer wenn keine DOI vorhanden ist.
func (c Citation) DOILink() string {
	if !c.HasDOI() {
		return ""
	}
	return "https://doi.org/" + NormalizeDOI(*c.DOI)
}

// NormalizeDOI entfernt URL- und "doi:"-Präfixe, damit der Link nicht doppelt aufgebaut wird.
func NormalizeDOI(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(s)
}

// CitationRequest ist der Request-Body für /find-citations-for-passage.
type CitationRequest struct {
	Text string `json:"text"`
}

// CitationResponse ist die Antwort von /find-citations-for-passage.
type CitationResponse struct {
	SearchText string     `json:"search_text"`
	Citations  []Citation `json:"citations"`
}

// ErrorResponse ist der Fehler-Body des Backends. Detail ist entweder ein String
// oder (bei Validierungsfehlern) eine Liste von Strings.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Message fasst Detail zu einem anzeigbaren Text zusammen.
func (e ErrorResponse) Message() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(e.Detail, &list); err == nil {
		parts := list[:0]
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
