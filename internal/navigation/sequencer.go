package navigation

import (
	"errors"
	"fmt"

	"govportal/internal/questionset"
)

var ErrUnknownSection = errors.New("unknown section")

type UnknownSectionError struct {
	VersionID string
	SectionID string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("section %q not found in version %q", e.SectionID, e.VersionID)
}

func (e *UnknownSectionError) Unwrap() error { return ErrUnknownSection }

// Navigation is the previous/current/next section and category around one section.
// Empty ids mark the start or the end of the questionnaire.
type Navigation struct {
	PreviousSectionID  string `json:"previous_section_id"`
	PreviousCategoryID string `json:"previous_category_id"`
	CurrentSectionID   string `json:"current_section_id"`
	CurrentCategoryID  string `json:"current_category_id"`
	NextSectionID      string `json:"next_section_id"`
	NextCategoryID     string `json:"next_category_id"`
}

// Sequencer answers navigation lookups over the section order of one or more versions.
// It is read-only after construction and safe for concurrent use.
type Sequencer struct {
	versions map[string][]questionset.Section
}

// New indexes the sections of each question set by version id.
func New(sets ...questionset.QuestionSet) *Sequencer {
	s := &Sequencer{versions: make(map[string][]questionset.Section, len(sets))}
	for i := range sets {
		s.versions[sets[i].Version.VersionID] = sets[i].Sections()
	}
	return s
}

// FromSections builds a sequencer for a single version from an explicit section order.
func FromSections(versionID string, sections []questionset.Section) *Sequencer {
	return &Sequencer{versions: map[string][]questionset.Section{
		versionID: append([]questionset.Section(nil), sections...),
	}}
}

// Sequence returns the neighbours of sectionID within versionID.
func (s *Sequencer) Sequence(versionID, sectionID string) (Navigation, error) {
	sections, ok := s.versions[versionID]
	if !ok {
		return Navigation{}, &questionset.UnknownVersionError{VersionID: versionID}
	}
	nav, ok := Sequence(sections, sectionID)
	if !ok {
		return Navigation{}, &UnknownSectionError{VersionID: versionID, SectionID: sectionID}
	}
	return nav, nil
}

// First returns the navigation of the first section of versionID.
func (s *Sequencer) First(versionID string) (Navigation, error) {
	sections, ok := s.versions[versionID]
	if !ok {
		return Navigation{}, &questionset.UnknownVersionError{VersionID: versionID}
	}
	if len(sections) == 0 {
		return Navigation{}, &UnknownSectionError{VersionID: versionID}
	}
	nav, _ := Sequence(sections, sections[0].SectionID)
	return nav, nil
}

// Sections returns a copy of the ordered sections of versionID.
func (s *Sequencer) Sections(versionID string) ([]questionset.Section, error) {
	sections, ok := s.versions[versionID]
	if !ok {
		return nil, &questionset.UnknownVersionError{VersionID: versionID}
	}
	return append([]questionset.Section(nil), sections...), nil
}

// Sequence is the pure lookup behind Sequencer.Sequence.
func Sequence(sections []questionset.Section, sectionID string) (Navigation, bool) {
	for i, cur := range sections {
		if cur.SectionID != sectionID {
			continue
		}
		nav := Navigation{
			CurrentSectionID:  cur.SectionID,
			CurrentCategoryID: cur.CategoryID,
		}
		if i > 0 {
			nav.PreviousSectionID = sections[i-1].SectionID
			nav.PreviousCategoryID = sections[i-1].CategoryID
		}
		if i+1 < len(sections) {
			nav.NextSectionID = sections[i+1].SectionID
			nav.NextCategoryID = sections[i+1].CategoryID
		}
		return nav, true
	}
	return Navigation{}, false
}
