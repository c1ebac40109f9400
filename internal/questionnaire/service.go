package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"govportal/internal/cache"
	"govportal/internal/navigation"
	"govportal/internal/questionset"
	"govportal/internal/rules"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrProjectionNotFound = errors.New("projection not found or expired")
)

const defaultProjectionTTL = 30 * time.Minute

type questionSetSource interface {
	Get(ctx context.Context, versionID string) (questionset.QuestionSet, error)
	Active(ctx context.Context) (questionset.QuestionSet, error)
}

type Service struct {
	sets  questionSetSource
	cache cache.Store
	ttl   time.Duration
	newID func() string
	now   func() time.Time
}

func NewService(sets questionSetSource, store cache.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultProjectionTTL
	}
	return &Service{
		sets:  sets,
		cache: store,
		ttl:   ttl,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

type RenderInput struct {
	VersionID string
	SectionID string
	Answers   map[string]rules.AnswerRecord
}

// Page is one rendered section. ProjectionID must be sent back on submit.
type Page struct {
	ProjectionID string                `json:"projection_id"`
	VersionID    string                `json:"version_id"`
	SectionID    string                `json:"section_id"`
	SectionName  string                `json:"section_name"`
	Navigation   navigation.Navigation `json:"navigation"`
	Items        []IndexedQuestion     `json:"items"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

type SubmitInput struct {
	ProjectionID string
	SectionID    string
	Answers      map[int]json.RawMessage
	PriorAnswers map[string]rules.AnswerRecord
}

type SubmitResult struct {
	VersionID  string                        `json:"version_id"`
	SectionID  string                        `json:"section_id"`
	Complete   bool                          `json:"complete"`
	Issues     []rules.Issue                 `json:"issues"`
	Answers    map[string]rules.AnswerRecord `json:"answers"`
	Navigation navigation.Navigation         `json:"navigation"`
}

type storedProjection struct {
	ProjectionID string            `json:"projection_id"`
	VersionID    string            `json:"version_id"`
	SectionID    string            `json:"section_id"`
	Items        []IndexedQuestion `json:"items"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (s *Service) load(ctx context.Context, versionID string) (questionset.QuestionSet, error) {
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return s.sets.Active(ctx)
	}
	return s.sets.Get(ctx, versionID)
}

// Render projects a section, stores the projection and returns the page. An empty VersionID
// selects the published version; an empty SectionID selects the first section.
func (s *Service) Render(ctx context.Context, in RenderInput) (*Page, error) {
	qs, err := s.load(ctx, in.VersionID)
	if err != nil {
		return nil, err
	}

	sections := qs.Sections()
	sectionID := strings.TrimSpace(in.SectionID)
	if sectionID == "" {
		if len(sections) == 0 {
			return nil, &navigation.UnknownSectionError{VersionID: qs.Version.VersionID}
		}
		sectionID = sections[0].SectionID
	}

	items, err := ProjectWithAnswers(qs, sectionID, in.Answers)
	if err != nil {
		return nil, err
	}
	nav, ok := navigation.Sequence(sections, sectionID)
	if !ok {
		return nil, &navigation.UnknownSectionError{VersionID: qs.Version.VersionID, SectionID: sectionID}
	}

	now := s.now().UTC()
	stored := storedProjection{
		ProjectionID: s.newID(),
		VersionID:    qs.Version.VersionID,
		SectionID:    sectionID,
		Items:        items,
		CreatedAt:    now,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode projection: %w", err)
	}
	if err := s.cache.Set(ctx, projectionKey(stored.ProjectionID), raw, s.ttl); err != nil {
		return nil, fmt.Errorf("store projection: %w", err)
	}

	page := &Page{
		ProjectionID: stored.ProjectionID,
		VersionID:    stored.VersionID,
		SectionID:    sectionID,
		Navigation:   nav,
		Items:        items,
		ExpiresAt:    now.Add(s.ttl),
	}
	for _, sec := range sections {
		if sec.SectionID == sectionID {
			page.SectionName = sec.Name
			break
		}
	}
	return page, nil
}

// Submit correlates answers by index against the projection stored at render time, merges them
// over the prior answers and re-validates. The projection is dropped once the section has no issues.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	projectionID := strings.TrimSpace(in.ProjectionID)
	if projectionID == "" {
		return nil, fmt.Errorf("%w: projection_id is required", ErrInvalidInput)
	}

	stored, err := s.loadProjection(ctx, projectionID)
	if err != nil {
		return nil, err
	}
	if sec := strings.TrimSpace(in.SectionID); sec != "" && sec != stored.SectionID {
		return nil, fmt.Errorf("%w: projection belongs to section %q", ErrInvalidInput, stored.SectionID)
	}

	byIndex := make(map[int]rules.AnswerRecord, len(in.Answers))
	for idx, raw := range in.Answers {
		rec, err := rules.ParseAnswerPayload("", raw)
		if err != nil {
			return nil, fmt.Errorf("%w: answer %d: %v", ErrInvalidInput, idx, err)
		}
		byIndex[idx] = rec
	}
	submitted, err := Correlate(stored.Items, byIndex)
	if err != nil {
		return nil, err
	}

	qs, err := s.sets.Get(ctx, stored.VersionID)
	if err != nil {
		return nil, err
	}

	inSection := make(map[string]bool, len(stored.Items))
	for _, it := range stored.Items {
		inSection[it.Question.QuestionID] = true
	}
	merged := make(map[string]rules.AnswerRecord, len(in.PriorAnswers)+len(submitted))
	for qid, rec := range in.PriorAnswers {
		if inSection[qid] {
			continue
		}
		rec.QuestionID = qid
		merged[qid] = rec
	}
	for qid, rec := range submitted {
		if rec.Answered() {
			merged[qid] = rec
		}
	}

	issues := make([]rules.Issue, 0)
	for _, is := range rules.Validate(qs.Questions, merged) {
		if inSection[is.QuestionID] {
			issues = append(issues, is)
		}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return indexOf(stored.Items, issues[i].QuestionID) < indexOf(stored.Items, issues[j].QuestionID)
	})

	nav, ok := navigation.Sequence(qs.Sections(), stored.SectionID)
	if !ok {
		return nil, &navigation.UnknownSectionError{VersionID: stored.VersionID, SectionID: stored.SectionID}
	}

	res := &SubmitResult{
		VersionID:  stored.VersionID,
		SectionID:  stored.SectionID,
		Complete:   !blocking(issues),
		Issues:     issues,
		Answers:    rules.Prune(qs.Questions, merged),
		Navigation: nav,
	}
	if res.Complete {
		if err := s.cache.Delete(ctx, projectionKey(projectionID)); err != nil {
			log.Printf("drop projection %s: %v", projectionID, err)
		}
	}
	return res, nil
}

// Navigation returns the neighbours of sectionID in versionID, or in the published version.
func (s *Service) Navigation(ctx context.Context, versionID, sectionID string) (navigation.Navigation, error) {
	qs, err := s.load(ctx, versionID)
	if err != nil {
		return navigation.Navigation{}, err
	}
	seq := navigation.New(qs)
	if strings.TrimSpace(sectionID) == "" {
		return seq.First(qs.Version.VersionID)
	}
	return seq.Sequence(qs.Version.VersionID, sectionID)
}

func (s *Service) loadProjection(ctx context.Context, projectionID string) (storedProjection, error) {
	var out storedProjection
	raw, err := s.cache.Get(ctx, projectionKey(projectionID))
	if errors.Is(err, cache.ErrMiss) {
		return out, ErrProjectionNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load projection: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode projection: %w", err)
	}
	return out, nil
}

// Hidden answers are pruned from the result, so they never block completion.
func blocking(issues []rules.Issue) bool {
	for _, is := range issues {
		if is.Kind != rules.IssueHiddenAnswered {
			return true
		}
	}
	return false
}

func indexOf(items []IndexedQuestion, questionID string) int {
	for _, it := range items {
		if it.Question.QuestionID == questionID {
			return it.Index
		}
	}
	return len(items)
}

func projectionKey(id string) string {
	return "projection:" + id
}
