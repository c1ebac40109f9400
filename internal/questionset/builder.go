package questionset

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"govportal/internal/workbook"
)

const (
	questionPrefix     = "IQ"
	sectionTitlePrefix = "IQT"
)

var ErrInvalidVersionName = errors.New("invalid version name")

// Builder assembles a QuestionSet in the order WithVersion, WithCategories, WithQuestions.
// Every step returns a new Builder; a Builder value is never modified after it is returned.
// The first error is kept and reported by Build.
type Builder struct {
	now func() time.Time

	set           QuestionSet
	hasVersion    bool
	hasCategories bool
	moduleTabs    map[string]bool
	warnings      []Warning
	err           error
}

func NewBuilder(now func() time.Time) Builder {
	if now == nil {
		now = time.Now
	}
	return Builder{now: now}
}

// BuildFromWorkbook runs every builder step over a workbook that already passed workbook.Validate.
func BuildFromWorkbook(fileName string, wb *workbook.Workbook, now func() time.Time) (QuestionSet, []Warning, error) {
	modules := wb.ModuleSheets()
	tabs := make([]string, 0, len(modules))
	for _, m := range modules {
		tabs = append(tabs, m.Name)
	}
	contents, _ := wb.Sheet(workbook.SheetContents)
	rules, _ := wb.Sheet(workbook.SheetRules)
	answers, _ := wb.Sheet(workbook.SheetAnswerOptions)

	return NewBuilder(now).
		WithVersion(fileName).
		WithCategories(contents, tabs).
		WithQuestions(modules, rules, answers).
		Build()
}

// VersionIDFromFileName strips directories and the extension from an uploaded file name.
func VersionIDFromFileName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

func (b Builder) clone() Builder {
	next := b
	next.set = b.set.Clone()
	next.warnings = append([]Warning(nil), b.warnings...)
	return next
}

func (b Builder) warn(w Warning) Builder {
	b.warnings = append(b.warnings, w)
	return b
}

func (b Builder) WithVersion(fileName string) Builder {
	if b.err != nil {
		return b
	}
	next := b.clone()
	id := VersionIDFromFileName(fileName)
	if id == "" {
		next.err = fmt.Errorf("%w: %q", ErrInvalidVersionName, fileName)
		return next
	}
	next.set.Version = Version{
		VersionID:   id,
		CreatedAt:   next.now().UTC(),
		IsDraft:     true,
		IsPublished: false,
	}
	next.hasVersion = true
	return next
}

// WithCategories reads the contents sheet. Only rows whose Tab names one of moduleTabs become
// categories; other non-empty tabs are reported as warnings.
func (b Builder) WithCategories(contents *workbook.Sheet, moduleTabs []string) Builder {
	if b.err != nil {
		return b
	}
	next := b.clone()
	if !next.hasVersion {
		next.err = &IncompleteBuildError{Missing: "version"}
		return next
	}

	next.moduleTabs = make(map[string]bool, len(moduleTabs))
	for _, t := range moduleTabs {
		next.moduleTabs[strings.ToLower(strings.TrimSpace(t))] = true
	}
	next.hasCategories = true
	if contents == nil {
		return next
	}

	versionID := next.set.Version.VersionID
	seen := make(map[string]bool)
	for _, row := range contents.Rows {
		tab := row.Get("Tab")
		if tab == "" {
			continue
		}
		if !next.moduleTabs[strings.ToLower(tab)] {
			next = next.warn(Warning{
				Kind: WarnUnknownTab, Sheet: contents.Name, Row: row.Number,
				Detail: fmt.Sprintf("tab %q is not a module sheet", tab),
			})
			continue
		}

		id := row.Get("Category")
		if id == "" {
			id = tab
		}
		if seen[id] {
			next = next.warn(Warning{
				Kind: WarnDuplicateCategory, Sheet: contents.Name, Row: row.Number,
				Detail: fmt.Sprintf("category %q listed more than once", id),
			})
			continue
		}
		seen[id] = true
		next.set.Categories = append(next.set.Categories, Category{
			CategoryID:   id,
			CategoryName: firstNonEmpty(row.Get("CategoryName"), row.Get("Description"), tab),
			VersionID:    versionID,
		})
	}
	return next
}

type ruleGroup struct {
	ruleID int
	rows   []workbook.Row
}

// WithQuestions reads module sheets in document order and resolves each question's answer
// options and rules.
func (b Builder) WithQuestions(modules []*workbook.Sheet, rules, answers *workbook.Sheet) Builder {
	if b.err != nil {
		return b
	}
	next := b.clone()
	if !next.hasVersion {
		next.err = &IncompleteBuildError{Missing: "version"}
		return next
	}
	if !next.hasCategories {
		next.err = &IncompleteBuildError{Missing: "categories"}
		return next
	}

	versionID := next.set.Version.VersionID
	options := indexAnswerOptions(answers, versionID)

	groups, groupOrder, next := next.indexRules(rules)
	var unsequenced []int

	for _, sheet := range modules {
		if sheet == nil {
			continue
		}
		sectionName := ""
		titleID := ""
		for _, row := range sheet.Rows {
			id := row.Get("QuestionId")
			if strings.HasPrefix(id, sectionTitlePrefix) {
				sectionName = row.Get("QuestionText")
				titleID = id
				continue
			}
			if id == "" || !strings.HasPrefix(id, questionPrefix) {
				continue
			}

			var q Question
			var sequenced bool
			q, sequenced, next = next.parseQuestion(sheet.Name, row, versionID, sectionName, titleID)
			if !sequenced {
				unsequenced = append(unsequenced, len(next.set.Questions))
			}
			q.Answers, next = next.resolveAnswers(sheet.Name, row, q.QuestionID, options)
			q.Rules, next = next.buildRules(rules, groups[q.QuestionID], q.QuestionID, versionID)
			delete(groups, q.QuestionID)
			next.set.Questions = append(next.set.Questions, q)
		}
	}

	for _, qid := range groupOrder {
		gs, ok := groups[qid]
		if !ok {
			continue
		}
		next = next.warn(Warning{
			Kind: WarnRuleUnknownQuestion, Sheet: sheetName(rules), Row: gs[0].rows[0].Number, QuestionID: qid,
			Detail: fmt.Sprintf("%d rule(s) reference question %q which is not in any module sheet", len(gs), qid),
		})
	}

	assignFallbackSequences(next.set.Questions, unsequenced)
	next = next.checkRuleParents()
	if err := checkIntegrity(next.set.Questions); err != nil {
		next.err = err
	}
	return next
}

// Build returns a deep copy of the accumulated question set and the collected warnings.
// Calling it again yields an equal value.
func (b Builder) Build() (QuestionSet, []Warning, error) {
	if b.err != nil {
		return QuestionSet{}, nil, b.err
	}
	if !b.hasVersion {
		return QuestionSet{}, nil, &IncompleteBuildError{Missing: "version"}
	}
	out := b.set.Clone()
	if out.Categories == nil {
		out.Categories = []Category{}
	}
	if out.Questions == nil {
		out.Questions = []Question{}
	}
	return out, append([]Warning(nil), b.warnings...), nil
}

// parseQuestion reports false when the row has no usable Sequence; the caller assigns one later.
func (b Builder) parseQuestion(sheet string, row workbook.Row, versionID, sectionName, titleID string) (Question, bool, Builder) {
	id := row.Get("QuestionId")

	seq, err := strconv.Atoi(row.Get("Sequence"))
	sequenced := err == nil
	if !sequenced {
		b = b.warn(Warning{
			Kind: WarnBadSequence, Sheet: sheet, Row: row.Number, QuestionID: id,
			Detail: fmt.Sprintf("sequence %q is not an integer", row.Get("Sequence")),
		})
		seq = 0
	}

	sectionID := firstNonEmpty(row.Get("Section"), titleID)
	q := Question{
		QuestionID:        id,
		VersionID:         versionID,
		Category:          row.Get("Category"),
		SectionID:         sectionID,
		Section:           firstNonEmpty(sectionName, sectionID),
		Sequence:          seq,
		QuestionText:      row.Get("QuestionText"),
		ShortQuestionText: row.Get("ShortQuestionText"),
		DataType:          row.Get("DataType"),
	}
	if h := row.Get("Heading"); h != "" {
		q.Heading = &h
	}

	rawConf := row.Get("Conformance")
	q.Conformance = ParseConformance(rawConf)
	q.IsMandatory = q.Conformance == ConformanceMandatory
	q.IsOptional = q.Conformance == ConformanceOptional
	if q.Conformance == ConformanceUnknown {
		b = b.warn(Warning{
			Kind: WarnUnknownConformance, Sheet: sheet, Row: row.Number, QuestionID: id,
			Detail: fmt.Sprintf("conformance %q is neither Mandatory nor Optional", rawConf),
		})
	}

	rawType := row.Get("QuestionType")
	q.QuestionType = ParseQuestionType(rawType)
	if q.QuestionType == QuestionTypeUnknown {
		b = b.warn(Warning{
			Kind: WarnUnknownType, Sheet: sheet, Row: row.Number, QuestionID: id,
			Detail: fmt.Sprintf("question type %q is not recognized", rawType),
		})
	}
	return q, sequenced, b
}

func (b Builder) resolveAnswers(sheet string, row workbook.Row, qid string, options map[string]Answer) ([]Answer, Builder) {
	var out []Answer
	for _, optID := range splitList(row.Get("Answers")) {
		a, ok := options[optID]
		if !ok {
			b = b.warn(Warning{
				Kind: WarnUnresolvedAnswer, Sheet: sheet, Row: row.Number, QuestionID: qid,
				Detail: fmt.Sprintf("answer option %q not found", optID),
			})
			continue
		}
		out = append(out, a)
	}
	return out, b
}

func (b Builder) indexRules(rules *workbook.Sheet) (map[string][]*ruleGroup, []string, Builder) {
	groups := make(map[string][]*ruleGroup)
	var order []string
	if rules == nil {
		return groups, order, b
	}
	for _, row := range rules.Rows {
		qid := row.Get("QuestionId")
		if qid == "" {
			continue
		}
		ruleID, err := strconv.Atoi(row.Get("RuleId"))
		if err != nil {
			b = b.warn(Warning{
				Kind: WarnBadRuleID, Sheet: rules.Name, Row: row.Number, QuestionID: qid,
				Detail: fmt.Sprintf("rule id %q is not an integer", row.Get("RuleId")),
			})
			continue
		}
		if _, ok := groups[qid]; !ok {
			order = append(order, qid)
		}
		var g *ruleGroup
		for _, existing := range groups[qid] {
			if existing.ruleID == ruleID {
				g = existing
				break
			}
		}
		if g == nil {
			g = &ruleGroup{ruleID: ruleID}
			groups[qid] = append(groups[qid], g)
		}
		g.rows = append(g.rows, row)
	}
	return groups, order, b
}

// buildRules turns each RuleId group into one Rule. Scalar fields come from the first row of the
// group; later rows that disagree produce a WarnRuleFieldMismatch warning.
func (b Builder) buildRules(rules *workbook.Sheet, gs []*ruleGroup, qid, versionID string) ([]Rule, Builder) {
	if len(gs) == 0 {
		return nil, b
	}
	sheet := sheetName(rules)
	out := make([]Rule, 0, len(gs))
	for _, g := range gs {
		first := g.rows[0]
		rawSeq := first.Get("Sequence")
		seq, err := strconv.Atoi(rawSeq)
		if rawSeq != "" && err != nil {
			b = b.warn(Warning{
				Kind: WarnBadSequence, Sheet: sheet, Row: first.Number, QuestionID: qid,
				Detail: fmt.Sprintf("rule sequence %q is not an integer", first.Get("Sequence")),
			})
		}
		mode, ok := ParseRuleMode(first.Get("Mode"))
		if !ok {
			b = b.warn(Warning{
				Kind: WarnUnknownMode, Sheet: sheet, Row: first.Number, QuestionID: qid,
				Detail: fmt.Sprintf("rule mode %q treated as And", first.Get("Mode")),
			})
		}
		r := Rule{
			RuleID:           g.ruleID,
			QuestionID:       qid,
			Sequence:         seq,
			ParentQuestionID: first.Get("ParentQuestionId"),
			Mode:             mode,
			Description:      first.Get("Description"),
			VersionID:        versionID,
		}

		for _, row := range g.rows {
			for _, col := range []string{"Sequence", "ParentQuestionId", "Mode", "Description"} {
				if row.Get(col) != first.Get(col) {
					b = b.warn(Warning{
						Kind: WarnRuleFieldMismatch, Sheet: sheet, Row: row.Number, QuestionID: qid,
						Detail: fmt.Sprintf("rule %d %s %q differs from first row value %q", g.ruleID, col, row.Get(col), first.Get(col)),
					})
				}
			}
			var c Condition
			c, b = b.parseCondition(sheet, row, qid)
			r.Conditions = append(r.Conditions, c)
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, b
}

func (b Builder) parseCondition(sheet string, row workbook.Row, qid string) (Condition, Builder) {
	mode, ok := ParseRuleMode(row.Get("ConditionMode"))
	if !ok {
		b = b.warn(Warning{
			Kind: WarnUnknownMode, Sheet: sheet, Row: row.Number, QuestionID: qid,
			Detail: fmt.Sprintf("condition mode %q treated as And", row.Get("ConditionMode")),
		})
	}
	rawOp := row.Get("ConditionOperator")
	op := ParseOperator(rawOp)
	if op == OpUnknown {
		b = b.warn(Warning{
			Kind: WarnUnknownOperator, Sheet: sheet, Row: row.Number, QuestionID: qid,
			Detail: fmt.Sprintf("operator %q never matches", rawOp),
		})
	}
	c := Condition{
		Mode:          mode,
		Operator:      op,
		Negate:        parseBoolLoose(row.Get("ConditionNegate")),
		ParentOptions: splitList(row.Get("ConditionParentOptions")),
		OptionType:    normalizeOptionType(row.Get("ConditionOptionType")),
	}
	if v := row.Get("ConditionValue"); v != "" {
		c.Value = &v
	}
	if d := row.Get("ConditionDescription"); d != "" {
		c.Description = &d
	}
	return c, b
}

func (b Builder) checkRuleParents() Builder {
	known := make(map[string]bool, len(b.set.Questions))
	for _, q := range b.set.Questions {
		known[q.QuestionID] = true
	}
	for _, q := range b.set.Questions {
		for _, r := range q.Rules {
			if r.ParentQuestionID == "" || known[r.ParentQuestionID] {
				continue
			}
			b = b.warn(Warning{
				Kind: WarnRuleUnknownParent, QuestionID: q.QuestionID,
				Detail: fmt.Sprintf("rule %d parent question %q does not exist", r.RuleID, r.ParentQuestionID),
			})
		}
	}
	return b
}

// assignFallbackSequences places questions without a usable Sequence after the highest
// sequence of their section, in row order.
func assignFallbackSequences(questions []Question, pending []int) {
	if len(pending) == 0 {
		return
	}
	skip := make(map[int]bool, len(pending))
	for _, i := range pending {
		skip[i] = true
	}
	highest := make(map[string]int)
	for i, q := range questions {
		if skip[i] {
			continue
		}
		if cur, ok := highest[q.SectionID]; !ok || q.Sequence > cur {
			highest[q.SectionID] = q.Sequence
		}
	}
	for _, i := range pending {
		highest[questions[i].SectionID]++
		questions[i].Sequence = highest[questions[i].SectionID]
	}
}

func checkIntegrity(questions []Question) error {
	var violations []string
	ids := make(map[string]bool, len(questions))
	type slot struct {
		section  string
		sequence int
	}
	slots := make(map[slot]string, len(questions))
	for _, q := range questions {
		if ids[q.QuestionID] {
			violations = append(violations, fmt.Sprintf("duplicate question id %s", q.QuestionID))
		}
		ids[q.QuestionID] = true

		k := slot{section: q.SectionID, sequence: q.Sequence}
		if other, ok := slots[k]; ok {
			violations = append(violations, fmt.Sprintf("questions %s and %s share sequence %d in section %s", other, q.QuestionID, q.Sequence, q.SectionID))
			continue
		}
		slots[k] = q.QuestionID
	}
	if len(violations) > 0 {
		return &IntegrityError{Violations: violations}
	}
	return nil
}

func indexAnswerOptions(answers *workbook.Sheet, versionID string) map[string]Answer {
	out := make(map[string]Answer)
	if answers == nil {
		return out
	}
	for _, row := range answers.Rows {
		id := row.Get("OptionId")
		if id == "" {
			continue
		}
		if _, dup := out[id]; dup {
			continue
		}
		out[id] = Answer{AnswerID: id, AnswerText: row.Get("OptionText"), VersionID: versionID}
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolLoose(v string) bool {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func sheetName(s *workbook.Sheet) string {
	if s == nil {
		return ""
	}
	return s.Name
}
