package scoring

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// DefaultScore is used for every score the model text does not provide
const DefaultScore = 7.0

// Extraction kinds reported on fallback
const (
	KindAnalysis = "analysis"
	KindDemands  = "demands"
	KindReplies  = "replies"
	KindQuality  = "quality"
)

// maxSpanAttempts bounds how many bracket positions are tried before giving up
const maxSpanAttempts = 16

// maxRepairSpan is the longest span handed to jsonrepair
const maxRepairSpan = 8 << 10

// Extractor turns free-form model output into structured values.
// It never returns an error: unreadable text degrades to defaults and a warning.
type Extractor struct {
	log      *logger.Logger
	fallback func(kind string)
}

// NewExtractor creates an extractor logging through log (nil means discard)
func NewExtractor(log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{log: log.WithComponent("extractor")}
}

// OnFallback registers fn to be called every time an extraction degrades
func (e *Extractor) OnFallback(fn func(kind string)) {
	e.fallback = fn
}

func (e *Extractor) degraded(kind, reason, raw string) {
	e.log.Warn().
		Str("kind", kind).
		Str("reason", reason).
		Str("response", snippet(raw, 200)).
		Msg("Model output fell back to lenient parsing")
	if e.fallback != nil {
		e.fallback(kind)
	}
}

// Analysis holds the model-provided fields of a topic analysis
type Analysis struct {
	PainPoints      []string
	CommercialValue float64
	TargetAudience  string
	SuggestedAngles []string
	Demands         []models.DemandInsight
}

// Quality is a parsed quality assessment of a single reply
type Quality struct {
	Relevance      float64
	Attractiveness float64
	Recommended    bool
	Feedback       []string
	Parsed         bool // false when no score could be read at all
}

var (
	commercialRe     = labeledScoreRe(`商业价值|commercial[ _-]?value`)
	relevanceRe      = labeledScoreRe(`相关性|relevance`)
	attractivenessRe = labeledScoreRe(`吸引力|attractiveness|appeal`)
	audienceRe       = regexp.MustCompile(`(?im)^[ \t#*-]*(?:目标人群|目标用户|target[ _-]?audience)[*]*[ \t]*[:：][ \t]*(.+)$`)
	painHeadingRe    = regexp.MustCompile(`(?i)痛点|pain[ _-]?points?`)
	angleHeadingRe   = regexp.MustCompile(`(?i)切入角度|suggested[ _-]?angles?|angles`)
	bulletRe         = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.、)）])\s*(.+)$`)
	versionHeaderRe  = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?(?:版本|version)[ \t]*(\d+)[^\n]*$`)
	bracketAngleRe   = regexp.MustCompile(`【([^】]+)】|\[([^\]]+)\]`)
	angleLabelRe     = regexp.MustCompile(`(?i)^\s*(?:角度|angle)\s*[:：]\s*(.+)$`)
	contentLabelRe   = regexp.MustCompile(`(?i)^\s*(?:回复内容|内容|content|reply)\s*[:：]\s*`)
	negativeRecRe    = regexp.MustCompile(`(?i)不推荐|修改后使用|not recommended|needs? revision|do not use`)
	positiveRecRe    = regexp.MustCompile(`(?i)推荐|recommend`)
	feedbackLineRe   = regexp.MustCompile(`(?i)建议|修改|suggest|improve`)
	numberRe         = regexp.MustCompile(`(-?\d+(?:\.\d+)?)(?:\s*/\s*(\d+(?:\.\d+)?))?`)
	listSepRe        = regexp.MustCompile(`[;；,，、]`)
)

var (
	analysisKeys = []string{"pain_points", "painPoints", "痛点", "commercial_value", "commercialValue", "商业价值", "target_audience", "suggested_angles", "demands"}
	qualityKeys  = []string{"relevance", "relevance_score", "相关性", "attractiveness", "attractiveness_score", "吸引力"}
	replyKeys    = []string{"replies", "versions", "candidates", "回复", "content", "reply", "text", "回复内容", "内容"}
	demandKeys   = []string{"demands", "demand_insights", "需求", "demand_type", "description", "需求描述"}
)

func labeledScoreRe(labels string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + labels + `)[^\d\n]{0,16}?(-?\d+(?:\.\d+)?)(?:\s*/\s*(\d+(?:\.\d+)?))?`)
}

// ExtractAnalysis reads pain points, commercial value, audience, angles and demands.
// Missing scores default to DefaultScore.
func (e *Extractor) ExtractAnalysis(raw string) Analysis {
	res := Analysis{CommercialValue: DefaultScore}

	if v, ok := decodeSpan(raw, '{', hasAnyKey(analysisKeys)); ok {
		obj := v.(map[string]any)
		res.PainPoints = stringList(lookup(obj, "pain_points", "painPoints", "痛点"))
		if n, ok := number(lookup(obj, "commercial_value", "commercialValue", "商业价值")); ok {
			res.CommercialValue = n
		}
		res.TargetAudience = text(lookup(obj, "target_audience", "targetAudience", "目标人群"))
		res.SuggestedAngles = stringList(lookup(obj, "suggested_angles", "suggestedAngles", "angles", "切入角度"))
		res.Demands = demandList(lookup(obj, "demands", "demand_insights", "需求"))
		return res
	}

	e.degraded(KindAnalysis, "no JSON object", raw)
	if n, ok := labeledScore(commercialRe, raw); ok {
		res.CommercialValue = n
	}
	if m := audienceRe.FindStringSubmatch(raw); m != nil {
		res.TargetAudience = strings.TrimSpace(m[1])
	}
	res.PainPoints = section(raw, painHeadingRe)
	res.SuggestedAngles = section(raw, angleHeadingRe)
	return res
}

// ExtractDemands reads a list of demand items, either a bare array or an object with a demands key
func (e *Extractor) ExtractDemands(raw string) []models.DemandInsight {
	if v, ok := decodeSpan(raw, '[', isObjectList); ok {
		if d := demandList(v); len(d) > 0 {
			return d
		}
	}
	if v, ok := decodeSpan(raw, '{', hasAnyKey(demandKeys)); ok {
		obj := v.(map[string]any)
		if d := demandList(lookup(obj, "demands", "demand_insights", "需求")); len(d) > 0 {
			return d
		}
		if d, ok := demandFrom(obj); ok {
			return []models.DemandInsight{d}
		}
	}
	if strings.TrimSpace(raw) != "" {
		e.degraded(KindDemands, "no demand items", raw)
	}
	return nil
}

// ExtractReplies reads reply candidates. Versions are made unique and positive,
// overall scores are recomputed. Non-empty input always yields at least one
// candidate: when nothing is recognised the whole text becomes version 1.
func (e *Extractor) ExtractReplies(raw string) []*models.ReplyCandidate {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var out []*models.ReplyCandidate
	if v, ok := decodeSpan(raw, '[', isObjectList); ok {
		out = candidateList(v)
	}
	if len(out) == 0 {
		if v, ok := decodeSpan(raw, '{', hasAnyKey(replyKeys)); ok {
			obj := v.(map[string]any)
			if list := lookup(obj, "replies", "versions", "candidates", "回复"); list != nil {
				out = candidateList(list)
			} else if c, ok := candidateFrom(obj); ok {
				out = []*models.ReplyCandidate{c}
			}
		}
	}
	if len(out) == 0 {
		out = scanVersions(raw)
		if len(out) > 0 {
			e.degraded(KindReplies, "parsed from version headers", raw)
		}
	}
	if len(out) == 0 {
		e.degraded(KindReplies, "no candidates recognised", raw)
		out = []*models.ReplyCandidate{{
			Version:             1,
			Content:             raw,
			RelevanceScore:      DefaultScore,
			AttractivenessScore: DefaultScore,
		}}
	}

	normalizeVersions(out)
	for _, c := range out {
		c.Rescore()
	}
	return out
}

// ExtractQuality reads a quality assessment. Any overall score declared by
// the model is ignored.
func (e *Extractor) ExtractQuality(raw string) Quality {
	q := Quality{Relevance: DefaultScore, Attractiveness: DefaultScore}

	if v, ok := decodeSpan(raw, '{', hasAnyKey(qualityKeys)); ok {
		obj := v.(map[string]any)
		r, rok := number(lookup(obj, "relevance", "relevance_score", "相关性"))
		a, aok := number(lookup(obj, "attractiveness", "attractiveness_score", "吸引力"))
		if rok || aok {
			q.Parsed = true
			if rok {
				q.Relevance = r
			}
			if aok {
				q.Attractiveness = a
			}
			q.Recommended = boolean(lookup(obj, "recommended", "推荐"))
			q.Feedback = stringList(lookup(obj, "suggestions", "feedback", "建议"))
			return q
		}
	}

	r, rok := labeledScore(relevanceRe, raw)
	a, aok := labeledScore(attractivenessRe, raw)
	if !rok && !aok {
		if strings.TrimSpace(raw) != "" {
			e.degraded(KindQuality, "no scores recognised", raw)
		}
		return q
	}
	q.Parsed = true
	if rok {
		q.Relevance = r
	}
	if aok {
		q.Attractiveness = a
	}
	q.Recommended = !negativeRecRe.MatchString(raw) && positiveRecRe.MatchString(raw)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && feedbackLineRe.MatchString(line) {
			q.Feedback = append(q.Feedback, strings.TrimLeft(line, "-*• "))
		}
	}
	return q
}

// decodeSpan finds the first balanced span opened by open that decodes to a value accepted by accept.
// Broken JSON is passed through jsonrepair before giving up on a span.
func decodeSpan(raw string, open byte, accept func(any) bool) (any, bool) {
	start := 0
	for attempt := 0; attempt < maxSpanAttempts && start < len(raw); attempt++ {
		idx := strings.IndexByte(raw[start:], open)
		if idx < 0 {
			return nil, false
		}
		idx += start
		span, closed := balancedSpan(raw[idx:], open)
		if v, ok := decodeJSON(span, closed); ok && accept(v) {
			return v, true
		}
		start = idx + 1
	}
	return nil, false
}

// balancedSpan returns the prefix of s closing its first bracket, string-literal aware.
// An unterminated span returns the rest of s and false.
func balancedSpan(s string, open byte) (string, bool) {
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	depth, inString, escaped := 0, false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return s, false
}

func decodeJSON(span string, closed bool) (any, bool) {
	var v any
	if closed {
		if err := json.Unmarshal([]byte(span), &v); err == nil {
			return v, true
		}
	}
	if len(span) > maxRepairSpan {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	return v, true
}

// hasAnyKey accepts objects carrying at least one of keys
func hasAnyKey(keys []string) func(any) bool {
	return func(v any) bool {
		obj, ok := v.(map[string]any)
		return ok && lookup(obj, keys...) != nil
	}
}

func isObjectList(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	for _, item := range list {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

// lookup returns the first present key, compared case-insensitively
func lookup(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	for _, k := range keys {
		for name, v := range obj {
			if strings.EqualFold(name, k) {
				return v
			}
		}
	}
	return nil
}

func candidateList(v any) []*models.ReplyCandidate {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]*models.ReplyCandidate, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if c, ok := candidateFrom(obj); ok {
			out = append(out, c)
		}
	}
	return out
}

func candidateFrom(obj map[string]any) (*models.ReplyCandidate, bool) {
	content := strings.TrimSpace(text(lookup(obj, "content", "reply", "text", "回复内容", "内容")))
	if content == "" {
		return nil, false
	}
	c := &models.ReplyCandidate{
		Angle:               strings.TrimSpace(text(lookup(obj, "angle", "角度"))),
		Content:             content,
		RelevanceScore:      DefaultScore,
		AttractivenessScore: DefaultScore,
		Recommended:         boolean(lookup(obj, "recommended")),
		Feedback:            text(lookup(obj, "feedback")),
	}
	if s, ok := rawNumber(lookup(obj, "version", "版本")); ok {
		c.Version = int(s)
	}
	if n, ok := number(lookup(obj, "relevance", "relevance_score", "相关性")); ok {
		c.RelevanceScore = n
	}
	if n, ok := number(lookup(obj, "attractiveness", "attractiveness_score", "吸引力")); ok {
		c.AttractivenessScore = n
	}
	return c, true
}

func demandList(v any) []models.DemandInsight {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]models.DemandInsight, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if d, ok := demandFrom(obj); ok {
			out = append(out, d)
		}
	}
	return out
}

func demandFrom(obj map[string]any) (models.DemandInsight, bool) {
	d := models.DemandInsight{
		Type:               text(lookup(obj, "demand_type", "type", "需求类型")),
		Description:        text(lookup(obj, "description", "desc", "需求描述")),
		SolutionDirections: stringList(lookup(obj, "solution_directions", "solutions", "解决方向")),
	}
	if d.Type == "" && d.Description == "" {
		return d, false
	}
	d.Urgency = scoreOr(lookup(obj, "urgency", "紧迫性"), DefaultScore)
	d.Universality = scoreOr(lookup(obj, "universality", "普遍性"), DefaultScore)
	d.Commerciality = scoreOr(lookup(obj, "commerciality", "commercial_value", "商业性"), DefaultScore)
	d.Feasibility = scoreOr(lookup(obj, "feasibility", "可行性"), DefaultScore)
	return d, true
}

func scoreOr(v any, def float64) float64 {
	if n, ok := number(v); ok {
		return n
	}
	return def
}

// scanVersions splits free text on version headers
func scanVersions(raw string) []*models.ReplyCandidate {
	headers := versionHeaderRe.FindAllStringSubmatchIndex(raw, -1)
	out := make([]*models.ReplyCandidate, 0, len(headers))
	for i, h := range headers {
		end := len(raw)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		header := raw[h[0]:h[1]]
		body := raw[h[1]:end]
		version, _ := strconv.Atoi(raw[h[2]:h[3]])

		c := &models.ReplyCandidate{
			Version:             version,
			Angle:               headerAngle(header[h[3]-h[0]:]),
			RelevanceScore:      DefaultScore,
			AttractivenessScore: DefaultScore,
		}
		var content []string
		for _, line := range strings.Split(body, "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "" && len(content) == 0:
			case isScoreLine(trimmed):
				if n, ok := labeledScore(relevanceRe, trimmed); ok {
					c.RelevanceScore = n
				}
				if n, ok := labeledScore(attractivenessRe, trimmed); ok {
					c.AttractivenessScore = n
				}
			case angleLabelRe.MatchString(trimmed):
				if c.Angle == "" {
					c.Angle = strings.TrimSpace(angleLabelRe.FindStringSubmatch(trimmed)[1])
				}
			case strings.Trim(trimmed, "-=*") == "" && trimmed != "":
			default:
				content = append(content, contentLabelRe.ReplaceAllString(line, ""))
			}
		}
		c.Content = strings.TrimSpace(strings.Join(content, "\n"))
		if c.Content == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// isScoreLine reports short lines carrying a relevance or attractiveness label
func isScoreLine(line string) bool {
	return len([]rune(line)) <= 40 && (relevanceRe.MatchString(line) || attractivenessRe.MatchString(line))
}

func headerAngle(rest string) string {
	if m := bracketAngleRe.FindStringSubmatch(rest); m != nil {
		if m[1] != "" {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[2])
	}
	rest = strings.TrimLeft(rest, " \t:：-—*")
	return strings.TrimSpace(strings.TrimRight(rest, "*"))
}

// normalizeVersions makes every version positive and unique, keeping valid ones as they are.
// A missing or repeated version is numbered after every version seen so far, so a later
// candidate never gets a lower version than an earlier one it collided with.
func normalizeVersions(cs []*models.ReplyCandidate) {
	used := make(map[int]bool, len(cs))
	top := 0
	for _, c := range cs {
		if c.Version <= 0 || used[c.Version] {
			c.Version = top + 1
			for used[c.Version] {
				c.Version++
			}
		}
		used[c.Version] = true
		top = max(top, c.Version)
	}
}

// section collects the bullet items under the first heading matching re,
// or the comma separated list following the heading on the same line
func section(raw string, heading *regexp.Regexp) []string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if !heading.MatchString(line) {
			continue
		}
		var items []string
		if idx := strings.IndexAny(line, ":："); idx >= 0 {
			for _, part := range listSepRe.Split(line[idx:], -1) {
				part = strings.TrimSpace(strings.TrimLeft(part, ":："))
				if part != "" {
					items = append(items, part)
				}
			}
		}
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) == "" {
				if len(items) > 0 {
					break
				}
				continue
			}
			m := bulletRe.FindStringSubmatch(next)
			if m == nil {
				break
			}
			items = append(items, strings.TrimSpace(m[1]))
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func labeledScore(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return DefaultScore, false
	}
	return scaled(m[1], m[2])
}

// scaled parses v, rescales "x/den" to a 10 point scale and clamps
func scaled(v, den string) (float64, bool) {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return DefaultScore, false
	}
	if den != "" {
		if d, err := strconv.ParseFloat(den, 64); err == nil && d > 0 && d != 10 {
			n = n / d * 10
		}
	}
	return Clamp(n), true
}

// number reads a score from a decoded JSON value, clamped to [0, 10]
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return Clamp(x), true
	case string:
		m := numberRe.FindStringSubmatch(x)
		if m == nil {
			return 0, false
		}
		return scaled(m[1], m[2])
	}
	return 0, false
}

// rawNumber reads an unclamped number
func rawNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	}
	return 0, false
}

func boolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return !negativeRecRe.MatchString(x) && (positiveRecRe.MatchString(x) || strings.EqualFold(x, "true") || x == "是")
	}
	return false
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		return strings.Join(stringList(x), "; ")
	}
	return ""
}

// stringList accepts an array of strings or objects, or a single delimited string
func stringList(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			var s string
			switch it := item.(type) {
			case string:
				s = it
			case map[string]any:
				s = text(lookup(it, "description", "content", "text", "name", "title"))
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.FieldsFunc(x, func(r rune) bool { return r == '\n' || r == ';' || r == '；' }) {
			if part = strings.TrimSpace(strings.TrimLeft(part, "-*• ")); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

// Clamp bounds a score to [0, 10]
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultScore
	}
	return math.Max(0, math.Min(10, v))
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
