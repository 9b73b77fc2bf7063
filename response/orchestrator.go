package response

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"aegis/content"
	"aegis/logging"
	"aegis/models"
)

// Brief is what a text generator needs to know about a threat.
type Brief struct {
	EventID     string
	Ticker      string
	Company     string
	Headline    string
	Source      string
	DropPercent float64
	PanicScore  int
	Confidence  int
}

func BriefFor(t models.ThreatPackage) Brief {
	return Brief{
		EventID:     t.EventID,
		Ticker:      t.Ticker,
		Company:     content.CompanyName(t.Ticker),
		Headline:    t.SmokingGunHeadline,
		DropPercent: models.Round(math.Abs(t.ProjectedLoss), 2),
		PanicScore:  t.PanicScore,
		Confidence:  t.CorrelationConfidence,
	}
}

// TextGenerator drafts the text for a set of measures.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, b Brief, measures []models.MeasureType) (map[models.MeasureType]string, error)
}

// Orchestrator turns a verified threat into an ordered set of drafted
// countermeasures.
type Orchestrator struct {
	gen      TextGenerator
	fallback Template
	timeout  time.Duration
	log      *logrus.Entry
}

type Option func(*Orchestrator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = logging.Component(l, "response") }
}

// WithTimeout bounds a single generator call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// New builds an orchestrator. A nil generator drafts everything from
// templates.
func New(gen TextGenerator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:     gen,
		timeout: 30 * time.Second,
		log:     logging.Component(nil, "response"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GenerateResponses returns one candidate per measure chosen by the
// escalation policy, strongest first. Generator failures fall back to
// template text per measure.
func (o *Orchestrator) GenerateResponses(ctx context.Context, t models.ThreatPackage) ([]models.ResponseCandidate, error) {
	rule := Escalate(t.CorrelationConfidence, t.PanicScore)
	brief := BriefFor(t)
	log := o.log.WithFields(logrus.Fields{
		"event_id": t.EventID,
		"tier":     rule.Tier,
	})

	var drafted map[models.MeasureType]string
	genName := o.fallback.Name()
	if o.gen != nil {
		gctx, cancel := context.WithTimeout(ctx, o.timeout)
		out, err := o.gen.Generate(gctx, brief, rule.Measures)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).WithField("generator", o.gen.Name()).Warn("Response generation failed, using templates")
		} else {
			drafted = out
			genName = o.gen.Name()
		}
	}

	templated, _ := o.fallback.Generate(ctx, brief, rule.Measures)
	out := make([]models.ResponseCandidate, 0, len(rule.Measures))
	for _, mt := range rule.Measures {
		text := strings.TrimSpace(drafted[mt])
		gen := genName
		if text == "" {
			text = templated[mt]
			gen = o.fallback.Name()
		}
		out = append(out, models.ResponseCandidate{
			MeasureType: mt,
			Text:        Truncate(text, MaxLength[mt]),
			Generator:   gen,
		})
	}
	log.WithField("measures", len(out)).Info("Responses drafted")
	return out, nil
}

// Truncate cuts s to at most limit characters on a word boundary.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit-1])
	if i := strings.LastIndexAny(cut, " \n\t"); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-") + "…"
}

// stripFences removes a markdown code fence around a model reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// parseDrafts decodes a JSON object keyed by lowercase measure names.
func parseDrafts(raw string, measures []models.MeasureType) (map[models.MeasureType]string, error) {
	var obj map[string]string
	if err := json.Unmarshal([]byte(stripFences(raw)), &obj); err != nil {
		return nil, fmt.Errorf("failed to decode generator JSON: %w", err)
	}
	out := make(map[models.MeasureType]string, len(measures))
	for _, mt := range measures {
		if v, ok := obj[measureKey(mt)]; ok {
			out[mt] = v
		}
	}
	return out, nil
}

func measureKey(mt models.MeasureType) string {
	return strings.ToLower(string(mt))
}

var measureGuidance = map[models.MeasureType]string{
	models.MeasureCeaseDesist:    "Twitter/X reply to the source. Max 280 characters. Firm legal warning tone. Demand immediate retraction.",
	models.MeasureLegalNotice:    "Formal legal notice to the publisher. 3-4 sentences. Identify the false statement and demand retraction and record preservation.",
	models.MeasureCEOAlert:       "Internal SMS to leadership. Max 160 characters. Urgent but concise. Key facts only.",
	models.MeasureOfficialDenial: "Investor relations statement. 2-3 sentences. Calm, factual tone. Reassure investors.",
	models.MeasurePRTweet:        "Public post from the company account. Max 280 characters. Calm and factual.",
	models.MeasureInternalMemo:   "Internal memo to staff. 3-4 sentences. Explain the situation and the no-comment policy.",
}

func systemPrompt(b Brief) string {
	return fmt.Sprintf("You are a Crisis Communication Officer for %s. Be professional, firm, and fact-based.", b.Company)
}

func userPrompt(b Brief, measures []models.MeasureType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SITUATION:\nA false news story has just gone viral and caused immediate market damage.\n\n")
	fmt.Fprintf(&sb, "- FALSE HEADLINE: %q\n", b.Headline)
	fmt.Fprintf(&sb, "- STOCK IMPACT: projected drop of %.2f%%\n", b.DropPercent)
	fmt.Fprintf(&sb, "- PANIC SCORE: %d/100\n", b.PanicScore)
	fmt.Fprintf(&sb, "- CORRELATION CONFIDENCE: %d/100\n\n", b.Confidence)
	fmt.Fprintf(&sb, "Draft %d crisis responses:\n", len(measures))
	for i, mt := range measures {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, measureKey(mt), measureGuidance[mt])
	}
	sb.WriteString("\nReturn ONLY a JSON object whose keys are exactly the response names above and whose values are the drafted texts.")
	return sb.String()
}
