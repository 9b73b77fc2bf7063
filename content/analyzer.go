package content

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"aegis/logging"
	"aegis/metrics"
	"aegis/models"
)

// RawItem is one unscored search hit.
type RawItem struct {
	Headline    string
	Link        string
	Source      string
	PublishedAt time.Time
}

// Source searches a news or social index.
type Source interface {
	Search(ctx context.Context, query string) ([]RawItem, error)
}

// Scorer rates how much panic an item is likely to cause, 0..100.
type Scorer interface {
	Score(item RawItem) int
}

// Finder picks the item most likely to have caused a crash. A nil item with
// a nil error means nothing credible was found.
type Finder interface {
	FindSmokingGun(ctx context.Context, ticker string, crashTS time.Time, lookback time.Duration) (*models.ContentItem, error)
}

// HuntKeywords are appended to the company name to build search queries.
var HuntKeywords = []string{"fraud", "arrest", "raid", "bankruptcy", "scandal", "crisis"}

const (
	DefaultMinPanic      = 60
	DefaultForwardSlack  = 5 * time.Minute
	DefaultMaxCandidates = 50
	DefaultTimeout       = 20 * time.Second
	maxConcurrentQueries = 3
)

type Options struct {
	MinPanic      int
	ForwardSlack  time.Duration
	MaxCandidates int
	Timeout       time.Duration
	Keywords      []string
	Logger        logrus.FieldLogger
	Metrics       *metrics.Collector
}

// Analyzer is the Finder backed by a live Source.
type Analyzer struct {
	source  Source
	scorer  Scorer
	opts    Options
	log     *logrus.Entry
	metrics *metrics.Collector
}

func NewAnalyzer(source Source, scorer Scorer, opts Options) *Analyzer {
	if opts.MinPanic <= 0 {
		opts.MinPanic = DefaultMinPanic
	}
	if opts.ForwardSlack < 0 {
		opts.ForwardSlack = 0
	} else if opts.ForwardSlack == 0 {
		opts.ForwardSlack = DefaultForwardSlack
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = HuntKeywords
	}
	if scorer == nil {
		scorer = NewKeywordScorer()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Analyzer{
		source:  source,
		scorer:  scorer,
		opts:    opts,
		log:     logging.Component(opts.Logger, "content"),
		metrics: m,
	}
}

// CompanyName turns an exchange ticker into a search term.
func CompanyName(ticker string) string {
	name := strings.ToUpper(strings.TrimSpace(ticker))
	for _, suffix := range []string{".NS", ".BO"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return strings.ReplaceAll(name, "_", " ")
}

func (a *Analyzer) FindSmokingGun(ctx context.Context, ticker string, crashTS time.Time, lookback time.Duration) (*models.ContentItem, error) {
	log := a.log.WithField("ticker", ticker)
	company := CompanyName(ticker)

	tctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	results := make([][]RawItem, len(a.opts.Keywords))
	g, gctx := errgroup.WithContext(tctx)
	g.SetLimit(maxConcurrentQueries)
	for i, kw := range a.opts.Keywords {
		query := company + " " + kw
		g.Go(func() error {
			items, err := a.source.Search(gctx, query)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.WithError(err).WithField("query", query).Warn("Content search failed")
				return nil
			}
			results[i] = items
			return nil
		})
	}
	err := g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if tctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		a.metrics.UpstreamTimeouts.WithLabelValues("news").Inc()
		log.WithField("timeout", a.opts.Timeout.String()).Warn("Content retrieval timed out, treating as no smoking gun")
		return nil, nil
	}
	if err != nil {
		log.WithError(err).Warn("Content retrieval failed, treating as no smoking gun")
		return nil, nil
	}

	candidates := a.candidates(results, crashTS, lookback)
	best := a.selectBest(candidates, crashTS)
	if best == nil {
		log.WithField("candidates", len(candidates)).Info("No smoking gun above panic floor")
		return nil, nil
	}
	log.WithFields(logrus.Fields{
		"headline":    best.Headline,
		"panic_score": best.PanicScore,
		"source":      best.Source,
	}).Info("Smoking gun selected")
	return best, nil
}

// candidates dedupes by headline, keeps items inside the causal window and
// bounds the set to the ones closest to the crash.
func (a *Analyzer) candidates(results [][]RawItem, crashTS time.Time, lookback time.Duration) []RawItem {
	from := crashTS.Add(-lookback)
	to := crashTS.Add(a.opts.ForwardSlack)

	seen := map[string]bool{}
	var out []RawItem
	for _, batch := range results {
		for _, it := range batch {
			key := normalizeHeadline(it.Headline)
			if key == "" || seen[key] || it.PublishedAt.IsZero() {
				continue
			}
			if it.PublishedAt.Before(from) || it.PublishedAt.After(to) {
				continue
			}
			seen[key] = true
			out = append(out, it)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return absDelta(out[i].PublishedAt, crashTS) < absDelta(out[j].PublishedAt, crashTS)
	})
	if len(out) > a.opts.MaxCandidates {
		out = out[:a.opts.MaxCandidates]
	}
	return out
}

func (a *Analyzer) selectBest(items []RawItem, crashTS time.Time) *models.ContentItem {
	var best *models.ContentItem
	for _, it := range items {
		score := models.Clamp(a.scorer.Score(it))
		if score < a.opts.MinPanic {
			continue
		}
		c := models.ContentItem{
			Headline:    strings.TrimSpace(it.Headline),
			Link:        it.Link,
			PublishedAt: it.PublishedAt.UTC(),
			PanicScore:  score,
			Source:      it.Source,
		}
		if best == nil || better(c, *best, crashTS) {
			cc := c
			best = &cc
		}
	}
	return best
}

// better orders by panic, then proximity to the crash, then headline.
func better(a, b models.ContentItem, crashTS time.Time) bool {
	if a.PanicScore != b.PanicScore {
		return a.PanicScore > b.PanicScore
	}
	da, db := absDelta(a.PublishedAt, crashTS), absDelta(b.PublishedAt, crashTS)
	if da != db {
		return da < db
	}
	return a.Headline < b.Headline
}

func absDelta(t, ref time.Time) time.Duration {
	d := t.Sub(ref)
	if d < 0 {
		return -d
	}
	return d
}

func normalizeHeadline(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}
