package archive

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"aegis/logging"
	"aegis/models"
)

// PriceOracle samples the current market price for a ticker.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
}

// Archive is the durable store behind the war room: the signal timeline,
// verified threats, deployed measures and correlation attempts.
type Archive struct {
	db     *gorm.DB
	log    *logrus.Entry
	oracle PriceOracle
	now    func() time.Time
}

type Option func(*Archive)

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Archive) { a.log = logging.Component(l, "archive") }
}

// WithPriceOracle sets the oracle sampled when a response is deployed.
func WithPriceOracle(o PriceOracle) Option {
	return func(a *Archive) { a.oracle = o }
}

func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

func New(db *gorm.DB, opts ...Option) *Archive {
	a := &Archive{
		db:  db,
		log: logging.Component(nil, "archive"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DB exposes the handle for health checks.
func (a *Archive) DB() *gorm.DB {
	return a.db
}

func (a *Archive) clock() time.Time {
	return a.now().UTC()
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *models.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &models.PersistenceError{Op: op, Err: err}
}
