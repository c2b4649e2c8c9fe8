package recommend

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// Engine подбирает стартовую ставку по сетке кандидатов.
type Engine struct {
	artifacts Artifacts
	grid      Grid
	logger    *log.Entry
}

// NewEngine создаёт движок рекомендаций. Пустая сетка заменяется DefaultGrid.
func NewEngine(artifacts Artifacts, grid Grid, logger *log.Entry) (*Engine, error) {
	if err := artifacts.validate(); err != nil {
		return nil, err
	}
	if grid.Len() == 0 {
		grid = DefaultGrid()
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine{
		artifacts: artifacts,
		grid:      grid,
		logger:    logger.WithField("component", "recommend"),
	}, nil
}

// Grid возвращает сетку кандидатов движка.
func (e *Engine) Grid() Grid {
	return e.grid
}

// Recommend возвращает наибольшего кандидата, для которого модель предсказывает продажу.
// Если таких нет, возвращается domain.ErrNoViableBid.
func (e *Engine) Recommend(ctx context.Context, features LotFeatures) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}

	candidates := e.grid.candidates
	numeric := make([][]float64, len(candidates))
	for i, candidate := range candidates {
		numeric[i] = numericRow(features, candidate)
	}

	scaled, err := e.artifacts.Scaler.Transform(numeric)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("scale features: %w", err)
	}
	if len(scaled) != len(candidates) {
		return decimal.Decimal{}, fmt.Errorf("%w: scaler returned %d rows for %d candidates",
			ErrFeatureWidth, len(scaled), len(candidates))
	}

	categorical := OneHot(features.Category, e.artifacts.Vocabulary)
	rows := make([][]float64, len(scaled))
	for i, s := range scaled {
		row := make([]float64, 0, len(s)+len(categorical))
		row = append(row, s...)
		rows[i] = append(row, categorical...)
	}

	predictions, err := e.artifacts.Classifier.Predict(rows)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("predict: %w", err)
	}
	if len(predictions) != len(candidates) {
		return decimal.Decimal{}, fmt.Errorf("%w: classifier returned %d predictions for %d candidates",
			ErrFeatureWidth, len(predictions), len(candidates))
	}

	for i := len(candidates) - 1; i >= 0; i-- {
		if predictions[i] == 1 {
			e.logger.WithFields(log.Fields{
				"category":     features.Category,
				"starting_bid": candidates[i].String(),
			}).Debug("starting bid recommended")
			return candidates[i], nil
		}
	}

	e.logger.WithField("category", features.Category).Debug("no viable starting bid")
	return decimal.Decimal{}, domain.ErrNoViableBid
}
