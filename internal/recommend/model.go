package recommend

import (
	"errors"
	"fmt"
	"math"
)

var ErrFeatureWidth = errors.New("feature width mismatch")

// Classifier предсказывает продажу лота: 1 означает «продан», 0 означает «не продан».
type Classifier interface {
	Predict(rows [][]float64) ([]int, error)
}

// Scaler нормализует числовые признаки.
type Scaler interface {
	Transform(rows [][]float64) ([][]float64, error)
}

const defaultThreshold = 0.5

// LogisticClassifier: бинарная логистическая регрессия.
type LogisticClassifier struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Threshold    float64   `json:"threshold"`
}

// Predict возвращает 1, если вероятность продажи не ниже порога.
func (c LogisticClassifier) Predict(rows [][]float64) ([]int, error) {
	threshold := c.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = defaultThreshold
	}

	out := make([]int, len(rows))
	for i, row := range rows {
		if len(row) != len(c.Coefficients) {
			return nil, fmt.Errorf("%w: row %d has %d features, classifier expects %d",
				ErrFeatureWidth, i, len(row), len(c.Coefficients))
		}
		if probability(c.Intercept, c.Coefficients, row) >= threshold {
			out[i] = 1
		}
	}
	return out, nil
}

func probability(intercept float64, weights, row []float64) float64 {
	z := intercept
	for j, w := range weights {
		z += w * row[j]
	}
	return 1 / (1 + math.Exp(-z))
}

// StandardScaler приводит колонки к (x - mean) / scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform не изменяет входные строки.
func (s StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("%w: row %d has %d columns, scaler expects %d",
				ErrFeatureWidth, i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, x := range row {
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			scaled[j] = (x - s.Mean[j]) / scale
		}
		out[i] = scaled
	}
	return out, nil
}

func (s StandardScaler) validate() error {
	if len(s.Mean) != NumericFeatureCount || len(s.Scale) != NumericFeatureCount {
		return fmt.Errorf("%w: scaler must have %d mean and scale values, got %d and %d",
			ErrFeatureWidth, NumericFeatureCount, len(s.Mean), len(s.Scale))
	}
	return nil
}
