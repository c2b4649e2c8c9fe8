package recommend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const maxGridSize = 10000

var (
	// DefaultGridStart, DefaultGridStop, DefaultGridStep задают сетку 100, 110, ..., 190.
	DefaultGridStart = decimal.NewFromInt(100)
	DefaultGridStop  = decimal.NewFromInt(190)
	DefaultGridStep  = decimal.NewFromInt(10)

	ErrGridEmpty     = errors.New("candidate grid is empty")
	ErrGridUnordered = errors.New("candidate grid must be strictly ascending")
	ErrGridInvalid   = errors.New("invalid candidate grid")
)

// Grid: упорядоченная по возрастанию сетка кандидатов стартовой ставки.
type Grid struct {
	candidates []decimal.Decimal
}

// DefaultGrid возвращает сетку по умолчанию.
func DefaultGrid() Grid {
	g, err := NewGrid(DefaultGridStart, DefaultGridStop, DefaultGridStep)
	if err != nil {
		panic(fmt.Sprintf("default grid: %v", err))
	}
	return g
}

// NewGrid строит сетку start, start+step, ... до stop включительно.
func NewGrid(start, stop, step decimal.Decimal) (Grid, error) {
	if !step.IsPositive() {
		return Grid{}, fmt.Errorf("%w: step must be positive", ErrGridInvalid)
	}
	if start.IsNegative() {
		return Grid{}, fmt.Errorf("%w: start must be non-negative", ErrGridInvalid)
	}
	if stop.LessThan(start) {
		return Grid{}, fmt.Errorf("%w: stop %s is below start %s", ErrGridInvalid, stop, start)
	}

	size := stop.Sub(start).Div(step).Floor().IntPart() + 1
	if size > maxGridSize {
		return Grid{}, fmt.Errorf("%w: %d candidates exceed limit %d", ErrGridInvalid, size, maxGridSize)
	}

	candidates := make([]decimal.Decimal, 0, size)
	for v := start; v.LessThanOrEqual(stop); v = v.Add(step) {
		candidates = append(candidates, v)
	}
	return Grid{candidates: candidates}, nil
}

// GridFromValues принимает явный список кандидатов.
func GridFromValues(values []decimal.Decimal) (Grid, error) {
	if len(values) == 0 {
		return Grid{}, ErrGridEmpty
	}
	if len(values) > maxGridSize {
		return Grid{}, fmt.Errorf("%w: %d candidates exceed limit %d", ErrGridInvalid, len(values), maxGridSize)
	}
	candidates := make([]decimal.Decimal, len(values))
	copy(candidates, values)
	for i := 1; i < len(candidates); i++ {
		if !candidates[i].GreaterThan(candidates[i-1]) {
			return Grid{}, ErrGridUnordered
		}
	}
	return Grid{candidates: candidates}, nil
}

// ParseGrid разбирает строку вида "start:stop:step", например "100:190:10".
func ParseGrid(raw string) (Grid, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return Grid{}, fmt.Errorf("%w: expected start:stop:step, got %q", ErrGridInvalid, raw)
	}

	values := make([]decimal.Decimal, 3)
	for i, part := range parts {
		v, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return Grid{}, fmt.Errorf("%w: parse %q: %v", ErrGridInvalid, part, err)
		}
		values[i] = v
	}
	return NewGrid(values[0], values[1], values[2])
}

// Candidates возвращает копию кандидатов.
func (g Grid) Candidates() []decimal.Decimal {
	out := make([]decimal.Decimal, len(g.candidates))
	copy(out, g.candidates)
	return out
}

// Len возвращает число кандидатов.
func (g Grid) Len() int {
	return len(g.candidates)
}

func (g Grid) String() string {
	if len(g.candidates) == 0 {
		return "[]"
	}
	parts := make([]string, len(g.candidates))
	for i, c := range g.candidates {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
