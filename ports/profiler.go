package ports

import (
	"rnadiff/domain/expression"
	"rnadiff/internal/profiling"
)

// ProfilerPort summarises a count matrix before fitting
type ProfilerPort interface {
	ProfileMatrix(m *expression.CountMatrix) (*profiling.MatrixProfile, error)
}
