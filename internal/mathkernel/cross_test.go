package mathkernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CrossTestSuite struct {
	suite.Suite
}

func TestCrossSuite(t *testing.T) {
	suite.Run(t, new(CrossTestSuite))
}

// crossUp([1,3], [2,2]) is true: A was below/equal then rose above B.
func (suite *CrossTestSuite) TestCrossUpTrueCase() {
	suite.True(CrossUp([]float64{1, 3}, []float64{2, 2}))
}

// crossUp([3,1], [2,2]) is false: A was above then fell below B.
func (suite *CrossTestSuite) TestCrossUpFalseCase() {
	suite.False(CrossUp([]float64{3, 1}, []float64{2, 2}))
}

func (suite *CrossTestSuite) TestCrossDownTrueCase() {
	suite.True(CrossDown([]float64{3, 1}, []float64{2, 2}))
}

func (suite *CrossTestSuite) TestCrossDownFalseCase() {
	suite.False(CrossDown([]float64{1, 3}, []float64{2, 2}))
}

func (suite *CrossTestSuite) TestCrossUpFalseWhenInsufficientHistory() {
	suite.False(CrossUp([]float64{3}, []float64{2}))
	suite.False(CrossUp(nil, nil))
}

func (suite *CrossTestSuite) TestCrossUpSkipsNonFiniteRows() {
	a := []float64{1, math.NaN(), 3}
	b := []float64{2, 2, 2}
	suite.True(CrossUp(a, b))
}

func (suite *CrossTestSuite) TestLastFiniteReturnsMostRecentDefinedValue() {
	got := LastFinite([]float64{1, 2, math.NaN(), math.NaN()})
	suite.InDelta(2, got, 1e-9)
}

func (suite *CrossTestSuite) TestLastFiniteNaNWhenAllUndefined() {
	got := LastFinite([]float64{math.NaN(), math.NaN()})
	suite.True(math.IsNaN(got))
}
