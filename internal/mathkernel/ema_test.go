package mathkernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
)

type EMATestSuite struct {
	suite.Suite
}

func TestEMASuite(t *testing.T) {
	suite.Run(t, new(EMATestSuite))
}

// EMA([1,1,1,1,1], 3) -> [NaN, NaN, 1, 1, 1].
func (suite *EMATestSuite) TestEMABoundaryScenario() {
	got := EMA([]float64{1, 1, 1, 1, 1}, 3)
	want := []float64{math.NaN(), math.NaN(), 1, 1, 1}

	suite.Require().Len(got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			suite.True(math.IsNaN(got[i]))
			continue
		}

		suite.InDelta(want[i], got[i], 1e-9)
	}
}

func (suite *EMATestSuite) TestEMASeedIsSMA() {
	values := []float64{2, 4, 6, 8}
	got := EMA(values, 3)
	suite.InDelta((2.0+4.0+6.0)/3.0, got[2], 1e-9)
}

func (suite *EMATestSuite) TestEMARecursiveUpdate() {
	values := []float64{1, 2, 3, 4, 5}
	n := 3.0
	got := EMA(values, n)

	k := 2.0 / (n + 1)
	seed := (values[0] + values[1] + values[2]) / 3.0
	want3 := (values[3]-seed)*k + seed
	want4 := (values[4]-want3)*k + want3

	suite.InDelta(want3, got[3], 1e-9)
	suite.InDelta(want4, got[4], 1e-9)
}

func (suite *EMATestSuite) TestEMANonFiniteCarriesForwardPreviousValue() {
	values := []float64{1, 2, 3, math.NaN(), 5}
	got := EMA(values, 3)
	suite.InDelta(got[2], got[3], 1e-9)
}

func (suite *EMATestSuite) TestEMAAllNaNWhenTooShort() {
	got := EMA([]float64{1, 2}, 5)
	for _, v := range got {
		suite.True(math.IsNaN(v))
	}
}
