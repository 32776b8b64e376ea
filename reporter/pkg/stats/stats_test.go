package stats

import (
	"math/rand"
	"testing"
	"time"

	"glucolog/reporter/defs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type StatsTestSuite struct {
	suite.Suite
}

func TestStatsTestSuite(t *testing.T) {
	suite.Run(t, new(StatsTestSuite))
}

func (suite *StatsTestSuite) TestTimeSpentInRange() {
	ms := genReadings([]metaReadings{
		{size: 15, min: 40, max: 70},
		{size: 60, min: 71, max: 179},
		{size: 25, min: 180, max: 300},
	}...)
	ms = append(ms, defs.Measurement{Time: time.Now()})
	ra := TimeSpentInRange(ms, 70, 180)

	assert.Equal(suite.T(), 15.0/100, ra.BelowRange, "below range should match")
	assert.Equal(suite.T(), 60.0/100, ra.InRange, "in range should match")
	assert.Equal(suite.T(), 25.0/100, ra.AboveRange, "above range should match")
}

func (suite *StatsTestSuite) TestTimeSpentInRangeEmpty() {
	assert.Equal(suite.T(), RangeAnalysis{}, TimeSpentInRange(nil, 70, 180))
}

func (suite *StatsTestSuite) TestSummaryStatistics() {
	ms := genReadings([]metaReadings{
		{size: 100, min: 108, max: 108},
	}...)
	ss := GlucoseSummary(ms)

	assert.Equal(suite.T(), float64(108), ss.Average, "averages do not equal")
	assert.Equal(suite.T(), float64(0), ss.Deviation, "deviations do not equal")
	assert.Equal(suite.T(), float64(108), ss.Max)
}

func (suite *StatsTestSuite) TestBand() {
	assert.Equal(suite.T(), Low, Band(999, 1000, 3000))
	assert.Equal(suite.T(), Medium, Band(1000, 1000, 3000))
	assert.Equal(suite.T(), High, Band(3000, 1000, 3000))
	assert.Equal(suite.T(), "medium", Medium.String())
}

func (suite *StatsTestSuite) TestSummarize() {
	day := &defs.Day{
		Measurements: genReadings(metaReadings{size: 10, min: 150, max: 150}),
		HighGlucosePeriods: []defs.HighGlucosePeriod{
			{Points: 800},
			{Points: 400.5},
		},
	}
	ds := Summarize(day, defs.DefaultConfig().Glucose)

	assert.Equal(suite.T(), 2, ds.Periods)
	assert.Equal(suite.T(), 1200.5, ds.TotalPoints)
	assert.Equal(suite.T(), Medium, ds.Severity)
	assert.Equal(suite.T(), 1.0, ds.InRange)
	assert.Equal(suite.T(), 150.0, ds.Average)
}

type metaReadings struct {
	size int
	min  float64
	max  float64
}

func genReadings(mrs ...metaReadings) []defs.Measurement {
	now := time.Now()
	ms := make([]defs.Measurement, 0)

	count := 0
	for _, mr := range mrs {
		for i := 0; i < mr.size; i++ {
			v := mr.min + rand.Float64()*(mr.max-mr.min)
			ms = append(ms, defs.Measurement{
				Time:  now.Add(time.Duration(count*5) * time.Minute),
				Value: defs.Float(v),
			})
			count++
		}
	}

	return ms
}
