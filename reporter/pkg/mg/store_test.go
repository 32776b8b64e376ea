package mg

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"glucolog/reporter/defs"
	"glucolog/reporter/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const (
	mongoURI = "mongodb://localhost:27017"
	testDB   = "test"
)

type MongoTestSuite struct {
	suite.Suite
	ms *MongoStore
}

func TestMongoTestSuiteIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	suite.Run(t, new(MongoTestSuite))
}

func (suite *MongoTestSuite) SetupSuite() {
	ms, err := New(context.Background(), defs.MongoConfig{URI: mongoURI, Database: testDB}, zap.NewExample())
	if err != nil {
		panic(err)
	}
	suite.ms = ms
}

func (suite *MongoTestSuite) AfterTest(_, _ string) {
	suite.T().Log("teardown test db")
	assert.NoError(suite.T(), suite.ms.Client.Database(testDB).Drop(context.Background()), "unable to drop test db")
}

func testDay(date string, start time.Time) *defs.Day {
	ms := []defs.Measurement{
		{Time: start, Value: defs.Float(150)},
		{Time: start.Add(5 * time.Minute), Value: defs.Float(120), Note: defs.String("walk")},
		{Time: start.Add(10 * time.Minute)},
	}
	return &defs.Day{
		Date:         date,
		Measurements: ms,
		HighGlucosePeriods: []defs.HighGlucosePeriod{
			{StartTime: start, StartValue: 150, EndTime: ms[1].Time, EndValue: 150, Measurements: ms[:1], Points: 50},
		},
	}
}

func (suite *MongoTestSuite) TestReadWriteDayIntegration() {
	ctx := context.Background()
	start := time.Date(2022, time.May, 12, 8, 0, 0, 0, time.UTC)
	day := testDay("2022-05-12", start)

	assert.NoError(suite.T(), suite.ms.WriteDay(ctx, day))
	assert.NoError(suite.T(), suite.ms.WriteDay(ctx, day), "rewriting a day is an upsert")

	got, err := suite.ms.ReadDay(ctx, "2022-05-12")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), day.Date, got.Date)
	require.Len(suite.T(), got.Measurements, 3)
	assert.True(suite.T(), start.Equal(got.Measurements[0].Time))
	assert.Nil(suite.T(), got.Measurements[2].Value)
	assert.Equal(suite.T(), "walk", *got.Measurements[1].Note)
	require.Len(suite.T(), got.HighGlucosePeriods, 1)
	assert.Equal(suite.T(), 50.0, got.HighGlucosePeriods[0].Points)

	_, err = suite.ms.ReadDay(ctx, "2022-05-13")
	assert.ErrorIs(suite.T(), err, store.ErrNotFound)
}

func (suite *MongoTestSuite) TestReadDaysIntegration() {
	ctx := context.Background()
	for i, date := range []string{"2022-05-10", "2022-05-12", "2022-05-11"} {
		start := time.Date(2022, time.May, 10+i, 8, 0, 0, 0, time.UTC)
		assert.NoError(suite.T(), suite.ms.WriteDay(ctx, testDay(date, start)))
	}

	days, err := suite.ms.ReadDays(ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), days, 3)
	assert.Equal(suite.T(), "2022-05-12", days[0].Date)
	assert.Equal(suite.T(), "2022-05-10", days[2].Date)
}

func (suite *MongoTestSuite) TestReadMeasurementsIntegration() {
	ctx := context.Background()
	start := time.Date(2022, time.May, 12, 8, 0, 0, 0, time.UTC)
	assert.NoError(suite.T(), suite.ms.WriteDay(ctx, testDay("2022-05-12", start)))

	ms, err := suite.ms.ReadMeasurements(ctx, start.Add(time.Minute), start.Add(time.Hour))
	require.NoError(suite.T(), err)
	require.Len(suite.T(), ms, 2)
	assert.True(suite.T(), start.Add(5*time.Minute).Equal(ms[0].Time))
}

func (suite *MongoTestSuite) TestFilesIntegration() {
	ctx := context.Background()
	fid, err := suite.ms.WriteFile(ctx, "report.html", strings.NewReader("<html></html>"))
	require.NoError(suite.T(), err)

	r, err := suite.ms.ReadFile(ctx, fid)
	require.NoError(suite.T(), err)
	b, err := io.ReadAll(r)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "<html></html>", string(b))

	assert.NoError(suite.T(), suite.ms.DeleteFile(ctx, fid))
	_, err = suite.ms.ReadFile(ctx, fid)
	assert.Error(suite.T(), err)
}

func (suite *MongoTestSuite) TestNotesIntegration() {
	ns := NewNoteStore(suite.ms)

	_, ok := ns.Get("2022-05-12T08:00:00")
	assert.False(suite.T(), ok)

	assert.NoError(suite.T(), ns.Set("2022-05-12T08:00:00", "lunch"))
	assert.NoError(suite.T(), ns.Set("2022-05-12T08:00:00", "dinner"))
	note, ok := ns.Get("2022-05-12T08:00:00")
	assert.True(suite.T(), ok)
	assert.Equal(suite.T(), "dinner", note)
	assert.Equal(suite.T(), map[string]string{"2022-05-12T08:00:00": "dinner"}, ns.All())

	assert.NoError(suite.T(), ns.Delete("2022-05-12T08:00:00"))
	assert.Empty(suite.T(), ns.All())
}
