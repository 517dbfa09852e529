package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/livewatch/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryScorer_Score(t *testing.T) {
	Convey("Given a scorer with skill weights", t, func() {
		scorer := scoring.NewInMemoryScorer(
			scoring.WithSkillWeightsFromConfig(map[string]float64{
				"coding":        2.0,
				"communication": 1.0,
			}, 1.0),
		)
		ctx := context.Background()

		Convey("When scoring two weighted skills", func() {
			result, err := scorer.Score(ctx, scoring.Input{
				SessionID: "s-1",
				Skills:    map[string]float64{"coding": 90, "communication": 60},
			})

			Convey("Then the score is the weighted average", func() {
				So(err, ShouldBeNil)
				So(result.SessionID, ShouldEqual, "s-1")
				// (90*2 + 60*1) / 3 = 80
				So(result.Score, ShouldEqual, 80.0)
				So(result.Grade, ShouldEqual, "B")
			})

			Convey("And the breakdown sums to the score", func() {
				So(result.Breakdown["coding"], ShouldEqual, 60.0)
				So(result.Breakdown["communication"], ShouldEqual, 20.0)
			})
		})

		Convey("When a skill has no configured weight", func() {
			result, err := scorer.Score(ctx, scoring.Input{
				SessionID: "s-2",
				Skills:    map[string]float64{"design": 70, "communication": 70},
			})

			Convey("Then the default weight applies", func() {
				So(err, ShouldBeNil)
				So(result.Score, ShouldEqual, 70.0)
				So(result.Grade, ShouldEqual, "C")
			})
		})

		Convey("When skill scores are out of range", func() {
			result, err := scorer.Score(ctx, scoring.Input{
				SessionID: "s-3",
				Skills:    map[string]float64{"coding": 150, "communication": -20},
			})

			Convey("Then each is clamped to 0..100", func() {
				So(err, ShouldBeNil)
				So(result.Score, ShouldAlmostEqual, 66.67, 0.01)
			})
		})

		Convey("When there are no skills", func() {
			_, err := scorer.Score(ctx, scoring.Input{SessionID: "s-4"})

			Convey("Then it fails", func() {
				So(errors.Is(err, scoring.ErrNoSkills), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryScorer_Latency(t *testing.T) {
	Convey("Given a scorer with simulated latency", t, func() {
		minLatency := 20 * time.Millisecond
		maxLatency := 40 * time.Millisecond
		scorer := scoring.NewInMemoryScorer(scoring.WithLatencyRange(minLatency, maxLatency))
		in := scoring.Input{SessionID: "s-1", Skills: map[string]float64{"coding": 75}}

		Convey("When scoring", func() {
			start := time.Now()
			result, err := scorer.Score(context.Background(), in)
			elapsed := time.Since(start)

			Convey("Then the latency is applied", func() {
				So(err, ShouldBeNil)
				So(result.Score, ShouldEqual, 75.0)
				So(elapsed, ShouldBeGreaterThanOrEqualTo, minLatency)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := scorer.Score(ctx, in)

			Convey("Then the cancellation is returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When an invalid range is given", func() {
			s := scoring.NewInMemoryScorer(scoring.WithLatencyRange(50*time.Millisecond, 10*time.Millisecond))
			start := time.Now()
			_, err := s.Score(context.Background(), in)

			Convey("Then no latency is simulated", func() {
				So(err, ShouldBeNil)
				So(time.Since(start), ShouldBeLessThan, 10*time.Millisecond)
			})
		})
	})
}

func TestGrade(t *testing.T) {
	Convey("Given scores across the range", t, func() {
		cases := map[float64]string{
			100: "A", 90: "A", 89.99: "B", 80: "B", 75: "C", 60: "D", 59.9: "F", 0: "F",
		}

		Convey("Then each maps to its letter", func() {
			for score, grade := range cases {
				So(scoring.Grade(score), ShouldEqual, grade)
			}
		})
	})
}
