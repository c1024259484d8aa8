package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/evalboard/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRow(t *testing.T) {
	Convey("Given a row with two dimension scores", t, func() {
		row := types.Row{
			SubjectID:   3,
			SubjectName: "alpha",
			DimScores: []types.DimensionScore{
				{DimensionID: 1, AvgScore: 4, RatingCount: 2},
				{DimensionID: 2, Display: "-"},
			},
		}

		Convey("When looking up a present dimension", func() {
			d, ok := row.DimScore(1)
			So(ok, ShouldBeTrue)
			So(d.AvgScore, ShouldEqual, 4.0)
		})

		Convey("When looking up a missing dimension", func() {
			_, ok := row.DimScore(9)
			So(ok, ShouldBeFalse)
		})

		Convey("When serialized", func() {
			raw, err := json.Marshal(row)
			So(err, ShouldBeNil)

			Convey("Then the wire names are stable", func() {
				var m map[string]any
				So(json.Unmarshal(raw, &m), ShouldBeNil)
				for _, key := range []string{
					"subject_id", "subject_name", "avg_score", "response_rate",
					"avg_obj_score", "avg_subj_score", "obj_count", "subj_count",
					"rating_count", "total_score_rank", "dim_scores", "bias_analysis_data",
				} {
					So(m, ShouldContainKey, key)
				}
				So(m, ShouldNotContainKey, "description")
			})

			Convey("Then it decodes back to the same row", func() {
				var back types.Row
				So(json.Unmarshal(raw, &back), ShouldBeNil)
				So(back.SubjectName, ShouldEqual, "alpha")
				So(back.DimScores[1].Display, ShouldEqual, "-")
			})
		})
	})
}
