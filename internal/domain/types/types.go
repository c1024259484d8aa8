// Package types contains the read models shared by the API and the snapshot store.
package types

// DimensionRef names a level-1 dimension column of the leaderboard.
type DimensionRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DimensionScore is one subject's result within one level-1 dimension.
type DimensionScore struct {
	DimensionID  int64   `json:"dimension_id"`
	AvgScore     float64 `json:"avg_score"`
	ResponseRate float64 `json:"response_rate"`
	RatingCount  int     `json:"rating_count"`
	// Display is "-" when the subject has no ratings in the dimension.
	Display string `json:"display"`
}

// BiasScore is the plain average for one leaf under the bias category.
type BiasScore struct {
	DimensionID int64   `json:"dimension_id"`
	Name        string  `json:"name"`
	AvgScore    float64 `json:"avg_score"`
	RatingCount int     `json:"rating_count"`
}

// Row is one subject's line on the leaderboard.
type Row struct {
	SubjectID      int64            `json:"subject_id"`
	SubjectName    string           `json:"subject_name"`
	Description    string           `json:"description,omitempty"`
	AvgScore       float64          `json:"avg_score"`
	ResponseRate   float64          `json:"response_rate"`
	AvgObjScore    float64          `json:"avg_obj_score"`
	AvgSubjScore   float64          `json:"avg_subj_score"`
	ObjCount       int              `json:"obj_count"`
	SubjCount      int              `json:"subj_count"`
	RatingCount    int              `json:"rating_count"`
	TotalScoreRank int              `json:"total_score_rank"`
	DimScores      []DimensionScore `json:"dim_scores"`
	BiasAnalysis   []BiasScore      `json:"bias_analysis_data"`
}

// DimScore returns the entry for dimension id, if present.
func (r *Row) DimScore(id int64) (DimensionScore, bool) {
	for _, d := range r.DimScores {
		if d.DimensionID == id {
			return d, true
		}
	}
	return DimensionScore{}, false
}

// Leaderboard is the result of one aggregation pass.
type Leaderboard struct {
	Rows       []Row          `json:"rows"`
	Dimensions []DimensionRef `json:"dimensions"`
}
