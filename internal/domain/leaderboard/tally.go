package leaderboard

import "github.com/okian/evalboard/internal/domain/model"

// Tally accumulates ratings for one bucket, split by question type.
type Tally struct {
	SubjSum    float64
	SubjCount  int
	ObjSum     float64
	ObjCount   int
	Responsive int
	Total      int
}

// Add folds one rating into the tally.
func (t *Tally) Add(qt model.QuestionType, score float64, responsive bool) {
	switch qt {
	case model.Objective:
		t.ObjSum += score
		t.ObjCount++
	case model.Subjective:
		t.SubjSum += score
		t.SubjCount++
	default:
		return
	}
	t.Total++
	if responsive {
		t.Responsive++
	}
}

// AvgSubj is the plain subjective average, 0 without data.
func (t Tally) AvgSubj() float64 {
	if t.SubjCount == 0 {
		return 0
	}
	return t.SubjSum / float64(t.SubjCount)
}

// AvgObj is the plain objective average, 0 without data.
func (t Tally) AvgObj() float64 {
	if t.ObjCount == 0 {
		return 0
	}
	return t.ObjSum / float64(t.ObjCount)
}

// Mean is the plain average over both types, 0 without data.
func (t Tally) Mean() float64 {
	if t.Total == 0 {
		return 0
	}
	return (t.SubjSum + t.ObjSum) / float64(t.Total)
}

// Weighted combines the per-type averages with the configured weights.
func (t Tally) Weighted(wSubj, wObj float64) float64 {
	return t.AvgSubj()*wSubj + t.AvgObj()*wObj
}

// ResponseRate is the responsive share as a percentage, 0 without data.
func (t Tally) ResponseRate() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Responsive) / float64(t.Total) * 100
}
