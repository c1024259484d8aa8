package leaderboard

import (
	"sort"
	"strconv"
	"strings"

	"github.com/okian/evalboard/internal/domain/types"
)

// Sort keys and orders accepted by Compute and snapshot reads.
const (
	SortAvgScore     = "avg_score"
	SortResponseRate = "response_rate"
	SortDimPrefix    = "dim_"
	OrderAsc         = "asc"
	OrderDesc        = "desc"
)

// SortSpec is a validated sort request.
type SortSpec struct {
	By    string
	Order string
	dimID int64
}

// ResolveSort validates sortBy against the known level-1 dimensions.
// An unknown key falls back to avg_score descending; an unknown order means desc.
func ResolveSort(sortBy, order string, dims []types.DimensionRef) SortSpec {
	order = strings.ToLower(strings.TrimSpace(order))
	if order != OrderAsc {
		order = OrderDesc
	}
	switch sortBy {
	case SortAvgScore, SortResponseRate:
		return SortSpec{By: sortBy, Order: order}
	}
	if rest, ok := strings.CutPrefix(sortBy, SortDimPrefix); ok {
		if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
			for _, d := range dims {
				if d.ID == id {
					return SortSpec{By: sortBy, Order: order, dimID: id}
				}
			}
		}
	}
	return SortSpec{By: SortAvgScore, Order: OrderDesc}
}

func (s SortSpec) key(r *types.Row) float64 {
	switch s.By {
	case SortAvgScore:
		return r.AvgScore
	case SortResponseRate:
		return r.ResponseRate
	default:
		d, _ := r.DimScore(s.dimID)
		return d.AvgScore
	}
}

// Apply orders rows in place. Ties keep absolute rank order.
func (s SortSpec) Apply(rows []types.Row) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalScoreRank < rows[j].TotalScoreRank })
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := s.key(&rows[i]), s.key(&rows[j])
		if s.Order == OrderAsc {
			return a < b
		}
		return a > b
	})
}

// assignRanks numbers rows by weighted average descending. rows must be in subject id order.
func assignRanks(rows []types.Row) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rows[idx[a]].AvgScore > rows[idx[b]].AvgScore })
	for rank, i := range idx {
		rows[i].TotalScoreRank = rank + 1
	}
}
