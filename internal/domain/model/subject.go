package model

// Subject is a model identity plus its connection parameters.
// A subject named in the rater configuration acts as a rater and is excluded from the subject pool.
type Subject struct {
	ID          int64
	Name        string
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string `json:"-"`
	Description string
}

// RaterSet maps each question type to the ordered rater names grading it.
type RaterSet map[QuestionType][]string

// Names returns every rater name across all question types without duplicates.
func (r RaterSet) Names() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range QuestionTypes {
		for _, name := range r[t] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Contains reports whether name rates any question type.
func (r RaterSet) Contains(name string) bool {
	for _, names := range r {
		for _, n := range names {
			if n == name {
				return true
			}
		}
	}
	return false
}

// ExcludeRaters returns the subjects whose names are not in raters.
func ExcludeRaters(subjects []Subject, raters []string) []Subject {
	excluded := make(map[string]struct{}, len(raters))
	for _, name := range raters {
		excluded[name] = struct{}{}
	}
	out := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		if _, ok := excluded[s.Name]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}
