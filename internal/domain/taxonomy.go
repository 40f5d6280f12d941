package domain

// Subjects covered by the mistake notebook.
var Subjects = []string{
	"math", "physics", "chemistry", "biology",
	"history", "geography", "politics", "english", "chinese",
}

// Grades from the first year of junior high to the last year of high school.
var Grades = []string{
	"junior_1", "junior_2", "junior_3",
	"high_1", "high_2", "high_3",
}

// ErrorReasons a student can attach to a mistake.
var ErrorReasons = []string{
	"careless",
	"concept_unclear",
	"formula_wrong",
	"no_idea",
	"other",
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// ValidSubject reports whether s is a known subject.
func ValidSubject(s string) bool { return contains(Subjects, s) }

// ValidGrade reports whether g is a known grade.
func ValidGrade(g string) bool { return contains(Grades, g) }

// ValidErrorReason reports whether r is a known error reason.
func ValidErrorReason(r string) bool { return contains(ErrorReasons, r) }
