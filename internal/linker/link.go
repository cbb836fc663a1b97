// Package linker pairs up the subjects of a report's two tables, the portal
// spells them the same way most of the time but not always.
package linker

import (
	"regexp"
	"sort"
	"strings"

	"massar-backend/internal/scrapers/massar"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the minimum Jaro-Winkler similarity for two different
// subject names to be linked.
const DefaultThreshold = 0.8

// ImplicitLink pairs the element at index Left of the left list with the
// element at index Right of the right list.
type ImplicitLink struct {
	Left        int
	Right       int
	Correlation float64
}

// CreateImplicitLinks links equal strings first, then greedily links the
// remaining strings of the shorter list to their most similar counterpart.
// Links with a similarity <= threshold are not created. The result is ordered
// by Left.
func CreateImplicitLinks(leftList, rightList []string, threshold float64) []ImplicitLink {
	matchedLeft := make([]bool, len(leftList))
	matchedRight := make([]bool, len(rightList))
	var result []ImplicitLink

	for l, left := range leftList {
		for r, right := range rightList {
			if matchedRight[r] || left != right {
				continue
			}
			result = append(result, ImplicitLink{Left: l, Right: r, Correlation: 1})
			matchedLeft[l] = true
			matchedRight[r] = true
			break
		}
	}

	// the shorter list picks its counterparts
	swapped := len(rightList) < len(leftList)
	outer, inner := leftList, rightList
	outerMatched, innerMatched := matchedLeft, matchedRight
	if swapped {
		outer, inner = rightList, leftList
		outerMatched, innerMatched = matchedRight, matchedLeft
	}

	for o, outerValue := range outer {
		if outerMatched[o] {
			continue
		}

		var mostSimilarity float64
		mostSimilar := -1
		for i, innerValue := range inner {
			if innerMatched[i] {
				continue
			}
			similarity := matchr.JaroWinkler(outerValue, innerValue, false)
			if similarity > mostSimilarity {
				mostSimilarity = similarity
				mostSimilar = i
			}
		}

		if mostSimilar < 0 || mostSimilarity <= threshold {
			continue
		}
		link := ImplicitLink{Left: o, Right: mostSimilar, Correlation: mostSimilarity}
		if swapped {
			link.Left, link.Right = mostSimilar, o
		}
		result = append(result, link)
		outerMatched[o] = true
		innerMatched[mostSimilar] = true
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Left < result[j].Left
	})
	return result
}

var separatorRegex = regexp.MustCompile(`[\s\-_.']+`)

// NormalizeSubject lowercases a subject name and drops whitespace and
// punctuation, the two tables do not always agree on either.
func NormalizeSubject(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return separatorRegex.ReplaceAllString(name, "")
}

// SubjectLink is one subject of a report, either side can be nil if the
// subject only appears in one table.
type SubjectLink struct {
	Subject              string                          `json:"subject" yaml:"subject"`
	ContinuousAssessment *massar.ContinuousAssessmentRow `json:"continuousAssessment,omitempty" yaml:"continuousAssessment,omitempty"`
	Exam                 *massar.ExamRow                 `json:"exam,omitempty" yaml:"exam,omitempty"`
	Correlation          float64                         `json:"correlation" yaml:"correlation"`
}

// LinkSubjects pairs every continuous assessment row with the exam row of
// the same subject. Linked subjects come first in exam table order, followed
// by exam rows and then continuous assessment rows that could not be linked.
func LinkSubjects(report massar.GradeReport) []SubjectLink {
	ccNames := make([]string, len(report.ContinuousAssessmentRows))
	for i, row := range report.ContinuousAssessmentRows {
		ccNames[i] = NormalizeSubject(row.Subject)
	}
	examNames := make([]string, len(report.ExamRows))
	for i, row := range report.ExamRows {
		examNames[i] = NormalizeSubject(row.Subject)
	}

	links := CreateImplicitLinks(examNames, ccNames, DefaultThreshold)

	linkedExam := make([]bool, len(examNames))
	linkedCC := make([]bool, len(ccNames))
	result := make([]SubjectLink, 0, len(examNames)+len(ccNames)-len(links))

	for _, link := range links {
		exam := report.ExamRows[link.Left]
		cc := report.ContinuousAssessmentRows[link.Right]
		result = append(result, SubjectLink{
			Subject:              exam.Subject,
			ContinuousAssessment: &cc,
			Exam:                 &exam,
			Correlation:          link.Correlation,
		})
		linkedExam[link.Left] = true
		linkedCC[link.Right] = true
	}
	for i, exam := range report.ExamRows {
		if linkedExam[i] {
			continue
		}
		result = append(result, SubjectLink{Subject: exam.Subject, Exam: &exam})
	}
	for i, cc := range report.ContinuousAssessmentRows {
		if linkedCC[i] {
			continue
		}
		result = append(result, SubjectLink{Subject: cc.Subject, ContinuousAssessment: &cc})
	}

	return result
}
