package linker

import (
	"testing"

	"massar-backend/internal/scrapers/massar"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestCreateImplicitLinks(t *testing.T) {
	testCases := []struct {
		left  []string
		right []string
		// if ImplicitLink.Correlation == 0
		// the test will not assert the correlation to be equal
		expected []ImplicitLink
	}{
		{
			left:  []string{"a", "b", "c"},
			right: []string{"a", "b"},
			expected: []ImplicitLink{
				{Left: 0, Right: 0, Correlation: 1},
				{Left: 1, Right: 1, Correlation: 1},
			},
		},
		{
			left:  []string{"foo", "bar", "baz"},
			right: []string{"foob", "bar", "barr"},
			expected: []ImplicitLink{
				{Left: 0, Right: 0},
				{Left: 1, Right: 1, Correlation: 1},
				{Left: 2, Right: 2},
			},
		},
		{
			left:     []string{"foo", "bar", "baz"},
			right:    []string{},
			expected: nil,
		},
		{
			left:     []string{},
			right:    []string{},
			expected: nil,
		},
		{
			left:  []string{"foo", "bar", "baz"},
			right: []string{"baa"},
			expected: []ImplicitLink{
				{Left: 1, Right: 0},
			},
		},
		{
			left:  []string{"a", "a"},
			right: []string{"a", "a"},
			expected: []ImplicitLink{
				{Left: 0, Right: 0, Correlation: 1},
				{Left: 1, Right: 1, Correlation: 1},
			},
		},
	}

	for _, test := range testCases {
		links := CreateImplicitLinks(test.left, test.right, 0)
		for i, link := range links {
			if i < len(test.expected) && test.expected[i].Correlation == 0 {
				links[i].Correlation = 0
			}
			require.Greater(t, link.Correlation, 0.0)
		}
		diff := cmp.Diff(test.expected, links, cmpopts.EquateEmpty())
		if diff != "" {
			t.Fatal(test.left, test.right, diff)
		}
	}
}

func TestCreateImplicitLinksThreshold(t *testing.T) {
	links := CreateImplicitLinks(
		[]string{"Physique-Chimie", "Histoire-Géographie"},
		[]string{"Physique Chimie", "Mathématiques"},
		DefaultThreshold,
	)
	require.Len(t, links, 1)
	require.Equal(t, 0, links[0].Left)
	require.Equal(t, 0, links[0].Right)
	require.Greater(t, links[0].Correlation, DefaultThreshold)
}

func TestLinkSubjects(t *testing.T) {
	report := massar.GradeReport{
		ContinuousAssessmentRows: []massar.ContinuousAssessmentRow{
			{Subject: "Langue Arabe", Scores: []string{"12"}},
			{Subject: "Mathématiques", Scores: []string{"15", "16,5"}},
			{Subject: "Physique Chimie", Scores: []string{"11"}},
			{Subject: "Education physique", Scores: []string{"18"}},
		},
		ExamRows: []massar.ExamRow{
			{Subject: "Mathématiques", ExamScore: "16"},
			{Subject: "Physique-Chimie", ExamScore: "13,5"},
			{Subject: "Langue Arabe", ExamScore: "12"},
			{Subject: "Philosophie", ExamScore: "9"},
		},
	}

	links := LinkSubjects(report)
	subjects := make([]string, len(links))
	for i, link := range links {
		subjects[i] = link.Subject
	}
	require.Equal(t, []string{
		"Mathématiques",
		"Physique-Chimie",
		"Langue Arabe",
		"Philosophie",
		"Education physique",
	}, subjects)

	require.Equal(t, "15", links[0].ContinuousAssessment.Scores[0])
	require.Equal(t, "16", links[0].Exam.ExamScore)
	require.Equal(t, 1.0, links[0].Correlation)

	require.Equal(t, "Physique Chimie", links[1].ContinuousAssessment.Subject)
	require.Equal(t, 1.0, links[1].Correlation)

	require.Nil(t, links[3].ContinuousAssessment)
	require.Equal(t, "9", links[3].Exam.ExamScore)
	require.Nil(t, links[4].Exam)
	require.Equal(t, "18", links[4].ContinuousAssessment.Scores[0])
}

func TestLinkSubjectsFuzzy(t *testing.T) {
	report := massar.GradeReport{
		ContinuousAssessmentRows: []massar.ContinuousAssessmentRow{
			{Subject: "Sciences de la vie et de la terre"},
		},
		ExamRows: []massar.ExamRow{
			{Subject: "Sciences de la Vie et Terre"},
		},
	}
	links := LinkSubjects(report)
	require.Len(t, links, 1)
	require.NotNil(t, links[0].Exam)
	require.NotNil(t, links[0].ContinuousAssessment)
	require.Less(t, links[0].Correlation, 1.0)
}

func TestNormalizeSubject(t *testing.T) {
	require.Equal(t, "physiquechimie", NormalizeSubject(" Physique - Chimie\n"))
	require.Equal(t, "languearabe", NormalizeSubject("Langue_Arabe"))
	require.Equal(t, "mathématiques", NormalizeSubject("MATHÉMATIQUES"))
}

func TestLinkSubjectsEmpty(t *testing.T) {
	require.Empty(t, LinkSubjects(massar.GradeReport{}))
}
