package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/NoteDrop/internal/model"
)

func sample() []*model.Note {
	return []*model.Note{
		{ID: "a", Year: 1, Semester: 1, Subject: "Calculus"},
		{ID: "b", Year: 2, Semester: 3, Subject: "Data Structures"},
		{ID: "c", Year: 2, Semester: 3, Subject: "Discrete Maths"},
		{ID: "d", Year: 3, Semester: 5, Subject: "Operating Systems"},
	}
}

func ids(notes []*model.Note) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.ID)
	}
	return out
}

func TestApplySemester(t *testing.T) {
	got := Apply(sample(), Filter{Semester: 3})
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestApplySubjectCaseInsensitive(t *testing.T) {
	assert.Equal(t, []string{"d"}, ids(Apply(sample(), Filter{Subject: "  SYSTEMS "})))
	assert.Equal(t, []string{"c"}, ids(Apply(sample(), Filter{Year: 2, Subject: "maths"})))
	assert.Len(t, Apply(sample(), Filter{}), 4)
	assert.Empty(t, Apply(sample(), Filter{Year: 4}))
}

func TestSemesterOptions(t *testing.T) {
	assert.Equal(t, []int{5, 6}, SemesterOptions(3))
	assert.Nil(t, SemesterOptions(9))
}

func TestCheckFile(t *testing.T) {
	allowed := []string{".pdf", ".docx"}
	require.NoError(t, CheckFile("notes.PDF", 10, allowed, 100))
	assert.True(t, errors.Is(CheckFile("notes.exe", 10, allowed, 100), ErrUnsupportedType))
	assert.True(t, errors.Is(CheckFile("notes.pdf", 101, allowed, 100), ErrTooLarge))
}

func TestCheckClassification(t *testing.T) {
	require.NoError(t, CheckClassification(4, 8, "Compilers"))
	assert.Error(t, CheckClassification(0, 1, "x"))
	assert.Error(t, CheckClassification(2, 2, "x"))
	assert.Error(t, CheckClassification(2, 4, " "))
}
