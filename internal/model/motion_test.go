package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTally_Percent(t *testing.T) {
	testCases := []struct {
		name  string
		tally Tally
		want  [3]int
	}{
		{name: "no votes renders zero", tally: Tally{}, want: [3]int{0, 0, 0}},
		{name: "three to one", tally: Tally{Yes: 3, No: 1}, want: [3]int{75, 25, 0}},
		{name: "thirds round", tally: Tally{Yes: 1, No: 1, Abstain: 1}, want: [3]int{33, 33, 33}},
		{name: "half rounds up", tally: Tally{Yes: 1, No: 7}, want: [3]int{13, 88, 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := [3]int{
				tc.tally.Percent(ChoiceYes),
				tc.tally.Percent(ChoiceNo),
				tc.tally.Percent(ChoiceAbstain),
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTally_Valid(t *testing.T) {
	assert.True(t, Tally{}.Valid())
	assert.True(t, Tally{Yes: 3, No: 1}.Valid())
	assert.False(t, Tally{Yes: 5, No: -3}.Valid())
	assert.False(t, Tally{Abstain: -1}.Valid())
}

func TestParseChoice(t *testing.T) {
	c, err := ParseChoice(" YES ")
	require.NoError(t, err)
	assert.Equal(t, ChoiceYes, c)

	_, err = ParseChoice("maybe")
	assert.Error(t, err)
}

func TestMotion_Deadline(t *testing.T) {
	openedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seconds := 30

	m := &Motion{ID: 1, Status: StatusOpen, OpenedAt: &openedAt, AutoCloseSeconds: &seconds}
	deadline, ok := m.Deadline()
	require.True(t, ok)
	assert.Equal(t, openedAt.Add(30*time.Second), deadline)

	m.Status = StatusClosed
	_, ok = m.Deadline()
	assert.False(t, ok, "deadline only exists while open")

	m.Status = StatusOpen
	m.AutoCloseSeconds = nil
	_, ok = m.Deadline()
	assert.False(t, ok)
}

func TestMotion_CloneIsDeep(t *testing.T) {
	choice := ChoiceNo
	m := &Motion{ID: 4, Counts: &Tally{Yes: 1}, Selection: &choice}
	c := m.Clone()
	c.Counts.Yes = 9
	*c.Selection = ChoiceYes

	assert.Equal(t, 1, m.Counts.Yes)
	assert.Equal(t, ChoiceNo, *m.Selection)
}
