package poll

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) *Key {
	k := Key(s)
	return &k
}

func answer(t *testing.T, v any) Answer {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return ParseAnswer(raw)
}

func TestSessionCountdownLifecycle(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeMultipleChoice, Timed: 30})
	assert.Equal(t, StateArmed, s.State())

	s.Start()
	assert.Equal(t, StateRunning, s.State())

	s.Tick(10)
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 10, s.Left)

	s.Tick(0)
	assert.Equal(t, StateFinished, s.State())
}

func TestSessionOpenEnded(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeOpen})
	s.Start()
	assert.Equal(t, StateOpenEnded, s.State())

	// An open-ended poll never finishes on its own.
	s.Tick(0)
	assert.Equal(t, StateOpenEnded, s.State())

	s.Finish()
	assert.Equal(t, StateFinished, s.State())
}

func TestRecordFirstAnswerFinal(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeMultipleChoice})
	s.Start()

	require.True(t, s.Record("p1", answer(t, "A")))
	assert.False(t, s.Record("p1", answer(t, "B")))

	got, ok := s.Answer("p1")
	require.True(t, ok)
	assert.Equal(t, "A", got.Text())
}

func TestRecordAllowChange(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeMultipleChoice, AllowChange: true})
	s.Start()

	require.True(t, s.Record("p1", answer(t, "A")))
	require.True(t, s.Record("p1", answer(t, "B")))

	got, _ := s.Answer("p1")
	assert.Equal(t, "B", got.Text())
}

func TestRecordAfterFinish(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeMultipleChoice})
	s.Start()
	s.Finish()
	assert.False(t, s.Record("p1", answer(t, "A")))
}

func TestDeltasExactMatch(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeMultipleChoice, Scored: true, Correct: key("B")})
	s.Start()
	s.Record("p1", answer(t, "B"))
	s.Record("p2", answer(t, "A"))
	s.Record("p3", answer(t, "B"))
	s.Finish()

	deltas := s.Deltas()
	assert.Equal(t, map[string]int{"p1": BaseScore, "p3": BaseScore}, deltas)
}

func TestDeltasCaseInsensitive(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeTrueFalse, Scored: true, Correct: key("true")})
	s.Start()
	s.Record("p1", answer(t, "True"))
	s.Finish()

	assert.Equal(t, map[string]int{"p1": BaseScore}, s.Deltas())
}

func TestDeltasNoCorrectKeyAwardsEveryone(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeOpen, Scored: true})
	s.Start()
	s.Record("p1", answer(t, "anything"))
	s.Record("p2", answer(t, "else"))
	s.Finish()

	assert.Equal(t, map[string]int{"p1": BaseScore, "p2": BaseScore}, s.Deltas())
}

func TestDeltasEstimateClosestWins(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeEstimate, Scored: true, Correct: key("50")})
	s.Start()
	s.Record("p1", answer(t, 40))
	s.Record("p2", answer(t, 45))
	s.Record("p3", answer(t, 45))
	s.Finish()

	// p2 and p3 tie at distance 5; p1 is 10 away and gets nothing.
	assert.Equal(t, map[string]int{"p2": BaseScore, "p3": BaseScore}, s.Deltas())
}

func TestDeltasEstimateExactAnswer(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeEstimate, Scored: true, Correct: key("50")})
	s.Start()
	s.Record("p1", answer(t, 50))
	s.Record("p2", answer(t, 51))
	s.Finish()

	assert.Equal(t, map[string]int{"p1": BaseScore}, s.Deltas())
}

func TestDeltasEstimateIgnoresNonNumeric(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeEstimate, Scored: true, Correct: key("50")})
	s.Start()
	s.Record("p1", answer(t, "not a number"))
	s.Record("p2", answer(t, 60))
	s.Finish()

	assert.Equal(t, map[string]int{"p2": BaseScore}, s.Deltas())
}

func TestDeltasUnscored(t *testing.T) {
	s := NewSession(Poll{ID: "p1", Type: TypeMultipleChoice, Correct: key("A")})
	s.Start()
	s.Record("p1", answer(t, "A"))
	s.Finish()

	assert.Nil(t, s.Deltas())
}

func TestCorrectKeyAcceptsNumericJSON(t *testing.T) {
	var p Poll
	err := json.Unmarshal([]byte(`{"id":"p1","type":"rank","q":"guess","correct":50,"score":true}`), &p)
	require.NoError(t, err)
	require.NotNil(t, p.Correct)
	assert.Equal(t, Key("50"), *p.Correct)
}

func TestAnswerText(t *testing.T) {
	assert.Equal(t, "B", answer(t, "B").Text())
	assert.Equal(t, "42", answer(t, 42).Text())
	assert.Equal(t, "go,fast", answer(t, []string{"go", "fast"}).Text())
}

func TestAnswerNumber(t *testing.T) {
	n, ok := answer(t, 12.5).Number()
	require.True(t, ok)
	assert.Equal(t, 12.5, n)

	n, ok = answer(t, "7").Number()
	require.True(t, ok)
	assert.Equal(t, 7.0, n)

	_, ok = answer(t, "seven").Number()
	assert.False(t, ok)
}
