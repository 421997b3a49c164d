package attack

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/secgame/api/pkg/game"
)

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	data, err := os.ReadFile("testdata/enterprise-attack.json")
	require.NoError(t, err)
	c, err := ParseBundle(Enterprise, data)
	require.NoError(t, err)
	return c
}

func keys(objs []*Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Key()
	}
	return out
}

func TestParseDomain(t *testing.T) {
	for in, want := range map[string]Domain{
		"":                  Enterprise,
		"enterprise":        Enterprise,
		"Mobile-Attack":     Mobile,
		"ics":               ICS,
		"enterprise-attack": Enterprise,
	} {
		got, err := ParseDomain(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDomain("pre-attack")
	assert.ErrorIs(t, err, ErrUnknownDomain)

	assert.Equal(t, "mitre-attack", Enterprise.KillChain())
	assert.Equal(t, "mitre-mobile-attack", Mobile.KillChain())
	assert.Equal(t, "mitre-ics-attack", ICS.KillChain())
}

func TestParseBundleRejectsGarbage(t *testing.T) {
	_, err := ParseBundle(Enterprise, []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidBundle)
	_, err = ParseBundle(Enterprise, []byte(`{"type":"identity","objects":[]}`))
	assert.ErrorIs(t, err, ErrInvalidBundle)
	_, err = ParseBundle(Enterprise, []byte(`{"type":"bundle","objects":[42]}`))
	assert.ErrorIs(t, err, ErrInvalidBundle)
}

func TestTactics(t *testing.T) {
	c := loadTestCatalog(t)

	got, err := c.Tactics([]string{"execution", "TA0003", "x-mitre-tactic--impact"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TA0002", "TA0003", "TA0040"}, keys(got))
	assert.Equal(t, "persistence", got[1].ShortName)

	_, err = c.Tactics([]string{"execution", "lateral-movement"})
	assert.ErrorIs(t, err, ErrUnknownTactic)
	_, err = c.Tactics([]string{"T1059"})
	assert.ErrorIs(t, err, ErrUnknownTactic, "a technique id is not a tactic")

	assert.Equal(t, []string{"TA0002", "TA0003", "TA0040"}, keys(c.AllTactics()))
}

func TestTechniquesByTactics(t *testing.T) {
	c := loadTestCatalog(t)

	// Excludes the sub-technique, the revoked technique and the mobile one.
	assert.Equal(t, []string{"T1053", "T1059"}, keys(c.TechniquesByTactics([]string{"execution"})))
	assert.Equal(t, []string{"T1053", "T1059", "T1543"}, keys(c.TechniquesByTactics([]string{"execution", "persistence"})))
	assert.Empty(t, c.TechniquesByTactics([]string{"exfiltration"}))

	mobile, err := ParseBundle(Mobile, mustRead(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"T1623"}, keys(mobile.TechniquesByTactics([]string{"execution"})))
}

func TestMitigations(t *testing.T) {
	c := loadTestCatalog(t)

	assert.Equal(t, []string{"M1026", "M1038", "M1042", "M1053"}, keys(c.Mitigations()))

	m, err := c.Mitigation("course-of-action--m1038")
	require.NoError(t, err)
	assert.Equal(t, "M1038", m.Key())
	assert.Equal(t, "Execution Prevention", c.Name("M1038"))
	assert.Equal(t, "M9999", c.Name("M9999"))

	_, err = c.Mitigation("M1099")
	assert.ErrorIs(t, err, ErrUnknownMitigation, "deprecated mitigations are dropped")
	_, err = c.Mitigation("T1059")
	assert.ErrorIs(t, err, ErrUnknownMitigation)

	tech, ok := c.Technique("attack-pattern--t1543")
	require.True(t, ok)
	assert.Equal(t, "T1543", tech.Key())
	_, ok = c.Technique("T1204")
	assert.False(t, ok)
}

func TestMitigatesEdges(t *testing.T) {
	c := loadTestCatalog(t)
	assert.Equal(t, []game.Mitigates{
		{Measure: "M1026", Technique: "T1053"},
		{Measure: "M1026", Technique: "T1543"},
		{Measure: "M1038", Technique: "T1053"},
		{Measure: "M1038", Technique: "T1059"},
		{Measure: "M1042", Technique: "T1059"},
		{Measure: "M1053", Technique: "T1485"},
	}, c.Mitigates())
}

func mustRead(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/enterprise-attack.json")
	require.NoError(t, err)
	return data
}
