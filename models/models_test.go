package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseMeasureType(t *testing.T) {
	mt, err := ParseMeasureType("cease_desist")
	require.NoError(t, err)
	assert.Equal(t, MeasureCeaseDesist, mt)

	mt, err = ParseMeasureType(" CEO_ALERT ")
	require.NoError(t, err)
	assert.Equal(t, MeasureCEOAlert, mt)

	_, err = ParseMeasureType("carrier_pigeon")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestErrorTaxonomy(t *testing.T) {
	wrapped := fmt.Errorf("deploy: %w", &NotFoundError{Kind: "threat", Key: "X"})
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrPersistence))

	cause := errors.New("disk gone")
	perr := &PersistenceError{Op: "upsert", Err: cause}
	assert.True(t, errors.Is(perr, ErrPersistence))
	assert.True(t, errors.Is(perr, cause))

	assert.True(t, errors.Is(&UpstreamTimeoutError{Upstream: "news"}, ErrUpstreamTimeout))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5))
	assert.Equal(t, 100, Clamp(140))
	assert.Equal(t, 42, ClampFloat(41.6))
	assert.Equal(t, 100, ClampFloat(100.4))
	assert.Equal(t, 0.5, Round(0.500000000001, 4))
}

func TestSignalMeta(t *testing.T) {
	s := Signal{Metadata: datatypes.JSON(`{"price":945.5,"z_score":-2.5,"headline":"x","simulated":true}`)}
	assert.Equal(t, 945.5, s.MetaFloat("price"))
	assert.Equal(t, -2.5, s.MetaFloat("z_score"))
	assert.Equal(t, "x", s.MetaString("headline"))
	assert.True(t, s.MetaBool("simulated"))
	assert.Equal(t, 0.0, s.MetaFloat("missing"))

	empty := Signal{}
	assert.Empty(t, empty.Meta())
}

func TestThreatResponsesAndImpact(t *testing.T) {
	var th ThreatPackage
	rs, err := th.ResponseList()
	require.NoError(t, err)
	assert.Nil(t, rs)

	require.NoError(t, th.SetResponses([]ResponseCandidate{
		{MeasureType: MeasureCEOAlert, Text: "call now", Generator: "template"},
	}))
	assert.Equal(t, "call now", th.ResponseText(MeasureCEOAlert))
	assert.Equal(t, "", th.ResponseText(MeasurePRTweet))

	imp, err := th.Impact()
	require.NoError(t, err)
	assert.Nil(t, imp)

	th.PostImpactAnalysis = datatypes.JSON("null")
	imp, err = th.Impact()
	require.NoError(t, err)
	assert.Nil(t, imp)

	require.NoError(t, th.SetImpact(ImpactSummary{Outcome: OutcomeSuccess, EffectivenessScore: 63}))
	imp, err = th.Impact()
	require.NoError(t, err)
	require.NotNil(t, imp)
	assert.Equal(t, OutcomeSuccess, imp.Outcome)
}

func TestThreatSeverityAndStatus(t *testing.T) {
	assert.Equal(t, "CRITICAL", ThreatPackage{CorrelationConfidence: 81}.Severity())
	assert.Equal(t, "HIGH", ThreatPackage{CorrelationConfidence: 80}.Severity())
	assert.Equal(t, "READY", ThreatPackage{}.Status())
	assert.Equal(t, "DEPLOYED", ThreatPackage{ResponseDeployed: true}.Status())
}
