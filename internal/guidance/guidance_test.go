package guidance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marveldaemon/mhd/internal/wire"
)

func TestClassifyCorrection(t *testing.T) {
	kind, conf, _ := Classify("No, that's not right, use the other helper")
	assert.Equal(t, wire.GuidanceCorrection, kind)
	assert.Greater(t, conf, 0.0)
}

func TestClassifyDirection(t *testing.T) {
	kind, _, _ := Classify("From now on, always run lint before committing")
	assert.Equal(t, wire.GuidanceDirection, kind)
}

func TestClassifyApproval(t *testing.T) {
	kind, _, _ := Classify("Looks good, go ahead")
	assert.Equal(t, wire.GuidanceApproval, kind)
}

func TestClassifyUnknownDefaultsToZeroConfidence(t *testing.T) {
	kind, conf, _ := Classify("the quick brown fox jumps")
	assert.Equal(t, wire.GuidanceUnknown, kind)
	assert.Equal(t, 0.0, conf)
}

func TestCategoryDetectedFromKeyword(t *testing.T) {
	_, _, category := Classify("No, that's wrong, check the auth middleware")
	assert.Equal(t, "security", category)
}
