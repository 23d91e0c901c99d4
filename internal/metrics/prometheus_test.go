package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, "2xx", classifyStatus(204))
	assert.Equal(t, "4xx", classifyStatus(409))
	assert.Equal(t, "unknown", classifyStatus(0))
}

func TestAICallOutcome(t *testing.T) {
	before := testutil.ToFloat64(aiCallsTotal.WithLabelValues("embed", "error"))
	AICall("embed", errors.New("quota"))
	AICall("embed", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(aiCallsTotal.WithLabelValues("embed", "error")))
}
