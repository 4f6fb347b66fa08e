package observability

import (
	"strings"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry_ExposesStorefrontInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := NewWithRegistry(nil, nil, prometrics.New("", "", reg))

	tel.Metrics().Counter(observability.MCartMutations).Add(1,
		observability.L("op", "add"), observability.L("outcome", "success"))
	tel.Metrics().Counter(observability.MCatalogRefreshes).Add(1,
		observability.L("trigger", "manual"), observability.L("outcome", "error"))

	expected := `
# HELP cart_mutations_total Cart mutations by operation and outcome.
# TYPE cart_mutations_total counter
cart_mutations_total{op="add",outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cart_mutations_total"))

	n, err := testutil.GatherAndCount(reg, "catalog_refresh_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_FallsBackToNop(t *testing.T) {
	tel := New(nil, nil, nil, nil)

	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.Logger())
	assert.NotPanics(t, func() {
		tel.Metrics().Counter("unknown").Add(1)
		tel.Metrics().Histogram("unknown").Observe(1)
	})
}
