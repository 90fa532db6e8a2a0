package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMetrics_RecordOperation(t *testing.T) {
	collector := NewCollector()
	m := NewRegistryMetrics(collector)

	m.RecordOperation("schemagroups", "put_group", StatusOK, 10*time.Millisecond)
	m.RecordOperation("schemagroups", "put_group", StatusOK, 20*time.Millisecond)
	m.RecordOperation("schemagroups", "put_group", StatusConflict, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("schemagroups", "put_group", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("schemagroups", "put_group", StatusConflict)))

	families, err := collector.GetRegistry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == MetricOperationDuration {
			found = true
			assert.Equal(t, uint64(3), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "operation duration metric should be found")
}

func TestRegistryMetrics_Resources(t *testing.T) {
	m := NewRegistryMetrics(NewCollector())

	m.RecordResourceCreated("endpoints")
	m.RecordResourceCreated("endpoints")
	m.RecordResourceDeleted("endpoints")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourcesTotal.WithLabelValues("endpoints")))
}

func TestRegistryMetrics_BlobBytes(t *testing.T) {
	m := NewRegistryMetrics(NewCollector())

	m.RecordBlobBytes("schemagroups", 512)
	m.RecordBlobBytes("schemagroups", 0)
	m.RecordBlobBytes("schemagroups", -1)

	assert.Equal(t, 512.0, testutil.ToFloat64(m.blobBytesTotal.WithLabelValues("schemagroups")))
}

func TestRegistryMetrics_RecordNotification(t *testing.T) {
	m := NewRegistryMetrics(NewCollector())

	m.RecordNotification("kafka", "resource.created", nil)
	m.RecordNotification("kafka", "resource.created", errors.New("timeout"))
	m.RecordNotification("kafka", "resource.created", errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsPublished.WithLabelValues("kafka", "resource.created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notificationsFailed.WithLabelValues("kafka", "resource.created")))
}

func TestRegistryMetrics_RecordAPIRequest(t *testing.T) {
	m := NewRegistryMetrics(NewCollector())

	m.RecordAPIRequest("GET", "/registry/{kind}", "200", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequestsTotal.WithLabelValues("GET", "/registry/{kind}", "200")))
}

func TestRegistryMetrics_Nil(t *testing.T) {
	var m *RegistryMetrics
	assert.NotPanics(t, func() {
		m.RecordOperation("k", "op", StatusOK, time.Second)
		m.RecordResourceCreated("k")
		m.RecordResourceDeleted("k")
		m.RecordBlobBytes("k", 1)
		m.RecordNotification("s", "t", nil)
		m.RecordAPIRequest("GET", "/", "200", time.Second)
	})
}
