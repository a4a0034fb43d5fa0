package alarm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plantops/telemetry-pipeline/internal/alarm"
)

func TestDeduplicator_SuppressesWithinWindow(t *testing.T) {
	d := alarm.NewDeduplicator(100 * time.Millisecond)

	require.True(t, d.Admit("esp32_02", alarm.CodeOilCriticalLow))
	require.False(t, d.Admit("esp32_02", alarm.CodeOilCriticalLow))
}

func TestDeduplicator_AdmitsAfterWindow(t *testing.T) {
	d := alarm.NewDeduplicator(50 * time.Millisecond)

	require.True(t, d.Admit("esp32_02", alarm.CodeOilCriticalLow))
	require.False(t, d.Admit("esp32_02", alarm.CodeOilCriticalLow))

	time.Sleep(60 * time.Millisecond)
	require.True(t, d.Admit("esp32_02", alarm.CodeOilCriticalLow))
}

func TestDeduplicator_RejectionDoesNotExtendWindow(t *testing.T) {
	d := alarm.NewDeduplicator(80 * time.Millisecond)

	require.True(t, d.Admit("esp32_02", alarm.CodeTempHigh))

	// A burst of rejected duplicates must not push the window forward.
	time.Sleep(50 * time.Millisecond)
	require.False(t, d.Admit("esp32_02", alarm.CodeTempHigh))
	time.Sleep(40 * time.Millisecond)
	require.True(t, d.Admit("esp32_02", alarm.CodeTempHigh))
}

func TestDeduplicator_KeysAreIndependent(t *testing.T) {
	d := alarm.NewDeduplicator(time.Second)

	require.True(t, d.Admit("esp32_02", alarm.CodeOilLow))
	require.True(t, d.Admit("esp32_02", alarm.CodeTempHigh))
	require.True(t, d.Admit("esp32_03", alarm.CodeOilLow))
	require.False(t, d.Admit("esp32_02", alarm.CodeOilLow))
}

func TestDeduplicator_DefaultWindow(t *testing.T) {
	d := alarm.NewDeduplicator(0)

	require.True(t, d.Admit("esp32_02", alarm.CodeOilEmpty))
	require.False(t, d.Admit("esp32_02", alarm.CodeOilEmpty))
}
