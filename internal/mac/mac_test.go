package mac

import (
	"testing"

	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociateRejectsOutOfRangeUserID(t *testing.T) {
	bs := New()
	_, err := bs.Associate(0)
	require.Error(t, err)
	_, err = bs.Associate(phygeo.MaxUser + 1)
	require.Error(t, err)
}

func TestAssociateRejectsDuplicate(t *testing.T) {
	bs := New()
	_, err := bs.Associate(3)
	require.NoError(t, err)
	_, err = bs.Associate(3)
	require.Error(t, err)
}

func TestDeassociateFreesSlot(t *testing.T) {
	bs := New()
	_, err := bs.Associate(1)
	require.NoError(t, err)
	bs.Deassociate(1)
	_, ok := bs.User(1)
	assert.False(t, ok)
}

func TestAssociatedUsersSortedAscending(t *testing.T) {
	bs := New()
	for _, id := range []int{5, 2, 9, 1} {
		_, err := bs.Associate(id)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 5, 9}, bs.AssociatedUsers())
}

func TestEnsureFragmenterLoadedPrefersControlOverData(t *testing.T) {
	bs := New()
	u, err := bs.Associate(1)
	require.NoError(t, err)

	u.EnqueueDL([]byte("data"))
	u.EnqueueDLControl([]byte("ctrl"))

	loaded, err := u.EnsureFragmenterLoaded(16)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.False(t, u.Fragmenter.Idle())

	pdu, done := u.Fragmenter.NextFragment(16)
	assert.True(t, done)
	assert.Contains(t, string(pdu), "ctrl")
}

func TestMCSForSNRThresholds(t *testing.T) {
	assert.Equal(t, phygeo.MCS0, MCSForSNR(-5))
	assert.Equal(t, phygeo.MCS1, MCSForSNR(5))
	assert.Equal(t, phygeo.MCS2, MCSForSNR(10))
	assert.Equal(t, phygeo.MCS3, MCSForSNR(15))
	assert.Equal(t, phygeo.MCS4, MCSForSNR(20))
	assert.Equal(t, phygeo.MCS4, MCSForSNR(30))
}

func TestRecordULDecodeResultDowngradesAfterThreeFailures(t *testing.T) {
	bs := New()
	u, err := bs.Associate(1)
	require.NoError(t, err)
	u.ULMCS = phygeo.MCS3

	u.RecordULDecodeResult(false)
	u.RecordULDecodeResult(false)
	assert.Equal(t, phygeo.MCS3, u.ULMCS, "not yet at threshold")

	u.RecordULDecodeResult(false)
	assert.Equal(t, phygeo.MCS2, u.ULMCS, "downgraded after 3 consecutive failures")
}

func TestRecordULDecodeResultResetsOnSuccess(t *testing.T) {
	bs := New()
	u, err := bs.Associate(1)
	require.NoError(t, err)
	u.ULMCS = phygeo.MCS3

	u.RecordULDecodeResult(false)
	u.RecordULDecodeResult(false)
	u.RecordULDecodeResult(true)
	u.RecordULDecodeResult(false)
	u.RecordULDecodeResult(false)
	assert.Equal(t, phygeo.MCS3, u.ULMCS, "counter reset by the intervening success")
}

func TestDowngradeNeverGoesBelowMCS0(t *testing.T) {
	bs := New()
	u, err := bs.Associate(1)
	require.NoError(t, err)
	u.ULMCS = phygeo.MCS0
	for i := 0; i < 10; i++ {
		u.RecordULDecodeResult(false)
	}
	assert.Equal(t, phygeo.MCS0, u.ULMCS)
}
