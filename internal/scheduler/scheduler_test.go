package scheduler

import (
	"testing"

	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/hnap4pluto/basestation/internal/mac"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/stretchr/testify/require"
)

func TestProcessInboundAssocReqAssociatesNewUser(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)

	s.PushInbound(InboundEvent{UserID: 3, Ctrl: control.ULCtrl{Type: control.ULAssocReq, RequestedUserID: 3}})
	s.RunSubframe(0)

	_, ok := bs.User(3)
	require.True(t, ok)
}

func TestProcessInboundChannelReportUpdatesMCS(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	u, err := bs.Associate(1)
	require.NoError(t, err)
	require.Equal(t, phygeo.MCS0, u.DLMCS)

	s.PushInbound(InboundEvent{UserID: 1, Ctrl: control.ULCtrl{Type: control.ULChannelReport, SNRdB: 20}})
	s.RunSubframe(0)

	require.Equal(t, phygeo.MCS4, u.DLMCS)
	require.Equal(t, phygeo.MCS4, u.ULMCS)
}

func TestProcessInboundBufferStatusRecorded(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	u, err := bs.Associate(1)
	require.NoError(t, err)

	s.PushInbound(InboundEvent{UserID: 1, Ctrl: control.ULCtrl{Type: control.ULBufferStatus, BufferBytes: 500}})
	s.RunSubframe(0)

	require.Equal(t, uint16(500), u.ULBufferBytes())
}

func TestPlanDLDataPicksLongestWaitedAmongDemandingUsers(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)

	u1, _ := bs.Associate(1)
	u2, _ := bs.Associate(2)
	u1.EnqueueDL([]byte("a"))
	u2.EnqueueDL([]byte("b"))

	// u1 was served more recently than u2.
	u1.MarkServedDLData(10)
	u2.MarkServedDLData(5)

	a := s.RunSubframe(11)
	require.Equal(t, 2, a.DLData[0], "user 2 waited longer and should get the first slot")
}

func TestPlanDLDataSkipsUsersWithNoDemand(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	_, _ = bs.Associate(1) // no DL demand

	a := s.RunSubframe(0)
	for _, userid := range a.DLData {
		require.Equal(t, 0, userid)
	}
}

func TestPlanULDataRequiresNonZeroBacklog(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	u1, _ := bs.Associate(1)
	u1.ReportULBuffer(0)

	a := s.RunSubframe(0)
	require.Equal(t, 0, a.ULData[0])
}

func TestPlanULDataPrefersLargerBacklogOnTiedAge(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	u1, _ := bs.Associate(1)
	u2, _ := bs.Associate(2)
	u1.ReportULBuffer(10)
	u2.ReportULBuffer(999)

	a := s.RunSubframe(0)
	require.Equal(t, 2, a.ULData[0])
}

func TestPlanULCtrlServesEveryUserWithinFrameLen(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	for id := 1; id <= 3; id++ {
		_, err := bs.Associate(id)
		require.NoError(t, err)
	}
	require.Greater(t, 3, phygeo.NumULCtrlSlot, "test assumes demand exceeds slot count")

	served := map[int]bool{}
	for seq := 0; seq < phygeo.FrameLen; seq++ {
		a := s.RunSubframe(byte(seq))
		require.Len(t, map[int]bool{a.ULCtrl[0]: true, a.ULCtrl[1]: true}, phygeo.NumULCtrlSlot,
			"a subframe assigns at most NumULCtrlSlot distinct users")
		for _, id := range a.ULCtrl {
			if id != 0 {
				served[id] = true
			}
		}
	}
	for id := 1; id <= 3; id++ {
		require.True(t, served[id], "user %d was never granted a UL control slot within FRAME_LEN subframes", id)
	}
}

func TestRunSubframeBoundedWork(t *testing.T) {
	bs := mac.New()
	tables := phygeo.NewTables()
	s := New(bs, tables)
	for id := 1; id <= phygeo.MaxUser; id++ {
		u, err := bs.Associate(id)
		require.NoError(t, err)
		u.EnqueueDL([]byte("x"))
		u.ReportULBuffer(1)
	}
	// Should complete without panicking or hanging regardless of user count.
	a := s.RunSubframe(0)
	require.Len(t, a.DLData, phygeo.NumSlot)
}
