package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string                  { return f.name }
func (f fakeChecker) Check(context.Context) error { return f.err }

func TestCheck_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeChecker{name: "objectstore"})
	r.Register(fakeChecker{name: "metadatastore"})

	report := r.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	require := assert.New(t)
	require.Len(report.Components, 2)
	for _, c := range report.Components {
		require.Equal(StatusHealthy, c.Status)
		require.Empty(c.Message)
	}
}

func TestCheck_AnyUnhealthyComponentFailsTheAggregate(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeChecker{name: "objectstore"})
	r.Register(fakeChecker{name: "eventstream", err: errors.New("dial refused")})

	report := r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)

	var eventstream ComponentReport
	for _, c := range report.Components {
		if c.Name == "eventstream" {
			eventstream = c
		}
	}
	assert.Equal(t, StatusUnhealthy, eventstream.Status)
	assert.Equal(t, "dial refused", eventstream.Message)
}

func TestCheck_NoCheckersIsHealthy(t *testing.T) {
	r := NewRegistry()
	report := r.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Components)
}

func TestIncReconcileAttempt_AccumulatesPerLoop(t *testing.T) {
	r := NewRegistry()
	r.IncReconcileAttempt("stuck_uploads", "repaired")
	r.IncReconcileAttempt("stuck_uploads", "failed")
	r.IncReconcileAttempt("orphan_sweep", "deleted")
	r.IncTerminalFailure("stuck_uploads")

	report := r.Check(context.Background())
	stuck := report.ReconciliationStats["stuck_uploads"]
	assert.EqualValues(t, 2, stuck.Attempts)
	assert.EqualValues(t, 1, stuck.TerminalFailures)
	assert.False(t, stuck.LastPassAt.IsZero())

	orphan := report.ReconciliationStats["orphan_sweep"]
	assert.EqualValues(t, 1, orphan.Attempts)
	assert.EqualValues(t, 0, orphan.TerminalFailures)
}

func TestCheck_ReturnsSnapshotNotLiveMap(t *testing.T) {
	r := NewRegistry()
	r.IncReconcileAttempt("missing_announcements", "republished")

	report := r.Check(context.Background())
	r.IncReconcileAttempt("missing_announcements", "republished")

	assert.EqualValues(t, 1, report.ReconciliationStats["missing_announcements"].Attempts,
		"a Report already handed out must not mutate when later attempts are recorded")
}
