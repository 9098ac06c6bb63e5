package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitGone(t *testing.T, tr *Toaster, within time.Duration) {
	t.Helper()

	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if _, ok := tr.Current(); !ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("toast still present after %v", within)
}

func TestToaster_ShowAndCurrent(t *testing.T) {
	tr := NewToaster()
	defer tr.Dismiss()

	shown := tr.Show("Added to cart", SeveritySuccess)
	assert.NotEmpty(t, shown.ID)

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, "Added to cart", got.Message)
	assert.Equal(t, SeveritySuccess, got.Severity)
	assert.False(t, got.Leaving)
}

func TestToaster_UnknownSeverityMapsToInfo(t *testing.T) {
	tr := NewToaster()
	defer tr.Dismiss()

	got := tr.Show("hello", Severity("warning"))
	assert.Equal(t, SeverityInfo, got.Severity)
}

func TestToaster_NewToastReplacesCurrentImmediately(t *testing.T) {
	tr := NewToaster()
	defer tr.Dismiss()

	first := tr.Show("first", SeverityInfo)
	second := tr.Show("second", SeverityError)

	got, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "second", got.Message)
	assert.NotEqual(t, first.ID, got.ID)
}

func TestToaster_AutoDismissAfterVisibleAndExit(t *testing.T) {
	tr := newToaster(20*time.Millisecond, 10*time.Millisecond)

	tr.Show("bye", SeverityInfo)

	// Still visible inside the display window.
	time.Sleep(5 * time.Millisecond)
	_, ok := tr.Current()
	require.True(t, ok)

	waitGone(t, tr, 200*time.Millisecond)
}

func TestToaster_EntersLeavingBeforeRemoval(t *testing.T) {
	tr := newToaster(10*time.Millisecond, 50*time.Millisecond)

	tr.Show("bye", SeverityInfo)

	// Inside the exit transition the toast is still present but
	// marked as leaving.
	deadline := time.Now().Add(200 * time.Millisecond)
	sawLeaving := false
	for time.Now().Before(deadline) {
		got, ok := tr.Current()
		if ok && got.Leaving {
			sawLeaving = true
			break
		}
		if !ok {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.True(t, sawLeaving, "toast should transition through the leaving state")

	waitGone(t, tr, 200*time.Millisecond)
}

func TestToaster_StaleTimerCannotRemoveNewerToast(t *testing.T) {
	tr := newToaster(15*time.Millisecond, 5*time.Millisecond)

	tr.Show("first", SeverityInfo)

	// Replace just before the first toast's hide timer would fire.
	time.Sleep(10 * time.Millisecond)
	second := tr.Show("second", SeverityInfo)

	// Past the first toast's full lifetime; the second must survive
	// its own visible window.
	time.Sleep(12 * time.Millisecond)
	got, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)

	waitGone(t, tr, 200*time.Millisecond)
}
