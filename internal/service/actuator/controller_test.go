package actuator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	on         bool
	connectErr error
	offErr     error
	hang       bool // block until ctx is done

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (d *fakeDevice) enter() func() {
	n := d.inFlight.Add(1)
	for {
		m := d.maxSeen.Load()
		if n <= m || d.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { d.inFlight.Add(-1) }
}

func (d *fakeDevice) Connect(ctx context.Context) error { return d.connectErr }

func (d *fakeDevice) On(ctx context.Context) error {
	defer d.enter()()
	time.Sleep(time.Millisecond)
	d.on = true
	return nil
}

func (d *fakeDevice) Off(ctx context.Context) error {
	defer d.enter()()
	if d.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if d.offErr != nil {
		return d.offErr
	}
	d.on = false
	return nil
}

func (d *fakeDevice) IsOn(ctx context.Context) (bool, error) { return d.on, nil }

type countingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *countingNotifier) Notify(text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return true
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func newController(t *testing.T, d Device, n Notifier, timeout time.Duration) *Controller {
	t.Helper()
	return NewController(d, n, Options{Timeout: timeout}, logger.NewDiscard())
}

func TestController_NotConnected(t *testing.T) {
	c := newController(t, &fakeDevice{}, nil, time.Second)

	assert.ErrorIs(t, c.TurnOn(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, c.TurnOff(context.Background()), ErrNotConnected)
	_, err := c.QueryState(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, model.DeviceUnknown, c.State())
}

func TestController_ConnectFailure(t *testing.T) {
	c := newController(t, &fakeDevice{connectErr: errors.New("unreachable")}, nil, time.Second)

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.False(t, c.Connected())
}

func TestController_QueryStateTracksDevice(t *testing.T) {
	c := newController(t, &fakeDevice{on: true}, nil, time.Second)
	require.NoError(t, c.Connect(context.Background()))

	on, err := c.QueryState(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, model.DeviceOn, c.State())
}

func TestController_SuccessNotifiesOnce(t *testing.T) {
	n := &countingNotifier{}
	d := &fakeDevice{}
	c := newController(t, d, n, time.Second)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.TurnOn(context.Background()))
	assert.Equal(t, model.DeviceOn, c.State())
	assert.Equal(t, []string{"Successfully turned on device"}, n.msgs)

	require.NoError(t, c.TurnOff(context.Background()))
	assert.Equal(t, model.DeviceOff, c.State())
	assert.Equal(t, 2, n.count())
	assert.Equal(t, "Devices are turned off", n.msgs[1])
}

func TestController_TimeoutLeavesStateUnchanged(t *testing.T) {
	n := &countingNotifier{}
	d := &fakeDevice{on: true, hang: true}
	c := newController(t, d, n, 50*time.Millisecond)
	require.NoError(t, c.Connect(context.Background()))
	_, err := c.QueryState(context.Background())
	require.NoError(t, err)

	start := time.Now()
	err = c.TurnOff(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "turn_off", cmdErr.Op)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, model.DeviceOn, c.State())
	assert.Zero(t, n.count())
}

func TestController_FailureDoesNotNotify(t *testing.T) {
	n := &countingNotifier{}
	c := newController(t, &fakeDevice{on: true, offErr: errors.New("relay busy")}, n, time.Second)
	require.NoError(t, c.Connect(context.Background()))
	c.Assume(model.DeviceOn)

	assert.Error(t, c.TurnOff(context.Background()))
	assert.Equal(t, model.DeviceOn, c.State())
	assert.Zero(t, n.count())
}

func TestController_SerializesCommands(t *testing.T) {
	d := &fakeDevice{}
	c := newController(t, d, nil, time.Second)
	require.NoError(t, c.Connect(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.TurnOn(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), d.maxSeen.Load())
}

func TestHTTPRelay_Commands(t *testing.T) {
	var power = "OFF"
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cm", r.URL.Path)
		cmnd := r.URL.Query().Get("cmnd")
		got = append(got, cmnd)
		switch cmnd {
		case "Power On":
			power = "ON"
		case "Power Off":
			power = "OFF"
		case "Status":
			w.Write([]byte(`{"Status":{"Module":1}}`))
			return
		}
		w.Write([]byte(`{"POWER":"` + power + `"}`))
	}))
	defer srv.Close()

	r := NewHTTPRelay(srv.URL+"/", "", "")
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx))
	require.NoError(t, r.On(ctx))
	on, err := r.IsOn(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	require.NoError(t, r.Off(ctx))

	assert.Equal(t, []string{"Status", "Power On", "Power", "Power Off"}, got)
}

func TestHTTPRelay_SendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "admin", r.URL.Query().Get("user"))
		assert.Equal(t, "s3cret", r.URL.Query().Get("password"))
		w.Write([]byte(`{"POWER1":"ON"}`))
	}))
	defer srv.Close()

	on, err := NewHTTPRelay(srv.URL, "admin", "s3cret").IsOn(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
}

func TestHTTPRelay_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cmnd") {
		case "Power On":
			w.Write([]byte(`{"POWER":"OFF"}`))
		case "Power":
			w.Write([]byte(`not json`))
		default:
			http.Error(w, "nope", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	r := NewHTTPRelay(srv.URL, "", "")
	ctx := context.Background()

	assert.Error(t, r.On(ctx), "device did not confirm the new state")
	_, err := r.IsOn(ctx)
	assert.Error(t, err)
	assert.Error(t, r.Connect(ctx))
}
