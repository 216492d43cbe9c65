package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sgi/internal/domain"
)

type fakeFetcher struct {
	observations map[int64]domain.PresenceObservation
	err          error
	calls        int
}

func (f *fakeFetcher) FetchPresence(_ context.Context, _ []int64) (map[int64]domain.PresenceObservation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.observations, nil
}

type fakeStore struct {
	users   map[int64]domain.TrackedUser
	state   domain.ServiceState
	saveErr error

	saved      map[int64]domain.TrackedUser
	saveCalls  int
	stateSaves []domain.ServiceState
}

func (s *fakeStore) LoadAll(_ context.Context) (map[int64]domain.TrackedUser, error) {
	out := make(map[int64]domain.TrackedUser, len(s.users))
	for id, u := range s.users {
		out[id] = u
	}
	return out, nil
}

func (s *fakeStore) SaveAll(_ context.Context, users map[int64]domain.TrackedUser) error {
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = users
	return nil
}

func (s *fakeStore) LoadServiceState(_ context.Context) (domain.ServiceState, error) {
	return s.state, nil
}

func (s *fakeStore) SaveServiceState(_ context.Context, state domain.ServiceState) error {
	s.stateSaves = append(s.stateSaves, state)
	return nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

func newTestPoller(f *fakeFetcher, s *fakeStore, n *fakeNotifier) *Poller {
	p := NewPoller(f, s, n, time.Minute)
	p.now = func() time.Time { return now }
	return p
}

func TestRunPollCycleNotifiesAndPersists(t *testing.T) {
	fetcher := &fakeFetcher{observations: map[int64]domain.PresenceObservation{
		1: {SteamID: 1, GameID: "379720", GameName: "DOOM"},
	}}
	st := &fakeStore{users: map[int64]domain.TrackedUser{
		1: user(1, "alice", "", ""),
	}}
	notifier := &fakeNotifier{}

	result, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TransitionsApplied)
	assert.Equal(t, 1, result.NotificationsSent)
	assert.Equal(t, []string{"alice is now playing DOOM"}, notifier.sent)

	require.NotNil(t, st.saved)
	assert.Equal(t, "379720", st.saved[1].GameID)

	// 最終ポーリング時刻も更新される
	require.NotEmpty(t, st.stateSaves)
	assert.Equal(t, now, st.stateSaves[len(st.stateSaves)-1].LastPoll)
}

func TestRunPollCycleGroupsSameGame(t *testing.T) {
	fetcher := &fakeFetcher{observations: map[int64]domain.PresenceObservation{
		1: {SteamID: 1, GameID: "379720", GameName: "DOOM"},
		2: {SteamID: 2, GameID: "379720", GameName: "DOOM"},
	}}
	st := &fakeStore{users: map[int64]domain.TrackedUser{
		1: user(1, "alice", "", ""),
		2: user(2, "bob", "", ""),
	}}
	notifier := &fakeNotifier{}

	result, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.NoError(t, err)

	// 同一サイクル内の同じゲームは1通にまとまる
	assert.Equal(t, 2, result.TransitionsApplied)
	assert.Equal(t, 1, result.NotificationsSent)
	assert.Equal(t, []string{"alice and bob are now playing DOOM"}, notifier.sent)
}

func TestRunPollCycleMutedStillPersists(t *testing.T) {
	fetcher := &fakeFetcher{observations: map[int64]domain.PresenceObservation{
		1: {SteamID: 1, GameID: "379720", GameName: "DOOM"},
	}}
	st := &fakeStore{
		users: map[int64]domain.TrackedUser{1: user(1, "alice", "", "")},
		state: domain.ServiceState{Silenced: true},
	}
	notifier := &fakeNotifier{}

	result, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TransitionsApplied)
	assert.Zero(t, result.NotificationsSent)
	assert.Empty(t, notifier.sent)

	// ミュート中でも状態は永続化される
	require.NotNil(t, st.saved)
	assert.Equal(t, "379720", st.saved[1].GameID)
}

func TestRunPollCycleStoppedClearsWithoutNotify(t *testing.T) {
	fetcher := &fakeFetcher{observations: map[int64]domain.PresenceObservation{
		1: {SteamID: 1},
	}}
	st := &fakeStore{users: map[int64]domain.TrackedUser{
		1: user(1, "alice", "379720", "DOOM"),
	}}
	notifier := &fakeNotifier{}

	result, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TransitionsApplied)
	assert.Zero(t, result.NotificationsSent)
	assert.Empty(t, notifier.sent)

	require.NotNil(t, st.saved)
	assert.Empty(t, st.saved[1].GameID)
}

func TestRunPollCycleDeliveryFailureStillPersists(t *testing.T) {
	fetcher := &fakeFetcher{observations: map[int64]domain.PresenceObservation{
		1: {SteamID: 1, GameID: "379720", GameName: "DOOM"},
	}}
	st := &fakeStore{users: map[int64]domain.TrackedUser{
		1: user(1, "alice", "", ""),
	}}
	notifier := &fakeNotifier{err: domain.ErrDeliveryFailed}

	result, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.NoError(t, err)

	// 配送失敗はサイクルを失敗させず、状態は先に進む
	assert.Equal(t, 1, result.TransitionsApplied)
	assert.Zero(t, result.NotificationsSent)
	require.NotNil(t, st.saved)
	assert.Equal(t, "379720", st.saved[1].GameID)
}

func TestRunPollCycleFetchFailureAborts(t *testing.T) {
	fetcher := &fakeFetcher{err: domain.ErrFetchUnavailable}
	st := &fakeStore{users: map[int64]domain.TrackedUser{
		1: user(1, "alice", "", ""),
	}}
	notifier := &fakeNotifier{}

	_, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrFetchUnavailable)

	// 状態は一切変更されない
	assert.Zero(t, st.saveCalls)
	assert.Empty(t, st.stateSaves)
	assert.Empty(t, notifier.sent)
}

func TestRunPollCyclePersistFailure(t *testing.T) {
	fetcher := &fakeFetcher{observations: map[int64]domain.PresenceObservation{
		1: {SteamID: 1, GameID: "379720", GameName: "DOOM"},
	}}
	st := &fakeStore{
		users:   map[int64]domain.TrackedUser{1: user(1, "alice", "", "")},
		saveErr: domain.ErrPersistence,
	}
	notifier := &fakeNotifier{}

	_, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestRunPollCycleNoUsersSkipsFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	st := &fakeStore{}
	notifier := &fakeNotifier{}

	result, err := newTestPoller(fetcher, st, notifier).RunPollCycle(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.TransitionsApplied)
	assert.Zero(t, fetcher.calls)

	// ユーザーがいなくても最終ポーリング時刻は更新される
	require.NotEmpty(t, st.stateSaves)
	assert.Equal(t, now, st.stateSaves[0].LastPoll)
}

func TestRunCancellation(t *testing.T) {
	fetcher := &fakeFetcher{}
	st := &fakeStore{}
	notifier := &fakeNotifier{}
	p := newTestPoller(fetcher, st, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Runがキャンセルで停止しない")
	}
}

func TestRunPollCycleErrorsAreSentinels(t *testing.T) {
	err := errors.New("wrapped")
	fetcher := &fakeFetcher{err: err}
	st := &fakeStore{users: map[int64]domain.TrackedUser{1: user(1, "alice", "", "")}}

	_, got := newTestPoller(fetcher, st, &fakeNotifier{}).RunPollCycle(context.Background())
	require.ErrorIs(t, got, err)
}
