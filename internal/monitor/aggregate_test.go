package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sgi/internal/domain"
)

func started(name, gameID, gameName string) domain.Transition {
	return domain.Transition{
		User:       domain.TrackedUser{SlackUsername: name},
		Kind:       domain.TransitionStarted,
		ToGameID:   gameID,
		ToGameName: gameName,
	}
}

func TestAggregateSingleUser(t *testing.T) {
	groups := Aggregate([]domain.Transition{started("alice", "379720", "DOOM")})

	require.Len(t, groups, 1)
	assert.Equal(t, "379720", groups[0].GameID)
	assert.Equal(t, "DOOM", groups[0].GameName)
	assert.Equal(t, []string{"alice"}, groups[0].Users)
	assert.Equal(t, "alice is now playing DOOM", groups[0].Text)
}

func TestAggregateTwoUsers(t *testing.T) {
	groups := Aggregate([]domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "379720", "DOOM"),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "alice and bob are now playing DOOM", groups[0].Text)
}

func TestAggregateThreeUsers(t *testing.T) {
	groups := Aggregate([]domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "379720", "DOOM"),
		started("carol", "379720", "DOOM"),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "alice, bob and carol are all now playing DOOM! Get in!", groups[0].Text)
}

func TestAggregateFourUsers(t *testing.T) {
	groups := Aggregate([]domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "379720", "DOOM"),
		started("carol", "379720", "DOOM"),
		started("dave", "379720", "DOOM"),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "alice, bob, carol and dave are all now playing DOOM! Get in!", groups[0].Text)
}

func TestAggregateStoppedNeverNotifies(t *testing.T) {
	groups := Aggregate([]domain.Transition{
		{
			User:       domain.TrackedUser{SlackUsername: "alice"},
			Kind:       domain.TransitionStopped,
			FromGameID: "379720",
		},
	})

	assert.Empty(t, groups)
}

func TestAggregateChangedNotifies(t *testing.T) {
	groups := Aggregate([]domain.Transition{
		{
			User:       domain.TrackedUser{SlackUsername: "alice"},
			Kind:       domain.TransitionChanged,
			FromGameID: "379720",
			ToGameID:   "730",
			ToGameName: "Counter-Strike 2",
		},
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "alice is now playing Counter-Strike 2", groups[0].Text)
}

func TestAggregateGroupOrderIsFirstSeen(t *testing.T) {
	groups := Aggregate([]domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "730", "Counter-Strike 2"),
		started("carol", "379720", "DOOM"),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "379720", groups[0].GameID)
	assert.Equal(t, []string{"alice", "carol"}, groups[0].Users)
	assert.Equal(t, "730", groups[1].GameID)
	assert.Equal(t, []string{"bob"}, groups[1].Users)
}

func TestAggregateGameNameFromFirstTransition(t *testing.T) {
	// 同じゲームIDで名前の表記が揺れた場合は初出の名前を使う
	groups := Aggregate([]domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "379720", "DOOM (2016)"),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "DOOM", groups[0].GameName)
	assert.Equal(t, "alice and bob are now playing DOOM", groups[0].Text)
}

func TestAggregateReorderingOtherGamesKeepsGroupText(t *testing.T) {
	a := []domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "730", "Counter-Strike 2"),
	}
	b := []domain.Transition{
		started("bob", "730", "Counter-Strike 2"),
		started("alice", "379720", "DOOM"),
	}

	ga := Aggregate(a)
	gb := Aggregate(b)

	// グループ順は初出順に従って入れ替わるが、各グループのテキストは不変
	require.Len(t, ga, 2)
	require.Len(t, gb, 2)
	assert.Equal(t, ga[0].Text, gb[1].Text)
	assert.Equal(t, ga[1].Text, gb[0].Text)
}

func TestAggregateDeterministic(t *testing.T) {
	transitions := []domain.Transition{
		started("alice", "379720", "DOOM"),
		started("bob", "379720", "DOOM"),
		started("carol", "730", "Counter-Strike 2"),
	}

	g1 := Aggregate(transitions)
	g2 := Aggregate(transitions)
	assert.Equal(t, g1, g2)
}
