package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
)

func TestClaimActionFirstWriterWins(t *testing.T) {
	store := New()
	ctx := context.Background()

	claimed, err := store.ClaimAction(ctx, "u1", "2024-03-02", reward.ActionRitual)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.ClaimAction(ctx, "u1", "2024-03-02", reward.ActionRitual)
	require.NoError(t, err)
	require.False(t, claimed)

	// A different action on the same day has its own flag.
	claimed, err = store.ClaimAction(ctx, "u1", "2024-03-02", reward.ActionCheckin)
	require.NoError(t, err)
	require.True(t, claimed)

	rec, err := store.GetDailyRecord(ctx, "u1", "2024-03-02")
	require.NoError(t, err)
	require.True(t, rec.Done(reward.ActionRitual))
	require.True(t, rec.Done(reward.ActionCheckin))
	require.False(t, rec.Done(reward.ActionWallPost))
}

func TestCreditDebitKeepBalanceEqualToEntrySum(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Credit(ctx, "u1", 40, reward.SourceRitual, "2024-03-02")
	require.NoError(t, err)
	_, err = store.Credit(ctx, "u1", 10, reward.SourceCheckin, "2024-03-02")
	require.NoError(t, err)
	_, err = store.Debit(ctx, "u1", 15, reward.SourcePurchase, "")
	require.NoError(t, err)

	acct, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	sum, err := store.SumEntries(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(35), acct.Balance)
	require.Equal(t, acct.Balance, sum)

	credited, err := store.SumCredited(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), credited)

	_, err = store.Debit(ctx, "u1", 100, reward.SourcePurchase, "")
	require.ErrorIs(t, err, reward.ErrInsufficientBalance)
}

func TestQuotaConsumeStopsAtHardCap(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.InitQuota(ctx, quota.State{
		UserID: "u1", Resource: quota.ResourceAIMessages,
		Tier: reward.TierFree, Cap: 2, ResetAt: quota.FarFuture,
	})
	require.NoError(t, err)

	_, err = store.ConsumeQuota(ctx, "u1", quota.ResourceAIMessages, 2)
	require.NoError(t, err)
	_, err = store.ConsumeQuota(ctx, "u1", quota.ResourceAIMessages, 1)
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	_, err = store.AddPurchasedExtra(ctx, "u1", quota.ResourceAIMessages, 3)
	require.NoError(t, err)
	st, err := store.ConsumeQuota(ctx, "u1", quota.ResourceAIMessages, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), st.Used)
	require.Equal(t, int64(2), st.Remaining())
}

func TestInsertAwardIsFirstWriterWins(t *testing.T) {
	store := New()
	ctx := context.Background()

	award := achievement.Awarded{UserID: "u1", AchievementID: "first_ritual"}
	inserted, err := store.InsertAward(ctx, award)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertAward(ctx, award)
	require.NoError(t, err)
	require.False(t, inserted)

	awards, err := store.ListAwards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, awards, 1)
}

func TestStreakSaveAndList(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, found, err := store.GetStreak(ctx, "u1", streak.TypeRitual)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.SaveStreak(ctx, streak.State{
		UserID: "u1", Type: streak.TypeRitual, Current: 3, Longest: 5, LastAdvancedDate: "2024-03-02",
	}))
	require.NoError(t, store.SaveStreak(ctx, streak.State{
		UserID: "u1", Type: streak.TypeNoContact, Current: 1, Longest: 1, LastAdvancedDate: "2024-03-02",
	}))

	st, found, err := store.GetStreak(ctx, "u1", streak.TypeRitual)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3, st.Current)

	states, err := store.ListStreaks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, states, 2)
}
