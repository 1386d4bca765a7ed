package quota

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRules = ParseRules{
	ProviderID: "claude",
	TrustMarkers: []string{
		"Do you trust the files in this folder",
	},
	TrustPathRe: regexp.MustCompile(`(?m)^\s*(~?/[^\r\n]+?)/?\s*$`),
	ExpiredMarkers: []string{
		"session expired",
	},
	AuthMarkers: []string{
		"Please run /login",
	},
	SessionLabel: "Current session",
	WeeklyLabel:  "Current week (all models)",
	ModelLabels: map[string]string{
		"Opus": "Current week (Opus)",
	},
}

func testParser(t *testing.T) *Parser {
	t.Helper()
	p := NewParser(testRules)
	p.now = func() time.Time {
		return time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	}
	return p
}

const usageScreen = `Settings   Usage

Current session
█████████████░░░░░░░  65% left
Resets 11pm

Current week (all models)
████████████████░░░░  80% left
Resets Jan 15

Current week (Opus)
███████░░░░░░░░░░░░░  35% left
Resets Jan 15

Login method: Claude account
Org: Acme Corp
dev@acme.com
`

func TestParser_FullUsageScreen(t *testing.T) {
	snap, err := testParser(t).Parse(usageScreen)
	require.NoError(t, err)

	require.Len(t, snap.Quotas, 3)

	session, ok := snap.Quota(KindSession)
	require.True(t, ok)
	assert.Equal(t, 65.0, session.PercentRemaining)
	assert.Equal(t, "11pm", session.ResetText)
	assert.False(t, session.ResetsAt.IsZero(), "clock phrase should parse to a timestamp")

	weekly, ok := snap.Quota(KindWeekly)
	require.True(t, ok)
	assert.Equal(t, 80.0, weekly.PercentRemaining)

	model, ok := snap.Quota(KindModel)
	require.True(t, ok)
	assert.Equal(t, "Opus", model.Model)
	assert.Equal(t, 35.0, model.PercentRemaining)

	assert.Equal(t, "dev@acme.com", snap.Email)
	assert.Equal(t, "Acme Corp", snap.Org)
	assert.Equal(t, "Claude account", snap.LoginMethod)
	assert.Equal(t, "claude", snap.ProviderID)
	assert.NotEmpty(t, snap.ID)
}

func TestParser_UsedAndLeftAgree(t *testing.T) {
	// "35% used" and "65% left" describe the same state and must parse
	// to the same remaining percentage.
	left := "Current session\n  65% left\n"
	used := "Current session\n  35% used\n"

	snapLeft, err := testParser(t).Parse(left)
	require.NoError(t, err)
	snapUsed, err := testParser(t).Parse(used)
	require.NoError(t, err)

	sl, _ := snapLeft.Quota(KindSession)
	su, _ := snapUsed.Quota(KindSession)
	assert.Equal(t, 65.0, sl.PercentRemaining)
	assert.Equal(t, sl.PercentRemaining, su.PercentRemaining)
}

func TestParser_DepletedQuota(t *testing.T) {
	snap, err := testParser(t).Parse("Current session\n  100% used\n")
	require.NoError(t, err)

	session, ok := snap.Quota(KindSession)
	require.True(t, ok)
	assert.Equal(t, 0.0, session.PercentRemaining)
	assert.Equal(t, StatusDepleted, session.Status())
}

func TestParser_OutOfRangePercentClamped(t *testing.T) {
	// A CLI bug or mis-read digit must still land inside [0,100].
	snap, err := testParser(t).Parse("Current session\n  150% used\n")
	require.NoError(t, err)

	session, ok := snap.Quota(KindSession)
	require.True(t, ok)
	assert.Equal(t, 0.0, session.PercentRemaining)

	snap, err = testParser(t).Parse("Current session\n  130% left\n")
	require.NoError(t, err)
	session, _ = snap.Quota(KindSession)
	assert.Equal(t, 100.0, session.PercentRemaining)
}

func TestParser_TrustPromptIsErrorNotZeroUsage(t *testing.T) {
	screen := `Do you trust the files in this folder?

  /home/dev/project

  1. Yes, proceed
  2. No, exit
`
	snap, err := testParser(t).Parse(screen)
	require.Error(t, err)
	assert.Nil(t, snap, "trust prompt must never produce a snapshot")

	pe, ok := AsProbeError(err)
	require.True(t, ok)
	assert.Equal(t, ErrFolderTrust, pe.Kind)
	assert.Equal(t, "/home/dev/project", pe.Path)
}

func TestParser_TrustMarkerInScrollbackIgnored(t *testing.T) {
	// Stale trust-prompt text above a real usage report must not mask it.
	screen := "Do you trust the files in this folder?\n" +
		"Current session\n  50% left\n"

	snap, err := testParser(t).Parse(screen)
	require.NoError(t, err)
	session, ok := snap.Quota(KindSession)
	require.True(t, ok)
	assert.Equal(t, 50.0, session.PercentRemaining)
}

func TestParser_SessionExpired(t *testing.T) {
	_, err := testParser(t).Parse("Your session expired. Please log in again.")
	assert.Equal(t, ErrSessionExpired, KindOf(err))
}

func TestParser_AuthRequired(t *testing.T) {
	_, err := testParser(t).Parse("Please run /login to authenticate")
	assert.Equal(t, ErrAuthRequired, KindOf(err))
}

func TestParser_ExpiredWinsOverAuth(t *testing.T) {
	// Both phrasings on screen: expiry is the more specific diagnosis.
	_, err := testParser(t).Parse("session expired\nPlease run /login\n")
	assert.Equal(t, ErrSessionExpired, KindOf(err))
}

func TestParser_GarbledOutputFailsParse(t *testing.T) {
	snap, err := testParser(t).Parse("something went wrong\nno usage here\n")
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, ErrParseFailed, KindOf(err))
}

func TestParser_PercentOutsideWindowNotMatched(t *testing.T) {
	// A percentage far below the label belongs to another section.
	screen := "Current session\n\n\n\n\n\n\n\n  40% left\n"
	_, err := testParser(t).Parse(screen)
	assert.Equal(t, ErrParseFailed, KindOf(err))
}

func TestParser_MissingOptionalQuotas(t *testing.T) {
	snap, err := testParser(t).Parse("Current session\n  90% left\n")
	require.NoError(t, err)
	assert.Len(t, snap.Quotas, 1)
	_, ok := snap.Quota(KindWeekly)
	assert.False(t, ok)
}

func TestParser_ScalarsAboveTrailingLines(t *testing.T) {
	// Org and login method usually sit mid-screen with footer text
	// below them; extraction must not depend on being the last line.
	screen := "Current session\n  65% left\n\n" +
		"Org: Acme Corp\n" +
		"Login method: Claude account\n" +
		"Esc to go back\n"

	snap, err := testParser(t).Parse(screen)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", snap.Org)
	assert.Equal(t, "Claude account", snap.LoginMethod)
}

func TestParser_CostExtraction(t *testing.T) {
	snap, err := testParser(t).Parse("Current session\n  90% left\nSession cost: $3.41\n")
	require.NoError(t, err)
	assert.True(t, snap.HasCost)
	assert.Equal(t, 3.41, snap.CostUSD)
}

func TestParser_RelativeReset(t *testing.T) {
	p := testParser(t)
	snap, err := p.Parse("Current session\n  20% left\nResets in 2h 15m\n")
	require.NoError(t, err)

	session, _ := snap.Quota(KindSession)
	require.False(t, session.ResetsAt.IsZero())
	want := p.now().Add(2*time.Hour + 15*time.Minute)
	assert.Equal(t, want, session.ResetsAt)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrExecutionFailed, KindOf(errors.New("plain")))
}
