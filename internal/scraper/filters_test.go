package scraper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	t.Parallel()

	typ, err := ParseTypeFilter("full_time")
	require.NoError(t, err)
	require.Equal(t, TypeFullTime, typ)

	exp, err := ParseExperienceLevelFilter(" MID_SENIOR ")
	require.NoError(t, err)
	require.Equal(t, ExperienceMidSenior, exp)

	tf, err := ParseTimeFilter("week")
	require.NoError(t, err)
	require.Equal(t, TimeWeek, tf)

	rel, err := ParseRelevanceFilter("RECENT")
	require.NoError(t, err)
	require.Equal(t, RelevanceRecent, rel)

	_, err = ParseTypeFilter("SOMETIMES")
	var optErr *InvalidOptionError
	require.ErrorAs(t, err, &optErr)
	require.Equal(t, "filters.type", optErr.Field)
}

func TestFilterValidity(t *testing.T) {
	t.Parallel()

	require.True(t, TypeContract.Valid())
	require.False(t, TypeFilter("X").Valid())
	require.True(t, TimeAny.Valid())
	require.False(t, RelevanceFilter("ZZ").Valid())
	require.True(t, ExperienceExecutive.Valid())
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	require.True(t, IsFatal(&SessionError{Err: ErrSessionClosed}))
	require.True(t, IsFatal(ErrSessionClosed))
	require.False(t, IsFatal(&ExtractionError{Err: errors.New("timeout"), Page: 1}))
	require.False(t, IsFatal(&InvalidOptionError{Field: "limit"}))
}
