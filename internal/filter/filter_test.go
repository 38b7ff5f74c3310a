package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replistore/internal/filter"
)

func TestNewRejectsWildcardFacilityWithUser(t *testing.T) {
	_, err := filter.New("", "UserX")
	require.Error(t, err)
}

func TestNewAllowsFacilityWithoutUser(t *testing.T) {
	f, err := filter.New("Facility1", "")
	require.NoError(t, err)
	assert.Equal(t, "Facility1", f.Facility)
}

func TestIsSubset(t *testing.T) {
	universal := filter.Universal
	facilityOnly, err := filter.New("Facility1", "")
	require.NoError(t, err)
	full, err := filter.New("Facility1", "UserX")
	require.NoError(t, err)
	otherFacility, err := filter.New("Facility2", "")
	require.NoError(t, err)

	cases := []struct {
		name   string
		f, g   filter.Filter
		expect bool
	}{
		{"full subset of universal", full, universal, true},
		{"full subset of facilityOnly", full, facilityOnly, true},
		{"facilityOnly subset of universal", facilityOnly, universal, true},
		{"universal not subset of facilityOnly", universal, facilityOnly, false},
		{"facilityOnly not subset of otherFacility", facilityOnly, otherFacility, false},
		{"full subset of itself", full, full, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.f.IsSubset(c.g)
			require.NoError(t, err)
			assert.Equal(t, c.expect, got)
		})
	}
}

func TestKeyAndSupersetKeys(t *testing.T) {
	assert.Equal(t, "+", filter.Universal.Key())

	f, err := filter.New("Facility1", "UserX")
	require.NoError(t, err)
	assert.Equal(t, "Facility1+UserX", f.Key())
	assert.Equal(t, []string{"+", "Facility1+", "Facility1+UserX"}, f.SupersetKeys())

	facilityOnly, err := filter.New("Facility1", "")
	require.NoError(t, err)
	assert.Equal(t, "Facility1+", facilityOnly.Key())
	assert.Equal(t, []string{"+", "Facility1+"}, facilityOnly.SupersetKeys())

	assert.Equal(t, []string{"+"}, filter.Universal.SupersetKeys())
}
