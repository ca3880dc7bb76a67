package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotifications(t *testing.T) {
	ids, err := DecodeNotifications([]byte(`[{"id":"a"},{"id":"b"},{"id":"c"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestDecodeNotificationsSkipsEmptyIDs(t *testing.T) {
	ids, err := DecodeNotifications([]byte(`[{"id":"a"},{"other":"x"},{"id":""}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestDecodeNotificationsEmptyList(t *testing.T) {
	ids, err := DecodeNotifications([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDecodeNotificationsRejectsNonList(t *testing.T) {
	_, err := DecodeNotifications([]byte(`{"id":"a"}`))
	require.Error(t, err)
}
