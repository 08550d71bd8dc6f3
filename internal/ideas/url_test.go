package ideas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRecordDerivesIDAndName(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	rec, err := NewRecord("https://x/ideas/caf%C3%A9-name/12345/", now)
	require.NoError(t, err)
	require.Equal(t, "12345", rec.ID)
	require.Equal(t, "café-name", rec.Name)
	require.Equal(t, StatusUnprocessed, rec.Status)
	require.Equal(t, now.UTC(), rec.CreatedAt)
}

func TestNewRecordTrimsWhitespace(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord("  https://x/ideas/cats/42/\t", time.Now())
	require.NoError(t, err)
	require.Equal(t, "https://x/ideas/cats/42/", rec.URL)
	require.Equal(t, "42", rec.ID)
}

func TestNewRecordShortPath(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"https://x/",
		"https://x/ideas/",
		"https://x/ideas/12345/",
	} {
		rec, err := NewRecord(raw, time.Now())
		require.NoError(t, err, raw)
		require.Empty(t, rec.ID, raw)
		require.Empty(t, rec.Name, raw)
	}
}

func TestNewRecordBadPercentEncoding(t *testing.T) {
	t.Parallel()

	_, err := NewRecord("https://x/ideas/bad%zz/12345/", time.Now())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedURL)
}

func TestNewRecordCyrillicName(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord(
		"https://ru.pinterest.com/ideas/%D1%84%D0%BE%D1%82%D0%BE%D0%B3%D1%80%D0%B0%D1%84/919325369379/",
		time.Now(),
	)
	require.NoError(t, err)
	require.Equal(t, "919325369379", rec.ID)
	require.Equal(t, "фотограф", rec.Name)
}
