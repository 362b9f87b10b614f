package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFingerprintDeterministic(t *testing.T) {
	a := Map{"title": String("x"), "votes": Int(1)}
	b := Map{"votes": Int(1), "title": String("x")}

	fa, err := RecordFingerprint(a)
	require.NoError(t, err)
	fb, err := RecordFingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestRecordFingerprintTimeZoneInsensitive(t *testing.T) {
	instant := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := Map{"at": NewTime(instant)}
	b := Map{"at": NewTime(instant.In(time.FixedZone("X", 3600)))}

	fa, err := RecordFingerprint(a)
	require.NoError(t, err)
	fb, err := RecordFingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprintDomainSeparation(t *testing.T) {
	m := Map{"title": String("x")}

	record, err := Fingerprint(DomainRecord, m)
	require.NoError(t, err)
	other, err := Fingerprint("entref/other/v1", m)
	require.NoError(t, err)

	assert.NotEqual(t, record, other)
}

func TestRecordFingerprintChangesWithContent(t *testing.T) {
	fa, err := RecordFingerprint(Map{"title": String("x")})
	require.NoError(t, err)
	fb, err := RecordFingerprint(Map{"title": String("y")})
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}
