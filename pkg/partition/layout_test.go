package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoRoundTrip(t *testing.T) {
	in := Info{RootInode: 7, Owner: "host-a", Op: OpStartedMigration, MigrationSrc: "host-b"}
	buf := EncodeInfo(in)
	assert.Len(t, buf, infoObjectLen)

	got, err := DecodeInfo(buf)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestDecodeInfoRejectsWrongSize(t *testing.T) {
	_, err := DecodeInfo(make([]byte, infoObjectLen-1))
	assert.Error(t, err)
}

func TestRunningOpRoundTrip(t *testing.T) {
	names := []string{"1", "2", "300"}
	buf := EncodeRunningOp(names)
	assert.Len(t, buf, len(names)*runningOpRecordLen)

	got, err := DecodeRunningOp(buf)
	require.NoError(t, err)
	assert.Equal(t, names, got)
}

func TestRunningOpEmpty(t *testing.T) {
	buf := EncodeRunningOp(nil)
	got, err := DecodeRunningOp(buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}
