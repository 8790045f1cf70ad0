package mdserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesKind(t *testing.T) {
	err := New(NotFound, "inode %d missing", 42)
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, NotFound))
	assert.Contains(t, err.Error(), "inode 42 missing")
}

func TestWrapNilIsUntypedNil(t *testing.T) {
	var err error = Wrap(StorageFailure, nil, "should stay nil")
	assert.NoError(t, err)
}

func TestWrapPreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(StorageFailure, cause, "writing checkpoint")
	assert.Equal(t, StorageFailure, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfDefaultsToStorageFailureForForeignErrors(t *testing.T) {
	assert.Equal(t, StorageFailure, KindOf(errors.New("raw io error")))
}

func TestKindOfNilIsOK(t *testing.T) {
	assert.Equal(t, OK, KindOf(nil))
}

func TestIsRejectsWrongKind(t *testing.T) {
	err := New(ConcurrentConflict, "name taken")
	assert.False(t, Is(err, NotFound))
}
