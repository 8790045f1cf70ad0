package partition

import (
	"bytes"
	"encoding/binary"

	"github.com/maesker/mdscore/pkg/mdserrors"
)

// Persistent layout constants (spec §6, bit-exact, little-endian).
const (
	ownerFieldLen      = 16
	migrationDevLen    = 64
	runningOpRecordLen = 255

	infoObjectName      = "partition_info"
	runningOpObjectName = "running_operation"
)

// OpState names the partition-level operation recorded in the info object (spec §3).
type OpState uint32

const (
	OpNone OpState = iota
	OpStartedMigration
	OpDeleteSubtree
)

// Info is the decoded contents of the partition_info object.
type Info struct {
	RootInode   uint64
	Owner       string
	Op          OpState
	MigrationSrc string
}

const infoObjectLen = 8 + ownerFieldLen + 4 + migrationDevLen

func encodeFixedString(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func decodeFixedString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b)
	}
	return string(b[:i])
}

// EncodeInfo serializes Info into the fixed-size partition_info payload.
func EncodeInfo(in Info) []byte {
	buf := make([]byte, infoObjectLen)
	binary.LittleEndian.PutUint64(buf[0:8], in.RootInode)
	copy(buf[8:8+ownerFieldLen], encodeFixedString(in.Owner, ownerFieldLen))
	binary.LittleEndian.PutUint32(buf[8+ownerFieldLen:8+ownerFieldLen+4], uint32(in.Op))
	copy(buf[8+ownerFieldLen+4:], encodeFixedString(in.MigrationSrc, migrationDevLen))
	return buf
}

// DecodeInfo parses the fixed-size partition_info payload.
func DecodeInfo(buf []byte) (Info, error) {
	if len(buf) != infoObjectLen {
		return Info{}, mdserrors.New(mdserrors.StorageFailure,
			"partition_info size %d != expected %d", len(buf), infoObjectLen)
	}
	var in Info
	in.RootInode = binary.LittleEndian.Uint64(buf[0:8])
	in.Owner = decodeFixedString(buf[8 : 8+ownerFieldLen])
	in.Op = OpState(binary.LittleEndian.Uint32(buf[8+ownerFieldLen : 8+ownerFieldLen+4]))
	in.MigrationSrc = decodeFixedString(buf[8+ownerFieldLen+4:])
	return in, nil
}

// EncodeRunningOp serializes the running-operation object list: one 255-byte
// null-padded record per object name (spec §6).
func EncodeRunningOp(names []string) []byte {
	buf := make([]byte, len(names)*runningOpRecordLen)
	for i, n := range names {
		copy(buf[i*runningOpRecordLen:(i+1)*runningOpRecordLen], encodeFixedString(n, runningOpRecordLen))
	}
	return buf
}

// DecodeRunningOp parses the running-operation object back into its object-name list.
func DecodeRunningOp(buf []byte) ([]string, error) {
	if len(buf)%runningOpRecordLen != 0 {
		return nil, mdserrors.New(mdserrors.StorageFailure,
			"running_operation size %d not a multiple of record size %d", len(buf), runningOpRecordLen)
	}
	n := len(buf) / runningOpRecordLen
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = decodeFixedString(buf[i*runningOpRecordLen : (i+1)*runningOpRecordLen])
	}
	return names, nil
}
