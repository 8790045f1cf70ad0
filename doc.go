// Package mdscore is the metadata core of a distributed parallel file system: directory
// engine, write-back inode cache, inode-number allocator, partition lifecycle and ownership,
// and the RPC surface a client-facing layer drives requests through.
//
// One rank (cmd/mdsd) owns a set of locally-mounted partitions (pkg/partition), each a
// subtree of the global namespace persisted as packed einode records (pkg/einode) behind a
// write-back cache (pkg/inocache). Inode numbers are allocated per-rank from a disk-
// checkpointed band (pkg/inoalloc). Ownership changes between ranks are driven by an external
// atomic-operation engine through the participant adapter in pkg/ownership.
package mdscore
