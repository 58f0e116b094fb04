// Package indexer pre-warms the thumbnail store for a picture directory.
//
// The indexer walks the configured picture directory and queues a
// low-priority thumbnail job for every supported picture it finds. Workers
// consult the durable store before decoding, so rescans of an already
// warmed tree only cost a directory walk.
//
// The indexer operates in three modes:
//   - Initial scan: Full walk on application startup
//   - Periodic scan: Optional interval-based rescans
//   - Change polling: Lightweight modification checks of the top of the tree
//
// Hidden files and directories (prefixed with '.') are skipped.
package indexer
