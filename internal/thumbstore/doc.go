// Package thumbstore keeps rendered thumbnails on disk between runs.
//
// Each thumbnail is a JPEG named by the md5 of its (locator, rotation,
// size) key, indexed in a SQLite database in the same directory. The index
// records the source file's modification time so edited pictures are
// re-rendered.
package thumbstore
