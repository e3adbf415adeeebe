// Package migrate copies collections between document backends, for example
// from a local badger store into Firestore.
//
// Documents are read in offset pages, written in atomic windows of at most
// storage.MaxBatchSize operations, and each window is retried with
// exponential backoff. Progress is reported to an io.Writer.
package migrate
