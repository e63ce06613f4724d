// Package rebuild runs index rebuilds as background jobs.
//
// A job pages through the live entities of one kind, upserts each of them and
// writes a checkpoint after every page, so an interrupted job can be resumed
// where it stopped. Once every entity has been visited the job sweeps the
// entries of that kind that were not refreshed since the job started, which
// removes deleted entities without ever leaving the kind empty.
package rebuild
