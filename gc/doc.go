// Package gc implements the garbage collector of the metastore.
//
// A cycle visits every index and
//
//  1. marks Staged splits older than StagedGracePeriod for deletion,
//  2. deletes the files of splits MarkedForDeletion for longer than
//     GracePeriod,
//  3. removes the splits whose files are confirmed gone from the catalog.
//
// A file that is already missing counts as deleted. A failed deletion keeps
// its split in the catalog until a later cycle succeeds, so a split record is
// never dropped while its file may still exist.
//
//	c := gc.New(ms, splitStore, func(o *gc.Options) {
//	    o.GracePeriod = 30 * time.Minute
//	    o.DeletesPerSecond = 50
//	})
//	go c.Run(ctx)
package gc
