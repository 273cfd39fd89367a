// Package async provides goroutine helpers with panic recovery and context handling.
//
// SafeGo runs a single background task, WorkerPool runs queued tasks on a fixed set
// of goroutines, and Batch and Map fan a slice of items out across a pool.
//
//	users, errs := async.Map(ctx, logger, ids, 4, "resolve", 10*time.Second,
//		func(ctx context.Context, id string) (rbac.PermissionSet, error) {
//			return resolver.ResolveUser(ctx, id)
//		})
package async
