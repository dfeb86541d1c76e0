// Package files records which book files have been saved on this device and
// where. Rows survive re-syncs of the books table and are wiped together
// with the replica.
//
//	repo := files.NewSQLiteRepository(db)
//	_ = repo.CreateOrUpdate(ctx, &models.Download{BookID: id, LocalPath: p, Size: n})
//	d, _ := repo.GetByBookID(ctx, id)
package files
