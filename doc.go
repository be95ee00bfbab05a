// Package dbset provides a typed, transaction-aware, collection-centric data
// access layer on top of the official MongoDB driver.
//
// A Context owns the client connection, at most one session per logical unit of
// work, and per-collection metadata. Collection handles are obtained with
// GetDbSet and expose CRUD, bulk, aggregation, paged find, projection and index
// management for a single document type:
//
//	cfg := dbset.Config{URI: "mongodb://localhost:27017/app"}
//	c, err := dbset.Connect(ctx, cfg)
//	if err != nil {
//	    ...
//	}
//	defer c.Close(ctx)
//
//	users, err := dbset.GetDbSet[*User, string](ctx, c)
//	n, err := users.Insert(ctx, &User{Id: "a"}, nil)
package dbset
