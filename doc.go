// Package blobindex queries partitioned, pre-sorted datasets stored as
// compressed JSON-lines shards in blob storage.
//
// A dataset version lives under <root>/<dataset>/<version>/ and consists of
// a manifest, index.json.gz, plus the shard files it lists. The manifest
// records the key of the first and last row of every shard; because shards
// are sorted by key, a query only fetches shards whose bounds can hold
// matching rows.
//
// # Quick Start
//
// Open a dataset and query it:
//
//	store, err := blobindex.Open(ctx, "video_stats",
//	    func(r VideoStat) key.Key { return key.Of("channelId", r.ChannelID, "upload", r.Upload) },
//	    blobindex.WithRoot("https://data.example.com/results"),
//	    blobindex.WithCDNRoot("https://cdn.example.com/results"),
//	)
//	if err != nil {
//	    return err
//	}
//	rows, err := store.Rows(ctx, blobindex.Match("channelId", "UC123"))
//
// Rows without a fixed schema can be read with [OpenRecords].
//
// # Filters
//
// [Eq] and [Match] build equality clauses; [Range] builds an inclusive key
// range. Clauses combine with [And] (the default) or [Or]:
//
//	res, err := store.Query(ctx, []blobindex.Filter{
//	    blobindex.Range(key.Of("upload", "2021-01-01"), key.Of("upload", "2021-12-31")),
//	}, blobindex.QueryOptions[VideoStat]{
//	    Order:      blobindex.Desc,
//	    IsComplete: blobindex.Limit[VideoStat](100),
//	})
//
// Keys compare with [key.Compare]: null and absent values sort last, and a
// null or absent field in a filter does not constrain the comparison.
//
// # Failures
//
// A shard that cannot be fetched or decoded is logged, skipped, and listed
// in [Result.Failed]. Open fails if the manifest cannot be loaded.
//
// # Caching
//
// Decoded shards are cached in memory for the life of the store. Use
// [WithDiskCache] to keep raw shards across processes, or [WithoutCache]
// to always refetch.
package blobindex
