// Package listing is the marketplace listing model and its index sources.
//
// Listings come in three kinds (product, service and supplier_product) that
// share one table. Each kind is registered with the indexer as its own Source,
// and Store notifies index hooks after every committed write.
package listing
