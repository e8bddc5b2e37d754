package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_operations_total",
			Help: "Total number of cart store operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	storeCartItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_store_cart_items",
			Help: "Units currently held in the local cart",
		},
	)

	storeCatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_store_catalog_products",
			Help: "Products in the locally cached catalog",
		},
	)
)

// Operation labels.
const (
	opAddToCart      = "add_to_cart"
	opRemoveFromCart = "remove_from_cart"
	opFetchFoodList  = "fetch_food_list"
	opLoadCartData   = "load_cart_data"
)

// Outcome labels beyond remote.Outcome.
const (
	outcomeLocal    = "local"
	outcomeNotFound = "not_in_cart"
)
