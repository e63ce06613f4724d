package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/poiesic/marketsearch/listing"
	"github.com/urfave/cli/v2"
)

var seedListings = []*listing.Listing{
	{ListingType: listing.KindProduct, SellerID: "1", Seller: "greenfarm", Name: "Organic Tomatoes", Category: "vegetables", Price: 50, Unit: "kg", Location: "Nairobi", Description: "Vine ripened tomatoes picked this morning."},
	{ListingType: listing.KindProduct, SellerID: "1", Seller: "greenfarm", Name: "Sukuma Wiki", Category: "vegetables", Price: 20, Unit: "bunch", Location: "Nairobi", Description: "Fresh collard greens grown without pesticides."},
	{ListingType: listing.KindProduct, SellerID: "2", Seller: "highlands", Name: "Arabica Coffee Beans", Category: "beverages", Price: 900, Unit: "kg", Location: "Nyeri", Description: "Sun dried single origin coffee from the highlands."},
	{ListingType: listing.KindProduct, SellerID: "2", Seller: "highlands", Name: "Purple Tea", Category: "beverages", Price: 450, Unit: "pack", Location: "Kericho", Description: "Antioxidant rich purple tea leaves."},
	{ListingType: listing.KindProduct, SellerID: "3", Seller: "dairyco", Name: "Fresh Milk", Category: "dairy", Price: 60, Unit: "litre", Location: "Eldoret", Description: "Pasteurised whole milk delivered daily."},
	{ListingType: listing.KindProduct, SellerID: "3", Seller: "dairyco", Name: "Natural Yoghurt", Category: "dairy", Price: 120, Unit: "500ml", Location: "Eldoret", Description: "Thick set yoghurt with live cultures."},
	{ListingType: listing.KindProduct, SellerID: "4", Seller: "orchard", Name: "Hass Avocados", Category: "fruits", Price: 15, Unit: "piece", Location: "Murang'a", Description: "Creamy export grade avocados."},
	{ListingType: listing.KindProduct, SellerID: "4", Seller: "orchard", Name: "Mangoes", Category: "fruits", Price: 25, Unit: "piece", Location: "Machakos", Description: "Sweet apple mangoes at peak season."},
	{ListingType: listing.KindProduct, SellerID: "5", Seller: "grains", Name: "Maize Flour", Category: "grains", Price: 180, Unit: "2kg", Location: "Nakuru", Description: "Finely milled white maize flour."},
	{ListingType: listing.KindProduct, SellerID: "5", Seller: "grains", Name: "Brown Rice", Category: "grains", Price: 250, Unit: "kg", Location: "Mwea", Description: "Whole grain rice from irrigated paddies."},
	{ListingType: listing.KindService, SellerID: "6", Seller: "fastmove", Name: "Same Day Delivery", Category: "logistics", Price: 300, Location: "Nairobi", Description: "Refrigerated delivery of fresh produce across the city."},
	{ListingType: listing.KindService, SellerID: "7", Seller: "agroexperts", Name: "Soil Testing", Category: "advisory", Price: 1500, Location: "Nakuru", Description: "Laboratory analysis of soil nutrients with fertiliser advice."},
	{ListingType: listing.KindService, SellerID: "7", Seller: "agroexperts", Name: "Farm Consultation", Category: "advisory", Price: 2500, Location: "Nakuru", Description: "On site visit by an agronomist to plan the planting season."},
	{ListingType: listing.KindService, SellerID: "8", Seller: "coldchain", Name: "Cold Storage", Category: "logistics", Price: 100, Unit: "crate/day", Location: "Mombasa", Description: "Temperature controlled storage near the port."},
	{ListingType: listing.KindSupplierProduct, SellerID: "9", Seller: "agrosupply", Name: "Drip Irrigation Kit", Category: "equipment", Price: 8500, Unit: "kit", Location: "Thika", Supplier: "agrosupply", Description: "Complete drip kit for a quarter acre greenhouse."},
	{ListingType: listing.KindSupplierProduct, SellerID: "9", Seller: "agrosupply", Name: "Organic Fertiliser", Category: "inputs", Price: 1200, Unit: "50kg", Location: "Thika", Supplier: "agrosupply", Description: "Composted manure pellets certified for organic farms."},
	{ListingType: listing.KindSupplierProduct, SellerID: "10", Seller: "seedbank", Name: "Hybrid Maize Seed", Category: "inputs", Price: 650, Unit: "2kg", Location: "Kitale", Supplier: "seedbank", Description: "Drought tolerant maize seed for medium altitudes."},
	{ListingType: listing.KindSupplierProduct, SellerID: "10", Seller: "seedbank", Name: "Tomato Seedlings", Category: "inputs", Price: 10, Unit: "seedling", Location: "Kitale", Supplier: "seedbank", Description: "Blight resistant tomato seedlings ready to transplant."},
}

func seedCommand(c *cli.Context) error {
	config, err := buildConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(c, config)
	if err != nil {
		return err
	}
	defer svc.Close()

	store := svc.Listings()
	if store == nil {
		return fmt.Errorf("seeding needs a SQL backend, got %s", config.Backend)
	}

	source := listingsFromSlice(seedListings)
	if src := c.String("src"); src != "" {
		source, err = listingsFromFile(src)
		if err != nil {
			return err
		}
	}

	n, err := seed(c.Context, store, source)
	svc.Wait()
	if err != nil {
		return fmt.Errorf("seeding failed after %d listings: %w", n, err)
	}
	fmt.Fprintf(c.App.Writer, "Seeded %d listings\n", n)
	return nil
}

// listingsFromFile returns an iterator over the JSON listings of a file,
// one object per line. Blank lines are skipped.
func listingsFromFile(filename string) (iter.Seq2[*listing.Listing, error], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(*listing.Listing, error) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var l listing.Listing
			if err := json.Unmarshal([]byte(text), &l); err != nil {
				yield(nil, fmt.Errorf("%s:%d: %w", filename, line, err))
				return
			}
			if !yield(&l, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}, nil
}

// listingsFromSlice returns an iterator over copies of listings.
func listingsFromSlice(listings []*listing.Listing) iter.Seq2[*listing.Listing, error] {
	return func(yield func(*listing.Listing, error) bool) {
		for _, l := range listings {
			clone := *l
			if !yield(&clone, nil) {
				return
			}
		}
	}
}

// seed creates every listing from source and returns how many were created.
// Listings with an unknown type are skipped.
func seed(ctx context.Context, store *listing.Store, source iter.Seq2[*listing.Listing, error]) (int, error) {
	created := 0
	for l, err := range source {
		if err != nil {
			return created, err
		}
		if err := store.Create(ctx, l); err != nil {
			if errors.Is(err, listing.ErrInvalidListingType) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
