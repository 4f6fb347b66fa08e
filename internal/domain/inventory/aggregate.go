package inventory

// Aggregate folds batches into one Listing per ProductKey, in order of first
// appearance. Batches with Quantity <= 0 are dropped before merging. Quantity
// is summed; name, packaging, price and image come from the first batch seen
// for the key, later differences are ignored. Names are trimmed, so a listing
// always carries the same names as its key.
func Aggregate(batches []Batch) []Listing {
	out := make([]Listing, 0, len(batches))
	pos := make(map[ProductKey]int, len(batches))

	for _, b := range batches {
		if b.Quantity <= 0 {
			continue
		}
		key := b.Key()
		if i, ok := pos[key]; ok {
			out[i].Quantity += b.Quantity
			continue
		}
		pos[key] = len(out)
		out = append(out, Listing{
			Key:           key,
			RecipeName:    key.RecipeName,
			PackagingType: key.PackagingType,
			Quantity:      b.Quantity,
			SellingPrice:  b.SellingPrice,
			ImageURL:      b.ImageURL,
		})
	}
	return out
}

// Index maps listings by key. Later duplicates win, which Aggregate never produces.
func Index(listings []Listing) map[ProductKey]Listing {
	m := make(map[ProductKey]Listing, len(listings))
	for _, l := range listings {
		m[l.Key] = l
	}
	return m
}

// TotalQuantity sums listing quantities.
func TotalQuantity(listings []Listing) int {
	n := 0
	for _, l := range listings {
		n += l.Quantity
	}
	return n
}
