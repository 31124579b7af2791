package record

import "time"

// PriceFeedLen is the minimum length of a price feed record.
const PriceFeedLen = discriminatorLen + idLen + 8 + 8

var priceFeedDisc = Discriminator("PriceFeed")

// PriceFeed is an external price record. Price is fiat per reference unit, scaled 1e6.
type PriceFeed struct {
	Authority  ID
	Price      uint64
	LastUpdate time.Time
}

// DecodePriceFeed decodes a price feed record.
func DecodePriceFeed(data []byte) (PriceFeed, error) {
	if err := requireLen(data, PriceFeedLen, "price feed"); err != nil {
		return PriceFeed{}, err
	}
	return PriceFeed{
		Authority:  readID(data, 8),
		Price:      readU64(data, 40),
		LastUpdate: readTime(data, 48),
	}, nil
}

// EncodePriceFeed encodes a price feed record.
func EncodePriceFeed(p PriceFeed) []byte {
	w := newWriter(priceFeedDisc, PriceFeedLen)
	w.id(p.Authority)
	w.u64(p.Price)
	w.time(p.LastUpdate)
	return w.buf
}
