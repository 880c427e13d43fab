package hermes

// latestPriceUpdatesResponse represents the response from /v2/updates/price/latest.
// Example response:
//
//	{
//	  "binary": {"encoding": "hex", "data": ["504e4155010000..."]},
//	  "parsed": [
//	    {
//	      "id": "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
//	      "price": {"price": "345678000000", "conf": "123456", "expo": -8, "publish_time": 1704067200}
//	    }
//	  ]
//	}
type latestPriceUpdatesResponse struct {
	Binary binaryUpdate  `json:"binary"`
	Parsed []parsedPrice `json:"parsed"`
}

type binaryUpdate struct {
	Encoding string   `json:"encoding"`
	Data     []string `json:"data"`
}

type parsedPrice struct {
	ID    string    `json:"id"`
	Price priceData `json:"price"`
}

// priceData carries price and conf as decimal strings since they are int64
// and uint64 on the wire.
type priceData struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}
